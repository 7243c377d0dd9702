package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/bookbinder/internal/orchestrator"
	"git.home.luguber.info/inful/bookbinder/internal/support"
)

// version is set at build time via -ldflags.
var version = "dev"

var CLI struct {
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	EtcDir  string           `help:"Support/template directory (overrides $BOOKBINDER_ETC_DIR)"`
	Version kong.VersionFlag `help:"Print version and exit"`

	BookDir string   `arg:"" type:"existingdir" help:"Book source directory"`
	Targets []string `arg:"" optional:"" help:"Targets: html|pdf|epub|docx|combined|all plus clean|clobber|auto"`
}

func main() {
	// A .env next to the invocation may carry BOOKBINDER_ETC_DIR.
	_ = godotenv.Load()

	ktx := kong.Parse(&CLI,
		kong.Name("bookbinder"),
		kong.Description("Compile a Markdown book directory into html, pdf, epub, and docx artifacts."),
		kong.Vars{"version": version},
	)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	req, err := orchestrator.ParseRequest(CLI.Targets)
	ktx.FatalIfErrorf(err)

	etcDir, err := support.Resolve(CLI.EtcDir)
	ktx.FatalIfErrorf(err)

	o, err := orchestrator.New(CLI.BookDir, etcDir, logger)
	ktx.FatalIfErrorf(err)
	defer func() { _ = o.Close() }()

	if err := run(o, req, logger); err != nil {
		logger.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func run(o *orchestrator.Orchestrator, req orchestrator.Request, logger *slog.Logger) error {
	switch {
	case req.Clobber:
		return o.Clobber(req.Targets)
	case req.Clean:
		return o.Clean(req.Targets)
	case req.Watch:
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return o.Watch(ctx, req.Targets)
	}

	results := o.Run(context.Background(), req.Targets)
	var failed []string
	for _, res := range results {
		if res.State == orchestrator.StateFailed {
			failed = append(failed, string(res.Target))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("target(s) failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
