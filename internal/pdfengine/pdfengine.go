// Package pdfengine locates and drives the external print engine. The
// portable-document target is produced by rendering the styled single-page
// hypertext intermediate through weasyprint; everything else stays
// in-process.
package pdfengine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

const (
	// BinaryName is the engine executable searched for on PATH.
	BinaryName = "weasyprint"

	// minMajorVersion is the oldest engine release with usable paged-media
	// support for our stylesheets.
	minMajorVersion = 53
)

// Engine is a located, version-checked print engine.
type Engine struct {
	Path    string
	Version string

	logger *slog.Logger
}

// Locate finds the print engine on PATH and verifies its version. A missing
// or too-old engine is a configuration error: the caller can still build
// every other target.
func Locate(ctx context.Context, logger *slog.Logger) (*Engine, error) {
	path, err := exec.LookPath(BinaryName)
	if err != nil {
		return nil, errors.Configuration(fmt.Sprintf("%s not found on PATH", BinaryName))
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "query print engine version").WithPath(path)
	}

	version := parseVersion(string(out))
	if version == "" {
		return nil, errors.Configuration(fmt.Sprintf("cannot parse %s version from %q", BinaryName, strings.TrimSpace(string(out))))
	}
	if major := majorOf(version); major < minMajorVersion {
		return nil, errors.Configuration(fmt.Sprintf("%s %s is too old, need %d or newer", BinaryName, version, minMajorVersion))
	}

	logger.Debug("located print engine", "path", path, "version", version)
	return &Engine{Path: path, Version: version, logger: logger}, nil
}

// Render converts the hypertext intermediate at htmlPath into a portable
// document at pdfPath.
func (e *Engine) Render(ctx context.Context, htmlPath, pdfPath string) error {
	cmd := exec.CommandContext(ctx, e.Path, htmlPath, pdfPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("invoking print engine", "input", htmlPath, "output", pdfPath)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errors.Wrap(err, errors.CategoryRender, fmt.Sprintf("print engine failed: %s", msg)).WithPath(pdfPath)
	}
	return nil
}

// parseVersion pulls the version number out of the engine's --version
// banner ("WeasyPrint version 61.2" or just "61.2").
func parseVersion(banner string) string {
	for _, field := range strings.Fields(banner) {
		if len(field) > 0 && field[0] >= '0' && field[0] <= '9' {
			return strings.TrimRight(field, ".")
		}
	}
	return ""
}

func majorOf(version string) int {
	head, _, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return major
}
