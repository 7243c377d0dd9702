package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeBook lays out a minimal valid book directory.
func writeBook(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"metadata.yaml": "title: A Book\nauthor:\n  - Jo Writer\ncopyright:\n  owner: Jo Writer\n  year: 2026\n",
		"title.md":      "# %title%\n\nby %author%\n",
		"chapter-1.md":  "# Chapter One\n\nIt begins.\n",
		"chapter-2.md":  "# Chapter Two\n\nIt continues.\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), buf.Bytes(), 0o644))
	return dir
}

func newOrchestrator(t *testing.T, bookDir string) *Orchestrator {
	t.Helper()
	o, err := New(bookDir, "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestRun_HTMLTarget_SelfContainedArtifact(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))

	results := o.Run(context.Background(), []Target{TargetHTML})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, StateSucceeded, results[0].State)

	out, err := os.ReadFile(o.ArtifactPath(TargetHTML))
	require.NoError(t, err)
	s := string(out)
	require.Contains(t, s, "Chapter One")
	require.Contains(t, s, "by Jo Writer")
	require.NotContains(t, s, "<link", "stylesheet must be inlined")
	require.Contains(t, s, "data:image/png;base64,", "cover must be inlined")
	require.Contains(t, s, "book_section")
}

func TestRun_FreshArtifact_Skipped(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))
	ctx := context.Background()

	first := o.Run(ctx, []Target{TargetHTML})
	require.Equal(t, StateSucceeded, first[0].State)
	require.False(t, first[0].Skipped)

	second := o.Run(ctx, []Target{TargetHTML})
	require.Equal(t, StateSucceeded, second[0].State)
	require.True(t, second[0].Skipped, "no dependency changed, no rebuild")
}

func TestIsStale_TouchedSource_TriggersRebuild(t *testing.T) {
	dir := writeBook(t)
	o := newOrchestrator(t, dir)
	ctx := context.Background()

	o.Run(ctx, []Target{TargetHTML})
	require.False(t, o.IsStale(ctx, TargetHTML))

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "chapter-1.md"), future, future))
	require.True(t, o.IsStale(ctx, TargetHTML))
}

func TestRun_EPUBTarget_ValidContainer(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))

	results := o.Run(context.Background(), []Target{TargetEPUB})
	require.NoError(t, results[0].Err)

	zr, err := zip.OpenReader(o.ArtifactPath(TargetEPUB))
	require.NoError(t, err)
	defer zr.Close()
	require.Equal(t, "mimetype", zr.File[0].Name)
	require.Equal(t, zip.Store, zr.File[0].Method)
}

func TestRun_DOCXTarget_ReferenceStylesApplied(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))

	results := o.Run(context.Background(), []Target{TargetDOCX})
	require.NoError(t, results[0].Err)

	zr, err := zip.OpenReader(o.ArtifactPath(TargetDOCX))
	require.NoError(t, err)
	defer zr.Close()

	var styles string
	for _, f := range zr.File {
		if f.Name == "word/styles.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			styles = string(data)
		}
	}
	require.Contains(t, styles, "JustifyRight")
}

func TestRun_CombinedTarget_SubstitutedDump(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))

	results := o.Run(context.Background(), []Target{TargetCombined})
	require.NoError(t, results[0].Err)

	out, err := os.ReadFile(o.ArtifactPath(TargetCombined))
	require.NoError(t, err)
	require.Contains(t, string(out), "# A Book")
	require.NotContains(t, string(out), "%title%")
}

func TestRun_PDFTarget_UsesPrintEngine(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\nif [ \"$1\" = --version ]; then echo 'WeasyPrint version 61.2'; exit 0; fi\necho pdf > \"$2\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weasyprint"), []byte(script), 0o755))
	t.Setenv("PATH", dir)

	o := newOrchestrator(t, writeBook(t))
	results := o.Run(context.Background(), []Target{TargetPDF})
	require.NoError(t, results[0].Err)

	out, err := os.ReadFile(o.ArtifactPath(TargetPDF))
	require.NoError(t, err)
	require.Equal(t, "pdf\n", string(out))
}

func TestRun_AllTargets_FailureIsolation(t *testing.T) {
	dir := writeBook(t)
	// No cover makes epub fail while html still builds.
	require.NoError(t, os.Remove(filepath.Join(dir, "cover.png")))
	o := newOrchestrator(t, dir)

	results := o.Run(context.Background(), []Target{TargetHTML, TargetEPUB})
	require.Len(t, results, 2)
	require.Equal(t, StateSucceeded, results[0].State)
	require.Equal(t, StateFailed, results[1].State)
	require.True(t, errors.IsCategory(results[1].Err, errors.CategoryConfig))

	_, err := os.Stat(o.ArtifactPath(TargetHTML))
	require.NoError(t, err)
	_, err = os.Stat(o.ArtifactPath(TargetEPUB))
	require.True(t, os.IsNotExist(err), "failed target must not write an artifact")
}

func TestRun_DeprecatedPageBreak_NoArtifact(t *testing.T) {
	dir := writeBook(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chapter-3.md"),
		[]byte("# Three\n\n%newpage%\n\nmore\n"), 0o644))
	o := newOrchestrator(t, dir)

	results := o.Run(context.Background(), []Target{TargetHTML})
	require.Equal(t, StateFailed, results[0].State)
	require.True(t, errors.IsCategory(results[0].Err, errors.CategoryMarkup))
	require.Contains(t, results[0].Err.Error(), "chapter-3.md",
		"diagnostic must name the offending file")

	_, err := os.Stat(o.ArtifactPath(TargetHTML))
	require.True(t, os.IsNotExist(err))
}

func TestRun_FailedRebuild_KeepsPreviousArtifact(t *testing.T) {
	dir := writeBook(t)
	o := newOrchestrator(t, dir)
	ctx := context.Background()

	o.Run(ctx, []Target{TargetHTML})
	before, err := os.ReadFile(o.ArtifactPath(TargetHTML))
	require.NoError(t, err)

	// Introduce a markup failure and rebuild.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chapter-1.md"),
		[]byte("# One\n\n%newpage%\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "chapter-1.md"), future, future))

	results := o.Run(ctx, []Target{TargetHTML})
	require.Equal(t, StateFailed, results[0].State)

	after, err := os.ReadFile(o.ArtifactPath(TargetHTML))
	require.NoError(t, err)
	require.Equal(t, before, after, "failure must leave last-known-good artifact")
}

func TestClean_RemovesArtifactKeepsState(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))
	ctx := context.Background()

	o.Run(ctx, []Target{TargetHTML})
	require.NoError(t, o.Clean([]Target{TargetHTML}))

	_, err := os.Stat(o.ArtifactPath(TargetHTML))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(o.statePath())
	require.NoError(t, err, "clean must not remove the state record")
}

func TestClobber_RemovesStateRecord(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))
	ctx := context.Background()

	o.Run(ctx, []Target{TargetHTML})
	require.NoError(t, o.Clobber([]Target{TargetHTML}))

	_, err := os.Stat(o.statePath())
	require.True(t, os.IsNotExist(err))
}

func TestWatch_ReturnsOnCancel(t *testing.T) {
	o := newOrchestrator(t, writeBook(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Watch(ctx, []Target{TargetHTML}) }()

	// Initial pass builds the artifact.
	require.Eventually(t, func() bool {
		_, err := os.Stat(o.ArtifactPath(TargetHTML))
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop on cancel")
	}
}

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest(nil)
	require.NoError(t, err)
	require.Equal(t, BuildOrder, req.Targets)
	require.False(t, req.Clean)
}

func TestParseRequest_CleanNamedTargetOnly(t *testing.T) {
	req, err := ParseRequest([]string{"clean", "pdf"})
	require.NoError(t, err)
	require.True(t, req.Clean)
	require.Equal(t, []Target{TargetPDF}, req.Targets)
}

func TestParseRequest_AllExpandsAndDedupes(t *testing.T) {
	req, err := ParseRequest([]string{"html", "all"})
	require.NoError(t, err)
	require.Equal(t, BuildOrder, req.Targets)
}

func TestParseRequest_UnknownTarget_Error(t *testing.T) {
	_, err := ParseRequest([]string{"mobi"})
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestDependencies_IncludeStyleOverride(t *testing.T) {
	dir := writeBook(t)
	override := filepath.Join(dir, "html.css")
	require.NoError(t, os.WriteFile(override, []byte("body{}"), 0o644))
	o := newOrchestrator(t, dir)

	deps, err := o.Dependencies(TargetHTML)
	require.NoError(t, err)
	require.Contains(t, deps, override)
	require.Contains(t, deps, filepath.Join(dir, "cover.png"))
}
