package pdfengine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseVersion_Banner(t *testing.T) {
	require.Equal(t, "61.2", parseVersion("WeasyPrint version 61.2"))
	require.Equal(t, "53.0", parseVersion("53.0"))
	require.Equal(t, "", parseVersion("no digits here"))
}

func TestMajorOf(t *testing.T) {
	require.Equal(t, 61, majorOf("61.2"))
	require.Equal(t, 53, majorOf("53"))
	require.Equal(t, 0, majorOf("garbage"))
}

func TestLocate_MissingBinary_ConfigurationError(t *testing.T) {
	// An empty PATH guarantees lookup failure.
	t.Setenv("PATH", t.TempDir())

	_, err := Locate(context.Background(), discardLogger())
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestLocate_TooOldEngine_ConfigurationError(t *testing.T) {
	dir := t.TempDir()
	fakeEngine(t, dir, "#!/bin/sh\necho 'WeasyPrint version 42.1'\n")
	t.Setenv("PATH", dir)

	_, err := Locate(context.Background(), discardLogger())
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
	require.Contains(t, err.Error(), "too old")
}

func TestLocate_ModernEngine_Succeeds(t *testing.T) {
	dir := t.TempDir()
	fakeEngine(t, dir, "#!/bin/sh\necho 'WeasyPrint version 61.2'\n")
	t.Setenv("PATH", dir)

	engine, err := Locate(context.Background(), discardLogger())
	require.NoError(t, err)
	require.Equal(t, "61.2", engine.Version)
}

func TestRender_EngineFailure_RenderError(t *testing.T) {
	dir := t.TempDir()
	fakeEngine(t, dir, "#!/bin/sh\nif [ \"$1\" = --version ]; then echo 'WeasyPrint version 61.2'; exit 0; fi\necho 'boom' >&2\nexit 1\n")
	t.Setenv("PATH", dir)

	engine, err := Locate(context.Background(), discardLogger())
	require.NoError(t, err)

	err = engine.Render(context.Background(), "in.html", "out.pdf")
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryRender))
	require.Contains(t, err.Error(), "boom")
}

func TestRender_EngineSuccess(t *testing.T) {
	dir := t.TempDir()
	fakeEngine(t, dir, "#!/bin/sh\nif [ \"$1\" = --version ]; then echo '61.2'; exit 0; fi\nexit 0\n")
	t.Setenv("PATH", dir)

	engine, err := Locate(context.Background(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, engine.Render(context.Background(), "in.html", "out.pdf"))
}

func fakeEngine(t *testing.T, dir, script string) {
	t.Helper()
	path := filepath.Join(dir, BinaryName)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}
