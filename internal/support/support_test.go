package support

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_FlagWins_OverEnvironment(t *testing.T) {
	flagDir := t.TempDir()
	envDir := t.TempDir()
	t.Setenv(EtcDirEnv, envDir)

	dir, err := Resolve(flagDir)
	require.NoError(t, err)
	require.Equal(t, flagDir, dir)
}

func TestResolve_EnvironmentFallback(t *testing.T) {
	envDir := t.TempDir()
	t.Setenv(EtcDirEnv, envDir)

	dir, err := Resolve("")
	require.NoError(t, err)
	require.Equal(t, envDir, dir)
}

func TestResolve_MissingDirectory_Fails(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestResolve_NothingSet_EmbeddedDefaultsOnly(t *testing.T) {
	t.Setenv(EtcDirEnv, "")
	dir, err := Resolve("")
	require.NoError(t, err)
	require.Empty(t, dir)
}

func TestStylesheet_BookOverride_WinsOverEtcAndDefault(t *testing.T) {
	bookDir := t.TempDir()
	etcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "html.css"), []byte("/* book */"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(etcDir, "html.css"), []byte("/* etc */"), 0o644))

	d := Dirs{BookDir: bookDir, EtcDir: etcDir}
	data, err := d.Stylesheet("html.css")
	require.NoError(t, err)
	require.Equal(t, "/* book */", string(data))
	require.Equal(t, filepath.Join(bookDir, "html.css"), d.StylesheetPath("html.css"))
}

func TestStylesheet_EtcFallback(t *testing.T) {
	etcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(etcDir, "epub.css"), []byte("/* etc */"), 0o644))

	d := Dirs{BookDir: t.TempDir(), EtcDir: etcDir}
	data, err := d.Stylesheet("epub.css")
	require.NoError(t, err)
	require.Equal(t, "/* etc */", string(data))
}

func TestStylesheet_EmbeddedDefault_LastResort(t *testing.T) {
	d := Dirs{BookDir: t.TempDir()}
	data, err := d.Stylesheet("html.css")
	require.NoError(t, err)
	require.Contains(t, string(data), ".sep")
	require.Empty(t, d.StylesheetPath("html.css"))
}

func TestStylesheet_UnknownName_Fails(t *testing.T) {
	d := Dirs{}
	_, err := d.Stylesheet("unknown.css")
	require.Error(t, err)
}
