// Package support resolves the installed support/template directory and the
// per-book style override chain: a file in the book directory wins over the
// support directory, which wins over the embedded defaults.
package support

import (
	"embed"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

//go:embed defaults
var defaults embed.FS

// EtcDirEnv designates the installed support/template directory. A
// command-line flag overrides it.
const EtcDirEnv = "BOOKBINDER_ETC_DIR"

// Dirs carries the resolved lookup roots for one build.
type Dirs struct {
	BookDir string
	// EtcDir may be empty, in which case only book overrides and embedded
	// defaults are consulted.
	EtcDir string
}

// Resolve picks the support directory: the flag value when given, otherwise
// the environment variable, otherwise empty (embedded defaults only). A
// non-empty result must exist.
func Resolve(flagValue string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = os.Getenv(EtcDirEnv)
	}
	if dir == "" {
		return "", nil
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return "", errors.Newf(errors.CategoryConfig,
			"support directory %q does not exist or is not a directory", dir)
	}
	return dir, nil
}

// Stylesheet returns the contents of a named style/template file through the
// override chain. Recognized names: html.css, html-pdf.css, epub.css,
// docx-styles.xml.
func (d Dirs) Stylesheet(name string) ([]byte, error) {
	if d.BookDir != "" {
		if data, err := os.ReadFile(filepath.Join(d.BookDir, name)); err == nil {
			return data, nil
		}
	}
	if d.EtcDir != "" {
		if data, err := os.ReadFile(filepath.Join(d.EtcDir, name)); err == nil {
			return data, nil
		}
	}
	data, err := defaults.ReadFile("defaults/" + name)
	if err != nil {
		return nil, errors.Newf(errors.CategoryConfig, "no default for style file %q", name)
	}
	return data, nil
}

// StylesheetPath returns the path of the file that Stylesheet would read, or
// empty when only the embedded default applies. Used for dependency
// tracking: a style override is a staleness input.
func (d Dirs) StylesheetPath(name string) string {
	if d.BookDir != "" {
		p := filepath.Join(d.BookDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if d.EtcDir != "" {
		p := filepath.Join(d.EtcDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
