// Package postprocess applies per-format corrections to rendered artifacts:
// table-of-contents pruning and identifier hygiene for the e-book, style and
// cover inlining for the single-page document, and reference style injection
// for the word-processor format. Every rewrite is atomic: the corrected
// artifact is written to a temporary path and moved into place, so a crash
// mid-rewrite never leaves a half-corrected file.
package postprocess

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// entryTransform receives each zip entry's name and content and returns the
// replacement content, or changed=false to keep the entry as-is.
type entryTransform func(name string, data []byte) (out []byte, changed bool, err error)

// rewriteZip copies a zip archive through a transform and atomically
// replaces the original on success.
func rewriteZip(path string, transform entryTransform) error {
	src, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "open artifact").WithPath(path)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bookbinder-*")
	if err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "create temp artifact")
	}
	tmpPath := tmp.Name()
	zw := zip.NewWriter(tmp)
	defer func() {
		// No-ops on the success path, where both are already closed and the
		// temp file has been renamed away.
		_ = zw.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	for _, f := range src.File {
		rc, err := f.Open()
		if err != nil {
			return errors.Wrap(err, errors.CategoryPostProcess, "read entry "+f.Name).WithPath(path)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return errors.Wrap(err, errors.CategoryPostProcess, "read entry "+f.Name).WithPath(path)
		}

		if out, changed, terr := transform(f.Name, data); terr != nil {
			return terr
		} else if changed {
			data = out
		}

		// The epub mimetype entry must stay stored; preserve methods
		// for everything else too.
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
		if err != nil {
			return errors.Wrap(err, errors.CategoryPostProcess, "write entry "+f.Name)
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, errors.CategoryPostProcess, "write entry "+f.Name)
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "finalize artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "finalize artifact")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "install artifact").WithPath(path)
	}
	return nil
}

// writeFileAtomic writes data to path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bookbinder-*")
	if err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "create temp artifact")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.CategoryPostProcess, "write temp artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "write temp artifact")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "install artifact").WithPath(path)
	}
	return nil
}
