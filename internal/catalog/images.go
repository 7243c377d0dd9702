package catalog

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

var imagePattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)

// FindImageReferences scans every section's Markdown for image references
// and returns them as book-dir-relative paths. Absolute paths, remote URLs,
// and references to nonexistent files fail with a configuration error before
// any renderer invocation.
func (c *Catalog) FindImageReferences() ([]string, error) {
	var images []string
	for _, section := range c.Sections {
		refs, err := scanImages(section.SourcePath)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
				return nil, errors.Newf(errors.CategoryConfig,
					"image %q is a remote URL, which is unsupported", ref).WithPath(section.SourcePath)
			}
			if filepath.IsAbs(ref) {
				return nil, errors.Newf(errors.CategoryConfig,
					"image %q is an absolute path, which is unsupported", ref).WithPath(section.SourcePath)
			}
			full := filepath.Join(c.BookDir, ref)
			if _, err := os.Stat(full); err != nil {
				return nil, errors.Newf(errors.CategoryConfig,
					"image %q does not exist", ref).WithPath(section.SourcePath)
			}
			images = append(images, ref)
		}
	}
	return images, nil
}

func scanImages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "open section").WithPath(path)
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, m := range imagePattern.FindAllStringSubmatch(scanner.Text(), -1) {
			refs = append(refs, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "scan section").WithPath(path)
	}
	return refs, nil
}
