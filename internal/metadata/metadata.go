// Package metadata loads the book's metadata.yaml into an immutable Record
// and performs %token% substitution over section text.
package metadata

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// Copyright holds the copyright owner and year.
type Copyright struct {
	Owner string `yaml:"owner"`
	Year  int    `yaml:"year"`
}

// Record is the book metadata, read once before substitution and immutable
// for the duration of a build. The schema is a fixed external contract.
type Record struct {
	Title      string    `yaml:"title"`
	Subtitle   string    `yaml:"subtitle"`
	Authors    []string  `yaml:"author"`
	Copyright  Copyright `yaml:"copyright"`
	Publisher  string    `yaml:"publisher"`
	Language   string    `yaml:"language"`
	Genre      string    `yaml:"genre"`
	Identifier string    `yaml:"identifier"`
}

// Load reads and validates a metadata.yaml file. A missing path yields an
// empty record with the default language, not an error.
func Load(path string) (*Record, error) {
	rec := &Record{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "read metadata").WithPath(path)
		}
		if err := yaml.Unmarshal(data, rec); err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "malformed metadata").WithPath(path)
		}
	}

	if rec.Language == "" {
		rec.Language = "en"
	}
	tag, err := language.Parse(rec.Language)
	if err != nil {
		return nil, errors.Newf(errors.CategoryConfig,
			"metadata language %q is not a valid BCP 47 tag", rec.Language).WithPath(path)
	}
	rec.Language = tag.String()

	return rec, nil
}

// Author renders the author list as a single display string.
func (r *Record) Author() string {
	switch len(r.Authors) {
	case 0:
		return ""
	case 1:
		return r.Authors[0]
	case 2:
		return r.Authors[0] + " and " + r.Authors[1]
	default:
		return strings.Join(r.Authors[:len(r.Authors)-1], ", ") +
			" and " + r.Authors[len(r.Authors)-1]
	}
}

// tokenValues returns the closed set of recognized substitution tokens.
// Extending this set is a metadata-schema change, not a filter change.
func (r *Record) tokenValues() map[string]string {
	year := ""
	if r.Copyright.Year != 0 {
		year = fmt.Sprintf("%d", r.Copyright.Year)
	}
	return map[string]string{
		"author":          r.Author(),
		"title":           r.Title,
		"subtitle":        r.Subtitle,
		"copyright-year":  year,
		"copyright-owner": r.Copyright.Owner,
		"publisher":       r.Publisher,
		"language":        r.Language,
	}
}
