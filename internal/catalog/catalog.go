// Package catalog discovers and orders the source files of a book directory.
//
// The section ordering is a published contract: title, copyright,
// dedication, foreward, preface, prologue, chapters, epilogue,
// acknowledgments, appendices, glossary, author bio, references. It is not
// configurable.
package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// Kind identifies one class of book section. The declaration order of the
// constants is the manuscript order.
type Kind int

const (
	KindTitle Kind = iota
	KindCopyright
	KindDedication
	KindForeward
	KindPreface
	KindPrologue
	KindChapter
	KindEpilogue
	KindAcknowledgments
	KindAppendix
	KindGlossary
	KindAuthorBio
	KindReferences
)

var kindNames = map[Kind]string{
	KindTitle:           "title",
	KindCopyright:       "copyright",
	KindDedication:      "dedication",
	KindForeward:        "foreward",
	KindPreface:         "preface",
	KindPrologue:        "prologue",
	KindChapter:         "chapter",
	KindEpilogue:        "epilogue",
	KindAcknowledgments: "acknowledgments",
	KindAppendix:        "appendix",
	KindGlossary:        "glossary",
	KindAuthorBio:       "author-bio",
	KindReferences:      "references",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Repeatable reports whether more than one section of this kind may appear.
func (k Kind) Repeatable() bool {
	return k == KindChapter || k == KindAppendix
}

// singletonFiles maps exact filenames to their section kind. The historical
// "acknowledgements" spelling is accepted alongside the current one.
var singletonFiles = map[string]Kind{
	"title.md":            KindTitle,
	"copyright.md":        KindCopyright,
	"dedication.md":       KindDedication,
	"foreward.md":         KindForeward,
	"preface.md":          KindPreface,
	"prologue.md":         KindPrologue,
	"epilogue.md":         KindEpilogue,
	"acknowledgments.md":  KindAcknowledgments,
	"acknowledgements.md": KindAcknowledgments,
	"glossary.md":         KindGlossary,
	"author.md":           KindAuthorBio,
	"references.md":       KindReferences,
}

// Section is one named unit of book content backed by one source file.
type Section struct {
	Kind       Kind
	SourcePath string
	// Ordinal is the position within repeatable kinds, derived from the
	// lexical filename sort. Zero for singleton kinds.
	Ordinal int
}

// Catalog is the result of discovering a book directory.
type Catalog struct {
	BookDir  string
	Sections []Section

	// Optional companions, empty when absent.
	MetadataPath   string
	ReferencesYAML string
	CoverImage     string
}

// Less is the total-order comparator over sections: kind order first, then
// lexical filename. Exposed so tests can assert the contract directly.
func Less(a, b Section) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return filepath.Base(a.SourcePath) < filepath.Base(b.SourcePath)
}

// Discover enumerates the files directly in bookDir (text sources are never
// nested) and produces the ordered section list. Markdown files that match
// no naming pattern are silently excluded.
func Discover(bookDir string) (*Catalog, error) {
	abs, err := filepath.Abs(bookDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "resolve book directory")
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "read book directory").WithPath(abs)
	}

	cat := &Catalog{BookDir: abs}
	seen := map[Kind]string{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(abs, name)

		switch name {
		case "metadata.yaml":
			cat.MetadataPath = path
			continue
		case "references.yaml":
			cat.ReferencesYAML = path
			continue
		case "cover.png":
			cat.CoverImage = path
			continue
		}

		kind, ok := classify(name)
		if !ok {
			continue
		}
		if !kind.Repeatable() {
			if prev, dup := seen[kind]; dup {
				return nil, errors.Newf(errors.CategoryConfig,
					"multiple %s sections: %s and %s", kind, filepath.Base(prev), name).WithPath(abs)
			}
			seen[kind] = path
		}
		cat.Sections = append(cat.Sections, Section{Kind: kind, SourcePath: path})
	}

	sort.SliceStable(cat.Sections, func(i, j int) bool {
		return Less(cat.Sections[i], cat.Sections[j])
	})

	// Assign ordinals within repeatable kinds after the sort.
	counts := map[Kind]int{}
	for i := range cat.Sections {
		s := &cat.Sections[i]
		if s.Kind.Repeatable() {
			s.Ordinal = counts[s.Kind]
			counts[s.Kind]++
		}
	}

	return cat, nil
}

func classify(name string) (Kind, bool) {
	if kind, ok := singletonFiles[name]; ok {
		return kind, true
	}
	if !strings.HasSuffix(name, ".md") {
		return 0, false
	}
	switch {
	case strings.HasPrefix(name, "chapter-"):
		return KindChapter, true
	case strings.HasPrefix(name, "appendix-"):
		return KindAppendix, true
	}
	return 0, false
}

// SourcePaths returns the ordered source paths of all sections.
func (c *Catalog) SourcePaths() []string {
	paths := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		paths = append(paths, s.SourcePath)
	}
	return paths
}

// RequireCover fails with a configuration error when no cover image is
// present. The reflowable e-book target requires one; others do not.
func (c *Catalog) RequireCover() error {
	if c.CoverImage == "" {
		return errors.Configuration("cover.png is required for the epub target").WithPath(c.BookDir)
	}
	return nil
}
