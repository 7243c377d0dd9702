// Package manuscript assembles the ordered, token-substituted book text fed
// to the renderer. The manuscript is rebuilt fresh on every invocation; it
// has no persisted identity.
package manuscript

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/catalog"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/frontmatter"
	"git.home.luguber.info/inful/bookbinder/internal/metadata"
)

// Options controls per-target assembly details.
type Options struct {
	// WrapSections emits a <div class="book_section"> wrapper around each
	// section. Only useful for HTML-derived targets, where the wrappers are
	// CSS hooks.
	WrapSections bool
}

// Manuscript is the assembled book text plus the per-section byte spans
// needed to map renderer offsets back to source files for diagnostics.
type Manuscript struct {
	Text []byte

	spans []span
}

type span struct {
	start, end int
	path       string
}

// SectionAt returns the source path owning the given byte offset, or empty
// when the offset falls outside every section (e.g. the appended References
// page).
func (m *Manuscript) SectionAt(offset int) string {
	for _, s := range m.spans {
		if offset >= s.start && offset < s.end {
			return s.path
		}
	}
	return ""
}

// Assemble concatenates every section in catalog order, stripping YAML
// frontmatter and applying metadata token substitution to each section's
// text. When a references.yaml companion exists, a trailing References page
// is appended.
func Assemble(cat *catalog.Catalog, rec *metadata.Record, opts Options) (*Manuscript, error) {
	var buf bytes.Buffer
	m := &Manuscript{}

	for _, section := range cat.Sections {
		raw, err := os.ReadFile(section.SourcePath)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "read section").WithPath(section.SourcePath)
		}

		_, body, err := frontmatter.Strip(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "section frontmatter").WithPath(section.SourcePath)
		}

		text := rec.Substitute(string(body))

		start := buf.Len()
		if opts.WrapSections {
			fmt.Fprintf(&buf, "<div class=\"book_section\" id=\"section_%s\">\n\n", sectionID(section))
		}
		buf.WriteString(strings.TrimRight(text, "\n"))
		buf.WriteString("\n")
		if opts.WrapSections {
			buf.WriteString("\n</div>\n")
		}
		m.spans = append(m.spans, span{start: start, end: buf.Len(), path: section.SourcePath})
		// Blank line between sections so adjacent blocks never merge.
		buf.WriteString("\n")
	}

	if cat.ReferencesYAML != "" && !hasKind(cat, catalog.KindReferences) {
		buf.WriteString("# References\n")
	}

	m.Text = buf.Bytes()
	return m, nil
}

func hasKind(cat *catalog.Catalog, kind catalog.Kind) bool {
	for _, s := range cat.Sections {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func sectionID(s catalog.Section) string {
	base := filepath.Base(s.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
