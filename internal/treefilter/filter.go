package treefilter

import (
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// deprecatedPageBreak is the removed forced-page-break directive. Its
// presence fails the build; the supported replacement is an empty level-1
// heading.
const deprecatedPageBreak = "%newpage%"

var justifyMarkers = []struct {
	marker string
	align  Alignment
}{
	{"{<}", AlignLeft},
	{"{>}", AlignRight},
	{"{-}", AlignCenter},
	// Historical spelling of the center marker; accepted for
	// backward compatibility with existing books.
	{"{|}", AlignCenter},
}

var deprecatedErrorKey = parser.NewContextKey()

// DirectiveError is the deprecated-directive failure. It carries the byte
// offset of the offending paragraph so callers that assembled the source
// from multiple files can name the right one.
type DirectiveError struct {
	Offset int
	Err    *errors.BuildError
}

func (e *DirectiveError) Error() string { return e.Err.Error() }

func (e *DirectiveError) Unwrap() error { return e.Err }

// DeprecatedError returns the DeprecatedMarkupError recorded during the
// transform, if any. Goldmark transformers cannot return errors, so the
// filter parks the failure in the parse context for the caller to check
// after Convert.
func DeprecatedError(pc parser.Context) error {
	if v := pc.Get(deprecatedErrorKey); v != nil {
		return v.(error)
	}
	return nil
}

// Transformer rewrites the document tree in a single pass. It is stateless;
// one instance can be registered with any number of renderer engines.
type Transformer struct{}

// New creates the tree filter transformer.
func New() *Transformer { return &Transformer{} }

var _ parser.ASTTransformer = (*Transformer)(nil)

// Transform applies the markup rules in priority order: deprecated
// directive, level-1 heading page break, `+++` separator, justification
// directives. Nodes matched by no rule pass through unchanged.
func (t *Transformer) Transform(doc *gmast.Document, reader text.Reader, pc parser.Context) {
	source := reader.Source()

	type rewrite struct {
		old         gmast.Node
		replacement gmast.Node // nil means insert breakBefore only
		breakBefore bool
	}
	var rewrites []rewrite

	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *gmast.Heading:
			if node.Level != 1 {
				return gmast.WalkContinue, nil
			}
			if headingIsEmpty(node, source) {
				// Break-only marker: force the boundary, render nothing,
				// contribute no toc entry.
				rewrites = append(rewrites, rewrite{old: node, replacement: NewPageBreak()})
			} else {
				rewrites = append(rewrites, rewrite{old: node, breakBefore: true})
			}
			return gmast.WalkSkipChildren, nil

		case *gmast.Paragraph:
			content := strings.TrimSpace(string(nodeText(node, source)))

			if content == deprecatedPageBreak {
				if pc.Get(deprecatedErrorKey) == nil {
					offset := 0
					if node.Lines().Len() > 0 {
						offset = node.Lines().At(0).Start
					}
					pc.Set(deprecatedErrorKey, &DirectiveError{
						Offset: offset,
						Err: errors.DeprecatedMarkup(
							"the %newpage% directive has been removed; use an empty level-1 heading (#) instead"),
					})
				}
				return gmast.WalkSkipChildren, nil
			}

			if content == "+++" {
				rewrites = append(rewrites, rewrite{old: node, replacement: NewSectionSeparator()})
				return gmast.WalkSkipChildren, nil
			}

			if jp, ok := justify(node, source); ok {
				rewrites = append(rewrites, rewrite{old: node, replacement: jp})
				return gmast.WalkSkipChildren, nil
			}
		}
		return gmast.WalkContinue, nil
	})

	for _, rw := range rewrites {
		parent := rw.old.Parent()
		if parent == nil {
			continue
		}
		if rw.breakBefore {
			parent.InsertBefore(parent, rw.old, NewPageBreak())
			continue
		}
		parent.ReplaceChild(parent, rw.old, rw.replacement)
	}
}

func nodeText(n gmast.Node, source []byte) []byte {
	var sb strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*gmast.Text); ok {
				sb.Write(t.Segment.Value(source))
			}
		}
		return gmast.WalkContinue, nil
	})
	return []byte(sb.String())
}

func headingIsEmpty(h *gmast.Heading, source []byte) bool {
	return len(strings.TrimSpace(string(nodeText(h, source)))) == 0
}

// justify checks whether the paragraph's first line of text content starts
// with a justification marker followed by whitespace, and if so builds the
// replacement node with the marker stripped.
//
// Detection works on the first non-blank text node, not the first inline
// node, so a leading explicit line break inside the paragraph does not
// cause a false negative.
func justify(p *gmast.Paragraph, source []byte) (*JustifiedParagraph, bool) {
	first := firstTextNode(p, source)
	if first == nil {
		return nil, false
	}

	seg := first.Segment
	line := string(seg.Value(source))
	for _, jm := range justifyMarkers {
		if !strings.HasPrefix(line, jm.marker) {
			continue
		}
		rest := line[len(jm.marker):]
		// The marker must be followed by at least one whitespace
		// character; the end of the segment counts (the following
		// line break is the whitespace).
		if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
			return nil, false
		}

		jp := NewJustifiedParagraph(jm.align)
		for c := p.FirstChild(); c != nil; {
			next := c.NextSibling()
			jp.AppendChild(jp, c)
			c = next
		}

		stripped := strings.TrimLeft(rest, " \t")
		if stripped == "" {
			// The marker was the whole node; drop it along with the
			// line break it carried.
			jp.RemoveChild(jp, first)
		} else {
			start := seg.Start + (len(line) - len(stripped))
			first.Segment = text.NewSegment(start, seg.Stop)
		}
		return jp, true
	}
	return nil, false
}

func firstTextNode(p *gmast.Paragraph, source []byte) *gmast.Text {
	var found *gmast.Text
	_ = gmast.Walk(p, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering || found != nil {
			return gmast.WalkContinue, nil
		}
		if t, ok := c.(*gmast.Text); ok {
			if len(strings.TrimSpace(string(t.Segment.Value(source)))) > 0 {
				found = t
				return gmast.WalkStop, nil
			}
		}
		return gmast.WalkContinue, nil
	})
	return found
}
