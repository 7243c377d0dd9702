// Package render is the boundary to the Markdown rendering engine. It owns
// the goldmark configuration (extension set, tree filter registration,
// per-format node renderers) and exposes the parse and convert entry points
// the targets build on.
package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/treefilter"
)

// Format selects the per-format behavior of the custom node renderers.
type Format int

const (
	// FormatHTML renders page breaks as CSS page-break divs (also used as
	// the pdf intermediate).
	FormatHTML Format = iota
	// FormatEPUB renders page breaks as split sentinels consumed by the
	// epub container writer.
	FormatEPUB
)

// PageBreakSentinel marks chapter-file boundaries in FormatEPUB output.
const PageBreakSentinel = "<!-- bookbinder:pagebreak -->"

// Heading is one table-of-contents candidate collected during conversion.
type Heading struct {
	Level int
	Text  string
	ID    string
	// Chunk is the index of the page-break-delimited chunk the heading
	// lands in, used by the epub writer to point nav entries at the right
	// chapter file.
	Chunk int
}

// Result is the outcome of one conversion.
type Result struct {
	Body     []byte
	Headings []Heading
	// Chunks is the number of page-break-delimited chunks in the body
	// (always at least 1).
	Chunks int
}

// Engine wraps a configured goldmark instance for one output format.
type Engine struct {
	md goldmark.Markdown
}

// New builds the engine. The markdown extension set is fixed: GFM (tables,
// strikeout, autolinks), smart punctuation, definition lists, and footnotes,
// with auto heading IDs. The tree filter is registered as an AST
// transformer, not invoked directly by callers.
//
// The epub format's chapter files are declared application/xhtml+xml, so its
// engine must emit well-formed XML: self-closed void elements and numeric
// character references instead of named HTML entities.
func New(format Format) *Engine {
	var typographer goldmark.Extender = extension.Typographer
	rendererOpts := []renderer.Option{
		html.WithUnsafe(),
		renderer.WithNodeRenderers(util.Prioritized(&nodeRenderer{format: format}, 500)),
	}
	if format == FormatEPUB {
		typographer = extension.NewTypographer(
			extension.WithTypographicSubstitutions(xmlSubstitutions()),
		)
		rendererOpts = append(rendererOpts, html.WithXHTML())
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			typographer,
			extension.DefinitionList,
			extension.Footnote,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(treefilter.New(), 100)),
		),
		goldmark.WithRendererOptions(rendererOpts...),
	)
	return &Engine{md: md}
}

// xmlSubstitutions swaps the typographer's named HTML entities for numeric
// character references; XHTML defines only the five XML built-ins.
func xmlSubstitutions() extension.TypographicSubstitutions {
	return extension.TypographicSubstitutions{
		extension.LeftSingleQuote:  []byte("&#8216;"),
		extension.RightSingleQuote: []byte("&#8217;"),
		extension.LeftDoubleQuote:  []byte("&#8220;"),
		extension.RightDoubleQuote: []byte("&#8221;"),
		extension.EnDash:           []byte("&#8211;"),
		extension.EmDash:           []byte("&#8212;"),
		extension.Ellipsis:         []byte("&#8230;"),
		extension.Apostrophe:       []byte("&#8217;"),
		extension.LeftAngleQuote:   []byte("&#171;"),
		extension.RightAngleQuote:  []byte("&#187;"),
	}
}

// Parse parses the manuscript through the engine, running the tree filter.
// A deprecated-markup failure recorded by the filter aborts here.
func (e *Engine) Parse(source []byte) (gmast.Node, error) {
	pc := parser.NewContext()
	doc := e.md.Parser().Parse(text.NewReader(source), parser.WithContext(pc))
	if err := treefilter.DeprecatedError(pc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Convert parses and renders the manuscript, returning the rendered body
// along with the collected headings and chunk count.
func (e *Engine) Convert(source []byte) (*Result, error) {
	doc, err := e.Parse(source)
	if err != nil {
		return nil, err
	}

	headings, chunks := collectHeadings(doc, source)

	var buf bytes.Buffer
	if err := e.md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, errors.Wrap(err, errors.CategoryRender, "render manuscript")
	}

	return &Result{Body: buf.Bytes(), Headings: headings, Chunks: chunks}, nil
}

func collectHeadings(doc gmast.Node, source []byte) ([]Heading, int) {
	var headings []Heading
	breaks := 0
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *treefilter.PageBreak:
			breaks++
		case *gmast.Heading:
			id := ""
			if v, ok := node.AttributeString("id"); ok {
				if b, ok := v.([]byte); ok {
					id = string(b)
				}
			}
			headings = append(headings, Heading{
				Level: node.Level,
				Text:  headingText(node, source),
				ID:    id,
				Chunk: breaks,
			})
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return headings, breaks + 1
}

func headingText(n gmast.Node, source []byte) string {
	var sb strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*gmast.Text); ok {
				sb.Write(t.Segment.Value(source))
			}
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// nodeRenderer renders the tree filter's custom node kinds.
type nodeRenderer struct {
	format Format
}

func (r *nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(treefilter.KindPageBreak, r.renderPageBreak)
	reg.Register(treefilter.KindSectionSeparator, r.renderSeparator)
	reg.Register(treefilter.KindJustifiedParagraph, r.renderJustified)
}

func (r *nodeRenderer) renderPageBreak(w util.BufWriter, _ []byte, _ gmast.Node, entering bool) (gmast.WalkStatus, error) {
	if !entering {
		return gmast.WalkContinue, nil
	}
	switch r.format {
	case FormatEPUB:
		_, _ = w.WriteString("\n" + PageBreakSentinel + "\n")
	default:
		_, _ = w.WriteString("<div class=\"page_break\" style=\"page-break-before:always\"></div>\n")
	}
	return gmast.WalkContinue, nil
}

func (r *nodeRenderer) renderSeparator(w util.BufWriter, _ []byte, _ gmast.Node, entering bool) (gmast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<div class=\"sep\">" + treefilter.SeparatorText + "</div>\n")
	}
	return gmast.WalkContinue, nil
}

func (r *nodeRenderer) renderJustified(w util.BufWriter, _ []byte, n gmast.Node, entering bool) (gmast.WalkStatus, error) {
	jp := n.(*treefilter.JustifiedParagraph)
	if entering {
		_, _ = w.WriteString("<div class=\"" + jp.Alignment.String() + "\"><p>")
	} else {
		_, _ = w.WriteString("</p></div>\n")
	}
	return gmast.WalkContinue, nil
}
