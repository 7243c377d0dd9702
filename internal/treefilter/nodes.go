// Package treefilter rewrites the parsed document tree according to the
// book markup rules: forced page breaks at level-1 headings, break-only
// empty headings, `+++` section separators, and `{<}` / `{>}` / `{-}` /
// `{|}` justification markers. It plugs into the renderer as a goldmark
// AST transformer.
package treefilter

import (
	gmast "github.com/yuin/goldmark/ast"
)

// SeparatorText is the rendered replacement for a `+++` separator paragraph.
const SeparatorText = "• • •"

// Alignment is the justification of a rewritten paragraph.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

func (a Alignment) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "left"
	}
}

// PageBreak forces a page/section boundary in page-oriented and reflowable
// targets. It renders no visible content and contributes no table-of-contents
// entry.
type PageBreak struct {
	gmast.BaseBlock
}

// KindPageBreak is the node kind of PageBreak.
var KindPageBreak = gmast.NewNodeKind("PageBreak")

func (n *PageBreak) Kind() gmast.NodeKind { return KindPageBreak }

func (n *PageBreak) Dump(source []byte, level int) {
	gmast.DumpHelper(n, source, level, nil, nil)
}

// NewPageBreak creates a PageBreak node.
func NewPageBreak() *PageBreak { return &PageBreak{} }

// SectionSeparator is the centered three-bullet run that replaces a `+++`
// paragraph.
type SectionSeparator struct {
	gmast.BaseBlock
}

// KindSectionSeparator is the node kind of SectionSeparator.
var KindSectionSeparator = gmast.NewNodeKind("SectionSeparator")

func (n *SectionSeparator) Kind() gmast.NodeKind { return KindSectionSeparator }

func (n *SectionSeparator) Dump(source []byte, level int) {
	gmast.DumpHelper(n, source, level, nil, nil)
}

// NewSectionSeparator creates a SectionSeparator node.
func NewSectionSeparator() *SectionSeparator { return &SectionSeparator{} }

// JustifiedParagraph is a paragraph rewritten by a justification directive.
// Its children are the original paragraph's inline content with the marker
// stripped.
type JustifiedParagraph struct {
	gmast.BaseBlock
	Alignment Alignment
}

// KindJustifiedParagraph is the node kind of JustifiedParagraph.
var KindJustifiedParagraph = gmast.NewNodeKind("JustifiedParagraph")

func (n *JustifiedParagraph) Kind() gmast.NodeKind { return KindJustifiedParagraph }

func (n *JustifiedParagraph) Dump(source []byte, level int) {
	gmast.DumpHelper(n, source, level, map[string]string{
		"Alignment": n.Alignment.String(),
	}, nil)
}

// NewJustifiedParagraph creates an empty JustifiedParagraph.
func NewJustifiedParagraph(align Alignment) *JustifiedParagraph {
	return &JustifiedParagraph{Alignment: align}
}
