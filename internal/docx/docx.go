// Package docx writes the styled-document artifact: an OOXML word-processing
// container built by walking the filtered document tree. Paragraph styling
// comes from the reference style template, augmented with the three
// justification styles.
//
// Known residual limitations, accepted by design: no first-line paragraph
// indent, and headings do not force page breaks (break-only markers do).
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/treefilter"
)

// Image is one referenced picture, keyed by its manuscript reference path.
type Image struct {
	Path string
	Data []byte
}

// Document is everything the writer needs to emit one artifact.
type Document struct {
	Root   gmast.Node
	Source []byte
	// Styles is the reference style template (styles.xml), already
	// augmented with JustifyLeft/Centered/JustifyRight.
	Styles []byte
	// CoverImage, when present, is prepended as a full-width picture.
	CoverImage []byte
	Images     []Image
}

// Write emits the complete container to w.
func Write(w io.Writer, doc Document) error {
	body, rels, media, err := renderBody(doc)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	files := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"word/document.xml", body},
		{"word/_rels/document.xml.rels", rels},
		{"word/styles.xml", doc.Styles},
	}
	for _, f := range files {
		zf, err := zw.Create(f.name)
		if err != nil {
			return errors.Wrap(err, errors.CategoryRender, "docx entry "+f.name)
		}
		if _, err := zf.Write(f.data); err != nil {
			return errors.Wrap(err, errors.CategoryRender, "docx entry "+f.name)
		}
	}
	for name, data := range media {
		zf, err := zw.Create(name)
		if err != nil {
			return errors.Wrap(err, errors.CategoryRender, "docx media "+name)
		}
		if _, err := zf.Write(data); err != nil {
			return errors.Wrap(err, errors.CategoryRender, "docx media "+name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryRender, "finalize docx")
	}
	return nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Default Extension="png" ContentType="image/png"/>
  <Default Extension="jpeg" ContentType="image/jpeg"/>
  <Default Extension="jpg" ContentType="image/jpeg"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
  <Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>
`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>
`

// writer accumulates document.xml, the relationship part, and media entries.
type writer struct {
	body   bytes.Buffer
	rels   []string
	media  map[string][]byte
	images map[string][]byte
	source []byte
}

func renderBody(doc Document) (body, rels []byte, media map[string][]byte, err error) {
	wr := &writer{media: map[string][]byte{}, images: map[string][]byte{}, source: doc.Source}
	for _, img := range doc.Images {
		wr.images[img.Path] = img.Data
	}

	wr.body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	wr.body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"` +
		` xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"` +
		` xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"` +
		` xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">` + "\n<w:body>\n")

	if doc.CoverImage != nil {
		if err := wr.imageParagraph(doc.CoverImage, "cover"); err != nil {
			return nil, nil, nil, err
		}
		wr.body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>` + "\n")
	}

	for n := doc.Root.FirstChild(); n != nil; n = n.NextSibling() {
		if err := wr.block(n); err != nil {
			return nil, nil, nil, err
		}
	}

	wr.body.WriteString("</w:body>\n</w:document>\n")

	var relBuf bytes.Buffer
	relBuf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	relBuf.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + "\n")
	for _, r := range wr.rels {
		relBuf.WriteString(r + "\n")
	}
	relBuf.WriteString("</Relationships>\n")

	return wr.body.Bytes(), relBuf.Bytes(), wr.media, nil
}

func (wr *writer) block(n gmast.Node) error {
	switch node := n.(type) {
	case *gmast.Heading:
		wr.paragraph(fmt.Sprintf("Heading%d", node.Level), node)
	case *treefilter.JustifiedParagraph:
		style := map[treefilter.Alignment]string{
			treefilter.AlignLeft:   "JustifyLeft",
			treefilter.AlignCenter: "Centered",
			treefilter.AlignRight:  "JustifyRight",
		}[node.Alignment]
		wr.paragraph(style, node)
	case *treefilter.SectionSeparator:
		wr.body.WriteString(`<w:p><w:pPr><w:pStyle w:val="Centered"/></w:pPr><w:r><w:t xml:space="preserve">` +
			treefilter.SeparatorText + `</w:t></w:r></w:p>` + "\n")
	case *treefilter.PageBreak:
		// A break inserted ahead of a heading is elided: headings do not
		// force page breaks in this format (documented limitation).
		// Break-only markers still break.
		if _, ok := node.NextSibling().(*gmast.Heading); !ok {
			wr.body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>` + "\n")
		}
	case *gmast.Paragraph:
		// A paragraph that is a lone image becomes a picture paragraph.
		if img := soleImage(node); img != nil {
			if data, ok := wr.images[string(img.Destination)]; ok {
				return wr.imageParagraph(data, string(img.Destination))
			}
		}
		wr.paragraph("Normal", node)
	case *gmast.Blockquote, *gmast.List:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if err := wr.block(c); err != nil {
				return err
			}
		}
	case *gmast.ListItem:
		wr.paragraph("Normal", node)
	case *gmast.FencedCodeBlock, *gmast.CodeBlock:
		wr.codeParagraph(node)
	case *gmast.TextBlock:
		wr.paragraph("Normal", node)
	case *gmast.ThematicBreak:
		wr.body.WriteString(`<w:p><w:pPr><w:pStyle w:val="Centered"/></w:pPr><w:r><w:t>* * *</w:t></w:r></w:p>` + "\n")
	default:
		// Raw HTML and other exotica have no word-processor rendering.
	}
	return nil
}

type runStyle struct {
	bold, italic, strike, code bool
}

func (wr *writer) paragraph(style string, n gmast.Node) {
	fmt.Fprintf(&wr.body, `<w:p><w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	wr.inlines(n, runStyle{})
	wr.body.WriteString("</w:p>\n")
}

func (wr *writer) codeParagraph(n gmast.Node) {
	wr.body.WriteString(`<w:p><w:pPr><w:pStyle w:val="Normal"/></w:pPr>`)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		wr.run(strings.TrimRight(string(seg.Value(wr.source)), "\n"), runStyle{code: true})
		if i < lines.Len()-1 {
			wr.body.WriteString(`<w:r><w:br/></w:r>`)
		}
	}
	wr.body.WriteString("</w:p>\n")
}

func (wr *writer) inlines(n gmast.Node, style runStyle) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *gmast.Text:
			wr.run(string(node.Segment.Value(wr.source)), style)
			if node.HardLineBreak() {
				wr.body.WriteString(`<w:r><w:br/></w:r>`)
			} else if node.SoftLineBreak() {
				wr.run(" ", style)
			}
		case *gmast.String:
			wr.run(string(node.Value), style)
		case *gmast.Emphasis:
			next := style
			if node.Level >= 2 {
				next.bold = true
			} else {
				next.italic = true
			}
			wr.inlines(node, next)
		case *extast.Strikethrough:
			next := style
			next.strike = true
			wr.inlines(node, next)
		case *gmast.CodeSpan:
			next := style
			next.code = true
			wr.inlines(node, next)
		case *gmast.Link:
			// Link targets are dropped; the text survives.
			wr.inlines(node, style)
		case *gmast.Image:
			// Inline images render as their alt text; block-level lone
			// images are embedded as pictures.
			wr.run(string(nodeText(node, wr.source)), style)
		default:
			wr.inlines(node, style)
		}
	}
}

func (wr *writer) run(text string, style runStyle) {
	if text == "" {
		return
	}
	wr.body.WriteString("<w:r>")
	var props []string
	if style.bold {
		props = append(props, "<w:b/>")
	}
	if style.italic {
		props = append(props, "<w:i/>")
	}
	if style.strike {
		props = append(props, "<w:strike/>")
	}
	if style.code {
		props = append(props, `<w:rFonts w:ascii="Courier New" w:hAnsi="Courier New"/>`)
	}
	if len(props) > 0 {
		wr.body.WriteString("<w:rPr>" + strings.Join(props, "") + "</w:rPr>")
	}
	fmt.Fprintf(&wr.body, `<w:t xml:space="preserve">%s</w:t>`, xmlEscape(text))
	wr.body.WriteString("</w:r>")
}

// imageParagraph embeds a picture as a media part plus an inline drawing.
func (wr *writer) imageParagraph(data []byte, name string) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, "decode image "+name)
	}

	idx := len(wr.media) + 1
	mediaName := fmt.Sprintf("word/media/image%d.%s", idx, format)
	wr.media[mediaName] = data

	relID := fmt.Sprintf("rIdImg%d", idx)
	wr.rels = append(wr.rels, fmt.Sprintf(
		`  <Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image%d.%s"/>`,
		relID, idx, format))

	// Scale to at most 5.5in wide, 96 DPI source assumed (9525 EMU/px).
	const maxWidth = 5029200
	cx := cfg.Width * 9525
	cy := cfg.Height * 9525
	if cx > maxWidth {
		cy = cy * maxWidth / cx
		cx = maxWidth
	}

	fmt.Fprintf(&wr.body, `<w:p><w:pPr><w:pStyle w:val="Centered"/></w:pPr><w:r><w:drawing>`+
		`<wp:inline><wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="%s"/>`+
		`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic><pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic>`+
		`</a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`+"\n",
		cx, cy, idx, xmlEscape(name), idx, xmlEscape(name), relID, cx, cy)
	return nil
}

func soleImage(p *gmast.Paragraph) *gmast.Image {
	if p.ChildCount() != 1 {
		return nil
	}
	img, ok := p.FirstChild().(*gmast.Image)
	if !ok {
		return nil
	}
	return img
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

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
