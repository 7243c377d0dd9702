package postprocess

import (
	"bytes"
	"encoding/base64"
	"os"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// SelfContain rewrites the single-page hypertext artifact to be fully
// self-contained: external stylesheet links are replaced by an inline
// <style> element, and the cover image (when given) is inlined base64 into
// the document body. The rewrite is atomic.
func SelfContain(path string, stylesheet []byte, coverImage []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "read artifact").WithPath(path)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "parse artifact").WithPath(path)
	}

	head := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Head
	})
	if head == nil {
		return errors.PostProcess("artifact has no <head>").WithPath(path)
	}

	// Drop every external stylesheet reference, then inline the styles.
	var links []*html.Node
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Link && attr(c, "rel") == "stylesheet" {
			links = append(links, c)
		}
	}
	for _, l := range links {
		head.RemoveChild(l)
	}
	style := &html.Node{Type: html.ElementNode, DataAtom: atom.Style, Data: "style"}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: string(stylesheet)})
	head.AppendChild(style)

	if coverImage != nil {
		body := findNode(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.DataAtom == atom.Body
		})
		if body == nil {
			return errors.PostProcess("artifact has no <body>").WithPath(path)
		}
		div := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div",
			Attr: []html.Attribute{{Key: "class", Val: "cover"}}}
		img := &html.Node{Type: html.ElementNode, DataAtom: atom.Img, Data: "img",
			Attr: []html.Attribute{
				{Key: "src", Val: "data:image/png;base64," + base64.StdEncoding.EncodeToString(coverImage)},
				{Key: "alt", Val: "cover"},
			}}
		div.AppendChild(img)
		if body.FirstChild != nil {
			body.InsertBefore(div, body.FirstChild)
		} else {
			body.AppendChild(div)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return errors.Wrap(err, errors.CategoryPostProcess, "render artifact").WithPath(path)
	}
	return writeFileAtomic(path, buf.Bytes())
}
