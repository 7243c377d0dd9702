package postprocess

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// FixEPUBToc rewrites the generated table-of-contents documents inside the
// e-book: entries with no text (break-only markers) and entries that merely
// repeat the book title (title front-matter pages) are deleted from both
// nav.xhtml and toc.ncx. Named front-matter sections (dedication, preface,
// and friends) keep their entries. The rewrite is atomic.
func FixEPUBToc(path, bookTitle string) error {
	return rewriteZip(path, func(name string, data []byte) ([]byte, bool, error) {
		switch name {
		case "EPUB/nav.xhtml":
			out, err := pruneNav(data, bookTitle)
			if err != nil {
				return nil, false, errors.Wrap(err, errors.CategoryPostProcess, "rewrite nav.xhtml").WithPath(path)
			}
			return out, true, nil
		case "EPUB/toc.ncx":
			out, err := pruneNCX(data, bookTitle)
			if err != nil {
				return nil, false, errors.Wrap(err, errors.CategoryPostProcess, "rewrite toc.ncx").WithPath(path)
			}
			return out, true, nil
		}
		return nil, false, nil
	})
}

// pruneNav removes dead entries from the EPUB 3 nav document and renumbers
// the list items.
func pruneNav(data []byte, bookTitle string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	nav := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Nav && attr(n, "id") == "toc"
	})
	if nav == nil {
		return nil, errors.PostProcess("malformed table of contents: no toc <nav>")
	}
	ol := findNode(nav, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Ol
	})
	if ol == nil {
		return nil, errors.PostProcess("malformed table of contents: no list in <nav>")
	}

	var remove []*html.Node
	num := 0
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		a := findNode(li, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.DataAtom == atom.A
		})
		text := ""
		if a != nil {
			text = strings.TrimSpace(textContent(a))
		}
		if text == "" || text == bookTitle {
			remove = append(remove, li)
			continue
		}
		num++
		setAttr(li, "id", "toc-li-"+itoa(num))
	}
	for _, li := range remove {
		ol.RemoveChild(li)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NCX document model, just deep enough for navMap surgery.
type ncx struct {
	XMLName  xml.Name   `xml:"ncx"`
	Xmlns    string     `xml:"xmlns,attr"`
	Version  string     `xml:"version,attr"`
	DocTitle ncxText    `xml:"docTitle>text"`
	NavMap   []navPoint `xml:"navMap>navPoint"`
}

type ncxText struct {
	Value string `xml:",chardata"`
}

type navPoint struct {
	ID        string  `xml:"id,attr"`
	PlayOrder int     `xml:"playOrder,attr"`
	Label     ncxText `xml:"navLabel>text"`
	Content   struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
}

// pruneNCX removes dead navPoints from the EPUB 2 NCX and renumbers the
// survivors.
func pruneNCX(data []byte, bookTitle string) ([]byte, error) {
	var doc ncx
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	kept := doc.NavMap[:0]
	for _, p := range doc.NavMap {
		text := strings.TrimSpace(p.Label.Value)
		if text == "" || text == bookTitle {
			continue
		}
		p.ID = "navPoint-" + itoa(len(kept)+1)
		p.PlayOrder = len(kept) + 1
		kept = append(kept, p)
	}
	doc.NavMap = kept
	if doc.Xmlns == "" {
		doc.Xmlns = "http://www.daisy.org/z3986/2005/ncx/"
	}
	if doc.Version == "" {
		doc.Version = "2005-1"
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func findNode(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
