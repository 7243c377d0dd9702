// Package epub writes the reflowable e-book container: a zip archive with
// the EPUB 3 package document, an EPUB 3 nav document plus an EPUB 2 NCX for
// older readers, and the rendered chapter files split at page boundaries.
package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/metadata"
	"git.home.luguber.info/inful/bookbinder/internal/render"
)

// Resource is one non-text file carried in the container.
type Resource struct {
	// Path is the book-dir-relative reference used in the manuscript.
	Path string
	Data []byte
}

// Book is everything the writer needs to emit one e-book.
type Book struct {
	Metadata   *metadata.Record
	Result     *render.Result
	Stylesheet []byte
	CoverImage []byte
	Images     []Resource
}

// Write emits the complete container to w.
func Write(w io.Writer, book Book) error {
	if book.CoverImage == nil {
		return errors.Configuration("epub requires a cover image")
	}

	zw := zip.NewWriter(w)

	// The mimetype entry must be first and stored uncompressed.
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, "epub mimetype")
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		return errors.Wrap(err, errors.CategoryRender, "epub mimetype")
	}

	chunks := strings.Split(string(book.Result.Body), render.PageBreakSentinel)

	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"EPUB/package.opf":       packageOPF(book, chunks),
		"EPUB/nav.xhtml":         navXHTML(book),
		"EPUB/toc.ncx":           tocNCX(book),
		"EPUB/styles/style.css":  string(book.Stylesheet),
	}
	for i, chunk := range chunks {
		files[chapterPath(i)] = chapterXHTML(book, i, chunk)
	}

	for name, content := range files {
		f, err := zw.Create(name)
		if err != nil {
			return errors.Wrap(err, errors.CategoryRender, "epub entry "+name)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			return errors.Wrap(err, errors.CategoryRender, "epub entry "+name)
		}
	}

	cover, err := zw.Create("EPUB/images/cover.png")
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, "epub cover")
	}
	if _, err := cover.Write(book.CoverImage); err != nil {
		return errors.Wrap(err, errors.CategoryRender, "epub cover")
	}

	for _, img := range book.Images {
		f, err := zw.Create("EPUB/" + img.Path)
		if err != nil {
			return errors.Wrap(err, errors.CategoryRender, "epub image "+img.Path)
		}
		if _, err := f.Write(img.Data); err != nil {
			return errors.Wrap(err, errors.CategoryRender, "epub image "+img.Path)
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryRender, "finalize epub")
	}
	return nil
}

func chapterPath(i int) string {
	return fmt.Sprintf("EPUB/text/ch%03d.xhtml", i+1)
}

func chapterHref(i int) string {
	return fmt.Sprintf("text/ch%03d.xhtml", i+1)
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="EPUB/package.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

func packageOPF(book Book, chunks []string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">` + "\n")
	sb.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")

	// An absent identifier must produce no element at all, never an empty
	// one; the conformance checker rejects empty identifiers.
	if book.Metadata.Identifier != "" {
		fmt.Fprintf(&sb, "    <dc:identifier id=\"bookid\">%s</dc:identifier>\n", xmlEscape(book.Metadata.Identifier))
	}
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", xmlEscape(book.Metadata.Title))
	for _, author := range book.Metadata.Authors {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", xmlEscape(author))
	}
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", xmlEscape(book.Metadata.Language))
	if book.Metadata.Publisher != "" {
		fmt.Fprintf(&sb, "    <dc:publisher>%s</dc:publisher>\n", xmlEscape(book.Metadata.Publisher))
	}
	sb.WriteString("  </metadata>\n  <manifest>\n")
	sb.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	sb.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
	sb.WriteString(`    <item id="style" href="styles/style.css" media-type="text/css"/>` + "\n")
	sb.WriteString(`    <item id="cover-image" href="images/cover.png" media-type="image/png" properties="cover-image"/>` + "\n")
	for i := range chunks {
		fmt.Fprintf(&sb, "    <item id=\"ch%03d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", i+1, chapterHref(i))
	}
	for j, img := range book.Images {
		fmt.Fprintf(&sb, "    <item id=\"img%03d\" href=\"%s\" media-type=\"%s\"/>\n", j+1, img.Path, mediaType(img.Path))
	}
	sb.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for i := range chunks {
		fmt.Fprintf(&sb, "    <itemref idref=\"ch%03d\"/>\n", i+1)
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

func navXHTML(book Book) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	fmt.Fprintf(&sb, "<head><title>%s</title></head>\n<body>\n", xmlEscape(book.Metadata.Title))
	sb.WriteString(`<nav epub:type="toc" id="toc">` + "\n<ol>\n")
	for i, h := range tocHeadings(book.Result.Headings) {
		fmt.Fprintf(&sb, "<li id=\"toc-li-%d\"><a href=\"%s#%s\">%s</a></li>\n",
			i+1, chapterHref(h.Chunk), h.ID, xmlEscape(h.Text))
	}
	sb.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return sb.String()
}

func tocNCX(book Book) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	sb.WriteString("<head/>\n")
	fmt.Fprintf(&sb, "<docTitle><text>%s</text></docTitle>\n<navMap>\n", xmlEscape(book.Metadata.Title))
	for i, h := range tocHeadings(book.Result.Headings) {
		fmt.Fprintf(&sb, "<navPoint id=\"navPoint-%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel><content src=\"%s#%s\"/></navPoint>\n",
			i+1, i+1, xmlEscape(h.Text), chapterHref(h.Chunk), h.ID)
	}
	sb.WriteString("</navMap>\n</ncx>\n")
	return sb.String()
}

// tocHeadings selects table-of-contents candidates: level-1 headings only,
// matching the page-boundary split level.
func tocHeadings(headings []render.Heading) []render.Heading {
	var out []render.Heading
	for _, h := range headings {
		if h.Level == 1 {
			out = append(out, h)
		}
	}
	return out
}

func chapterXHTML(book Book, i int, body string) string {
	title := book.Metadata.Title
	for _, h := range book.Result.Headings {
		if h.Chunk == i && h.Level == 1 {
			title = h.Text
			break
		}
	}
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">` + "\n<head>\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", xmlEscape(title))
	sb.WriteString(`<link rel="stylesheet" type="text/css" href="../styles/style.css"/>` + "\n")
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString(body)
	sb.WriteString("\n</body>\n</html>\n")
	return sb.String()
}

func mediaType(p string) string {
	if mt := mime.TypeByExtension(path.Ext(p)); mt != "" {
		return mt
	}
	return "application/octet-stream"
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
