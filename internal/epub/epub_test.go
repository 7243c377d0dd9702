package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/metadata"
	"git.home.luguber.info/inful/bookbinder/internal/render"
)

func buildBook(t *testing.T, identifier string) Book {
	t.Helper()
	res, err := render.New(render.FormatEPUB).Convert([]byte(
		"Front matter.\n\n# Chapter One\n\ntext one\n\n# Chapter Two\n\ntext two\n"))
	require.NoError(t, err)

	return Book{
		Metadata: &metadata.Record{
			Title:      "A Book",
			Authors:    []string{"An Author"},
			Language:   "en",
			Identifier: identifier,
		},
		Result:     res,
		Stylesheet: []byte("body {}"),
		CoverImage: []byte{0x89, 0x50, 0x4e, 0x47},
	}
}

func writeAndReopen(t *testing.T, book Book) (*zip.Reader, map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, book))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		contents[f.Name] = string(data)
	}
	return zr, contents
}

func TestWrite_MimetypeFirstAndStored(t *testing.T) {
	zr, contents := writeAndReopen(t, buildBook(t, "urn:uuid:x"))

	require.Equal(t, "mimetype", zr.File[0].Name)
	require.Equal(t, zip.Store, zr.File[0].Method)
	require.Equal(t, "application/epub+zip", contents["mimetype"])
}

func TestWrite_ChaptersSplitAtPageBoundaries(t *testing.T) {
	_, contents := writeAndReopen(t, buildBook(t, ""))

	require.Contains(t, contents["EPUB/text/ch001.xhtml"], "Front matter.")
	require.Contains(t, contents["EPUB/text/ch002.xhtml"], "Chapter One")
	require.Contains(t, contents["EPUB/text/ch003.xhtml"], "Chapter Two")
	require.Contains(t, contents["EPUB/text/ch002.xhtml"], "<title>Chapter One</title>")
}

func TestWrite_NavListsChapterHeadings(t *testing.T) {
	_, contents := writeAndReopen(t, buildBook(t, ""))

	nav := contents["EPUB/nav.xhtml"]
	require.Contains(t, nav, ">Chapter One</a>")
	require.Contains(t, nav, ">Chapter Two</a>")
	require.Contains(t, nav, "text/ch002.xhtml#")

	ncx := contents["EPUB/toc.ncx"]
	require.Contains(t, ncx, "<text>Chapter One</text>")
}

func TestWrite_EmptyIdentifier_ElementOmitted(t *testing.T) {
	_, contents := writeAndReopen(t, buildBook(t, ""))
	require.NotContains(t, contents["EPUB/package.opf"], "dc:identifier")
}

func TestWrite_Identifier_Present(t *testing.T) {
	_, contents := writeAndReopen(t, buildBook(t, "urn:uuid:abc"))
	require.Contains(t, contents["EPUB/package.opf"], ">urn:uuid:abc</dc:identifier>")
}

func TestWrite_MissingCover_ConfigurationError(t *testing.T) {
	book := buildBook(t, "")
	book.CoverImage = nil

	err := Write(io.Discard, book)
	require.Error(t, err)
}

func TestWrite_BreakOnlyHeading_NoTocEntry(t *testing.T) {
	res, err := render.New(render.FormatEPUB).Convert([]byte("one\n\n#\n\ntwo\n"))
	require.NoError(t, err)

	book := buildBook(t, "")
	book.Result = res
	_, contents := writeAndReopen(t, book)

	// Two chapter files (the break split them), but no toc entries.
	require.Contains(t, contents, "EPUB/text/ch002.xhtml")
	require.NotContains(t, contents["EPUB/nav.xhtml"], "<li id=\"toc-li-1\"")
}
