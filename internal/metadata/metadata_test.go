package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleYAML = `title: My Days as a Stage Actor
subtitle: A Memoir
author:
  - Joe Horrid
copyright:
  owner: Joe Horrid
  year: 2017
publisher: Fictitious Books, Ltd.
language: en
genre: memoir
`

func TestLoad_ValidFile_PopulatesRecord(t *testing.T) {
	rec, err := Load(writeMetadata(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, "My Days as a Stage Actor", rec.Title)
	require.Equal(t, []string{"Joe Horrid"}, rec.Authors)
	require.Equal(t, 2017, rec.Copyright.Year)
	require.Equal(t, "en", rec.Language)
}

func TestLoad_MissingLanguage_DefaultsToEnglish(t *testing.T) {
	rec, err := Load(writeMetadata(t, "title: T\n"))
	require.NoError(t, err)
	require.Equal(t, "en", rec.Language)
}

func TestLoad_InvalidLanguage_ConfigurationError(t *testing.T) {
	_, err := Load(writeMetadata(t, "language: not a language\n"))
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestLoad_MalformedYAML_ConfigurationError(t *testing.T) {
	_, err := Load(writeMetadata(t, "title: [unclosed\n"))
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestLoad_EmptyPath_EmptyRecord(t *testing.T) {
	rec, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "", rec.Title)
	require.Equal(t, "en", rec.Language)
}

func TestAuthor_MultipleAuthors_JoinedForDisplay(t *testing.T) {
	rec := &Record{Authors: []string{"A", "B", "C"}}
	require.Equal(t, "A, B and C", rec.Author())

	rec = &Record{Authors: []string{"A", "B"}}
	require.Equal(t, "A and B", rec.Author())
}

func TestSubstitute_RecognizedTokens_Replaced(t *testing.T) {
	rec, err := Load(writeMetadata(t, sampleYAML))
	require.NoError(t, err)

	in := "Copyright %copyright-year% %copyright-owner%. Published by %publisher%."
	out := rec.Substitute(in)
	require.Equal(t, "Copyright 2017 Joe Horrid. Published by Fictitious Books, Ltd.", out)
}

func TestSubstitute_UnrecognizedToken_LeftVerbatim(t *testing.T) {
	rec := &Record{}
	require.Equal(t, "keep %newpage% and %nonsense% as-is",
		rec.Substitute("keep %newpage% and %nonsense% as-is"))
}

func TestSubstitute_Idempotent(t *testing.T) {
	rec, err := Load(writeMetadata(t, sampleYAML))
	require.NoError(t, err)

	in := "%title% by %author% (%language%)"
	once := rec.Substitute(in)
	require.Equal(t, once, rec.Substitute(once))
}
