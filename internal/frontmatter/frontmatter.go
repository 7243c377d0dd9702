// Package frontmatter strips YAML frontmatter blocks from section sources
// before they are concatenated into the manuscript. The downstream renderer
// has no frontmatter notion, so blocks must be removed during assembly.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when a document opens a frontmatter
// block but never closes it.
var ErrMissingClosingDelimiter = errors.New("frontmatter: missing closing --- delimiter")

func newline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// Strip separates a leading `---` delimited YAML frontmatter block from the
// Markdown body. If the document carries no frontmatter, fields is nil and
// body is the full input.
func Strip(content []byte) (fields map[string]any, body []byte, err error) {
	nl := newline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}

	rest := content[len(open):]

	// An immediately closed block is legal and empty.
	if bytes.HasPrefix(rest, open) {
		return map[string]any{}, rest[len(open):], nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closeSeq)
	if idx < 0 {
		return nil, nil, ErrMissingClosingDelimiter
	}

	raw := rest[:idx+len(nl)]
	body = rest[idx+len(closeSeq):]

	fields = map[string]any{}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, nil, err
	}
	return fields, body, nil
}
