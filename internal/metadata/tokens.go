package metadata

import "regexp"

// Anything %word-like% is a candidate token. Unrecognized candidates are
// left verbatim; they may be literal text coincidentally matching the
// pattern.
var tokenPattern = regexp.MustCompile(`%([a-z][a-z-]*)%`)

// Substitute replaces every recognized %token% in text with its metadata
// value. The operation is idempotent as long as metadata values carry no
// %token%-shaped substrings themselves; no recursive re-substitution is
// performed.
func (r *Record) Substitute(text string) string {
	values := r.tokenValues()
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := values[name]; ok {
			return value
		}
		return match
	})
}
