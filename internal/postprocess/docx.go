package postprocess

// ApplyReferenceStyles swaps the artifact's word/styles.xml for the
// augmented reference style template (the installed template plus the three
// justification paragraph styles). Residual template limitations — no
// first-line paragraph indent, headings not forcing page breaks — are
// accepted, not corrected here. The rewrite is atomic.
func ApplyReferenceStyles(path string, styles []byte) error {
	return rewriteZip(path, func(name string, _ []byte) ([]byte, bool, error) {
		if name == "word/styles.xml" {
			return styles, true, nil
		}
		return nil, false, nil
	})
}
