// Package orchestrator drives the multi-target build: per-target dependency
// sets, staleness, sequential execution with failure isolation, cleanup, and
// the watch loop. It is the only component with scheduling responsibility.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	stdhtml "html"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/buildstate"
	"git.home.luguber.info/inful/bookbinder/internal/catalog"
	"git.home.luguber.info/inful/bookbinder/internal/docx"
	"git.home.luguber.info/inful/bookbinder/internal/epub"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/manuscript"
	"git.home.luguber.info/inful/bookbinder/internal/metadata"
	"git.home.luguber.info/inful/bookbinder/internal/pdfengine"
	"git.home.luguber.info/inful/bookbinder/internal/postprocess"
	"git.home.luguber.info/inful/bookbinder/internal/render"
	"git.home.luguber.info/inful/bookbinder/internal/support"
	"git.home.luguber.info/inful/bookbinder/internal/treefilter"
)

// Target is one requested output artifact.
type Target string

const (
	TargetHTML     Target = "html"
	TargetPDF      Target = "pdf"
	TargetEPUB     Target = "epub"
	TargetDOCX     Target = "docx"
	TargetCombined Target = "combined"
)

// BuildOrder is the stable order aggregate requests run in.
var BuildOrder = []Target{TargetHTML, TargetPDF, TargetEPUB, TargetDOCX}

// State is the per-target build state machine.
type State int

const (
	StateUnknown State = iota
	StateStale
	StateBuilding
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStale:
		return "stale"
	case StateBuilding:
		return "building"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of one target in a Run.
type Result struct {
	Target  Target
	State   State
	Skipped bool
	Err     error
}

// Orchestrator drives builds for one book directory. Execution is
// single-threaded: targets run sequentially, each to completion.
type Orchestrator struct {
	bookDir string
	etcDir  string
	logger  *slog.Logger

	state *buildstate.Store
}

// New creates an orchestrator rooted at bookDir. etcDir may be empty.
func New(bookDir, etcDir string, logger *slog.Logger) (*Orchestrator, error) {
	abs, err := filepath.Abs(bookDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "resolve book directory")
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return nil, errors.Newf(errors.CategoryConfig,
			"book directory %q does not exist or is not a directory", bookDir)
	}
	return &Orchestrator{bookDir: abs, etcDir: etcDir, logger: logger}, nil
}

// Close releases the incremental-state record, when opened.
func (o *Orchestrator) Close() error {
	if o.state == nil {
		return nil
	}
	err := o.state.Close()
	o.state = nil
	return err
}

func (o *Orchestrator) buildDir() string {
	return filepath.Join(o.bookDir, "build")
}

func (o *Orchestrator) statePath() string {
	return filepath.Join(o.buildDir(), buildstate.FileName)
}

func (o *Orchestrator) store() (*buildstate.Store, error) {
	if o.state != nil {
		return o.state, nil
	}
	if err := os.MkdirAll(o.buildDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CategoryState, "create build directory").WithPath(o.buildDir())
	}
	store, err := buildstate.Open(o.statePath())
	if err != nil {
		return nil, err
	}
	o.state = store
	return store, nil
}

func (o *Orchestrator) dirs() support.Dirs {
	return support.Dirs{BookDir: o.bookDir, EtcDir: o.etcDir}
}

// ArtifactPath returns the on-disk artifact location for a target. Artifacts
// are named after the book directory; the combined debug dump has a fixed
// name.
func (o *Orchestrator) ArtifactPath(t Target) string {
	if t == TargetCombined {
		return filepath.Join(o.buildDir(), "combined.md")
	}
	base := filepath.Base(o.bookDir)
	return filepath.Join(o.buildDir(), base+"."+string(t))
}

// styleFile maps each target to its style/template file in the override
// chain.
func styleFile(t Target) string {
	switch t {
	case TargetHTML:
		return "html.css"
	case TargetPDF:
		return "html-pdf.css"
	case TargetEPUB:
		return "epub.css"
	case TargetDOCX:
		return "docx-styles.xml"
	}
	return ""
}

// Dependencies resolves the full dependency set of a target: ordered source
// files, metadata and references companions, the style override when one
// exists on disk, the cover image, and every referenced image.
func (o *Orchestrator) Dependencies(t Target) ([]string, error) {
	cat, err := catalog.Discover(o.bookDir)
	if err != nil {
		return nil, err
	}

	deps := cat.SourcePaths()
	if cat.MetadataPath != "" {
		deps = append(deps, cat.MetadataPath)
	}
	if cat.ReferencesYAML != "" {
		deps = append(deps, cat.ReferencesYAML)
	}
	if t == TargetCombined {
		return deps, nil
	}

	if name := styleFile(t); name != "" {
		if p := o.dirs().StylesheetPath(name); p != "" {
			deps = append(deps, p)
		}
	}
	if cat.CoverImage != "" {
		deps = append(deps, cat.CoverImage)
	}

	images, err := cat.FindImageReferences()
	if err != nil {
		return nil, err
	}
	for _, ref := range images {
		deps = append(deps, filepath.Join(o.bookDir, ref))
	}
	return deps, nil
}

// staleness decides whether a target needs rebuilding and returns the
// current dependency fingerprint. A missing artifact, a dependency newer
// than the artifact, an unreadable dependency set, or a fingerprint mismatch
// against the incremental record all mean stale.
func (o *Orchestrator) staleness(ctx context.Context, t Target) (bool, string) {
	deps, err := o.Dependencies(t)
	if err != nil {
		return true, ""
	}
	fp := buildstate.Fingerprint(deps)

	artifact, err := os.Stat(o.ArtifactPath(t))
	if err != nil {
		return true, fp
	}
	for _, dep := range deps {
		st, err := os.Stat(dep)
		if err != nil || st.ModTime().After(artifact.ModTime()) {
			return true, fp
		}
	}

	store, err := o.store()
	if err != nil {
		return true, fp
	}
	last, err := store.LastFingerprint(ctx, string(t))
	if err != nil || last != fp {
		return true, fp
	}
	return false, fp
}

// IsStale reports whether a target would rebuild if requested.
func (o *Orchestrator) IsStale(ctx context.Context, t Target) bool {
	stale, _ := o.staleness(ctx, t)
	return stale
}

// Run builds the requested targets sequentially in the given order. One
// target's failure never prevents the others from attempting to build; the
// caller inspects the results for the overall exit status.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) []Result {
	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		res := Result{Target: t}

		stale, fp := o.staleness(ctx, t)
		if !stale {
			o.logger.Info("target up to date", "target", t)
			res.State = StateSucceeded
			res.Skipped = true
			results = append(results, res)
			continue
		}

		o.logger.Info("building target", "target", t)
		res.State = StateBuilding
		if err := o.Build(ctx, t); err != nil {
			o.logger.Error("target failed", "target", t, "category", errors.GetCategory(err), "error", err)
			res.State = StateFailed
			res.Err = err
			results = append(results, res)
			continue
		}

		res.State = StateSucceeded
		if store, err := o.store(); err == nil {
			if fp == "" {
				if deps, err := o.Dependencies(t); err == nil {
					fp = buildstate.Fingerprint(deps)
				}
			}
			if err := store.RecordBuild(ctx, string(t), o.ArtifactPath(t), fp); err != nil {
				o.logger.Warn("state record update failed", "target", t, "error", err)
			}
		}
		o.logger.Info("target built", "target", t, "artifact", o.ArtifactPath(t))
		results = append(results, res)
	}
	return results
}

// Build unconditionally builds one target. The artifact is written to a
// temporary path and moved into place on success; a failure leaves the
// previous artifact untouched.
func (o *Orchestrator) Build(ctx context.Context, t Target) error {
	if err := os.MkdirAll(o.buildDir(), 0o755); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create build directory").WithPath(o.buildDir())
	}

	in, err := o.load()
	if err != nil {
		return err
	}

	return o.install(o.ArtifactPath(t), func(tmp string) error {
		switch t {
		case TargetHTML:
			return o.buildHTML(in, tmp, "html.css")
		case TargetPDF:
			return o.buildPDF(ctx, in, tmp)
		case TargetEPUB:
			return o.buildEPUB(in, tmp)
		case TargetDOCX:
			return o.buildDOCX(in, tmp)
		case TargetCombined:
			return o.buildCombined(in, tmp)
		}
		return errors.Newf(errors.CategoryInternal, "unknown target %q", t)
	})
}

// inputs is the per-build read-only view of the book directory, recomputed
// fresh for every build so a long watch loop never serves stale data.
type inputs struct {
	cat    *catalog.Catalog
	rec    *metadata.Record
	images []string
}

func (o *Orchestrator) load() (*inputs, error) {
	cat, err := catalog.Discover(o.bookDir)
	if err != nil {
		return nil, err
	}
	rec, err := metadata.Load(cat.MetadataPath)
	if err != nil {
		return nil, err
	}
	images, err := cat.FindImageReferences()
	if err != nil {
		return nil, err
	}
	return &inputs{cat: cat, rec: rec, images: images}, nil
}

// install runs build against a temporary path next to final and renames on
// success.
func (o *Orchestrator) install(final string, build func(tmp string) error) error {
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create temp artifact")
	}
	tmp := f.Name()
	_ = f.Close()

	if err := build(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.CategoryInternal, "install artifact").WithPath(final)
	}
	return nil
}

// sectionError attaches the offending source file to markup failures that
// the renderer reports against the assembled manuscript.
func sectionError(err error, m *manuscript.Manuscript) error {
	var de *treefilter.DirectiveError
	if stderrors.As(err, &de) {
		if path := m.SectionAt(de.Offset); path != "" {
			return de.Err.WithPath(path)
		}
	}
	return err
}

func (o *Orchestrator) buildHTML(in *inputs, tmp, styleName string) error {
	m, err := manuscript.Assemble(in.cat, in.rec, manuscript.Options{WrapSections: true})
	if err != nil {
		return err
	}
	res, err := render.New(render.FormatHTML).Convert(m.Text)
	if err != nil {
		return sectionError(err, m)
	}

	if err := os.WriteFile(tmp, htmlPage(in.rec, res.Body), 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryRender, "write hypertext artifact").WithPath(tmp)
	}

	if err := o.copyImages(in); err != nil {
		return err
	}

	css, err := o.dirs().Stylesheet(styleName)
	if err != nil {
		return err
	}
	cover, err := o.readCover(in.cat)
	if err != nil {
		return err
	}
	return postprocess.SelfContain(tmp, css, cover)
}

func (o *Orchestrator) buildPDF(ctx context.Context, in *inputs, tmp string) error {
	engine, err := pdfengine.Locate(ctx, o.logger)
	if err != nil {
		return err
	}

	// The print engine consumes the styled single-page hypertext
	// intermediate; it lives in the build dir so relative image references
	// resolve.
	f, err := os.CreateTemp(o.buildDir(), ".pdf-intermediate-*.html")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create pdf intermediate")
	}
	intermediate := f.Name()
	_ = f.Close()
	defer os.Remove(intermediate)

	if err := o.buildHTML(in, intermediate, "html-pdf.css"); err != nil {
		return err
	}
	return engine.Render(ctx, intermediate, tmp)
}

func (o *Orchestrator) buildEPUB(in *inputs, tmp string) error {
	if err := in.cat.RequireCover(); err != nil {
		return err
	}

	m, err := manuscript.Assemble(in.cat, in.rec, manuscript.Options{})
	if err != nil {
		return err
	}
	res, err := render.New(render.FormatEPUB).Convert(m.Text)
	if err != nil {
		return sectionError(err, m)
	}

	css, err := o.dirs().Stylesheet("epub.css")
	if err != nil {
		return err
	}
	cover, err := o.readCover(in.cat)
	if err != nil {
		return err
	}
	resources, err := o.readResources(in)
	if err != nil {
		return err
	}

	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, "create epub artifact").WithPath(tmp)
	}
	writeErr := epub.Write(f, epub.Book{
		Metadata:   in.rec,
		Result:     res,
		Stylesheet: css,
		CoverImage: cover,
		Images:     resources,
	})
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return writeErr
	}

	return postprocess.FixEPUBToc(tmp, in.rec.Title)
}

func (o *Orchestrator) buildDOCX(in *inputs, tmp string) error {
	m, err := manuscript.Assemble(in.cat, in.rec, manuscript.Options{})
	if err != nil {
		return err
	}
	root, err := render.New(render.FormatHTML).Parse(m.Text)
	if err != nil {
		return sectionError(err, m)
	}

	// The container is written with the built-in style template; the
	// post-processor then installs the resolved reference styles, picking up
	// any book or support-dir override.
	baseStyles, err := support.Dirs{}.Stylesheet("docx-styles.xml")
	if err != nil {
		return err
	}
	cover, err := o.readCover(in.cat)
	if err != nil {
		return err
	}

	var images []docx.Image
	for _, ref := range in.images {
		data, err := os.ReadFile(filepath.Join(o.bookDir, ref))
		if err != nil {
			return errors.Wrap(err, errors.CategoryConfig, "read image").WithPath(ref)
		}
		images = append(images, docx.Image{Path: ref, Data: data})
	}

	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, "create docx artifact").WithPath(tmp)
	}
	writeErr := docx.Write(f, docx.Document{
		Root:       root,
		Source:     m.Text,
		Styles:     baseStyles,
		CoverImage: cover,
		Images:     images,
	})
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return writeErr
	}

	styles, err := o.dirs().Stylesheet("docx-styles.xml")
	if err != nil {
		return err
	}
	return postprocess.ApplyReferenceStyles(tmp, styles)
}

func (o *Orchestrator) buildCombined(in *inputs, tmp string) error {
	m, err := manuscript.Assemble(in.cat, in.rec, manuscript.Options{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, m.Text, 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "write combined dump").WithPath(tmp)
	}
	return nil
}

func (o *Orchestrator) readCover(cat *catalog.Catalog) ([]byte, error) {
	if cat.CoverImage == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cat.CoverImage)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "read cover image").WithPath(cat.CoverImage)
	}
	return data, nil
}

func (o *Orchestrator) readResources(in *inputs) ([]epub.Resource, error) {
	var resources []epub.Resource
	for _, ref := range in.images {
		data, err := os.ReadFile(filepath.Join(o.bookDir, ref))
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "read image").WithPath(ref)
		}
		resources = append(resources, epub.Resource{Path: ref, Data: data})
	}
	return resources, nil
}

// copyImages mirrors every referenced image into the build directory,
// preserving the book-dir-relative structure so the hypertext artifact's
// references resolve.
func (o *Orchestrator) copyImages(in *inputs) error {
	for _, ref := range in.images {
		src := filepath.Join(o.bookDir, ref)
		dst := filepath.Join(o.buildDir(), ref)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "create image directory").WithPath(dst)
		}
		if err := copyFile(src, dst); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "copy image").WithPath(ref)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Clean deletes the artifacts of the named targets plus stray temp files.
// The incremental-state record survives.
func (o *Orchestrator) Clean(targets []Target) error {
	for _, t := range targets {
		p := o.ArtifactPath(t)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.CategoryInternal, "remove artifact").WithPath(p)
		}
		o.logger.Debug("removed artifact", "target", t, "path", p)
	}
	strays, _ := filepath.Glob(filepath.Join(o.buildDir(), ".*.tmp-*"))
	for _, s := range strays {
		_ = os.Remove(s)
	}
	return nil
}

// Clobber is Clean plus removal of the incremental-state record.
func (o *Orchestrator) Clobber(targets []Target) error {
	if err := o.Clean(targets); err != nil {
		return err
	}
	if err := o.Close(); err != nil {
		o.logger.Warn("state record close failed", "error", err)
	}
	return buildstate.Remove(o.statePath())
}

func htmlPage(rec *metadata.Record, body []byte) []byte {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	fmt.Fprintf(&sb, "<html lang=%q>\n<head>\n<meta charset=\"utf-8\"/>\n", rec.Language)
	fmt.Fprintf(&sb, "<title>%s</title>\n", stdhtml.EscapeString(rec.Title))
	sb.WriteString("<link rel=\"stylesheet\" type=\"text/css\" href=\"html.css\"/>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.Write(body)
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}
