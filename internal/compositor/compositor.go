// Package compositor builds searchable PDF documents: every accepted image
// becomes a full-bleed page with the recognized text drawn invisibly behind
// it, so the page looks scanned but can be searched and selected.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/textlayout"
)

// Text layer defaults.
const (
	DefaultFontSize   = 12
	DefaultLineBudget = 140
	DefaultTextTop    = 10
)

// fpdf image types for the accepted extensions.
var imageTypes = map[string]string{
	".png":  "PNG",
	".jpg":  "JPG",
	".jpeg": "JPG",
}

// PageOutcome tags what happened to one candidate page.
type PageOutcome int

const (
	PageAccepted PageOutcome = iota
	PageSkippedUnsupportedType
	PageSkippedUnreadableImage
)

func (o PageOutcome) String() string {
	switch o {
	case PageAccepted:
		return "accepted"
	case PageSkippedUnsupportedType:
		return "skipped-unsupported-type"
	case PageSkippedUnreadableImage:
		return "skipped-unreadable-image"
	}
	return fmt.Sprintf("PageOutcome(%d)", int(o))
}

// DocumentResult reports how one document job ended.
type DocumentResult struct {
	DocumentName string
	// OutputPath is empty when the document was discarded.
	OutputPath   string
	Pages        []PageOutcome
	PageCount    int
	SkippedPages int
	// Err is models.ErrEmptyDocument for a discarded document.
	Err error
}

// Written reports whether the document was persisted.
func (d DocumentResult) Written() bool { return d.OutputPath != "" }

// Result collects the document results of one BuildDocuments call, in job order.
type Result struct {
	Documents []DocumentResult
}

// Written returns the number of persisted documents.
func (r *Result) Written() int {
	n := 0
	for _, d := range r.Documents {
		if d.Written() {
			n++
		}
	}
	return n
}

// Persisted reports whether at least one document was written.
func (r *Result) Persisted() bool { return r.Written() > 0 }

// Compositor turns document jobs into PDF files.
type Compositor struct {
	fontSize    float64
	lineBudget  int
	textTop     float64
	optimize    bool
	compress    bool
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithFontSize sets the size of the invisible text layer.
func WithFontSize(size float64) Option {
	return func(c *Compositor) { c.fontSize = size }
}

// WithLineBudget sets the line length passed to the wrapper.
func WithLineBudget(n int) Option {
	return func(c *Compositor) { c.lineBudget = n }
}

// WithTextTop sets the distance in points from the top edge to the first baseline.
func WithTextTop(top float64) Option {
	return func(c *Compositor) { c.textTop = top }
}

// WithOptimize runs every written file through the pdfcpu optimizer.
func WithOptimize(optimize bool) Option {
	return func(c *Compositor) { c.optimize = optimize }
}

// WithCompression toggles stream compression. It is on by default.
func WithCompression(compress bool) Option {
	return func(c *Compositor) { c.compress = compress }
}

// WithConcurrency sets how many documents are built at the same time.
func WithConcurrency(n int) Option {
	return func(c *Compositor) { c.concurrency = n }
}

// WithClock sets the source of the documents' creation date.
func WithClock(now func() time.Time) Option {
	return func(c *Compositor) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) { c.logger = logger }
}

// New returns a Compositor with the default text layer settings.
func New(opts ...Option) *Compositor {
	c := &Compositor{
		fontSize:    DefaultFontSize,
		lineBudget:  DefaultLineBudget,
		textTop:     DefaultTextTop,
		compress:    true,
		concurrency: 1,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// BuildDocuments writes one <DocumentName>.pdf into outputDir per job that
// ends up with at least one page. Pages whose image is not PNG or JPEG, or
// cannot be decoded, are skipped. A document without pages is discarded.
//
// Invalid arguments return an empty Result and an error before anything is
// written. A failed write aborts the call with ErrPersistenceFailure.
func (c *Compositor) BuildDocuments(ctx context.Context, outputDir string, jobs []models.PdfDocumentJob, pageWidth, pageHeight float64) (*Result, error) {
	if outputDir == "" || !filepath.IsAbs(outputDir) || pageWidth <= 0 || pageHeight <= 0 {
		c.logger.Error("Invalid arguments.", "outputDir", outputDir, "pageWidth", pageWidth, "pageHeight", pageHeight)
		return &Result{}, fmt.Errorf("%w: output %q, page %gx%g", models.ErrInvalidArguments, outputDir, pageWidth, pageHeight)
	}
	if len(jobs) == 0 {
		c.logger.Error("No data to create PDF files from.")
		return &Result{}, fmt.Errorf("%w: no document jobs", models.ErrNoDataToProcess)
	}

	c.logger.Info("Creating PDF files.", "outputDir", outputDir, "documents", len(jobs))
	docs := make([]DocumentResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			doc, err := c.buildDocument(gctx, outputDir, job, pageWidth, pageHeight)
			docs[i] = doc
			return err
		})
	}
	err := g.Wait()
	result := &Result{Documents: docs}
	if err != nil {
		return result, err
	}

	if written := result.Written(); written > 0 {
		c.logger.Info("Done creating PDF files.", "written", written, "outputDir", outputDir)
	} else {
		c.logger.Error("No created PDF files.", "outputDir", outputDir)
	}
	return result, nil
}

func (c *Compositor) buildDocument(ctx context.Context, outputDir string, job models.PdfDocumentJob, pageWidth, pageHeight float64) (DocumentResult, error) {
	res := DocumentResult{DocumentName: job.DocumentName, Pages: make([]PageOutcome, 0, len(job.Pages))}
	pdfPath := filepath.Join(outputDir, job.DocumentName+".pdf")
	logger := c.logger.With("documentName", job.DocumentName)
	logger.Info("Creating document.", "candidatePages", len(job.Pages))

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetCompression(c.compress)
	pdf.SetCatalogSort(true)
	created := c.now()
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetTitle(job.DocumentName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetFont("Times", "", c.fontSize)
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	for i, page := range job.Pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome := c.addPage(pdf, translate, page, pageWidth, pageHeight)
		res.Pages = append(res.Pages, outcome)
		if outcome != PageAccepted {
			res.SkippedPages++
			logger.Error("Skipped page.", "page", i+1, "imagePath", page.ImagePath, "reason", outcome.String())
			continue
		}
		logger.Info("Added page.", "page", pdf.PageCount())
	}
	res.PageCount = pdf.PageCount()

	if res.PageCount == 0 {
		res.Err = fmt.Errorf("%w: %s", models.ErrEmptyDocument, job.DocumentName)
		logger.Error("Did not create document.", "skippedPages", res.SkippedPages)
		return res, nil
	}
	if err := c.persist(pdf, pdfPath); err != nil {
		logger.Error("Failed to save document.", "path", pdfPath, "error", err)
		return res, fmt.Errorf("%w: %s: %w", models.ErrPersistenceFailure, pdfPath, err)
	}
	res.OutputPath = pdfPath
	logger.Info("Saved document.", "path", pdfPath, "pageCount", res.PageCount)
	return res, nil
}

// addPage validates the page image and, when it is usable, adds a page with
// the image covering it and the text layer on top at zero opacity.
func (c *Compositor) addPage(pdf *fpdf.Fpdf, translate func(string) string, page models.PdfPageSpec, pageWidth, pageHeight float64) PageOutcome {
	imageType, ok := imageTypes[strings.ToLower(filepath.Ext(page.ImagePath))]
	if !ok {
		return PageSkippedUnsupportedType
	}
	data, err := os.ReadFile(page.ImagePath)
	if err != nil {
		c.logger.Warn("Failed to read image.", "imagePath", page.ImagePath, "error", err)
		return PageSkippedUnreadableImage
	}
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(page.ImagePath, opts, bytes.NewReader(data))
	if !pdf.Ok() {
		c.logger.Warn("Failed to embed image.", "imagePath", page.ImagePath, "error", pdf.Error())
		pdf.ClearError()
		return PageSkippedUnreadableImage
	}

	pdf.AddPageFormat("P", fpdf.SizeType{Wd: pageWidth, Ht: pageHeight})
	pdf.ImageOptions(page.ImagePath, 0, 0, pageWidth, pageHeight, false, opts, 0, "")

	text := textlayout.WrapToWidth(
		textlayout.FilterToSupportedCharacters(textlayout.NormalizeWhitespace(page.Text), TimesGlyphs()),
		c.lineBudget,
	)
	if text == "" {
		return PageAccepted
	}
	pdf.SetAlpha(0, "Normal")
	for n, line := range strings.Split(text, "\n") {
		pdf.Text(0, c.textTop+float64(n)*c.fontSize, translate(line))
	}
	pdf.SetAlpha(1, "Normal")
	return PageAccepted
}

// persist writes the document next to its final path and renames it into
// place, so a failed write never leaves a truncated PDF behind.
func (c *Compositor) persist(pdf *fpdf.Fpdf, pdfPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(pdfPath), ".searchablepdf-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := pdf.Output(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("serialize: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if c.optimize {
		optimizedPath := tmpPath + ".opt"
		defer os.Remove(optimizedPath)
		if err := optimizePDF(tmpPath, optimizedPath); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		return os.Rename(optimizedPath, pdfPath)
	}
	return os.Rename(tmpPath, pdfPath)
}
