package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/searchablepdf/internal/aggregate"
	"github.com/Lllllllleong/searchablepdf/internal/compositor"
	"github.com/Lllllllleong/searchablepdf/internal/config"
	"github.com/Lllllllleong/searchablepdf/internal/container"
	"github.com/Lllllllleong/searchablepdf/internal/env"
	"github.com/Lllllllleong/searchablepdf/internal/gcp"
	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/ocr"
)

// StatusStore keeps one conversion record per document.
type StatusStore interface {
	Create(ctx context.Context, rec models.Conversion) (string, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	FindBySourceHash(ctx context.Context, sourceHash string) (string, error)
}

// Publisher copies a written PDF to shared storage and returns its URI.
type Publisher interface {
	Publish(ctx context.Context, localPath, objectName string) (string, error)
}

// Notifier tells downstream consumers about a published document.
type Notifier interface {
	Notify(ctx context.Context, n models.PublishedNotification) (string, error)
}

// ConverterConfig is read from the environment by NewConverter.
type ConverterConfig struct {
	ProjectID         string
	OutputBucket      string
	OutputPrefix      string
	CollectionName    string
	WorkflowID        string
	WorkflowLocation  string
	OCREngine         string
	VertexRegion      string
	OCRModel          string
	UploadConcurrency int
}

// Deps wires a Converter explicitly. Store, Publisher and Notifier are optional.
type Deps struct {
	Options           config.Options
	Recognizers       ocr.RecognizerFactory
	Parallelism       int // zero uses the number of CPUs
	Store             StatusStore
	Publisher         Publisher
	Notifier          Notifier
	UploadConcurrency int
	Clock             func() time.Time
	Logger            *slog.Logger
}

// Converter turns a container of image directories into searchable PDFs.
type Converter struct {
	opts        config.Options
	scheduler   *ocr.Scheduler
	compositor  *compositor.Compositor
	store       StatusStore
	publisher   Publisher
	notifier    Notifier
	uploadLimit int
	logger      *slog.Logger
	closers     []io.Closer
}

// NewConverter wires a Converter from the environment. localOCR is used
// unless OCR_ENGINE is "gemini".
func NewConverter(ctx context.Context, localOCR ocr.RecognizerFactory) (*Converter, error) {
	projectID := env.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	cfg := ConverterConfig{
		ProjectID:         projectID,
		OutputBucket:      env.GetEnv("OUTPUT_BUCKET", ""),
		OutputPrefix:      env.GetEnv("OUTPUT_PREFIX", ""),
		CollectionName:    env.GetEnv("FIRESTORE_COLLECTION", "conversions"),
		WorkflowID:        env.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:  env.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		OCREngine:         env.GetEnv("OCR_ENGINE", "tesseract"),
		VertexRegion:      env.GetEnv("VERTEX_REGION", "us-central1"),
		OCRModel:          env.GetEnv("OCR_MODEL", gcp.DefaultOCRModel),
		UploadConcurrency: 10,
	}
	opts, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversion options: %w", err)
	}

	deps := Deps{Options: opts, Recognizers: localOCR, UploadConcurrency: cfg.UploadConcurrency}
	closers, err := openAll(cloudOpeners(ctx, cfg, &deps))
	if err != nil {
		return nil, err
	}

	c, err := NewConverterWithDeps(deps)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	c.closers = closers
	slog.Info("Converter logic initialized.", "ocrEngine", cfg.OCREngine, "outputBucket", cfg.OutputBucket, "workflowId", cfg.WorkflowID)
	return c, nil
}

// opener creates one cloud client and wires it into a Deps.
type opener func() (io.Closer, error)

// openAll runs openers in order. When one fails, the clients opened before it
// are closed.
func openAll(openers []opener) ([]io.Closer, error) {
	closers := make([]io.Closer, 0, len(openers))
	for _, open := range openers {
		closer, err := open()
		if err != nil {
			if cerr := closeAll(closers); cerr != nil {
				slog.Warn("Failed to release clients after an initialization error.", "error", cerr)
			}
			return nil, err
		}
		closers = append(closers, closer)
	}
	return closers, nil
}

func cloudOpeners(ctx context.Context, cfg ConverterConfig, deps *Deps) []opener {
	openers := []opener{func() (io.Closer, error) {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		deps.Store = gcp.NewFirestoreStatusStore(firestoreClient, cfg.CollectionName)
		return firestoreClient, nil
	}}

	if cfg.OutputBucket != "" {
		openers = append(openers, func() (io.Closer, error) {
			storageClient, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create Storage client: %w", err)
			}
			if deps.Publisher, err = gcp.NewGCSPublisher(storageClient, cfg.OutputBucket, cfg.OutputPrefix); err != nil {
				storageClient.Close()
				return nil, err
			}
			return storageClient, nil
		})
	}

	if cfg.WorkflowID != "" {
		openers = append(openers, func() (io.Closer, error) {
			executionsClient, err := executions.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
			}
			if deps.Notifier, err = gcp.NewWorkflowNotifier(executionsClient, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID); err != nil {
				executionsClient.Close()
				return nil, err
			}
			return executionsClient, nil
		})
	}

	if cfg.OCREngine == "gemini" {
		openers = append(openers, func() (io.Closer, error) {
			vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexRegion, cfg.OCRModel)
			if err != nil {
				return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
			}
			deps.Recognizers = vertexClient.RecognizerFactory()
			return vertexClient, nil
		})
	}
	return openers
}

// NewConverterWithDeps wires a Converter from explicit dependencies.
func NewConverterWithDeps(deps Deps) (*Converter, error) {
	if deps.Recognizers == nil {
		return nil, fmt.Errorf("%w: no OCR engine", models.ErrInvalidArguments)
	}
	if err := deps.Options.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := deps.Options

	schedulerOpts := []ocr.Option{
		ocr.WithLanguage(opts.Language),
		ocr.WithJobTimeout(opts.JobTimeout),
		ocr.WithIsolateFailures(opts.IsolateRecognitionFailures),
		ocr.WithLogger(logger),
	}
	if deps.Parallelism > 0 {
		schedulerOpts = append(schedulerOpts, ocr.WithParallelism(deps.Parallelism))
	}
	compositorOpts := []compositor.Option{
		compositor.WithFontSize(opts.FontSize),
		compositor.WithLineBudget(opts.LineBudget),
		compositor.WithConcurrency(opts.DocumentConcurrency),
		compositor.WithOptimize(opts.Optimize),
		compositor.WithLogger(logger),
	}
	if deps.Clock != nil {
		compositorOpts = append(compositorOpts, compositor.WithClock(deps.Clock))
	}
	uploadLimit := deps.UploadConcurrency
	if uploadLimit <= 0 {
		uploadLimit = 10
	}

	return &Converter{
		opts:        opts,
		scheduler:   ocr.NewScheduler(deps.Recognizers, schedulerOpts...),
		compositor:  compositor.New(compositorOpts...),
		store:       deps.Store,
		publisher:   deps.Publisher,
		notifier:    deps.Notifier,
		uploadLimit: uploadLimit,
		logger:      logger,
	}, nil
}

// Close releases the cloud clients created by NewConverter.
func (c *Converter) Close() error {
	return closeAll(c.closers)
}

func closeAll(closers []io.Closer) error {
	var firstErr error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Process converts every matching directory of req.ContainerPath into
// <OutputPath>/<directory>.pdf, then publishes the written files.
func (c *Converter) Process(ctx context.Context, req *models.ConvertRequest) (*models.ConvertResponse, error) {
	if req == nil || req.ContainerPath == "" {
		return nil, fmt.Errorf("%w: containerPath is required", models.ErrInvalidArguments)
	}
	outputDir := req.OutputPath
	if outputDir == "" {
		outputDir = req.ContainerPath
	}
	logCtx := c.logger.With("containerPath", req.ContainerPath, "outputPath", outputDir)
	if req.ExecutionID != "" {
		logCtx = logCtx.With("executionId", req.ExecutionID)
	}
	logCtx.Info("Processing container.")

	entries, err := container.GetContainerData(req.ContainerPath, c.opts)
	if err != nil {
		logCtx.Error("Failed to scan container", "error", err)
		return nil, err
	}
	if len(entries) == 0 {
		logCtx.Error("No matching directories found.")
		return nil, fmt.Errorf("%w: no matching directories in %s", models.ErrNoDataToProcess, req.ContainerPath)
	}

	ids, err := c.createRecords(ctx, entries)
	if err != nil {
		logCtx.Error("Failed to create conversion records", "error", err)
		return nil, err
	}

	results, err := c.scheduler.RecognizeAll(ctx, entries)
	if err != nil {
		return nil, c.handleError(ctx, logCtx, ids, "failed to recognize images", err)
	}
	c.updateAll(ctx, logCtx, ids, map[string]any{"status": models.StatusCompositing})

	jobs, err := aggregate.ToPdfDocumentJobs(results)
	if err != nil {
		return nil, c.handleError(ctx, logCtx, ids, "failed to aggregate recognition results", err)
	}
	built, err := c.compositor.BuildDocuments(ctx, outputDir, jobs, c.opts.PageWidth, c.opts.PageHeight)
	if err != nil {
		return nil, c.handleError(ctx, logCtx, ids, "failed to create PDF files", err)
	}

	resp := &models.ConvertResponse{Documents: make([]models.DocumentOutcome, len(built.Documents))}
	for i, doc := range built.Documents {
		outcome, err := c.recordDocument(ctx, logCtx, ids[i], jobs[i], doc)
		if err != nil {
			return nil, c.handleError(ctx, logCtx, ids, "failed to record document", err)
		}
		resp.Documents[i] = outcome
	}

	if err := c.publish(ctx, logCtx, ids, resp.Documents); err != nil {
		return nil, err
	}

	resp.Written = built.Written()
	resp.Status = models.ResponseCompleted
	if !built.Persisted() {
		resp.Status = models.ResponseNothingWritten
	}
	logCtx.Info("Finished processing container.", "status", resp.Status, "written", resp.Written)
	return resp, nil
}

func (c *Converter) createRecords(ctx context.Context, entries []models.ContainerEntry) ([]string, error) {
	ids := make([]string, len(entries))
	if c.store == nil {
		return ids, nil
	}
	for i, e := range entries {
		id, err := c.store.Create(ctx, models.Conversion{
			DocumentName:    e.DirectoryName,
			SourceDirectory: e.DirectoryPath,
			Status:          models.StatusRecognizing,
			ImageCount:      len(e.ImageFileNames),
			CreatedAt:       time.Now(),
		})
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// recordDocument hashes a written document, checks its source against earlier
// conversions and stores its outcome.
func (c *Converter) recordDocument(ctx context.Context, logCtx *slog.Logger, id string, job models.PdfDocumentJob, doc compositor.DocumentResult) (models.DocumentOutcome, error) {
	outcome := models.DocumentOutcome{
		DocumentName: doc.DocumentName,
		Status:       models.StatusDiscarded,
		PageCount:    doc.PageCount,
		SkippedPages: doc.SkippedPages,
	}
	fields := map[string]any{
		"status":       models.StatusDiscarded,
		"pageCount":    doc.PageCount,
		"skippedPages": doc.SkippedPages,
	}
	if !doc.Written() {
		if doc.Err != nil {
			fields["errorDetails"] = doc.Err.Error()
		}
		return outcome, c.update(ctx, id, fields)
	}

	fileHash, err := calculateFileHash(doc.OutputPath)
	if err != nil {
		return outcome, fmt.Errorf("failed to calculate file hash: %w", err)
	}
	outcome.Status = models.StatusWritten
	outcome.OutputPath = doc.OutputPath
	outcome.FileHash = fileHash
	fields["status"] = models.StatusWritten
	fields["outputPath"] = doc.OutputPath
	fields["fileHash"] = fileHash

	// The PDF embeds its creation date, so duplicates are matched on the
	// pages that went into it.
	sourceHash, err := c.calculateSourceHash(job, doc.Pages)
	if err != nil {
		return outcome, fmt.Errorf("failed to calculate source hash: %w", err)
	}
	outcome.SourceHash = sourceHash
	fields["sourceHash"] = sourceHash

	if c.store != nil && c.publisher != nil {
		existingID, err := c.store.FindBySourceHash(ctx, sourceHash)
		if err != nil {
			return outcome, err
		}
		if existingID != "" && existingID != id {
			logCtx.Info("Duplicate file detected. Skipping publish.", "documentName", doc.DocumentName, "existingDocId", existingID)
			outcome.Status = models.StatusDuplicate
			fields["status"] = models.StatusDuplicate
			fields["duplicateOf"] = existingID
		}
	}
	return outcome, c.update(ctx, id, fields)
}

func (c *Converter) publish(ctx context.Context, logCtx *slog.Logger, ids []string, docs []models.DocumentOutcome) error {
	if c.publisher == nil {
		return nil
	}
	logCtx.Info("Starting concurrent upload of documents.")
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.uploadLimit)

	for i := range docs {
		if docs[i].Status != models.StatusWritten {
			continue
		}
		eg.Go(func() error {
			doc := &docs[i]
			uri, err := c.publisher.Publish(gctx, doc.OutputPath, filepath.Base(doc.OutputPath))
			if err != nil {
				return fmt.Errorf("%s: %w", doc.DocumentName, err)
			}
			doc.OutputGCSUri = uri
			doc.Status = models.StatusPublished
			fields := map[string]any{"status": models.StatusPublished, "outputGcsUri": uri}

			if c.notifier != nil {
				execution, err := c.notifier.Notify(gctx, models.PublishedNotification{
					DocumentName: doc.DocumentName,
					GCSUri:       uri,
					PageCount:    doc.PageCount,
				})
				if err != nil {
					return fmt.Errorf("%s: %w", doc.DocumentName, err)
				}
				fields["workflowExecutionId"] = execution
			}
			return c.update(gctx, ids[i], fields)
		})
	}
	if err := eg.Wait(); err != nil {
		return c.handleError(ctx, logCtx, ids, "one or more documents failed to publish", err)
	}
	logCtx.Info("All documents published successfully.")
	return nil
}

func (c *Converter) handleError(ctx context.Context, logCtx *slog.Logger, ids []string, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	fullError := fmt.Errorf("%s: %w", message, originalErr)
	for _, id := range ids {
		if err := c.update(ctx, id, map[string]any{"status": models.StatusFailed, "errorDetails": fullError.Error()}); err != nil {
			logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "documentId", id, "updateError", err)
		}
	}
	return fullError
}

func (c *Converter) updateAll(ctx context.Context, logCtx *slog.Logger, ids []string, fields map[string]any) {
	for _, id := range ids {
		if err := c.update(ctx, id, fields); err != nil {
			logCtx.Warn("Failed to update conversion record.", "documentId", id, "error", err)
		}
	}
}

func (c *Converter) update(ctx context.Context, id string, fields map[string]any) error {
	if c.store == nil || id == "" {
		return nil
	}
	return c.store.Update(ctx, id, fields)
}

// calculateSourceHash digests the page size and, for every accepted page in
// order, the image bytes and the recognized text.
func (c *Converter) calculateSourceHash(job models.PdfDocumentJob, outcomes []compositor.PageOutcome) (string, error) {
	hash := sha256.New()
	fmt.Fprintf(hash, "%g x %g\n", c.opts.PageWidth, c.opts.PageHeight)
	for i, page := range job.Pages {
		if i >= len(outcomes) || outcomes[i] != compositor.PageAccepted {
			continue
		}
		imageHash, err := calculateFileHash(page.ImagePath)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(hash, "%s\n%d\n%s\n", imageHash, len(page.Text), page.Text)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
