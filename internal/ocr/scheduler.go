package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// Scheduler recognizes the images of a whole container batch.
type Scheduler struct {
	factory         RecognizerFactory
	language        string
	parallelism     int
	jobTimeout      time.Duration
	isolateFailures bool
	logger          *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLanguage sets the language every worker is initialized with.
func WithLanguage(language string) Option {
	return func(s *Scheduler) { s.language = language }
}

// WithParallelism overrides the number of logical CPUs used to size pools.
func WithParallelism(n int) Option {
	return func(s *Scheduler) { s.parallelism = n }
}

// WithJobTimeout bounds a single recognition, counted from the moment a worker
// starts it.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.jobTimeout = d }
}

// WithIsolateFailures turns a failed job into an empty text for that image
// instead of failing the whole batch.
func WithIsolateFailures(isolate bool) Option {
	return func(s *Scheduler) { s.isolateFailures = isolate }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler returns a Scheduler that builds its workers with factory.
func NewScheduler(factory RecognizerFactory, opts ...Option) *Scheduler {
	s := &Scheduler{
		factory:     factory,
		language:    "eng",
		parallelism: runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxImages returns the largest image count over all entries.
func MaxImages(entries []models.ContainerEntry) int {
	maxImages := 0
	for _, e := range entries {
		maxImages = max(maxImages, len(e.ImageFileNames))
	}
	return maxImages
}

// WorkerCount sizes a pool: one worker per image of the largest directory,
// capped at parallelism-1 so one logical CPU stays free. It is zero when
// there is nothing to recognize and at least one otherwise.
func WorkerCount(maxImages, parallelism int) int {
	if maxImages <= 0 {
		return 0
	}
	return max(1, min(maxImages, parallelism-1))
}

// JobID names the job of the index-th (zero-based) image of a directory.
func JobID(directoryName string, index int) string {
	return fmt.Sprintf("%s/%05d", directoryName, index+1)
}

// RecognizeAll recognizes every image of entries with a pool created for this
// call and torn down afterwards. The result has one RecognitionResult per
// entry, in input order, with texts aligned to image paths.
func (s *Scheduler) RecognizeAll(ctx context.Context, entries []models.ContainerEntry) ([]models.RecognitionResult, error) {
	if len(entries) == 0 {
		s.logger.Error("No data to recognize.")
		return nil, fmt.Errorf("%w: no container entries", models.ErrNoDataToProcess)
	}
	workers := WorkerCount(MaxImages(entries), s.parallelism)
	if workers <= 0 {
		s.logger.Error("No workers to spawn.", "directories", len(entries))
		return nil, fmt.Errorf("%w: container entries hold no images", models.ErrInvalidArguments)
	}
	total := 0
	for _, e := range entries {
		total += len(e.ImageFileNames)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool, err := NewPool(poolCtx, workers, s.language, s.factory, total, WithRecognizeTimeout(s.jobTimeout))
	if err != nil {
		s.logger.Error("Failed to create worker pool.", "workers", workers, "error", err)
		return nil, err
	}
	defer func() {
		released := pool.Shutdown()
		go func() {
			<-released
			s.logger.Info("Terminated the worker pool.")
		}()
	}()

	return s.RecognizeWithPool(ctx, pool, entries)
}

// RecognizeWithPool submits one job per image of every entry to pool up front,
// then joins each directory's jobs by position.
func (s *Scheduler) RecognizeWithPool(ctx context.Context, pool *Pool, entries []models.ContainerEntry) ([]models.RecognitionResult, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pool is nil", models.ErrInvalidArguments)
	}

	futures := make([][]*Future, len(entries))
	paths := make([][]string, len(entries))
	for d, entry := range entries {
		futures[d] = make([]*Future, len(entry.ImageFileNames))
		paths[d] = make([]string, len(entry.ImageFileNames))
		for i, name := range entry.ImageFileNames {
			job := models.RecognitionJob{
				JobID:         JobID(entry.DirectoryName, i),
				ImagePath:     filepath.Join(entry.DirectoryPath, name),
				DirectoryName: entry.DirectoryName,
				SequenceIndex: i,
			}
			paths[d][i] = job.ImagePath
			futures[d][i] = pool.Submit(job)
			s.logger.Info("Added image to the queue.", "jobId", job.JobID, "imagePath", job.ImagePath)
		}
	}

	results := make([]models.RecognitionResult, len(entries))
	for d, entry := range entries {
		texts, err := s.join(ctx, futures[d])
		if err != nil {
			s.logger.Error("Recognition of directory failed.", "directoryName", entry.DirectoryName, "error", err)
			return nil, fmt.Errorf("%w: directory %s: %w", models.ErrRecognitionFailure, entry.DirectoryName, err)
		}
		results[d] = models.RecognitionResult{
			DirectoryName:   entry.DirectoryName,
			ImageFilePaths:  paths[d],
			RecognizedTexts: texts,
		}
	}
	return results, nil
}

// join waits for every future and stores each text at its future's index.
func (s *Scheduler) join(ctx context.Context, futures []*Future) ([]string, error) {
	texts := make([]string, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			text, err := f.Wait(gctx)
			if err != nil {
				if s.isolateFailures && ctx.Err() == nil {
					s.logger.Warn("Recognition failed, keeping the page without text.", "jobId", f.Job().JobID, "error", err)
					return nil
				}
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}
