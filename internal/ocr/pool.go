package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// Future is the pending outcome of one submitted job. It resolves exactly
// once; later results are dropped.
type Future struct {
	job  models.RecognitionJob
	once sync.Once
	done chan struct{}
	text string
	err  error
}

func newFuture(job models.RecognitionJob) *Future {
	return &Future{job: job, done: make(chan struct{})}
}

func (f *Future) resolve(text string, err error) {
	f.once.Do(func() {
		f.text, f.err = text, err
		close(f.done)
	})
}

// Job returns the job this future belongs to.
func (f *Future) Job() models.RecognitionJob { return f.job }

// Done is closed once the job has a result.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the job resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.text, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pool is a bounded set of OCR workers fed from one queue.
type Pool struct {
	ctx     context.Context
	logger  *slog.Logger
	tasks   chan *Future
	size    int
	timeout time.Duration
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRecognizeTimeout bounds a single recognition. The clock starts when a
// worker picks the job up, so time spent queued does not count.
func WithRecognizeTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// ErrPoolClosed is returned by jobs submitted after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// NewPool starts size workers. Each worker gets its own Recognizer from
// factory, initialized with language before it accepts work. queueDepth bounds
// the number of queued jobs; Submit blocks once the queue is full. If any
// worker fails to initialize, the workers created so far are released and the
// error is returned. Cancelling ctx makes the remaining queued jobs resolve
// with the context error.
func NewPool(ctx context.Context, size int, language string, factory RecognizerFactory, queueDepth int, opts ...PoolOption) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: pool size %d", models.ErrInvalidArguments, size)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: recognizer factory is nil", models.ErrInvalidArguments)
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	recognizers := make([]Recognizer, 0, size)
	for i := 0; i < size; i++ {
		r, err := factory(ctx, language)
		if err != nil {
			for _, created := range recognizers {
				_ = created.Close()
			}
			return nil, fmt.Errorf("failed to initialize worker %d: %w", i+1, err)
		}
		recognizers = append(recognizers, r)
	}

	p := &Pool{
		ctx:    ctx,
		logger: slog.Default().With("component", "ocr-pool"),
		tasks:  make(chan *Future, queueDepth),
		size:   size,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i, r := range recognizers {
		p.workers.Add(1)
		go p.run(i+1, r)
	}
	p.logger.Info("Worker pool started.", "workers", size, "language", language)
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit queues a job and returns its future. It only blocks while the queue
// is full. Jobs submitted after Shutdown resolve with ErrPoolClosed.
func (p *Pool) Submit(job models.RecognitionJob) *Future {
	f := newFuture(job)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		f.resolve("", ErrPoolClosed)
		return f
	}
	p.tasks <- f
	p.logger.Debug("Job queued.", "jobId", job.JobID, "imagePath", job.ImagePath)
	return f
}

// Shutdown stops accepting jobs and lets the workers drain the queue, then
// releases every Recognizer. It does not wait for the workers; the returned
// channel is closed once all of them have exited.
func (p *Pool) Shutdown() <-chan struct{} {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	released := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(released)
	}()
	return released
}

func (p *Pool) run(id int, r Recognizer) {
	defer p.workers.Done()
	logger := p.logger.With("worker", id)
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("Failed to release recognizer.", "error", err)
		}
	}()

	for f := range p.tasks {
		if err := p.ctx.Err(); err != nil {
			f.resolve("", err)
			continue
		}
		p.process(r, f, logger)
	}
}

// process runs one job. With a timeout, the future resolves with the deadline
// error as soon as it passes, but the worker stays busy until the engine
// returns: a Recognizer never serves two jobs at the same time.
func (p *Pool) process(r Recognizer, f *Future, logger *slog.Logger) {
	job := f.job
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
		defer cancel()
		stop := context.AfterFunc(ctx, func() {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				f.resolve("", fmt.Errorf("%s: no result after %s: %w", job.JobID, p.timeout, ctx.Err()))
			}
		})
		defer stop()
	}

	text, err := r.Recognize(ctx, job.ImagePath)
	if err != nil {
		logger.Error("Recognition failed.", "jobId", job.JobID, "imagePath", job.ImagePath, "error", err)
		f.resolve("", fmt.Errorf("%s: %w", job.JobID, err))
		return
	}
	logger.Info("Recognized.", "jobId", job.JobID)
	f.resolve(text, nil)
}
