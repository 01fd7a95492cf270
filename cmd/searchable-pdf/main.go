// Command searchable-pdf converts every image directory of a container into
// a searchable PDF. It exits with status 1 when no PDF was written.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/searchablepdf/internal/config"
	"github.com/Lllllllleong/searchablepdf/internal/gcp"
	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/ocr/tesseract"
	"github.com/Lllllllleong/searchablepdf/internal/services"
)

type cliFlags struct {
	container   string
	output      string
	bucket      string
	prefix      string
	format      string
	concurrency int
	opts        config.Options
}

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		slog.Error("Invalid arguments.", "error", err)
		return 2
	}

	deps := services.Deps{
		Options:     f.opts,
		Recognizers: tesseract.Factory,
		Parallelism: f.concurrency,
	}
	if f.bucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			slog.Error("Failed to create Storage client.", "error", err)
			return 1
		}
		defer storageClient.Close()
		if deps.Publisher, err = gcp.NewGCSPublisher(storageClient, f.bucket, f.prefix); err != nil {
			slog.Error("Failed to create publisher.", "error", err)
			return 1
		}
	}

	converter, err := services.NewConverterWithDeps(deps)
	if err != nil {
		slog.Error("Failed to initialize converter.", "error", err)
		return 1
	}

	resp, err := converter.Process(ctx, &models.ConvertRequest{ContainerPath: f.container, OutputPath: f.output})
	if err != nil {
		return 1
	}
	for _, doc := range resp.Documents {
		fmt.Printf("%-12s %s (%d pages, %d skipped)\n", doc.Status, doc.DocumentName, doc.PageCount, doc.SkippedPages)
	}
	if resp.Written == 0 {
		return 1
	}
	return 0
}

func parseFlags(args []string) (cliFlags, error) {
	f := cliFlags{opts: config.Default()}
	fs := flag.NewFlagSet("searchable-pdf", flag.ContinueOnError)
	fs.StringVar(&f.container, "container", "", "absolute path of the container directory (required)")
	fs.StringVar(&f.output, "output", "", "directory the PDF files are written to (defaults to the container)")
	fs.StringVar(&f.opts.DirectoryNameMarker, "dir-marker", f.opts.DirectoryNameMarker, "substring a directory name must contain")
	fs.StringVar(&f.opts.ImageFileNameMarker, "image-marker", f.opts.ImageFileNameMarker, "substring an image file name must contain")
	fs.StringVar(&f.format, "format", f.opts.ImageFormat.String(), "image format: png or jpeg")
	fs.Float64Var(&f.opts.PageWidth, "width", f.opts.PageWidth, "page width in points")
	fs.Float64Var(&f.opts.PageHeight, "height", f.opts.PageHeight, "page height in points")
	fs.StringVar(&f.opts.Language, "lang", f.opts.Language, "tesseract language")
	fs.BoolVar(&f.opts.IsolateRecognitionFailures, "isolate-failures", false, "keep going with empty text when an image fails to recognize")
	fs.DurationVar(&f.opts.JobTimeout, "job-timeout", 0, "timeout for one image recognition (0 disables)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "parallelism hint for recognition (0 uses the number of CPUs)")
	fs.IntVar(&f.opts.DocumentConcurrency, "documents", f.opts.DocumentConcurrency, "number of documents composed at the same time")
	fs.BoolVar(&f.opts.Optimize, "optimize", false, "optimize written PDF files with pdfcpu")
	fs.StringVar(&f.bucket, "bucket", "", "GCS bucket to publish written PDF files to")
	fs.StringVar(&f.prefix, "prefix", "", "object prefix inside the bucket")
	if err := fs.Parse(args); err != nil {
		return f, err
	}

	if f.container == "" {
		return f, fmt.Errorf("%w: -container is required", models.ErrInvalidArguments)
	}
	var err error
	if f.container, err = filepath.Abs(f.container); err != nil {
		return f, err
	}
	if f.output != "" {
		if f.output, err = filepath.Abs(f.output); err != nil {
			return f, err
		}
	}
	if f.opts.ImageFormat, err = config.ParseImageFormat(f.format); err != nil {
		return f, err
	}
	return f, f.opts.Validate()
}
