package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ObjectWriter opens a writer for a new object. The writer must refuse to
// overwrite an existing object.
type ObjectWriter func(ctx context.Context, objectName string) io.WriteCloser

// GCSPublisher uploads finished PDF files into a bucket.
type GCSPublisher struct {
	bucket     string
	prefix     string
	newWriter  ObjectWriter
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

// NewGCSPublisher returns a publisher writing to gs://<bucket>/<prefix>/.
func NewGCSPublisher(client *storage.Client, bucket, prefix string) (*GCSPublisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a publisher")
	}
	handle := client.Bucket(bucket)
	return NewGCSPublisherWithWriter(bucket, prefix, func(ctx context.Context, objectName string) io.WriteCloser {
		w := handle.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "application/pdf"
		return w
	}), nil
}

// NewGCSPublisherWithWriter returns a publisher that opens objects through newWriter.
func NewGCSPublisherWithWriter(bucket, prefix string, newWriter ObjectWriter) *GCSPublisher {
	return &GCSPublisher{
		bucket:     bucket,
		prefix:     prefix,
		newWriter:  newWriter,
		maxRetries: 4,
		backoff:    time.Second,
		timeout:    50 * time.Second,
	}
}

// SetRetryPolicy overrides the number of attempts and the initial backoff.
func (p *GCSPublisher) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	p.maxRetries = max(1, maxRetries)
	p.backoff = backoff
}

// ObjectName returns the object a local file of the given name is published to.
func (p *GCSPublisher) ObjectName(fileName string) string {
	if p.prefix == "" {
		return fileName
	}
	return path.Join(p.prefix, fileName)
}

// Publish uploads localPath as <prefix>/<objectName> and returns its gs:// URI.
// An object that already exists counts as published.
func (p *GCSPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	destObject := p.ObjectName(objectName)
	uri := fmt.Sprintf("gs://%s/%s", p.bucket, destObject)
	backoff := p.backoff
	var lastErr error

	for i := 0; i < p.maxRetries; i++ {
		err := p.upload(ctx, localPath, destObject)
		if err == nil {
			return uri, nil
		}
		if IsAlreadyExists(err) {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", destObject)
			return uri, nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", p.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return "", ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return "", fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func (p *GCSPublisher) upload(ctx context.Context, localPath, destObject string) error {
	localFileReader, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer localFileReader.Close()

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	gcsWriter := p.newWriter(writeCtx, destObject)
	if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// IsAlreadyExists reports whether err is the precondition failure of a
// create-only write to an object that exists.
func IsAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
