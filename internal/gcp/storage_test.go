package gcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

type memoryBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failures int
	attempts int
}

type memoryWriter struct {
	bucket *memoryBucket
	name   string
	buf    bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryWriter) Close() error {
	b := w.bucket
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.failures > 0 {
		b.failures--
		return errors.New("transient backend error")
	}
	if _, ok := b.objects[w.name]; ok {
		return &googleapi.Error{Code: 412, Message: "conditionNotMet"}
	}
	b.objects[w.name] = w.buf.Bytes()
	return nil
}

func (b *memoryBucket) writer(ctx context.Context, objectName string) io.WriteCloser {
	return &memoryWriter{bucket: b, name: objectName}
}

func localFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Folder A.pdf")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGCSPublisherPublish(t *testing.T) {
	bucket := &memoryBucket{objects: map[string][]byte{}, failures: 2}
	p := NewGCSPublisherWithWriter("out-bucket", "batch-1", bucket.writer)
	p.SetRetryPolicy(4, time.Millisecond)

	uri, err := p.Publish(context.Background(), localFile(t, "%PDF-1.4"), "Folder A.pdf")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if uri != "gs://out-bucket/batch-1/Folder A.pdf" {
		t.Fatalf("Publish() uri = %q", uri)
	}
	if got := string(bucket.objects["batch-1/Folder A.pdf"]); got != "%PDF-1.4" {
		t.Fatalf("object content = %q", got)
	}
	if bucket.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", bucket.attempts)
	}
}

func TestGCSPublisherExistingObject(t *testing.T) {
	bucket := &memoryBucket{objects: map[string][]byte{"Folder A.pdf": []byte("old")}}
	p := NewGCSPublisherWithWriter("out-bucket", "", bucket.writer)
	p.SetRetryPolicy(4, time.Millisecond)

	uri, err := p.Publish(context.Background(), localFile(t, "new"), "Folder A.pdf")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if uri != "gs://out-bucket/Folder A.pdf" || bucket.attempts != 1 {
		t.Fatalf("Publish() = %q after %d attempts", uri, bucket.attempts)
	}
	if string(bucket.objects["Folder A.pdf"]) != "old" {
		t.Fatal("existing object was overwritten")
	}
}

func TestGCSPublisherGivesUp(t *testing.T) {
	bucket := &memoryBucket{objects: map[string][]byte{}, failures: 10}
	p := NewGCSPublisherWithWriter("out-bucket", "", bucket.writer)
	p.SetRetryPolicy(3, time.Millisecond)

	if _, err := p.Publish(context.Background(), localFile(t, "x"), "Folder A.pdf"); err == nil {
		t.Fatal("Publish() error = nil, want failure")
	}
	if bucket.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", bucket.attempts)
	}
}

func TestIsAlreadyExists(t *testing.T) {
	wrapped := errors.Join(errors.New("close"), &googleapi.Error{Code: 412})
	if !IsAlreadyExists(wrapped) {
		t.Fatal("IsAlreadyExists(412) = false")
	}
	if IsAlreadyExists(&googleapi.Error{Code: 500}) || IsAlreadyExists(errors.New("x")) {
		t.Fatal("IsAlreadyExists() = true for other errors")
	}
}
