package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/searchablepdf/internal/env"
	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/ocr/tesseract"
	"github.com/Lllllllleong/searchablepdf/internal/services"
)

// readyMarker is the object an uploader writes last, once every image of a
// container prefix is in the bucket.
const readyMarker = "_READY"

var (
	converterInstance *services.Converter
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ConvertOnReady", convertOnReady)
}

// main is required by the Go Functions Framework.
func main() {}

// convertOnReady converts the container under a prefix once its ready marker lands.
func convertOnReady(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		converterInstance, initErr = services.NewConverter(context.Background(), tesseract.Factory)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	req, ok := readyRequest(env.GetEnv("MOUNT_ROOT", "/mnt/containers"), env.GetEnv("OUTPUT_SUBDIR", "searchable"), gcsEvent)
	if !ok {
		slog.Info("Ignoring object that is not a ready marker.", "gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)
		return nil
	}
	req.ExecutionID = e.ID()
	if err := os.MkdirAll(req.OutputPath, 0o755); err != nil {
		slog.Error("Failed to create output directory", "path", req.OutputPath, "error", err)
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Errors are logged with context inside Process; returning one marks the
	// invocation as failed.
	_, err := converterInstance.Process(ctx, req)
	return err
}

// readyRequest maps "<prefix>/_READY" to a conversion of <mountRoot>/<prefix>
// into <mountRoot>/<prefix>/<outputSubdir>. Prefixes that leave mountRoot are
// rejected.
func readyRequest(mountRoot, outputSubdir string, e models.GCSEvent) (*models.ConvertRequest, bool) {
	if path.Base(e.Name) != readyMarker {
		return nil, false
	}
	prefix := path.Dir(e.Name)
	if prefix == "." || prefix == "/" {
		return nil, false
	}
	containerPath := filepath.Join(mountRoot, filepath.FromSlash(prefix))
	rel, err := filepath.Rel(mountRoot, containerPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	return &models.ConvertRequest{
		ContainerPath: containerPath,
		OutputPath:    filepath.Join(containerPath, outputSubdir),
	}, true
}
