package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/searchablepdf/internal/models"
	"github.com/Lllllllleong/searchablepdf/internal/ocr/tesseract"
	"github.com/Lllllllleong/searchablepdf/internal/services"
)

var (
	converterInstance *services.Converter
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleConvertContainer", handleConvertContainer)
}

// main is required by the Go Functions Framework.
func main() {}

// handleConvertContainer converts one mounted container per request.
func handleConvertContainer(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		converterInstance, initErr = services.NewConverter(context.Background(), tesseract.Factory)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Converter initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := converterInstance.Process(r.Context(), &req)
	if err != nil {
		// Process already logged the failure.
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response.", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}

// statusFor maps processing errors to HTTP status codes. Retrying a bad
// request does not help, so those are 4xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoDataToProcess):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
