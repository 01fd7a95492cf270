// Package tesseract provides the local OCR engine, backed by the gosseract
// bindings to libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/searchablepdf/internal/ocr"
)

// Recognizer owns one gosseract client. gosseract clients are not safe for
// concurrent use, so every pool worker gets its own.
type Recognizer struct {
	client *gosseract.Client
}

// NewRecognizer creates a client and loads language into it once.
func NewRecognizer(ctx context.Context, language string) (ocr.Recognizer, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, fmt.Errorf("set language %s: %w", language, err)
		}
	}
	return &Recognizer{client: client}, nil
}

// Factory is NewRecognizer as an ocr.RecognizerFactory.
var Factory ocr.RecognizerFactory = NewRecognizer

// Recognize returns the text tesseract reads from the image at imagePath.
func (r *Recognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the tesseract API handle.
func (r *Recognizer) Close() error {
	return r.client.Close()
}

// EnsureBinary checks whether the tesseract binary, and with it the trained
// data it ships with, is installed.
func EnsureBinary() error {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return fmt.Errorf("tesseract binary not found: %w", err)
	}
	return nil
}
