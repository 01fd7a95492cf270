// Package config holds the options of a conversion run. Every call to Default
// returns a fresh value; there is no package-level mutable default.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/searchablepdf/internal/env"
	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// A4 landscape, in PDF points.
const (
	A4LandscapeWidth  = 841.89
	A4LandscapeHeight = 595.28
)

// ImageFormat selects which raster files are picked up from a container.
type ImageFormat int

const (
	PNG ImageFormat = iota
	JPEG
)

// ParseImageFormat accepts "png", "jpg" and "jpeg" in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	}
	return PNG, fmt.Errorf("%w: unknown image format %q", models.ErrInvalidArguments, s)
}

// Extensions returns the file extensions matched by the format.
func (f ImageFormat) Extensions() []string {
	if f == JPEG {
		return []string{".jpg", ".jpeg"}
	}
	return []string{".png"}
}

func (f ImageFormat) String() string {
	if f == JPEG {
		return "jpeg"
	}
	return "png"
}

// Options configures discovery, recognition and compositing.
type Options struct {
	DirectoryNameMarker string
	ImageFileNameMarker string
	ImageFormat         ImageFormat

	PageWidth  float64
	PageHeight float64

	Language                   string
	JobTimeout                 time.Duration // zero disables the per-job timeout
	IsolateRecognitionFailures bool

	LineBudget          int
	FontSize            float64
	DocumentConcurrency int
	Optimize            bool
}

// Default returns the documented defaults.
func Default() Options {
	return Options{
		DirectoryNameMarker: "Folder",
		ImageFileNameMarker: "Image",
		ImageFormat:         PNG,
		PageWidth:           A4LandscapeWidth,
		PageHeight:          A4LandscapeHeight,
		Language:            "eng",
		LineBudget:          140,
		FontSize:            12,
		DocumentConcurrency: 1,
	}
}

// Validate reports the first invalid option, wrapped with ErrInvalidArguments.
func (o Options) Validate() error {
	switch {
	case o.ImageFormat != PNG && o.ImageFormat != JPEG:
		return fmt.Errorf("%w: image format %d", models.ErrInvalidArguments, o.ImageFormat)
	case o.PageWidth <= 0 || o.PageHeight <= 0:
		return fmt.Errorf("%w: page size %gx%g", models.ErrInvalidArguments, o.PageWidth, o.PageHeight)
	case o.Language == "":
		return fmt.Errorf("%w: recognition language is empty", models.ErrInvalidArguments)
	case o.LineBudget < 0:
		return fmt.Errorf("%w: line budget %d", models.ErrInvalidArguments, o.LineBudget)
	case o.FontSize <= 0:
		return fmt.Errorf("%w: font size %g", models.ErrInvalidArguments, o.FontSize)
	case o.DocumentConcurrency < 1:
		return fmt.Errorf("%w: document concurrency %d", models.ErrInvalidArguments, o.DocumentConcurrency)
	case o.JobTimeout < 0:
		return fmt.Errorf("%w: job timeout %s", models.ErrInvalidArguments, o.JobTimeout)
	}
	return nil
}

// FromEnv overlays SEARCHABLE_PDF_* environment variables on Default.
func FromEnv() (Options, error) {
	o := Default()
	o.DirectoryNameMarker = env.GetEnv("SEARCHABLE_PDF_DIR_MARKER", o.DirectoryNameMarker)
	o.ImageFileNameMarker = env.GetEnv("SEARCHABLE_PDF_IMAGE_MARKER", o.ImageFileNameMarker)
	o.Language = env.GetEnv("SEARCHABLE_PDF_LANGUAGE", o.Language)

	var err error
	if o.ImageFormat, err = ParseImageFormat(env.GetEnv("SEARCHABLE_PDF_IMAGE_FORMAT", o.ImageFormat.String())); err != nil {
		return Options{}, err
	}
	if o.PageWidth, err = envFloat("SEARCHABLE_PDF_PAGE_WIDTH", o.PageWidth); err != nil {
		return Options{}, err
	}
	if o.PageHeight, err = envFloat("SEARCHABLE_PDF_PAGE_HEIGHT", o.PageHeight); err != nil {
		return Options{}, err
	}
	if o.LineBudget, err = envInt("SEARCHABLE_PDF_LINE_BUDGET", o.LineBudget); err != nil {
		return Options{}, err
	}
	if o.FontSize, err = envFloat("SEARCHABLE_PDF_FONT_SIZE", o.FontSize); err != nil {
		return Options{}, err
	}
	if o.DocumentConcurrency, err = envInt("SEARCHABLE_PDF_DOCUMENT_CONCURRENCY", o.DocumentConcurrency); err != nil {
		return Options{}, err
	}
	if o.JobTimeout, err = time.ParseDuration(env.GetEnv("SEARCHABLE_PDF_JOB_TIMEOUT", "0s")); err != nil {
		return Options{}, fmt.Errorf("%w: SEARCHABLE_PDF_JOB_TIMEOUT: %v", models.ErrInvalidArguments, err)
	}
	if o.IsolateRecognitionFailures, err = envBool("SEARCHABLE_PDF_ISOLATE_FAILURES", false); err != nil {
		return Options{}, err
	}
	if o.Optimize, err = envBool("SEARCHABLE_PDF_OPTIMIZE", false); err != nil {
		return Options{}, err
	}
	return o, o.Validate()
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, key, err)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, key, err)
	}
	return v, nil
}
