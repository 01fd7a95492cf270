package models

import "errors"

// Error kinds shared by the pipeline stages. Callers match them with errors.Is.
var (
	ErrInvalidArguments     = errors.New("invalid arguments")
	ErrNoDataToProcess      = errors.New("no data to process")
	ErrUnsupportedImageType = errors.New("unsupported image type")
	ErrRecognitionFailure   = errors.New("recognition failed")
	ErrPersistenceFailure   = errors.New("persistence failed")
	ErrEmptyDocument        = errors.New("document has no pages")
)
