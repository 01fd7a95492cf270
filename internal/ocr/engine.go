// Package ocr schedules optical character recognition over container images.
// A Pool owns a fixed set of workers, each holding one Recognizer that was
// initialized once with the recognition language. The Scheduler fans every
// image of a batch out to a fresh pool and joins the results positionally, so
// the text of image i always lands at index i whatever order workers finish in.
package ocr

import "context"

// Recognizer is one OCR engine instance. It processes one image at a time and
// is never shared between workers.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
	Close() error
}

// RecognizerFactory creates and initializes the Recognizer of one worker.
type RecognizerFactory func(ctx context.Context, language string) (Recognizer, error)
