package scanning

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension is not one of
	// png, jpg, jpeg or pdf
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtractionFailure is returned when a file cannot be turned into text
	ErrExtractionFailure = errors.New("extraction failure")
)

// Recognizer turns a single page image into text
type Recognizer interface {
	// Recognize returns the text found in a PNG-encoded page image
	Recognize(ctx context.Context, png []byte) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}
