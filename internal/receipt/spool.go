package receipt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Spool holds uploaded files on disk for the duration of one ingestion
type Spool interface {
	// Create writes the upload to a new file and returns its path
	Create(filename string, r io.Reader) (string, error)

	// Remove deletes a spooled file
	Remove(path string) error
}

// LocalSpool implements the Spool interface using a local directory
type LocalSpool struct {
	basePath string
}

// NewLocalSpool creates a new LocalSpool, creating the directory if needed
func NewLocalSpool(basePath string) (*LocalSpool, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "splitledger")
	}
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &LocalSpool{basePath: basePath}, nil
}

// Create copies r into a uniquely named file that keeps the upload's extension
func (l *LocalSpool) Create(filename string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(l.basePath, "upload-*-"+sanitizeFilename(filename))
	if err != nil {
		return "", fmt.Errorf("creating spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing spool file: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes a spooled file
func (l *LocalSpool) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting spool file: %w", err)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	underscores = regexp.MustCompile(`_+`)
)

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length. The extension is lowercased and kept.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(underscores.ReplaceAllString(base, "_"), "_")

	// Truncate to reasonable length (50 chars for base, plus extension)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}
