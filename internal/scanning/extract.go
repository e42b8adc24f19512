package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// pageSeparator joins the text of consecutive document pages
const pageSeparator = "\n\n"

// Config controls how files are rasterized and recognized
type Config struct {
	DPI         int // rasterization density for document pages, default 300
	PageWorkers int // pages recognized concurrently, default 2
}

// Extractor converts receipt images and PDFs into raw text
type Extractor struct {
	recognizer Recognizer
	cfg        Config
}

// NewExtractor creates an Extractor that recognizes pages with r
func NewExtractor(r Recognizer, cfg Config) *Extractor {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 2
	}
	return &Extractor{recognizer: r, cfg: cfg}
}

// Extract returns the text of the file at path. The kind of file is taken
// from its extension. Document pages are joined in page order with a blank
// line between them. Failures other than an unsupported extension wrap
// ErrExtractionFailure and name the file.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	kind, err := KindFromFilename(path)
	if err != nil {
		return "", err
	}

	start := time.Now()
	var (
		text  string
		pages int
	)
	switch kind {
	case KindDocument:
		text, pages, err = e.extractDocument(ctx, path)
	default:
		text, err = e.extractImage(ctx, path)
		pages = 1
	}
	if err != nil {
		slog.Error("Failed to extract text",
			"file", filepath.Base(path),
			"kind", kind,
			"error", err,
		)
		return "", fmt.Errorf("%w: %s: %w", ErrExtractionFailure, filepath.Base(path), err)
	}

	slog.Info("Extracted text",
		"file", filepath.Base(path),
		"kind", kind,
		"pages", pages,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	pngData, err := imageToPNG(data)
	if err != nil {
		return "", err
	}
	text, err := e.recognizer.Recognize(ctx, pngData)
	if err != nil {
		return "", fmt.Errorf("recognizing image: %w", err)
	}
	return text, nil
}

func (e *Extractor) extractDocument(ctx context.Context, path string) (string, int, error) {
	doc, err := openDocument(path, e.cfg.DPI)
	if err != nil {
		return "", 0, err
	}
	defer doc.Close()

	n := doc.pages()
	if n == 0 {
		return "", 0, errors.New("document has no pages")
	}

	texts := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i := range n {
		g.Go(func() error {
			pngData, err := doc.pagePNG(i)
			if err != nil {
				return err
			}
			slog.Debug("Recognizing page", "file", filepath.Base(path), "page", i+1, "of", n)
			text, err := e.recognizer.Recognize(gctx, pngData)
			if err != nil {
				return fmt.Errorf("recognizing page %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}
	return strings.Join(texts, pageSeparator), n, nil
}
