package receipt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/zombor/splitledger/internal/scanning"
)

// DefaultTimeout bounds the processing of a single receipt
const DefaultTimeout = 2 * time.Minute

// Stage identifies the step of ingestion that failed
type Stage string

const (
	StageUpload  Stage = "upload"
	StageExtract Stage = "extract"
)

// StageError reports a failure that stopped ingestion of a whole file
type StageError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.File, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// TextExtractor turns a receipt file into raw text
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Ingestor turns uploaded receipts into draft items
type Ingestor struct {
	extractor  TextExtractor
	parser     *Parser
	normalizer *Normalizer
	spool      Spool
	timeout    time.Duration
}

// NewIngestor creates a new Ingestor. A non-positive timeout uses DefaultTimeout.
func NewIngestor(extractor TextExtractor, parser *Parser, spool Spool, timeout time.Duration) *Ingestor {
	return NewIngestorWithDeps(extractor, parser, NewNormalizer(), spool, timeout)
}

// NewIngestorWithDeps creates a new Ingestor with a custom normalizer for testing
func NewIngestorWithDeps(extractor TextExtractor, parser *Parser, normalizer *Normalizer, spool Spool, timeout time.Duration) *Ingestor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ingestor{
		extractor:  extractor,
		parser:     parser,
		normalizer: normalizer,
		spool:      spool,
		timeout:    timeout,
	}
}

// IngestUpload spools an uploaded receipt, ingests it and removes the spooled
// file again whatever the outcome. The extension is checked before anything
// is written.
func (i *Ingestor) IngestUpload(ctx context.Context, filename string, r io.Reader) ([]Candidate, error) {
	if _, err := scanning.KindFromFilename(filename); err != nil {
		return nil, &StageError{Stage: StageUpload, File: filepath.Base(filename), Err: err}
	}

	path, err := i.spool.Create(filename, r)
	if err != nil {
		return nil, &StageError{Stage: StageUpload, File: filepath.Base(filename), Err: err}
	}
	defer func() {
		if err := i.spool.Remove(path); err != nil {
			slog.Warn("Failed to remove spooled upload", "path", path, "error", err)
		}
	}()

	return i.ingest(ctx, path, filepath.Base(filename))
}

// Ingest extracts, parses and normalizes the receipt at path
func (i *Ingestor) Ingest(ctx context.Context, path string) ([]Candidate, error) {
	return i.ingest(ctx, path, filepath.Base(path))
}

func (i *Ingestor) ingest(ctx context.Context, path, name string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	text, err := i.extractor.Extract(ctx, path)
	if err != nil {
		return nil, &StageError{Stage: StageExtract, File: name, Err: err}
	}

	candidates := i.normalizer.Normalize(i.parser.Parse(text))

	invalid := 0
	for _, c := range candidates {
		if c.Err != nil {
			invalid++
			slog.Warn("Receipt line has an invalid price", "file", name, "line", c.Line, "item", c.Item, "price", c.Price)
		}
	}
	slog.Info("Receipt ingested",
		"file", name,
		"dialect", i.parser.Dialect(),
		"candidates", len(candidates),
		"invalid", invalid,
	)
	return candidates, nil
}
