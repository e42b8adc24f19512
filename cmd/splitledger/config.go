package main

import (
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/splitledger/internal/receipt"
	"github.com/zombor/splitledger/internal/scanning"
)

// config holds the parsed command line and SPLITLEDGER_* environment
type config struct {
	Port           int
	DBPath         string
	SpoolPath      string
	Recognizer     string
	TesseractBin   string
	TesseractLang  string
	TesseractPSM   int
	GeminiKey      string
	GeminiModel    string
	OllamaURL      string
	OllamaModel    string
	DPI            int
	PageWorkers    int
	ExtractTimeout time.Duration
	Exclude        []string
	AuthUser       string
	AuthPass       string
}

// parseConfig parses args, falling back to SPLITLEDGER_* environment
// variables. The returned usage text is meant for printing alongside an error.
func parseConfig(args []string) (*config, string, error) {
	fs := ff.NewFlagSet("splitledger")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "splitledger.db", "Database file path")
		spoolPath      = fs.StringLong("spool", "", "Directory for in-flight uploads (default: system temp dir)")
		recognizerType = fs.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
		tesseractBin   = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary name or path")
		tesseractLang  = fs.StringLong("tesseract-lang", "fin+eng", "Tesseract language(s)")
		tesseractPSM   = fs.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 keeps the engine default)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		dpi            = fs.IntLong("dpi", scanning.DefaultDPI, "Rasterization density for PDF pages")
		pageWorkers    = fs.IntLong("page-workers", 2, "PDF pages recognized concurrently")
		extractTimeout = fs.DurationLong("extract-timeout", receipt.DefaultTimeout, "Processing deadline per receipt")
		exclude        = fs.StringListLong("exclude", "Extra exclusion pattern (regular expression), repeatable")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_              = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("SPLITLEDGER")); err != nil {
		return nil, fmt.Sprint(ffhelp.Flags(fs)), fmt.Errorf("parsing flags: %w", err)
	}

	return &config{
		Port:           *port,
		DBPath:         *dbPath,
		SpoolPath:      *spoolPath,
		Recognizer:     *recognizerType,
		TesseractBin:   *tesseractBin,
		TesseractLang:  *tesseractLang,
		TesseractPSM:   *tesseractPSM,
		GeminiKey:      *geminiKey,
		GeminiModel:    *geminiModel,
		OllamaURL:      *ollamaURL,
		OllamaModel:    *ollamaModel,
		DPI:            *dpi,
		PageWorkers:    *pageWorkers,
		ExtractTimeout: *extractTimeout,
		Exclude:        *exclude,
		AuthUser:       *authUser,
		AuthPass:       *authPass,
	}, "", nil
}
