package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zombor/splitledger/internal/ledger"
	"github.com/zombor/splitledger/internal/receipt"
	"github.com/zombor/splitledger/internal/scanning"
	"github.com/zombor/splitledger/internal/server"
	"github.com/zombor/splitledger/pkg/logging"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	logging.Setup()

	cfg, usage, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", usage)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", cfg.DBPath)
	db, err := ledger.NewBoltDB(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognizer based on type
	var recognizer scanning.Recognizer
	switch cfg.Recognizer {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "binary", cfg.TesseractBin, "lang", cfg.TesseractLang)
		recognizer = scanning.NewTesseract(scanning.TesseractConfig{
			Binary: cfg.TesseractBin,
			Lang:   cfg.TesseractLang,
			PSM:    cfg.TesseractPSM,
		})
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", cfg.GeminiModel)
		recognizer, err = scanning.NewGemini(apiKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		recognizer = scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		slog.Error("Invalid recognizer type", "type", cfg.Recognizer, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	// Initialize spool
	spool, err := receipt.NewLocalSpool(cfg.SpoolPath)
	if err != nil {
		slog.Error("Failed to initialize upload spool", "error", err)
		os.Exit(1)
	}

	parser, err := receipt.NewParser(receipt.FinnishGrocery, cfg.Exclude...)
	if err != nil {
		slog.Error("Invalid exclusion pattern", "error", err)
		os.Exit(1)
	}

	extractor := scanning.NewExtractor(recognizer, scanning.Config{
		DPI:         cfg.DPI,
		PageWorkers: cfg.PageWorkers,
	})
	ingestor := receipt.NewIngestor(extractor, parser, spool, cfg.ExtractTimeout)
	ledgerService := ledger.NewService(db)

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}
	srv := server.NewServer(ledgerService, ingestor, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.AuthUser != "" || cfg.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
