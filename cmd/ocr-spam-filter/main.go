package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mikey/ocr-spam-filter/internal/adapters/mailparse"
	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/factory"
	"github.com/mikey/ocr-spam-filter/internal/logging"
	"go.uber.org/zap"
)

var (
	inputFile = flag.String("file", "", "Input email file (use stdin if not specified)")
	preScore  = flag.Float64("pre-score", 0, "Pre-existing cumulative message score")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog   = flag.Bool("json-log", false, "Output logs in JSON format")
)

// cliSink is the host scoring API for one-shot command line runs
type cliSink struct {
	pre    float64
	raw    []byte
	logger *zap.Logger
}

func (s *cliSink) CurrentScore() float64 { return s.pre }

func (s *cliSink) RawMessage() []byte { return s.raw }

func (s *cliSink) Report(rule string, score float64, description string) {
	s.logger.Info("Scan reported",
		zap.String("rule", rule),
		zap.Float64("score", score),
		zap.String("description", description))
}

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if used := cfg.GetViper().ConfigFileUsed(); used != "" {
		logger.Info("Loaded configuration from file", zap.String("file", used))
	}

	// Assemble the pipeline
	storeFactory := factory.NewHashStoreFactory(cfg, logger)
	store, err := storeFactory.CreateHashStore()
	if err != nil {
		logger.Fatal("Failed to create hash store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close hash store", zap.Error(err))
		}
	}()

	scannerFactory := factory.NewScannerFactory(cfg, logger)
	runner, err := scannerFactory.CreateRunner()
	if err != nil {
		logger.Fatal("Failed to create tool runner", zap.Error(err))
	}
	registry, err := scannerFactory.CreateRegistry()
	if err != nil {
		logger.Fatal("Failed to create scanset registry", zap.Error(err))
	}
	words, err := scannerFactory.CreateWordlist()
	if err != nil {
		logger.Fatal("Failed to load wordlist", zap.Error(err))
	}
	svc, err := scannerFactory.CreateScanService(store, runner, registry, words)
	if err != nil {
		logger.Fatal("Failed to create scan service", zap.Error(err))
	}

	// Read the raw message
	var raw []byte
	if *inputFile != "" {
		raw, err = os.ReadFile(*inputFile)
		if err != nil {
			logger.Fatal("Failed to read input file", zap.Error(err), zap.String("file", *inputFile))
		}
		logger.Info("Read message from file", zap.String("file", *inputFile))
	} else {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			logger.Fatal("Failed to read stdin", zap.Error(err))
		}
		logger.Info("Read message from stdin")
	}

	source := mailparse.New(bytes.NewReader(raw), logger)
	atts, err := source.Attachments()
	if err != nil {
		logger.Fatal("Failed to parse message", zap.Error(err))
	}
	logger.Info("Extracted scan candidates", zap.Int("attachments", len(atts)))

	sink := &cliSink{pre: *preScore, raw: raw, logger: logger}
	verdict := svc.ScanMessage(context.Background(), sink, atts)

	// Persist the adaptive scanset ordering for the next run
	scansetCfg, err := cfg.GetScanset()
	if err == nil && scansetCfg.StateFile != "" {
		if err := registry.SaveState(scansetCfg.StateFile); err != nil {
			logger.Error("Failed to save scanset state", zap.Error(err))
		}
	}

	fmt.Printf("Rule: %s\n", verdict.Rule)
	fmt.Printf("Score: %.3f\n", verdict.Score)
	if verdict.Description != "" {
		fmt.Printf("Details: %s\n", verdict.Description)
	}
	if verdict.Score > 0 {
		os.Exit(1)
	}
}
