package factory

import (
	"fmt"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/mikey/ocr-spam-filter/internal/digest"
	"github.com/mikey/ocr-spam-filter/internal/fuzzy"
	"github.com/mikey/ocr-spam-filter/internal/pipeline"
	"github.com/mikey/ocr-spam-filter/internal/scanner"
	"github.com/mikey/ocr-spam-filter/internal/scanset"
	"github.com/mikey/ocr-spam-filter/internal/toolexec"
	"go.uber.org/zap"
)

// ScannerFactory assembles the scan service and its collaborators from
// configuration.
type ScannerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewScannerFactory creates a new scanner factory
func NewScannerFactory(cfg *config.Config, logger *zap.Logger) *ScannerFactory {
	return &ScannerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSettings builds the service settings from the configuration sections
func (f *ScannerFactory) CreateSettings() (scanner.Settings, error) {
	scanCfg, err := f.cfg.GetScan()
	if err != nil {
		return scanner.Settings{}, err
	}
	scansetCfg, err := f.cfg.GetScanset()
	if err != nil {
		return scanner.Settings{}, err
	}
	return scanner.Settings{
		Formats: f.cfg.GetFormats(),
		Image:   f.cfg.GetImage(),
		Scan:    scanCfg,
		Score:   f.cfg.GetScore(),
		Hash:    f.cfg.GetHash(),
		Scanset: scansetCfg,
	}, nil
}

// CreateRunner creates the external tool runner
func (f *ScannerFactory) CreateRunner() (core.ToolRunner, error) {
	tools, err := f.cfg.GetTools()
	if err != nil {
		return nil, err
	}
	return toolexec.NewRunner(f.logger, tools.Timeout), nil
}

// CreateRegistry creates the scanset registry, restoring persisted hit
// counters when a state file is configured.
func (f *ScannerFactory) CreateRegistry() (*scanset.Registry, error) {
	scansetCfg, err := f.cfg.GetScanset()
	if err != nil {
		return nil, err
	}
	registry := scanset.NewRegistry(scansetCfg.Sets, scansetCfg.AutosortBuffer, f.logger)
	if scansetCfg.StateFile != "" {
		if err := registry.LoadState(scansetCfg.StateFile); err != nil {
			f.logger.Warn("Failed to load scanset state, starting fresh", zap.Error(err))
		}
	}
	return registry, nil
}

// CreateWordlist loads and merges the configured wordlists
func (f *ScannerFactory) CreateWordlist() (core.Wordlist, error) {
	wl := f.cfg.GetWordlist()
	match := f.cfg.GetMatch()
	return fuzzy.LoadWordlists(wl.GlobalPath, wl.PersonalPath, match.DefaultThreshold, match.StripNumbers, f.logger)
}

// CreateScanService wires the complete scan service on top of an existing
// hash store, runner and registry.
func (f *ScannerFactory) CreateScanService(
	store core.HashStore,
	runner core.ToolRunner,
	registry *scanset.Registry,
	words core.Wordlist,
) (*scanner.ScanService, error) {
	settings, err := f.CreateSettings()
	if err != nil {
		return nil, fmt.Errorf("invalid scan settings: %w", err)
	}
	tools, err := f.cfg.GetTools()
	if err != nil {
		return nil, fmt.Errorf("invalid tool settings: %w", err)
	}
	match := f.cfg.GetMatch()

	chains := pipeline.New(runner, tools, settings.Image, f.logger)
	matcher := fuzzy.NewMatcher(f.logger, match.StripNumbers, match.UniqueMatch)
	return scanner.NewScanService(
		settings,
		chains,
		runner,
		registry,
		matcher,
		store,
		digest.NewBlake3Hasher(),
		words,
		f.logger,
	), nil
}
