package di

import (
	"go.uber.org/dig"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/mikey/ocr-spam-filter/internal/factory"
	"github.com/mikey/ocr-spam-filter/internal/logging"
	"github.com/mikey/ocr-spam-filter/internal/scanner"
	"github.com/mikey/ocr-spam-filter/internal/scanset"
)

// BuildContainer creates and configures a dependency injection container
// for embedding the scan service in a host process.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewHashStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewScannerFactory); err != nil {
		return nil, err
	}

	// Register hash store
	if err := container.Provide(func(f *factory.HashStoreFactory) (core.HashStore, error) {
		return f.CreateHashStore()
	}); err != nil {
		return nil, err
	}

	// Register tool runner
	if err := container.Provide(func(f *factory.ScannerFactory) (core.ToolRunner, error) {
		return f.CreateRunner()
	}); err != nil {
		return nil, err
	}

	// Register scanset registry
	if err := container.Provide(func(f *factory.ScannerFactory) (*scanset.Registry, error) {
		return f.CreateRegistry()
	}); err != nil {
		return nil, err
	}

	// Register wordlist
	if err := container.Provide(func(f *factory.ScannerFactory) (core.Wordlist, error) {
		return f.CreateWordlist()
	}); err != nil {
		return nil, err
	}

	// Register scan service
	if err := container.Provide(func(
		f *factory.ScannerFactory,
		store core.HashStore,
		runner core.ToolRunner,
		registry *scanset.Registry,
		words core.Wordlist,
	) (*scanner.ScanService, error) {
		return f.CreateScanService(store, runner, registry, words)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
