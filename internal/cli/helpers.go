package cli

import (
	"github.com/sirupsen/logrus"

	"github.com/SysdataSpA/Docker/pkg/batch"
	"github.com/SysdataSpA/Docker/pkg/config"
	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/httpx"
	"github.com/SysdataSpA/Docker/pkg/ledger"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/resolver"
	"github.com/SysdataSpA/Docker/pkg/store"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
)

// service bundles the wired download-manager components a command works with.
type service struct {
	cfg      *config.Config
	store    *store.Manager
	ledger   *ledger.Ledger
	resolver *resolver.Resolver
	batch    *batch.Coordinator
}

// loadConfig resolves the config file path, loads the configuration and
// initializes logging from it.
func loadConfig() (*config.Config, error) {
	path := ""
	if ConfigPath != nil {
		path = *ConfigPath
	}
	if path == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get default config path")
		}
		path = defaultPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	logLevel := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		logLevel = "debug"
	}
	noColor := NoColor != nil && *NoColor
	logger.InitLogger(logLevel, noColor)

	return cfg, nil
}

// buildService wires the store, ledger, HTTP client, resolver and batch
// coordinator from the configuration.
func buildService(cfg *config.Config) (*service, error) {
	st, err := store.NewManager(store.Options{
		DownloadDir:    cfg.GetCacheDir(),
		BundleDir:      cfg.GetBundleDir(),
		UseFileSystem:  cfg.FileSystemCacheEnabled(),
		UseMemoryCache: cfg.MemoryCacheEnabled(),
		MemoryEntries:  cfg.Settings.MemoryEntries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create local store")
	}

	led := ledger.New(cfg.GetLedgerPath())
	client := httpx.NewClient(cfg.Settings.HTTPTimeout, cfg.Settings.UserAgent)

	res := resolver.NewResolver(client, st, led, resolver.Config{
		DefaultExpiration:   cfg.Settings.ExpirationInterval,
		UseExpirationLedger: cfg.ExpirationLedgerEnabled(),
		UseHeadRequest:      cfg.HeadValidationEnabled(),
		UseBundle:           cfg.BundleLookupEnabled(),
	})

	return &service{
		cfg:      cfg,
		store:    st,
		ledger:   led,
		resolver: res,
		batch:    batch.NewCoordinator(res, res, cfg.Settings.MaxConcurrent),
	}, nil
}

// close persists any pending ledger state.
func (s *service) close() {
	if err := s.resolver.Flush(); err != nil {
		logger.Warn("failed to flush expiration ledger", logrus.Fields{"error": err})
	}
}
