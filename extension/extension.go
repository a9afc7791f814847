// Package extension provides the Forge extension adapter for rulesync.
//
// It implements the forge.Extension interface to integrate the rulesync
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.rulesync" or "rulesync" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/rulesync"
	"github.com/xraph/rulesync/budget"
	"github.com/xraph/rulesync/staticrules"
	"github.com/xraph/rulesync/store"
	"github.com/xraph/rulesync/store/memory"
	"github.com/xraph/rulesync/substrate"
	memsub "github.com/xraph/rulesync/substrate/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "rulesync"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Declarative rule synchronization for filter subscriptions"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts rulesync as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *rulesync.Engine
	store      store.Store
	substrate  substrate.Substrate
	engineOpts []rulesync.Option
}

// New creates a new rulesync Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *rulesync.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory backends if none were provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.substrate == nil {
		e.substrate = memsub.New(memsub.WithQuota(e.config.Quota))
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = rulesync.New(e.store, e.substrate, opts...)

	return vessel.Provide(fapp.Container(), func() (*rulesync.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("rulesync: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("rulesync: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs rulesync.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]rulesync.Option, error) {
	opts := make([]rulesync.Option, 0, len(e.engineOpts)+4)

	policy, err := budget.ParsePolicy(e.config.BudgetPolicy)
	if err != nil {
		return nil, fmt.Errorf("rulesync: %w", err)
	}
	opts = append(opts,
		rulesync.WithBudgetPolicy(policy),
		rulesync.WithSaveDebounce(e.config.SaveDebounce),
	)

	if e.config.MappingDir != "" {
		opts = append(opts, rulesync.WithStaticLoader(staticrules.FileLoader{Dir: e.config.MappingDir}))
	}
	if e.config.DisableMigrate {
		opts = append(opts, rulesync.WithSkipMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("rulesync: configuration is required but not found in config files; " +
				"ensure 'extensions.rulesync' or 'rulesync' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("rulesync: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("save_debounce", e.config.SaveDebounce),
		forge.F("budget_policy", e.config.BudgetPolicy),
		forge.F("mapping_dir", e.config.MappingDir),
		forge.F("quota", e.config.Quota),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.rulesync" first (namespaced pattern).
	if cm.IsSet("extensions.rulesync") {
		if err := cm.Bind("extensions.rulesync", &cfg); err == nil {
			e.Logger().Debug("rulesync: loaded config from file",
				forge.F("key", "extensions.rulesync"),
			)
			return cfg, true
		}
		e.Logger().Warn("rulesync: failed to bind extensions.rulesync config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "rulesync" key.
	if cm.IsSet("rulesync") {
		if err := cm.Bind("rulesync", &cfg); err == nil {
			e.Logger().Debug("rulesync: loaded config from file",
				forge.F("key", "rulesync"),
			)
			return cfg, true
		}
		e.Logger().Warn("rulesync: failed to bind rulesync config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SaveDebounce == 0 {
		cfg.SaveDebounce = defaults.SaveDebounce
	}
	if cfg.BudgetPolicy == "" {
		cfg.BudgetPolicy = defaults.BudgetPolicy
	}
	if cfg.Quota == 0 {
		cfg.Quota = defaults.Quota
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BudgetPolicy == "" && programmaticConfig.BudgetPolicy != "" {
		yamlConfig.BudgetPolicy = programmaticConfig.BudgetPolicy
	}
	if yamlConfig.MappingDir == "" && programmaticConfig.MappingDir != "" {
		yamlConfig.MappingDir = programmaticConfig.MappingDir
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SaveDebounce == 0 && programmaticConfig.SaveDebounce != 0 {
		yamlConfig.SaveDebounce = programmaticConfig.SaveDebounce
	}
	if yamlConfig.Quota == 0 && programmaticConfig.Quota != 0 {
		yamlConfig.Quota = programmaticConfig.Quota
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
