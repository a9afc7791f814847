package extension

import (
	"time"

	"github.com/xraph/rulesync"
	"github.com/xraph/rulesync/filterengine"
	"github.com/xraph/rulesync/plugin"
	"github.com/xraph/rulesync/store"
	"github.com/xraph/rulesync/substrate"
)

// Option configures the rulesync Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithSubstrate sets the rule substrate the engine drives.
func WithSubstrate(s substrate.Substrate) Option {
	return func(e *Extension) {
		e.substrate = s
	}
}

// WithFilterEngine replaces the default ABP filter engine.
func WithFilterEngine(f filterengine.Engine) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, rulesync.WithFilterEngine(f))
	}
}

// WithEngineOption passes a rulesync.Option through to the underlying engine.
func WithEngineOption(opt rulesync.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a rulesync plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, rulesync.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate skips store migrations on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSaveDebounce sets how long ledger saves are coalesced.
func WithSaveDebounce(d time.Duration) Option {
	return func(e *Extension) { e.config.SaveDebounce = d }
}

// WithBudgetPolicy sets the budget policy by name.
func WithBudgetPolicy(policy string) Option {
	return func(e *Extension) { e.config.BudgetPolicy = policy }
}

// WithMappingDir sets the directory of static rule mappings.
func WithMappingDir(dir string) Option {
	return func(e *Extension) { e.config.MappingDir = dir }
}

// WithQuota sizes the default in-memory substrate.
func WithQuota(n int) Option {
	return func(e *Extension) { e.config.Quota = n }
}
