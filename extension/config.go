package extension

import "time"

// Config holds the rulesync extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.rulesync" or "rulesync" keys).
type Config struct {
	// DisableMigrate skips store migrations on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SaveDebounce coalesces ledger saves issued within this window
	// (default: 500ms).
	SaveDebounce time.Duration `json:"save_debounce" mapstructure:"save_debounce" yaml:"save_debounce"`

	// BudgetPolicy is "include_untracked" (default) or "ledger_only".
	BudgetPolicy string `json:"budget_policy" mapstructure:"budget_policy" yaml:"budget_policy"`

	// MappingDir holds <ruleset>.json static rule mappings. When empty,
	// bundled rulesets have no mappings and every filter compiles to
	// dynamic rules.
	MappingDir string `json:"mapping_dir" mapstructure:"mapping_dir" yaml:"mapping_dir"`

	// Quota sizes the in-memory substrate used when none is provided
	// (default: 30000).
	Quota int `json:"quota" mapstructure:"quota" yaml:"quota"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SaveDebounce: 500 * time.Millisecond,
		BudgetPolicy: "include_untracked",
		Quota:        30000,
	}
}
