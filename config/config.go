// Package config holds the rulesync CLI configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xraph/rulesync/budget"
	"github.com/xraph/rulesync/subscription"
)

// Store drivers understood by the CLI.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the CLI configuration file.
type Config struct {
	Quota         int                  `yaml:"quota"`
	SessionRules  int                  `yaml:"session_rules"`
	BudgetPolicy  string               `yaml:"budget_policy"`
	MappingDir    string               `yaml:"mapping_dir,omitempty"`
	LogLevel      string               `yaml:"log_level"`
	Store         StoreConfig          `yaml:"store"`
	Rulesets      []RulesetConfig      `yaml:"rulesets,omitempty"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions,omitempty"`
}

// StoreConfig selects where the ledger is kept between runs.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	URL     string `yaml:"url,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	History int    `yaml:"history,omitempty"`
}

// RulesetConfig declares a bundled ruleset known to the in-process
// substrate.
type RulesetConfig struct {
	ID      string `yaml:"id"`
	RuleIDs []int  `yaml:"rule_ids"`
	Enabled bool   `yaml:"enabled"`
}

// SubscriptionConfig declares one subscription and the file holding its
// filter list.
type SubscriptionConfig struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"`
	RulesetID string `yaml:"ruleset_id,omitempty"`
	Path      string `yaml:"path,omitempty"`
	Disabled  bool   `yaml:"disabled,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Quota:        30000,
		BudgetPolicy: string(budget.IncludeUntracked),
		LogLevel:     "info",
		Store: StoreConfig{
			Driver: DriverMemory,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Quota <= 0 {
		return fmt.Errorf("quota must be positive")
	}
	if c.SessionRules < 0 {
		return fmt.Errorf("session_rules must not be negative")
	}
	if _, err := budget.ParsePolicy(c.BudgetPolicy); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	rulesets := make(map[string]bool, len(c.Rulesets))
	for _, r := range c.Rulesets {
		if r.ID == "" {
			return fmt.Errorf("ruleset id is required")
		}
		rulesets[r.ID] = true
	}

	seen := make(map[string]bool, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		if s.ID == "" {
			return fmt.Errorf("subscription id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate subscription %q", s.ID)
		}
		seen[s.ID] = true

		kind, err := subscription.ParseKind(s.Kind)
		if err != nil {
			return err
		}
		if kind != subscription.KindStatic && s.Path == "" {
			return fmt.Errorf("subscription %q: path is required", s.ID)
		}
		if s.RulesetID != "" && !rulesets[s.RulesetID] {
			return fmt.Errorf("subscription %q: unknown ruleset %q", s.ID, s.RulesetID)
		}
	}
	return nil
}

// Subscription builds the engine-facing subscription for s.
func (s SubscriptionConfig) Subscription() *subscription.Subscription {
	return &subscription.Subscription{
		ID:        s.ID,
		Kind:      subscription.Kind(s.Kind),
		RulesetID: s.RulesetID,
		Enabled:   !s.Disabled,
	}
}

// LoadFromFile loads configuration from a YAML file. Relative
// subscription paths resolve against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range cfg.Subscriptions {
		p := cfg.Subscriptions[i].Path
		if p != "" && !filepath.IsAbs(p) {
			cfg.Subscriptions[i].Path = filepath.Join(dir, p)
		}
	}
	if cfg.MappingDir != "" && !filepath.IsAbs(cfg.MappingDir) {
		cfg.MappingDir = filepath.Join(dir, cfg.MappingDir)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge overlays the non-zero fields of other onto c. Subscriptions and
// rulesets from other replace those of c when present.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Quota != 0 {
		c.Quota = other.Quota
	}
	if other.SessionRules != 0 {
		c.SessionRules = other.SessionRules
	}
	if other.BudgetPolicy != "" {
		c.BudgetPolicy = other.BudgetPolicy
	}
	if other.MappingDir != "" {
		c.MappingDir = other.MappingDir
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Store.Driver != "" {
		c.Store = other.Store
	}
	if len(other.Rulesets) > 0 {
		c.Rulesets = other.Rulesets
	}
	if len(other.Subscriptions) > 0 {
		c.Subscriptions = other.Subscriptions
	}
}
