package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30000, cfg.Quota)
	assert.Equal(t, "include_untracked", cfg.BudgetPolicy)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "zero quota", modify: func(c *Config) { c.Quota = 0 }, wantErr: true},
		{name: "negative session rules", modify: func(c *Config) { c.SessionRules = -1 }, wantErr: true},
		{name: "unknown policy", modify: func(c *Config) { c.BudgetPolicy = "all" }, wantErr: true},
		{name: "unknown driver", modify: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: true},
		{name: "redis without url", modify: func(c *Config) { c.Store.Driver = DriverRedis }, wantErr: true},
		{
			name: "subscription without path",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{ID: "easylist", Kind: "full"}}
			},
			wantErr: true,
		},
		{
			name: "static subscription needs no path",
			modify: func(c *Config) {
				c.Rulesets = []RulesetConfig{{ID: "base"}}
				c.Subscriptions = []SubscriptionConfig{{ID: "base", Kind: "static", RulesetID: "base"}}
			},
		},
		{
			name: "unknown ruleset",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{ID: "custom", Kind: "diff", Path: "x.txt", RulesetID: "base"}}
			},
			wantErr: true,
		},
		{
			name: "duplicate subscription",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{
					{ID: "a", Kind: "full", Path: "a.txt"},
					{ID: "a", Kind: "full", Path: "b.txt"},
				}
			},
			wantErr: true,
		},
		{
			name: "bad kind",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{ID: "a", Kind: "partial", Path: "a.txt"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFileResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quota: 100
mapping_dir: mappings
store:
  driver: redis
  url: redis://localhost:6379/0
subscriptions:
  - id: easylist
    kind: full
    path: lists/easylist.txt
  - id: abs
    kind: diff
    path: /srv/abs.txt
    disabled: true
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Quota)
	assert.Equal(t, "include_untracked", cfg.BudgetPolicy)
	assert.Equal(t, filepath.Join(dir, "mappings"), cfg.MappingDir)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, filepath.Join(dir, "lists/easylist.txt"), cfg.Subscriptions[0].Path)
	assert.Equal(t, "/srv/abs.txt", cfg.Subscriptions[1].Path)

	sub := cfg.Subscriptions[1].Subscription()
	assert.Equal(t, "abs", sub.ID)
	assert.False(t, sub.Enabled)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quota: [1"), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rulesync.yaml")
	cfg := DefaultConfig()
	cfg.SessionRules = 5
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.SessionRules)

	base := DefaultConfig()
	base.Merge(&Config{Quota: 50, Store: StoreConfig{Driver: DriverRedis, URL: "redis://x"}})
	assert.Equal(t, 50, base.Quota)
	assert.Equal(t, "redis://x", base.Store.URL)
	assert.Equal(t, "include_untracked", base.BudgetPolicy)

	base.Merge(nil)
	assert.Equal(t, 50, base.Quota)
}
