// Package staticrules maps filter text to the rule ids it was compiled to
// inside a bundled ruleset.
package staticrules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrUnknownRuleset is returned by loaders that have no mapping for a ruleset.
var ErrUnknownRuleset = errors.New("staticrules: unknown ruleset")

// Mapping is normalized filter text to static rule ids.
type Mapping map[string][]int

// Cache resolves filter text inside one ruleset.
type Cache interface {
	// Load fetches the mapping. Calling Load again is a no-op once it
	// succeeded.
	Load(ctx context.Context) error
	// Get returns the static rule ids for text, loading the mapping on
	// first use.
	Get(ctx context.Context, text string) ([]int, bool, error)
}

// Loader fetches the mapping of a ruleset.
type Loader interface {
	LoadMapping(ctx context.Context, rulesetID string) (Mapping, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rulesetID string) (Mapping, error)

// LoadMapping calls f.
func (f LoaderFunc) LoadMapping(ctx context.Context, rulesetID string) (Mapping, error) {
	return f(ctx, rulesetID)
}

// LazyCache loads its mapping on first use. A failed load is retried on
// the next call.
type LazyCache struct {
	rulesetID string
	loader    Loader

	mu      sync.Mutex
	mapping Mapping
}

var _ Cache = (*LazyCache)(nil)

// NewLazyCache creates a cache for one ruleset.
func NewLazyCache(rulesetID string, loader Loader) *LazyCache {
	return &LazyCache{rulesetID: rulesetID, loader: loader}
}

// Load fetches the mapping if it has not been loaded yet.
func (c *LazyCache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *LazyCache) loadLocked(ctx context.Context) error {
	if c.mapping != nil {
		return nil
	}
	m, err := c.loader.LoadMapping(ctx, c.rulesetID)
	if err != nil {
		return fmt.Errorf("staticrules: load %s: %w", c.rulesetID, err)
	}
	if m == nil {
		m = Mapping{}
	}
	c.mapping = m
	return nil
}

// Get returns the rule ids for text.
func (c *LazyCache) Get(ctx context.Context, text string) ([]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	ids, ok := c.mapping[text]
	if !ok || len(ids) == 0 {
		return nil, false, nil
	}
	return slices.Clone(ids), true, nil
}

// Registry holds one lazily loaded cache per ruleset.
type Registry struct {
	loader Loader

	mu     sync.Mutex
	caches map[string]Cache
}

// NewRegistry creates a registry backed by loader.
func NewRegistry(loader Loader) *Registry {
	return &Registry{loader: loader, caches: make(map[string]Cache)}
}

// Register installs a cache for a ruleset, replacing any existing one.
func (r *Registry) Register(rulesetID string, c Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[rulesetID] = c
}

// Cache returns the cache of a ruleset, creating a lazy one on first use.
func (r *Registry) Cache(rulesetID string) Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[rulesetID]
	if !ok {
		c = NewLazyCache(rulesetID, r.loader)
		r.caches[rulesetID] = c
	}
	return c
}

// Get looks text up in a ruleset.
func (r *Registry) Get(ctx context.Context, rulesetID, text string) ([]int, bool, error) {
	if rulesetID == "" {
		return nil, false, nil
	}
	return r.Cache(rulesetID).Get(ctx, text)
}

// MapLoader serves mappings held in memory.
type MapLoader map[string]Mapping

// LoadMapping returns the mapping of rulesetID.
func (l MapLoader) LoadMapping(_ context.Context, rulesetID string) (Mapping, error) {
	m, ok := l[rulesetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuleset, rulesetID)
	}
	return m, nil
}

// FileLoader reads <Dir>/<ruleset>.json, a JSON object of filter text to
// rule ids.
type FileLoader struct {
	Dir string
}

// LoadMapping reads and decodes the mapping file.
func (l FileLoader) LoadMapping(ctx context.Context, rulesetID string) (Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rulesetID != filepath.Base(rulesetID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleset, rulesetID)
	}

	data, err := os.ReadFile(filepath.Join(l.Dir, rulesetID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuleset, rulesetID)
	}
	if err != nil {
		return nil, err
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("staticrules: decode %s: %w", rulesetID, err)
	}
	return m, nil
}
