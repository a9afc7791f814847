package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onSubscriptionUpdated []OnSubscriptionUpdated
	onFiltersChanged      []OnFiltersChanged
	onBudgetExceeded      []OnBudgetExceeded
	onSyncFailed          []OnSyncFailed
	onQuotaOverrun        []OnQuotaOverrun
	onLedgerSaved         []OnLedgerSaved
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSubscriptionUpdated); ok {
		r.onSubscriptionUpdated = append(r.onSubscriptionUpdated, v)
	}
	if v, ok := p.(OnFiltersChanged); ok {
		r.onFiltersChanged = append(r.onFiltersChanged, v)
	}
	if v, ok := p.(OnBudgetExceeded); ok {
		r.onBudgetExceeded = append(r.onBudgetExceeded, v)
	}
	if v, ok := p.(OnSyncFailed); ok {
		r.onSyncFailed = append(r.onSyncFailed, v)
	}
	if v, ok := p.(OnQuotaOverrun); ok {
		r.onQuotaOverrun = append(r.onQuotaOverrun, v)
	}
	if v, ok := p.(OnLedgerSaved); ok {
		r.onLedgerSaved = append(r.onLedgerSaved, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnSubscriptionUpdated", reflect.TypeFor[OnSubscriptionUpdated]()},
	{"OnFiltersChanged", reflect.TypeFor[OnFiltersChanged]()},
	{"OnBudgetExceeded", reflect.TypeFor[OnBudgetExceeded]()},
	{"OnSyncFailed", reflect.TypeFor[OnSyncFailed]()},
	{"OnQuotaOverrun", reflect.TypeFor[OnQuotaOverrun]()},
	{"OnLedgerSaved", reflect.TypeFor[OnLedgerSaved]()},
}

func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs fn for every hook, logging failures.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	emit(r, ctx, "OnInit", hooks, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	emit(r, ctx, "OnShutdown", hooks, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitSubscriptionUpdated emits a subscription updated event.
func (r *Registry) EmitSubscriptionUpdated(ctx context.Context, ev *UpdateEvent) {
	r.mu.RLock()
	hooks := r.onSubscriptionUpdated
	r.mu.RUnlock()

	emit(r, ctx, "OnSubscriptionUpdated", hooks, func(p OnSubscriptionUpdated) error {
		return p.OnSubscriptionUpdated(ctx, ev)
	})
}

// EmitFiltersChanged emits a filters changed event.
func (r *Registry) EmitFiltersChanged(ctx context.Context, ev *FiltersEvent) {
	r.mu.RLock()
	hooks := r.onFiltersChanged
	r.mu.RUnlock()

	emit(r, ctx, "OnFiltersChanged", hooks, func(p OnFiltersChanged) error {
		return p.OnFiltersChanged(ctx, ev)
	})
}

// EmitBudgetExceeded emits a budget exceeded event.
func (r *Registry) EmitBudgetExceeded(ctx context.Context, subscriptionID string, needed, available int) {
	r.mu.RLock()
	hooks := r.onBudgetExceeded
	r.mu.RUnlock()

	emit(r, ctx, "OnBudgetExceeded", hooks, func(p OnBudgetExceeded) error {
		return p.OnBudgetExceeded(ctx, subscriptionID, needed, available)
	})
}

// EmitSyncFailed emits a sync failed event.
func (r *Registry) EmitSyncFailed(ctx context.Context, subscriptionID string, err error) {
	r.mu.RLock()
	hooks := r.onSyncFailed
	r.mu.RUnlock()

	emit(r, ctx, "OnSyncFailed", hooks, func(p OnSyncFailed) error {
		return p.OnSyncFailed(ctx, subscriptionID, err)
	})
}

// EmitQuotaOverrun emits a quota overrun event.
func (r *Registry) EmitQuotaOverrun(ctx context.Context, disabled []string, quota int) {
	r.mu.RLock()
	hooks := r.onQuotaOverrun
	r.mu.RUnlock()

	emit(r, ctx, "OnQuotaOverrun", hooks, func(p OnQuotaOverrun) error {
		return p.OnQuotaOverrun(ctx, disabled, quota)
	})
}

// EmitLedgerSaved emits a ledger saved event.
func (r *Registry) EmitLedgerSaved(ctx context.Context, records int, elapsed time.Duration) {
	r.mu.RLock()
	hooks := r.onLedgerSaved
	r.mu.RUnlock()

	emit(r, ctx, "OnLedgerSaved", hooks, func(p OnLedgerSaved) error {
		return p.OnLedgerSaved(ctx, records, elapsed)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block reconciliation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
