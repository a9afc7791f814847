package rulesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/rulesync/budget"
	"github.com/xraph/rulesync/compiler"
	"github.com/xraph/rulesync/filterengine"
	"github.com/xraph/rulesync/filterengine/abp"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/plugin"
	"github.com/xraph/rulesync/staticrules"
	"github.com/xraph/rulesync/store"
	"github.com/xraph/rulesync/substrate"
)

const tracerName = "github.com/xraph/rulesync"

// Engine keeps a substrate's dynamic rules consistent with the filters of
// a set of subscriptions and individually added filters.
type Engine struct {
	store     store.Store
	substrate substrate.Substrate
	filters   filterengine.Engine
	compiler  *compiler.Compiler
	ledger    *ownership.Ledger
	budget    *budget.Manager
	statics   *staticrules.Registry
	plugins   *plugin.Registry
	logger    *slog.Logger
	tracer    trace.Tracer

	// opMu serializes batches from compile through commit.
	opMu     sync.Mutex
	guards   *guards
	rulesets map[string]bool

	// Background save worker
	saveMu   sync.Mutex
	saveCh   chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	running  atomic.Bool

	// Configuration
	skipMigrate  bool
	policy       budget.Policy
	saveDebounce time.Duration
	staticLoader staticrules.Loader
	staticCaches map[string]staticrules.Cache
}

// New creates a new Engine instance.
func New(s store.Store, sub substrate.Substrate, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		substrate:    sub,
		filters:      abp.New(),
		ledger:       ownership.New(),
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		guards:       newGuards(),
		rulesets:     make(map[string]bool),
		saveCh:       make(chan struct{}, 1),
		policy:       budget.IncludeUntracked,
		saveDebounce: 500 * time.Millisecond,
		staticLoader: staticrules.MapLoader{},
		staticCaches: make(map[string]staticrules.Cache),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.compiler = compiler.New(e.filters, sub)
	e.budget = budget.New(sub, e.ledger, budget.WithPolicy(e.policy))
	e.statics = staticrules.NewRegistry(e.staticLoader)
	for rulesetID, c := range e.staticCaches {
		e.statics.Register(rulesetID, c)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithFilterEngine replaces the default ABP filter engine.
func WithFilterEngine(f filterengine.Engine) Option {
	return func(e *Engine) {
		e.filters = f
	}
}

// WithBudgetPolicy sets whether untracked substrate rules count against
// the budget.
func WithBudgetPolicy(p budget.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithSaveDebounce sets how long saves are coalesced. Zero saves inline
// after every committed batch.
func WithSaveDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.saveDebounce = d
	}
}

// WithStaticLoader sets the loader for bundled ruleset mappings.
func WithStaticLoader(l staticrules.Loader) Option {
	return func(e *Engine) {
		e.staticLoader = l
	}
}

// WithStaticCache installs a mapping cache for one ruleset.
func WithStaticCache(rulesetID string, c staticrules.Cache) Option {
	return func(e *Engine) {
		e.staticCaches[rulesetID] = c
	}
}

// WithSkipMigrate makes Start leave the store schema alone.
func WithSkipMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// WithTracer sets the tracer used for reconciliation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// Start migrates the store, loads the persisted ledger, starts the save
// worker and reconciles the ledger against the current quota. A stopped
// Engine may be started again as long as its store can still be used.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("rulesync: migrate: %w", err)
		}
	}

	st, err := e.store.LoadLedger(ctx)
	switch {
	case errors.Is(err, store.ErrNoLedger):
		e.logger.Debug("no saved ledger, starting empty")
	case err != nil:
		return fmt.Errorf("rulesync: load ledger: %w", err)
	default:
		e.ledger.Restore(st)
	}

	e.opMu.Lock()
	for _, s := range e.ledger.Subscriptions() {
		if s.RulesetID != "" {
			e.rulesets[s.RulesetID] = e.rulesets[s.RulesetID] || s.Enabled
		}
	}
	e.opMu.Unlock()

	e.started.Store(true)

	if e.saveDebounce > 0 {
		e.stopChan = make(chan struct{})
		e.running.Store(true)
		e.wg.Add(1)
		go e.saveWorker(context.WithoutCancel(ctx))
	}

	e.plugins.EmitInit(ctx, e)

	if _, err := e.ReconcileQuota(ctx); err != nil {
		e.logger.Warn("quota reconciliation failed", "error", err)
	}

	e.logger.Info("rulesync started",
		"records", e.ledger.Len(),
		"rule_count", e.ledger.RuleCount(),
		"highest_rule_id", e.ledger.HighestRuleID(),
		"budget_policy", e.policy,
		"save_debounce", e.saveDebounce,
	)

	return nil
}

// Stop flushes pending saves and shuts down the Engine.
func (e *Engine) Stop() error {
	if !e.started.Swap(false) {
		return nil
	}
	if e.running.Swap(false) {
		close(e.stopChan)
		e.wg.Wait()
	}

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

func (e *Engine) ready() error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// ──────────────────────────────────────────────────
// Read surface
// ──────────────────────────────────────────────────

// Snapshot returns a deep copy of the ledger state.
func (e *Engine) Snapshot() *ownership.State {
	return e.ledger.Snapshot()
}

// Lookup returns the ledger record for filter text.
func (e *Engine) Lookup(text string) (ownership.Record, bool) {
	return e.ledger.Lookup(e.filters.Normalize(text))
}

// Available returns the remaining dynamic rule budget.
func (e *Engine) Available(ctx context.Context) (int, error) {
	return e.budget.Available(ctx)
}

// Usage returns the quota breakdown.
func (e *Engine) Usage(ctx context.Context) (budget.Usage, error) {
	return e.budget.Usage(ctx)
}

// Compiler returns the compiler used by the engine.
func (e *Engine) Compiler() *compiler.Compiler { return e.compiler }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// GetMetadata returns the metadata of a filter.
func (e *Engine) GetMetadata(text string) (map[string]any, error) {
	meta, err := e.ledger.Metadata(e.filters.Normalize(text))
	if errors.Is(err, ownership.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrFilterNotFound, text)
	}
	return meta, err
}

// SetMetadata replaces the metadata of a filter.
func (e *Engine) SetMetadata(text string, meta map[string]any) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	err := e.ledger.SetMetadata(e.filters.Normalize(text), meta)
	if errors.Is(err, ownership.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrFilterNotFound, text)
	}
	if err != nil {
		return err
	}
	e.requestSave(context.Background())
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "rulesync."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
