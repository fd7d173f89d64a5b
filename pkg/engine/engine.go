// Package engine is the public surface of the verification-orchestration
// engine. It wires the adapter catalog, domain registry, router,
// remediator, ledger, and loop controller behind one facade so external
// callers never reach into internal packages.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"veriloop/internal/claim"
	"veriloop/internal/config"
	"veriloop/internal/extract"
	"veriloop/internal/ledger"
	"veriloop/internal/logging"
	"veriloop/internal/loop"
	"veriloop/internal/oracle"
	"veriloop/internal/registry"
	"veriloop/internal/remediate"
	"veriloop/internal/router"
)

// Re-exported contracts and data types so callers depend on pkg/engine
// only; the internal packages stay internal.
type (
	// Verifier is the domain-oracle plugin contract.
	Verifier = oracle.Verifier
	// Factory builds a Verifier from a registry record's config blob.
	Factory = oracle.Factory
	// Domain is one registry record.
	Domain = registry.Domain
	// Generator produces the next artifact version from a remediation plan.
	Generator = loop.Generator
	// GeneratorFunc adapts a function to Generator.
	GeneratorFunc = loop.GeneratorFunc

	// Config is the engine configuration.
	Config = config.Config

	Artifact           = claim.Artifact
	Claim              = claim.Claim
	Verdict            = claim.Verdict
	VerificationResult = claim.VerificationResult
	RemediationPlan    = claim.RemediationPlan
	Guidance           = claim.Guidance
	RunState           = claim.RunState
	RunStatus          = claim.RunStatus
	Snapshot           = claim.Snapshot
	DiffResult         = ledger.DiffResult
)

// Verdicts and terminal run statuses callers branch on.
const (
	Verified     = claim.Verified
	Falsified    = claim.Falsified
	Partial      = claim.Partial
	Unverifiable = claim.Unverifiable

	StatusConverged = claim.StatusConverged
	StatusExhausted = claim.StatusExhausted
	StatusFailed    = claim.StatusFailed
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML config file over the defaults, applies
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Engine hosts the registry and runs verification loops. Independent runs
// execute fully in parallel; the registry read path is the only shared
// state between them.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	catalog    *oracle.Catalog
	registry   *registry.Registry
	router     *router.Router
	remediator *remediate.Remediator
	extractor  *extract.Extractor
	memory     *ledger.Memory
	ledger     ledger.Ledger
	watcher    *registry.Watcher
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger attaches a zap logger. Without it the engine is silent.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an engine from the given configuration. A nil config uses
// defaults. The registry file, when configured, is loaded here so that
// malformed records fail at startup, before any run begins.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}

	e.catalog = oracle.NewCatalog()
	e.registry = registry.New(e.catalog, e.logger)
	e.extractor = extract.New(e.logger)

	e.memory = ledger.NewMemory()
	e.ledger = e.memory
	if cfg.Ledger.Dir != "" {
		file, err := ledger.NewFile(cfg.Ledger.Dir)
		if err != nil {
			return nil, err
		}
		e.ledger = ledger.Fanout{e.memory, file}
	}

	e.router = router.New(e.registry, router.Config{
		Timeout:     cfg.Verifier.Timeout,
		MaxAttempts: cfg.Verifier.MaxAttempts,
		BackoffBase: cfg.Verifier.BackoffBase,
		BackoffMax:  cfg.Verifier.BackoffMax,
		Concurrency: cfg.Concurrency,
		CacheTTL:    cfg.Verifier.CacheTTL,
	}, e.logger)
	e.remediator = remediate.New(e.registry, e.logger)

	return e, nil
}

// RegisterAdapter adds a verifier factory under an adapter-type tag.
// Adapters must be registered before the registry file is loaded.
func (e *Engine) RegisterAdapter(adapterType string, f Factory) error {
	return e.catalog.Register(adapterType, f)
}

// LoadRegistry loads the configured registry file and, when configured,
// starts watching it for changes. ctx bounds the watcher's lifetime.
func (e *Engine) LoadRegistry(ctx context.Context) error {
	if e.cfg.RegistryPath == "" {
		return nil
	}
	if err := e.registry.LoadFile(e.cfg.RegistryPath); err != nil {
		return err
	}
	if !e.cfg.WatchRegistry {
		return nil
	}
	w, err := registry.NewWatcher(e.registry, e.cfg.RegistryPath, e.logger)
	if err != nil {
		return fmt.Errorf("registry watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("registry watcher: %w", err)
	}
	e.watcher = w
	return nil
}

// Close stops the registry watcher if one is running.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
}

// RegisterDomain registers a domain record programmatically.
func (e *Engine) RegisterDomain(d Domain) error {
	return e.registry.Register(d)
}

// DeactivateDomain marks a domain inactive; its claims are rejected from
// then on rather than silently skipped.
func (e *Engine) DeactivateDomain(domainID string) error {
	return e.registry.Deactivate(domainID)
}

// Domains lists all registered domain records.
func (e *Engine) Domains() []Domain {
	return e.registry.List()
}

// Run drives one artifact through the verification loop against the given
// domains until it converges, exhausts the iteration budget, or fails.
func (e *Engine) Run(ctx context.Context, artifact claim.Artifact, domains []string, gen Generator) (*claim.RunState, error) {
	ctrl, err := loop.NewController(
		e.extractor, e.registry, e.router, e.remediator,
		e.ledger, gen, e.cfg.MaxIterations, e.logger)
	if err != nil {
		return nil, err
	}
	return ctrl.Run(ctx, artifact, domains)
}

// Reverify re-checks a terminal run without mutating it.
func (e *Engine) Reverify(ctx context.Context, state *claim.RunState) (bool, error) {
	ctrl, err := loop.NewController(
		e.extractor, e.registry, e.router, e.remediator,
		e.ledger, nil, e.cfg.MaxIterations, e.logger)
	if err != nil {
		return false, err
	}
	return ctrl.Reverify(ctx, state)
}

// Replay returns a run's committed snapshots in append order.
func (e *Engine) Replay(runID string) ([]claim.Snapshot, error) {
	return e.ledger.Replay(runID)
}

// Diff reports which claims flipped verdict between two iterations of a
// run.
func (e *Engine) Diff(runID string, from, to int) (ledger.DiffResult, error) {
	return ledger.DiffIterations(e.ledger, runID, from, to)
}
