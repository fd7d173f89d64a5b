// Package registry holds the process-wide mapping from domain identifier
// to a verifier binding and claim-extraction template.
//
// The registry is the engine's one piece of explicit shared mutable state.
// It is lifecycle-managed, never ambient: domains are registered at startup
// (from a config file or code) and mutated only through the explicit
// Register/Deactivate surface. Writers serialize on a mutex and publish a
// fresh immutable map; lookups read the current map through an atomic
// pointer and never block on registration of an unrelated domain.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"veriloop/internal/claim"
	"veriloop/internal/extract"
	"veriloop/internal/oracle"
)

// Domain is one registry record: a domain identifier bound to a verifier
// adapter and an extraction template.
type Domain struct {
	ID       string           `yaml:"id" json:"id"`
	Adapter  string           `yaml:"adapter" json:"adapter"`
	Config   oracle.Config    `yaml:"config" json:"config,omitempty"`
	Template extract.Template `yaml:"template" json:"template,omitempty"`
	Active   bool             `yaml:"active" json:"active"`

	// RateLimit caps verifier invocations per second. Zero means no limit.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit,omitempty"`
}

// Binding is the runtime binding for an active domain: the built verifier,
// the compiled template, and the per-domain rate limiter. A binding is
// owned exclusively by the registry entry that references it.
type Binding struct {
	Domain   Domain
	Verifier oracle.Verifier
	Template *extract.Compiled
	Limiter  *rate.Limiter
}

// Registry is the domain registry. The zero value is not usable; call New.
type Registry struct {
	mu      sync.Mutex // serializes Register/Deactivate
	current atomic.Pointer[map[string]*Binding]
	catalog *oracle.Catalog
	logger  *zap.Logger
}

// New creates an empty registry backed by the given adapter catalog.
func New(catalog *oracle.Catalog, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{catalog: catalog, logger: logger}
	empty := make(map[string]*Binding)
	r.current.Store(&empty)
	return r
}

// Register validates the record, builds its verifier through the adapter
// catalog, and publishes the new binding. Domain IDs are unique; a second
// registration for an existing ID is a configuration error.
func (r *Registry) Register(d Domain) error {
	if d.ID == "" {
		return fmt.Errorf("%w: domain record missing id", claim.ErrConfiguration)
	}
	if d.Adapter == "" {
		return fmt.Errorf("%w: domain %s missing adapter type", claim.ErrConfiguration, d.ID)
	}

	tmpl, err := d.Template.Compile()
	if err != nil {
		return fmt.Errorf("domain %s: %w", d.ID, err)
	}
	verifier, err := r.catalog.Build(d.Adapter, d.Config)
	if err != nil {
		return fmt.Errorf("domain %s: %w", d.ID, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if d.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.RateLimit), 1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.current.Load()
	if _, exists := old[d.ID]; exists {
		return fmt.Errorf("%w: domain %s already registered", claim.ErrConfiguration, d.ID)
	}
	next := make(map[string]*Binding, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[d.ID] = &Binding{Domain: d, Verifier: verifier, Template: tmpl, Limiter: limiter}
	r.current.Store(&next)

	r.logger.Info("domain registered",
		zap.String("domain", d.ID),
		zap.String("adapter", d.Adapter),
		zap.Bool("active", d.Active))
	return nil
}

// Deactivate marks a domain inactive. The binding stays in the registry so
// that lookups fail with a distinct "deactivated" error instead of
// silently skipping claims.
func (r *Registry) Deactivate(domainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.current.Load()
	b, exists := old[domainID]
	if !exists {
		return fmt.Errorf("%w: %s", claim.ErrDomainNotFound, domainID)
	}
	d := b.Domain
	d.Active = false
	next := make(map[string]*Binding, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[domainID] = &Binding{Domain: d, Verifier: b.Verifier, Template: b.Template, Limiter: b.Limiter}
	r.current.Store(&next)

	r.logger.Info("domain deactivated", zap.String("domain", domainID))
	return nil
}

// Lookup resolves a domain to its binding. Unknown domains and deactivated
// domains both fail; the caller treats either as run-fatal since no usable
// oracle exists for the claim.
func (r *Registry) Lookup(domainID string) (*Binding, error) {
	b, exists := (*r.current.Load())[domainID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", claim.ErrDomainNotFound, domainID)
	}
	if !b.Domain.Active {
		return nil, fmt.Errorf("%w: %s", claim.ErrDomainInactive, domainID)
	}
	return b, nil
}

// List returns all registered domain records, active or not, sorted by ID.
func (r *Registry) List() []Domain {
	m := *r.current.Load()
	domains := make([]Domain, 0, len(m))
	for _, b := range m {
		domains = append(domains, b.Domain)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].ID < domains[j].ID })
	return domains
}
