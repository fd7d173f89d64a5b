// Package oracle defines the capability contract every domain verifier
// adapter must implement, and the catalog that builds adapters from
// registry records.
//
// The engine never decides domain semantics. What counts as correct code,
// a valid proof, or a compliant clause lives entirely inside the adapter;
// the engine guarantees only the claim → verdict → remediation protocol.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veriloop/internal/claim"
)

// Verifier is the contract for a pluggable domain oracle.
//
// Verify must be safe to call repeatedly and should be idempotent for the
// same claim and artifact version. Remediate receives only failed or
// partial results for its own domain; it never sees claims it did not
// verify.
type Verifier interface {
	Verify(ctx context.Context, c claim.Claim) (claim.VerificationResult, error)
	Remediate(ctx context.Context, failures []claim.VerificationResult) (claim.RemediationPlan, error)
}

// ClaimExtractor is an optional capability. Adapters that implement it
// contribute claims of their own during extraction, in addition to the
// domain's template-driven extraction.
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, artifact claim.Artifact, domainID string) ([]claim.Claim, error)
}

// Config is the opaque configuration blob of a registry record, decoded
// from YAML. The engine passes it through to the adapter factory without
// interpreting it.
type Config map[string]any

// Factory builds a Verifier from an adapter's configuration blob.
type Factory func(cfg Config) (Verifier, error)

// Catalog maps adapter-type tags to factories. Adapters are registered at
// startup; registry records select one by tag.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty adapter catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under the given adapter-type tag.
// Registering the same tag twice is a configuration error.
func (c *Catalog) Register(adapterType string, f Factory) error {
	if adapterType == "" {
		return fmt.Errorf("%w: empty adapter type", claim.ErrConfiguration)
	}
	if f == nil {
		return fmt.Errorf("%w: nil factory for adapter %q", claim.ErrConfiguration, adapterType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[adapterType]; exists {
		return fmt.Errorf("%w: adapter %q already registered", claim.ErrConfiguration, adapterType)
	}
	c.factories[adapterType] = f
	return nil
}

// Build constructs a Verifier for the given adapter type.
func (c *Catalog) Build(adapterType string, cfg Config) (Verifier, error) {
	c.mu.RLock()
	f, ok := c.factories[adapterType]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown adapter type %q", claim.ErrConfiguration, adapterType)
	}
	v, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: adapter %q: %v", claim.ErrConfiguration, adapterType, err)
	}
	return v, nil
}

// Types lists the registered adapter-type tags in sorted order.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
