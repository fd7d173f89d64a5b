package registry

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"veriloop/internal/claim"
)

// file is the on-disk shape of a registry configuration file.
type file struct {
	Domains []Domain `yaml:"domains"`
}

// ParseFile reads and validates a YAML registry configuration file.
// Malformed records fail here, at startup, before any run begins.
func ParseFile(path string) ([]Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading registry file: %v", claim.ErrConfiguration, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing registry file %s: %v", claim.ErrConfiguration, path, err)
	}
	if len(f.Domains) == 0 {
		return nil, fmt.Errorf("%w: registry file %s declares no domains", claim.ErrConfiguration, path)
	}
	seen := make(map[string]bool, len(f.Domains))
	for _, d := range f.Domains {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: registry file %s: record missing id", claim.ErrConfiguration, path)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: registry file %s: duplicate domain %s", claim.ErrConfiguration, path, d.ID)
		}
		seen[d.ID] = true
	}
	return f.Domains, nil
}

// LoadFile parses the file and registers every record. Used at startup.
func (r *Registry) LoadFile(path string) error {
	domains, err := ParseFile(path)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Apply atomically replaces the registry contents with the given records.
// All records are validated and their verifiers built before anything is
// published; on any error the current contents are left untouched.
// Used by the config watcher on reload.
func (r *Registry) Apply(domains []Domain) error {
	next := make(map[string]*Binding, len(domains))
	for _, d := range domains {
		if d.ID == "" {
			return fmt.Errorf("%w: domain record missing id", claim.ErrConfiguration)
		}
		if _, dup := next[d.ID]; dup {
			return fmt.Errorf("%w: duplicate domain %s", claim.ErrConfiguration, d.ID)
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
		next[d.ID] = &Binding{Domain: d, Verifier: verifier, Template: tmpl, Limiter: limiter}
	}

	r.mu.Lock()
	r.current.Store(&next)
	r.mu.Unlock()

	r.logger.Info("registry replaced", zap.Int("domains", len(next)))
	return nil
}
