// Package remediate aggregates failed verification results into a single
// remediation plan for the external generator.
//
// Failures are grouped by the domain of their claim and handed to that
// domain's own verifier for guidance; a verifier never sees another
// domain's failures, and the merged plan records which domain produced
// each piece of guidance. Unverifiable results are excluded up front: a
// timed-out oracle says nothing about the artifact.
package remediate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"veriloop/internal/claim"
	"veriloop/internal/registry"
)

// Remediator composes remediation plans from per-domain verifier guidance.
type Remediator struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// New creates a remediator over the given registry.
func New(reg *registry.Registry, logger *zap.Logger) *Remediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remediator{registry: reg, logger: logger}
}

// ComposePlan groups remediable results (Falsified, Partial) by domain,
// invokes each domain verifier's Remediate for its own subset, and merges
// the per-domain plans into one plan keyed by claim ID.
func (r *Remediator) ComposePlan(ctx context.Context, claims []claim.Claim, results []claim.VerificationResult, iteration int) (claim.RemediationPlan, error) {
	domainOf := make(map[string]string, len(claims))
	for _, c := range claims {
		domainOf[c.ID] = c.Domain
	}

	byDomain := make(map[string][]claim.VerificationResult)
	for _, res := range results {
		if !res.Verdict.Remediable() {
			continue
		}
		domain, ok := domainOf[res.ClaimID]
		if !ok {
			// Result for a claim we did not extract; nothing to group under.
			continue
		}
		byDomain[domain] = append(byDomain[domain], res)
	}

	merged := claim.RemediationPlan{
		Guidance:            make(map[string]claim.Guidance),
		ProducedAtIteration: iteration,
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		binding, err := r.registry.Lookup(domain)
		if err != nil {
			return claim.RemediationPlan{}, err
		}
		plan, err := binding.Verifier.Remediate(ctx, byDomain[domain])
		if err != nil {
			return claim.RemediationPlan{}, fmt.Errorf("domain %s remediate: %w", domain, err)
		}
		for claimID, g := range plan.Guidance {
			if domainOf[claimID] != domain {
				// A verifier may only advise on its own claims.
				r.logger.Warn("dropping cross-domain guidance",
					zap.String("domain", domain),
					zap.String("claim", claimID))
				continue
			}
			merged.Guidance[claimID] = claim.Guidance{Domain: domain, Guidance: g.Guidance}
		}
	}

	for claimID := range merged.Guidance {
		merged.TargetClaimIDs = append(merged.TargetClaimIDs, claimID)
	}
	sort.Strings(merged.TargetClaimIDs)

	r.logger.Debug("remediation plan composed",
		zap.Int("iteration", iteration),
		zap.Int("targets", len(merged.TargetClaimIDs)),
		zap.Int("domains", len(domains)))
	return merged, nil
}
