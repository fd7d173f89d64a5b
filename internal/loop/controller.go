// Package loop implements the iteration state machine that drives a
// verification run to convergence.
//
// A run moves through Init → Extracting → Verifying and then either
// converges, exhausts its iteration budget, or remediates and regenerates
// before the next pass. The controller owns the RunState exclusively:
// iteration work is staged locally and committed to the state and the
// ledger in one step, so cancellation always leaves the run at its last
// fully-committed iteration snapshot.
package loop

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veriloop/internal/claim"
	"veriloop/internal/extract"
	"veriloop/internal/ledger"
	"veriloop/internal/oracle"
	"veriloop/internal/registry"
	"veriloop/internal/remediate"
	"veriloop/internal/router"
)

// Generator is the external collaborator that produces the next artifact
// version from a remediation plan. A generation error is run-fatal.
type Generator interface {
	Generate(ctx context.Context, artifact claim.Artifact, plan claim.RemediationPlan) (claim.Artifact, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, artifact claim.Artifact, plan claim.RemediationPlan) (claim.Artifact, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, artifact claim.Artifact, plan claim.RemediationPlan) (claim.Artifact, error) {
	return f(ctx, artifact, plan)
}

// Controller sequences one verification run at a time. Independent runs
// use independent Controller calls and share no mutable state beyond the
// registry's read path.
type Controller struct {
	extractor     *extract.Extractor
	registry      *registry.Registry
	router        *router.Router
	remediator    *remediate.Remediator
	ledger        ledger.Ledger
	generator     Generator
	maxIterations int
	logger        *zap.Logger
}

// NewController wires a controller. maxIterations must be at least 1.
// generator may be nil for verify-only use; a run that needs regeneration
// without one fails with a generation error.
func NewController(
	extractor *extract.Extractor,
	reg *registry.Registry,
	rt *router.Router,
	rem *remediate.Remediator,
	led ledger.Ledger,
	gen Generator,
	maxIterations int,
	logger *zap.Logger,
) (*Controller, error) {
	if maxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be >= 1, got %d", claim.ErrConfiguration, maxIterations)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		extractor:     extractor,
		registry:      reg,
		router:        rt,
		remediator:    rem,
		ledger:        led,
		generator:     gen,
		maxIterations: maxIterations,
		logger:        logger,
	}, nil
}

// Run executes the full verification loop for one artifact and returns a
// terminal RunState. Converged and Exhausted are normal outcomes with a
// nil error; structural failures return the state as of the last committed
// iteration together with a *claim.RunError carrying full context.
func (c *Controller) Run(ctx context.Context, artifact claim.Artifact, domains []string) (*claim.RunState, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: run needs at least one domain", claim.ErrConfiguration)
	}

	state := &claim.RunState{
		RunID:         uuid.NewString(),
		Artifact:      artifact,
		Domains:       append([]string(nil), domains...),
		MaxIterations: c.maxIterations,
		Results:       make(map[string]claim.VerificationResult),
		Status:        claim.StatusInit,
	}
	var lastSnap *claim.Snapshot

	c.logger.Info("run started",
		zap.String("run", state.RunID),
		zap.Strings("domains", domains),
		zap.Int("artifact_version", artifact.Version),
		zap.Int("max_iterations", c.maxIterations))

	for {
		state.Iteration++
		state.Status = claim.StatusExtracting

		claims, err := c.extractAll(ctx, state)
		if err != nil {
			return c.fail(state, lastSnap, "", "", err)
		}

		state.Status = claim.StatusVerifying
		results, err := c.router.DispatchAll(ctx, claims, state.Artifact.Version)
		if err != nil {
			return c.fail(state, lastSnap, dispatchDomain(err, claims), "", err)
		}

		resultsByID := make(map[string]claim.VerificationResult, len(results))
		for _, r := range results {
			resultsByID[r.ClaimID] = r
		}
		verified := 0
		for _, cl := range claims {
			if r, ok := resultsByID[cl.ID]; ok && r.Verdict == claim.Verified {
				verified++
			}
		}

		prev := -1
		if n := len(state.VerifiedCounts); n > 0 {
			prev = state.VerifiedCounts[n-1]
		}

		var status claim.RunStatus
		var plan *claim.RemediationPlan
		switch {
		case prev >= 0 && verified < prev:
			// A previously verified claim re-failed. Only monotonically
			// convergent verification is trustworthy, so this is detected
			// and surfaced, never silently tolerated.
			status = claim.StatusFailed
		case verified == len(claims):
			status = claim.StatusConverged
		case state.Iteration >= c.maxIterations:
			status = claim.StatusExhausted
		default:
			status = claim.StatusRemediating
			state.Status = claim.StatusRemediating
			p, err := c.remediator.ComposePlan(ctx, claims, results, state.Iteration)
			if err != nil {
				return c.fail(state, lastSnap, "", "", err)
			}
			plan = &p
		}

		snap, err := c.commit(state, claims, results, resultsByID, verified, plan, status)
		if err != nil {
			return c.fail(state, lastSnap, "", "", err)
		}
		lastSnap = snap

		c.logger.Info("iteration committed",
			zap.String("run", state.RunID),
			zap.Int("iteration", state.Iteration),
			zap.Int("claims", len(claims)),
			zap.Int("verified", verified),
			zap.String("status", string(status)))

		switch status {
		case claim.StatusFailed:
			state.Status = claim.StatusFailed
			return state, &claim.RunError{
				RunID:     state.RunID,
				Iteration: state.Iteration,
				Snapshot:  lastSnap,
				Err: fmt.Errorf("%w: %d verified at iteration %d, %d at iteration %d",
					claim.ErrRegressionDetected, verified, state.Iteration, prev, state.Iteration-1),
			}
		case claim.StatusConverged, claim.StatusExhausted:
			state.Status = status
			return state, nil
		}

		// Remediate → Regenerate → next iteration. A plan can be empty
		// when every failure was Unverifiable; the artifact is left alone
		// and the next iteration simply re-verifies.
		state.Status = claim.StatusRegenerating
		if plan != nil && !plan.Empty() {
			if c.generator == nil {
				return c.fail(state, lastSnap, "", "",
					fmt.Errorf("%w: no generator configured", claim.ErrGenerationFailure))
			}
			next, err := c.generator.Generate(ctx, state.Artifact, *plan)
			if err != nil {
				return c.fail(state, lastSnap, "", "",
					fmt.Errorf("%w: %v", claim.ErrGenerationFailure, err))
			}
			next.Version = state.Artifact.Version + 1
			state.Artifact = next
		}
	}
}

// extractAll runs template-driven extraction for every domain of the run,
// folding in claims from verifiers that implement the optional
// claim-extraction capability. Claims keep their per-domain extraction
// order; domains are processed in the caller's order.
func (c *Controller) extractAll(ctx context.Context, state *claim.RunState) ([]claim.Claim, error) {
	var all []claim.Claim
	for _, domainID := range state.Domains {
		binding, err := c.registry.Lookup(domainID)
		if err != nil {
			return nil, err
		}
		claims, err := c.extractor.Extract(state.Artifact, domainID, binding.Template, state.Iteration)
		if err != nil {
			return nil, err
		}
		if ce, ok := binding.Verifier.(oracle.ClaimExtractor); ok {
			extra, err := ce.ExtractClaims(ctx, state.Artifact, domainID)
			if err != nil {
				return nil, fmt.Errorf("%w: domain %s verifier extraction: %v",
					claim.ErrExtractionFailure, domainID, err)
			}
			claims = extract.Merge(claims, extra)
		}
		all = append(all, claims...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: artifact v%d", claim.ErrExtractionFailure, state.Artifact.Version)
	}
	return all, nil
}

// commit publishes one iteration's staged work: the RunState fields and
// the ledger snapshot change together or not at all. Until commit runs,
// the state still holds the previous iteration's claims and results.
func (c *Controller) commit(
	state *claim.RunState,
	claims []claim.Claim,
	results []claim.VerificationResult,
	resultsByID map[string]claim.VerificationResult,
	verified int,
	plan *claim.RemediationPlan,
	status claim.RunStatus,
) (*claim.Snapshot, error) {
	snap := claim.Snapshot{
		RunID:           state.RunID,
		Iteration:       state.Iteration,
		ArtifactVersion: state.Artifact.Version,
		ArtifactHash:    state.Artifact.Hash(),
		Claims:          append([]claim.Claim(nil), claims...),
		Results:         append([]claim.VerificationResult(nil), results...),
		Plan:            plan,
		Status:          status,
		Timestamp:       time.Now().UTC(),
	}
	if err := c.ledger.Append(snap); err != nil {
		return nil, fmt.Errorf("committing iteration %d: %w", state.Iteration, err)
	}
	state.Claims = claims
	state.Results = resultsByID
	state.VerifiedCounts = append(state.VerifiedCounts, verified)
	return &snap, nil
}

// fail marks the run failed without committing partial iteration state.
// The returned error carries the last fully-committed snapshot.
func (c *Controller) fail(state *claim.RunState, lastSnap *claim.Snapshot, domainID, claimID string, err error) (*claim.RunState, error) {
	state.Status = claim.StatusFailed
	runErr := &claim.RunError{
		RunID:     state.RunID,
		Iteration: state.Iteration,
		Domain:    domainID,
		ClaimID:   claimID,
		Snapshot:  lastSnap,
		Err:       err,
	}
	c.logger.Error("run failed",
		zap.String("run", state.RunID),
		zap.Int("iteration", state.Iteration),
		zap.Error(err))
	return state, runErr
}

// Reverify re-dispatches a terminal run's claims at its final artifact
// version and reports whether every claim still resolves Verified. It
// never mutates the state: convergence is idempotent, and re-checking a
// converged run must not change it.
func (c *Controller) Reverify(ctx context.Context, state *claim.RunState) (bool, error) {
	if !state.Status.Terminal() {
		return false, fmt.Errorf("run %s is not terminal (%s)", state.RunID, state.Status)
	}
	results, err := c.router.DispatchAll(ctx, state.Claims, state.Artifact.Version)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.Verdict != claim.Verified {
			return false, nil
		}
	}
	return len(results) == len(state.Claims), nil
}

// dispatchDomain recovers the offending domain for error context when a
// batch dispatch fails on registry resolution.
func dispatchDomain(err error, claims []claim.Claim) string {
	domains := make(map[string]bool)
	for _, c := range claims {
		domains[c.Domain] = true
	}
	names := make([]string, 0, len(domains))
	for d := range domains {
		names = append(names, d)
	}
	sort.Strings(names)
	for _, d := range names {
		if strings.Contains(err.Error(), d) {
			return d
		}
	}
	return ""
}
