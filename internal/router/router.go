// Package router dispatches claims to their bound domain verifiers.
//
// The router resolves a claim's domain through the registry, then invokes
// the bound verifier under a per-call timeout with bounded retry and
// exponential backoff. Adapter failures — timeouts, errors, panics — are
// downgraded to Unverifiable verdicts at this boundary and never
// propagated: one malfunctioning verifier must not abort the whole run.
// An unknown or deactivated domain is the exception; no oracle exists for
// the claim, so that is surfaced as a run-fatal error.
package router

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"veriloop/internal/claim"
	"veriloop/internal/registry"
)

// Config holds router tunables. Zero values fall back to defaults.
type Config struct {
	// Timeout bounds a single verifier invocation.
	Timeout time.Duration
	// MaxAttempts bounds adapter calls per claim before downgrading to
	// Unverifiable.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
	// Concurrency limits parallel claim dispatches within one iteration.
	Concurrency int
	// CacheTTL bounds how long a Verified verdict is reused for the same
	// claim and artifact version.
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	return c
}

// Router resolves and invokes domain verifiers.
type Router struct {
	registry *registry.Registry
	cfg      Config
	verified *gocache.Cache
	logger   *zap.Logger
}

// New creates a router over the given registry.
func New(reg *registry.Registry, cfg Config, logger *zap.Logger) *Router {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	// No cleanup janitor: expired entries are filtered on Get, and a
	// background goroutine would outlive the router in library use.
	return &Router{
		registry: reg,
		cfg:      cfg,
		verified: gocache.New(cfg.CacheTTL, 0),
		logger:   logger,
	}
}

func cacheKey(claimID string, artifactVersion int) string {
	return fmt.Sprintf("%s@v%d", claimID, artifactVersion)
}

// Dispatch verifies a single claim against its domain's oracle.
//
// A Verified verdict for the same claim and artifact version is served
// from cache without re-invoking the oracle, so retries and converged
// re-runs never re-attempt an already-resolved claim. Registry resolution
// failures are returned as errors; everything else resolves to a verdict.
func (r *Router) Dispatch(ctx context.Context, c claim.Claim, artifactVersion int) (claim.VerificationResult, error) {
	if cached, ok := r.verified.Get(cacheKey(c.ID, artifactVersion)); ok {
		return cached.(claim.VerificationResult), nil
	}

	binding, err := r.registry.Lookup(c.Domain)
	if err != nil {
		return claim.VerificationResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, attempt); err != nil {
				return claim.VerificationResult{}, err
			}
		}
		if err := binding.Limiter.Wait(ctx); err != nil {
			return claim.VerificationResult{}, err
		}

		result, err := r.invoke(ctx, binding, c)
		if err == nil {
			if result.Verdict == claim.Verified {
				r.verified.Set(cacheKey(c.ID, artifactVersion), result, gocache.DefaultExpiration)
			}
			return result, nil
		}
		if ctx.Err() != nil {
			// The run itself was cancelled, not just this attempt.
			return claim.VerificationResult{}, ctx.Err()
		}
		lastErr = err
		r.logger.Warn("verifier attempt failed",
			zap.String("claim", c.ID),
			zap.String("domain", c.Domain),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	r.logger.Warn("claim downgraded to unverifiable",
		zap.String("claim", c.ID),
		zap.String("domain", c.Domain),
		zap.Int("attempts", r.cfg.MaxAttempts),
		zap.Error(lastErr))
	return claim.VerificationResult{
		ClaimID:   c.ID,
		Verdict:   claim.Unverifiable,
		Evidence:  []string{fmt.Sprintf("adapter failed after %d attempts: %v", r.cfg.MaxAttempts, lastErr)},
		OracleID:  c.Domain,
		Timestamp: time.Now().UTC(),
	}, nil
}

// invoke runs one verifier call under the per-call timeout, translating
// panics and timeouts into plain errors for the retry loop.
func (r *Router) invoke(ctx context.Context, binding *registry.Binding, c claim.Claim) (result claim.VerificationResult, err error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("verifier panic: %v", p)
		}
	}()

	type outcome struct {
		result claim.VerificationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("verifier panic: %v", p)}
			}
		}()
		res, verr := binding.Verifier.Verify(callCtx, c)
		done <- outcome{result: res, err: verr}
	}()

	select {
	case <-callCtx.Done():
		return claim.VerificationResult{}, fmt.Errorf("verifier timeout after %s: %w", r.cfg.Timeout, callCtx.Err())
	case out := <-done:
		if out.err != nil {
			return claim.VerificationResult{}, out.err
		}
		res := out.result
		if res.ClaimID == "" {
			res.ClaimID = c.ID
		}
		if res.OracleID == "" {
			res.OracleID = binding.Domain.ID
		}
		if res.Timestamp.IsZero() {
			res.Timestamp = time.Now().UTC()
		}
		return res, nil
	}
}

// sleep waits out the exponential backoff for the given attempt, with
// jitter, or returns early when the run is cancelled.
func (r *Router) sleep(ctx context.Context, attempt int) error {
	delay := r.cfg.BackoffBase << (attempt - 1)
	if delay > r.cfg.BackoffMax {
		delay = r.cfg.BackoffMax
	}
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DispatchAll verifies independent claims in parallel up to the configured
// concurrency limit. Claims share no mutable state, so results are written
// to disjoint slots. A registry resolution failure or cancellation aborts
// the batch; adapter failures do not.
func (r *Router) DispatchAll(ctx context.Context, claims []claim.Claim, artifactVersion int) ([]claim.VerificationResult, error) {
	results := make([]claim.VerificationResult, len(claims))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)
	for i, c := range claims {
		eg.Go(func() error {
			res, err := r.Dispatch(egCtx, c, artifactVersion)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
