package claim

import (
	"errors"
	"fmt"
)

// Run-level structural errors. Adapter-level failures (timeout, crash) are
// never surfaced as errors; the router downgrades them to Unverifiable
// verdicts and the run continues.
var (
	// ErrExtractionFailure means no claims were derivable from the
	// artifact. An empty claim set is never silently treated as "nothing
	// to verify".
	ErrExtractionFailure = errors.New("claim extraction produced no claims")

	// ErrDomainNotFound means a claim references a domain with no
	// registered binding. No oracle exists, so the run cannot proceed.
	ErrDomainNotFound = errors.New("domain not registered")

	// ErrDomainInactive means the domain exists but has been deactivated.
	// Deactivated domains are rejected, not silently skipped.
	ErrDomainInactive = errors.New("domain deactivated")

	// ErrRegressionDetected means the verified-claim count decreased
	// between consecutive iterations. Requires manual review; never
	// auto-retried.
	ErrRegressionDetected = errors.New("regression detected: verified claim count decreased")

	// ErrGenerationFailure means the external generator could not produce
	// the next artifact version.
	ErrGenerationFailure = errors.New("artifact generation failed")

	// ErrConfiguration means a registry record or engine setting is
	// malformed. Fatal at startup, before any run begins.
	ErrConfiguration = errors.New("invalid configuration")
)

// RunError is a run-fatal structural error surfaced to the caller with
// full context: the run, the iteration it died in, the failing claim or
// domain when known, and the last fully-committed snapshot.
type RunError struct {
	RunID     string
	Iteration int
	Domain    string
	ClaimID   string
	Snapshot  *Snapshot
	Err       error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("run %s iteration %d: %v", e.RunID, e.Iteration, e.Err)
	if e.Domain != "" {
		msg += fmt.Sprintf(" (domain %s)", e.Domain)
	}
	if e.ClaimID != "" {
		msg += fmt.Sprintf(" (claim %s)", e.ClaimID)
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }
