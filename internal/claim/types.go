// Package claim provides the shared data model for verification runs.
// This package exists to break import cycles between the registry, router,
// and loop packages. Types here are foundational data structures with no
// dependencies on the rest of the engine.
package claim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Verdict is the outcome of checking a single claim.
type Verdict string

const (
	// Verified means the oracle confirmed the claim against ground truth.
	Verified Verdict = "verified"
	// Falsified means the oracle found the claim to be wrong.
	Falsified Verdict = "falsified"
	// Partial means the claim holds in part; by default it does not count
	// toward convergence.
	Partial Verdict = "partial"
	// Unverifiable is reserved for adapter/infra failure (timeout, crash).
	// It is never a domain judgment and must not be conflated with
	// Falsified: a timed-out check is not evidence of a defect.
	Unverifiable Verdict = "unverifiable"
)

// Failure reports whether the verdict keeps a run from converging.
func (v Verdict) Failure() bool {
	return v != Verified
}

// Remediable reports whether the verdict should be fed to a domain's
// remediate call. Unverifiable results are excluded: there is nothing a
// generator can fix about an oracle that did not answer.
func (v Verdict) Remediable() bool {
	return v == Falsified || v == Partial
}

// Claim is a single testable assertion extracted from an artifact.
// A claim belongs to exactly one domain. IDs are stable across iterations
// of the same run so that ledger snapshots can be diffed.
type Claim struct {
	ID                   string `json:"id"`
	Domain               string `json:"domain"`
	Statement            string `json:"statement"`
	EvidenceRef          string `json:"evidence_ref,omitempty"`
	ExtractedAtIteration int    `json:"extracted_at_iteration"`
}

// DeriveID computes the stable claim identifier from content and position.
// Identical input yields identical IDs across repeated extraction; position
// disambiguates duplicate statements within one artifact.
func DeriveID(domain, statement string, position int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", domain, statement, position))
	return hex.EncodeToString(sum[:])[:16]
}

// VerificationResult is one oracle's answer for one claim.
type VerificationResult struct {
	ClaimID   string    `json:"claim_id"`
	Verdict   Verdict   `json:"verdict"`
	Evidence  []string  `json:"evidence,omitempty"`
	OracleID  string    `json:"oracle_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Guidance is one piece of remediation advice for a single claim,
// tagged with the domain that produced it.
type Guidance struct {
	Domain   string `json:"domain"`
	Guidance string `json:"guidance"`
}

// RemediationPlan is structured guidance for fixing failed claims,
// fed back to the external generator. Guidance is keyed by claim ID and
// keeps the producing domain attached, so guidance never leaks across
// domains.
type RemediationPlan struct {
	TargetClaimIDs      []string            `json:"target_claim_ids"`
	Guidance            map[string]Guidance `json:"per_claim_guidance"`
	ProducedAtIteration int                 `json:"produced_at_iteration"`
}

// Empty reports whether the plan contains no guidance.
func (p RemediationPlan) Empty() bool {
	return len(p.TargetClaimIDs) == 0
}

// Artifact is one version of the generated artifact under verification.
type Artifact struct {
	Version int    `json:"version"`
	Content string `json:"content"`
}

// Hash returns the hex sha256 of the artifact content.
func (a Artifact) Hash() string {
	sum := sha256.Sum256([]byte(a.Content))
	return hex.EncodeToString(sum[:])
}

// RunStatus is the state of a verification run's loop controller.
type RunStatus string

const (
	StatusInit         RunStatus = "init"
	StatusExtracting   RunStatus = "extracting"
	StatusVerifying    RunStatus = "verifying"
	StatusRemediating  RunStatus = "remediating"
	StatusRegenerating RunStatus = "regenerating"
	StatusConverged    RunStatus = "converged"
	StatusExhausted    RunStatus = "exhausted"
	StatusFailed       RunStatus = "failed"
)

// Terminal reports whether the status is final. Terminal states are
// immutable once reached, except for ledger appends.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusConverged, StatusExhausted, StatusFailed:
		return true
	}
	return false
}

// RunState is the full state of one verification run across its iterations.
// It is exclusively owned by its loop controller; no external actor mutates
// it mid-iteration.
type RunState struct {
	RunID         string                        `json:"run_id"`
	Artifact      Artifact                      `json:"artifact"`
	Domains       []string                      `json:"domains"`
	Iteration     int                           `json:"iteration"`
	MaxIterations int                           `json:"max_iterations"`
	Claims        []Claim                       `json:"claims"`
	Results       map[string]VerificationResult `json:"results"`
	Status        RunStatus                     `json:"status"`

	// VerifiedCounts records the number of Verified claims per committed
	// iteration; element i-1 belongs to iteration i. The regression check
	// reads consecutive entries.
	VerifiedCounts []int `json:"verified_counts"`
}

// VerifiedCount counts claims whose latest result is Verified.
func (s *RunState) VerifiedCount() int {
	n := 0
	for _, c := range s.Claims {
		if r, ok := s.Results[c.ID]; ok && r.Verdict == Verified {
			n++
		}
	}
	return n
}

// Converged reports whether every claim's latest result is Verified.
// Partial counts as not-converged.
func (s *RunState) Converged() bool {
	if len(s.Claims) == 0 {
		return false
	}
	return s.VerifiedCount() == len(s.Claims)
}

// Snapshot is the append-only ledger record of one committed iteration.
type Snapshot struct {
	RunID           string               `json:"run_id"`
	Iteration       int                  `json:"iteration"`
	ArtifactVersion int                  `json:"artifact_version"`
	ArtifactHash    string               `json:"artifact_hash"`
	Claims          []Claim              `json:"claims"`
	Results         []VerificationResult `json:"results"`
	Plan            *RemediationPlan     `json:"plan,omitempty"`
	Status          RunStatus            `json:"status"`
	Timestamp       time.Time            `json:"timestamp"`
}
