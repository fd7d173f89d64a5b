package claim

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerdictConstants(t *testing.T) {
	verdicts := []Verdict{Verified, Falsified, Partial, Unverifiable}
	for _, v := range verdicts {
		if string(v) == "" {
			t.Errorf("Verdict %v has empty string value", v)
		}
	}
}

func TestVerdictFailure(t *testing.T) {
	if Verified.Failure() {
		t.Error("Verified should not count as failure")
	}
	for _, v := range []Verdict{Falsified, Partial, Unverifiable} {
		if !v.Failure() {
			t.Errorf("%s should count as failure", v)
		}
	}
}

func TestVerdictRemediable(t *testing.T) {
	if !Falsified.Remediable() || !Partial.Remediable() {
		t.Error("Falsified and Partial should be remediable")
	}
	if Verified.Remediable() {
		t.Error("Verified should not be remediable")
	}
	// There is nothing a generator can fix about an oracle that timed out.
	if Unverifiable.Remediable() {
		t.Error("Unverifiable should not be remediable")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	terminal := []RunStatus{StatusConverged, StatusExhausted, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []RunStatus{StatusInit, StatusExtracting, StatusVerifying, StatusRemediating, StatusRegenerating}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("code", "function compiles", 0)
	b := DeriveID("code", "function compiles", 0)
	if a != b {
		t.Errorf("same input produced different IDs: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char ID, got %d chars", len(a))
	}
}

func TestDeriveIDPositionDisambiguates(t *testing.T) {
	a := DeriveID("code", "function compiles", 0)
	b := DeriveID("code", "function compiles", 1)
	if a == b {
		t.Error("duplicate statements at different positions must get distinct IDs")
	}
}

func TestDeriveIDDomainScoped(t *testing.T) {
	a := DeriveID("code", "holds", 0)
	b := DeriveID("policy", "holds", 0)
	if a == b {
		t.Error("same statement in different domains must get distinct IDs")
	}
}

func TestArtifactHashStable(t *testing.T) {
	a := Artifact{Version: 1, Content: "hello"}
	if a.Hash() != a.Hash() {
		t.Error("artifact hash is not stable")
	}
	b := Artifact{Version: 2, Content: "hello"}
	if a.Hash() != b.Hash() {
		t.Error("artifact hash should depend on content only, not version")
	}
	c := Artifact{Version: 1, Content: "other"}
	if a.Hash() == c.Hash() {
		t.Error("different content must hash differently")
	}
}

func TestRunStateVerifiedCount(t *testing.T) {
	state := &RunState{
		Claims: []Claim{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}},
		Results: map[string]VerificationResult{
			"c1": {ClaimID: "c1", Verdict: Verified},
			"c2": {ClaimID: "c2", Verdict: Partial},
		},
	}
	if got := state.VerifiedCount(); got != 1 {
		t.Errorf("VerifiedCount = %d, want 1", got)
	}
	if state.Converged() {
		t.Error("run with partial and missing results must not be converged")
	}
}

func TestRunStateConverged(t *testing.T) {
	state := &RunState{
		Claims: []Claim{{ID: "c1"}, {ID: "c2"}},
		Results: map[string]VerificationResult{
			"c1": {ClaimID: "c1", Verdict: Verified},
			"c2": {ClaimID: "c2", Verdict: Verified},
		},
	}
	if !state.Converged() {
		t.Error("all-verified run should be converged")
	}

	empty := &RunState{}
	if empty.Converged() {
		t.Error("run with no claims must not count as converged")
	}
}

func TestRunErrorContext(t *testing.T) {
	snap := &Snapshot{RunID: "r1", Iteration: 2, Timestamp: time.Now()}
	err := &RunError{
		RunID:     "r1",
		Iteration: 3,
		Domain:    "code",
		ClaimID:   "c9",
		Snapshot:  snap,
		Err:       ErrDomainNotFound,
	}
	if !errors.Is(err, ErrDomainNotFound) {
		t.Error("RunError should unwrap to its cause")
	}
	msg := err.Error()
	for _, want := range []string{"r1", "code", "c9"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}
