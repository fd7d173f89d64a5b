package ledger

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriloop/internal/claim"
)

func snapshot(runID string, iteration int, results ...claim.VerificationResult) claim.Snapshot {
	claims := make([]claim.Claim, 0, len(results))
	for _, r := range results {
		claims = append(claims, claim.Claim{ID: r.ClaimID, Domain: "d1", Statement: "s-" + r.ClaimID})
	}
	return claim.Snapshot{
		RunID:           runID,
		Iteration:       iteration,
		ArtifactVersion: iteration,
		ArtifactHash:    "hash",
		Claims:          claims,
		Results:         results,
		Status:          claim.StatusVerifying,
		Timestamp:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func result(claimID string, v claim.Verdict) claim.VerificationResult {
	return claim.VerificationResult{
		ClaimID:   claimID,
		Verdict:   v,
		OracleID:  "d1",
		Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryAppendAndReplay(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(snapshot("r1", 1, result("c1", claim.Falsified))))
	require.NoError(t, m.Append(snapshot("r1", 2, result("c1", claim.Verified))))
	require.NoError(t, m.Append(snapshot("r2", 1, result("x", claim.Verified))))

	snaps, err := m.Replay("r1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].Iteration)
	assert.Equal(t, 2, snaps[1].Iteration)

	assert.ElementsMatch(t, []string{"r1", "r2"}, m.Runs())
}

func TestMemoryAppendOnly(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(snapshot("r1", 2)))
	require.Error(t, m.Append(snapshot("r1", 2)), "same iteration must be rejected")
	require.Error(t, m.Append(snapshot("r1", 1)), "earlier iteration must be rejected")
	require.NoError(t, m.Append(snapshot("r1", 3)))
}

func TestMemoryRejectsMissingRunID(t *testing.T) {
	m := NewMemory()
	require.Error(t, m.Append(claim.Snapshot{Iteration: 1}))
}

func TestMemoryReplayUnknownRun(t *testing.T) {
	m := NewMemory()
	_, err := m.Replay("ghost")
	require.Error(t, err)
}

func TestMemoryReplayReturnsCopies(t *testing.T) {
	m := NewMemory()
	snap := snapshot("r1", 1, result("c1", claim.Verified))
	snap.Plan = &claim.RemediationPlan{
		TargetClaimIDs: []string{"c1"},
		Guidance:       map[string]claim.Guidance{"c1": {Domain: "d1", Guidance: "fix"}},
	}
	require.NoError(t, m.Append(snap))

	first, err := m.Replay("r1")
	require.NoError(t, err)
	first[0].Results[0].Verdict = claim.Falsified
	first[0].Plan.Guidance["c1"] = claim.Guidance{Guidance: "tampered"}

	second, err := m.Replay("r1")
	require.NoError(t, err)
	assert.Equal(t, claim.Verified, second[0].Results[0].Verdict,
		"committed history must not be mutable through replay")
	assert.Equal(t, "fix", second[0].Plan.Guidance["c1"].Guidance)
}

func TestFileLedgerRoundTrip(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	want := []claim.Snapshot{
		snapshot("r1", 1, result("c1", claim.Falsified), result("c2", claim.Verified)),
		snapshot("r1", 2, result("c1", claim.Verified), result("c2", claim.Verified)),
	}
	for _, s := range want {
		require.NoError(t, f.Append(s))
	}

	got, err := f.Replay("r1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replay mismatch (-want +got):\n%s", diff)
	}
}

func TestFileLedgerAppendOnly(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, f.Append(snapshot("r1", 1)))
	require.Error(t, f.Append(snapshot("r1", 1)))
}

func TestFileLedgerUnknownRun(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	_, err = f.Replay("ghost")
	require.Error(t, err)
}

func TestFanoutMirrorsAppends(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	led := Fanout{a, b}
	require.NoError(t, led.Append(snapshot("r1", 1)))

	for _, m := range []*Memory{a, b} {
		snaps, err := m.Replay("r1")
		require.NoError(t, err)
		require.Len(t, snaps, 1)
	}

	snaps, err := led.Replay("r1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestDiffReportsFlips(t *testing.T) {
	prev := snapshot("r1", 1,
		result("c1", claim.Falsified),
		result("c2", claim.Verified),
		result("c3", claim.Unverifiable),
	)
	next := snapshot("r1", 2,
		result("c1", claim.Verified),
		result("c2", claim.Verified),
		result("c4", claim.Verified),
	)

	d := Diff(prev, next)
	require.Len(t, d.Flips, 1)
	assert.Equal(t, Flip{ClaimID: "c1", From: claim.Falsified, To: claim.Verified}, d.Flips[0])
	assert.Equal(t, []string{"c4"}, d.Added)
	assert.Equal(t, []string{"c3"}, d.Removed)
}

func TestDiffIterations(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(snapshot("r1", 1, result("c1", claim.Falsified))))
	require.NoError(t, m.Append(snapshot("r1", 2, result("c1", claim.Verified))))

	d, err := DiffIterations(m, "r1", 1, 2)
	require.NoError(t, err)
	require.Len(t, d.Flips, 1)
	assert.Equal(t, claim.Falsified, d.Flips[0].From)
	assert.Equal(t, claim.Verified, d.Flips[0].To)

	_, err = DiffIterations(m, "r1", 1, 9)
	require.Error(t, err)
}
