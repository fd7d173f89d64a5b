// Package ledger records one append-only snapshot per committed iteration
// of a verification run, for audit, replay, and verdict diffing.
package ledger

import (
	"fmt"
	"sync"

	"veriloop/internal/claim"
)

// Ledger is the append-only snapshot log for verification runs.
type Ledger interface {
	// Append records one iteration snapshot. Snapshots for a run must
	// arrive with strictly increasing iteration numbers.
	Append(snap claim.Snapshot) error
	// Replay returns all snapshots for a run in append order.
	Replay(runID string) ([]claim.Snapshot, error)
}

// Memory is an in-process ledger. Snapshots are copied on append and on
// replay so callers can never mutate committed history.
type Memory struct {
	mu    sync.Mutex
	byRun map[string][]claim.Snapshot
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{byRun: make(map[string][]claim.Snapshot)}
}

// Append implements Ledger.
func (m *Memory) Append(snap claim.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("ledger: snapshot missing run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.byRun[snap.RunID]
	if len(prev) > 0 && snap.Iteration <= prev[len(prev)-1].Iteration {
		return fmt.Errorf("ledger: run %s iteration %d not after %d (append-only)",
			snap.RunID, snap.Iteration, prev[len(prev)-1].Iteration)
	}
	m.byRun[snap.RunID] = append(prev, copySnapshot(snap))
	return nil
}

// Replay implements Ledger.
func (m *Memory) Replay(runID string) ([]claim.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps, ok := m.byRun[runID]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown run %s", runID)
	}
	out := make([]claim.Snapshot, len(snaps))
	for i, s := range snaps {
		out[i] = copySnapshot(s)
	}
	return out, nil
}

// Runs lists run IDs with at least one snapshot.
func (m *Memory) Runs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]string, 0, len(m.byRun))
	for id := range m.byRun {
		runs = append(runs, id)
	}
	return runs
}

func copySnapshot(s claim.Snapshot) claim.Snapshot {
	out := s
	out.Claims = append([]claim.Claim(nil), s.Claims...)
	out.Results = append([]claim.VerificationResult(nil), s.Results...)
	if s.Plan != nil {
		plan := *s.Plan
		plan.TargetClaimIDs = append([]string(nil), s.Plan.TargetClaimIDs...)
		plan.Guidance = make(map[string]claim.Guidance, len(s.Plan.Guidance))
		for k, v := range s.Plan.Guidance {
			plan.Guidance[k] = v
		}
		out.Plan = &plan
	}
	return out
}

// Fanout appends to several ledgers and replays from the first. Used to
// keep an in-memory ledger for the controller while mirroring snapshots to
// an external sink.
type Fanout []Ledger

// Append implements Ledger. The first error wins; later ledgers are still
// attempted so sinks do not diverge silently.
func (f Fanout) Append(snap claim.Snapshot) error {
	var first error
	for _, l := range f {
		if err := l.Append(snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Replay implements Ledger.
func (f Fanout) Replay(runID string) ([]claim.Snapshot, error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("ledger: empty fanout")
	}
	return f[0].Replay(runID)
}
