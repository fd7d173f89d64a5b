package ledger

import (
	"fmt"
	"sort"

	"veriloop/internal/claim"
)

// Flip records one claim whose verdict changed between two snapshots.
type Flip struct {
	ClaimID string        `json:"claim_id"`
	From    claim.Verdict `json:"from"`
	To      claim.Verdict `json:"to"`
}

// DiffResult reports what changed for a run between two iterations.
type DiffResult struct {
	Flips   []Flip   `json:"flips"`
	Added   []string `json:"added_claims,omitempty"`
	Removed []string `json:"removed_claims,omitempty"`
}

// Diff compares two snapshots of the same run and reports verdict flips
// plus claims that appeared or disappeared between them. Claim IDs are
// stable across iterations, which is what makes this comparison possible.
func Diff(prev, next claim.Snapshot) DiffResult {
	prevVerdicts := verdictsByClaim(prev)
	nextVerdicts := verdictsByClaim(next)

	var out DiffResult
	for id, was := range prevVerdicts {
		now, ok := nextVerdicts[id]
		if !ok {
			out.Removed = append(out.Removed, id)
			continue
		}
		if was != now {
			out.Flips = append(out.Flips, Flip{ClaimID: id, From: was, To: now})
		}
	}
	for id := range nextVerdicts {
		if _, ok := prevVerdicts[id]; !ok {
			out.Added = append(out.Added, id)
		}
	}

	sort.Slice(out.Flips, func(i, j int) bool { return out.Flips[i].ClaimID < out.Flips[j].ClaimID })
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	return out
}

// DiffIterations replays a run and diffs two of its iterations.
func DiffIterations(l Ledger, runID string, from, to int) (DiffResult, error) {
	snaps, err := l.Replay(runID)
	if err != nil {
		return DiffResult{}, err
	}
	var prev, next *claim.Snapshot
	for i := range snaps {
		switch snaps[i].Iteration {
		case from:
			prev = &snaps[i]
		case to:
			next = &snaps[i]
		}
	}
	if prev == nil || next == nil {
		return DiffResult{}, errMissingIteration(runID, from, to)
	}
	return Diff(*prev, *next), nil
}

// verdictsByClaim indexes a snapshot's results by claim ID. A claim that
// was extracted but never verified is absent, not mapped to any verdict.
func verdictsByClaim(s claim.Snapshot) map[string]claim.Verdict {
	m := make(map[string]claim.Verdict, len(s.Results))
	for _, r := range s.Results {
		m[r.ClaimID] = r.Verdict
	}
	return m
}

func errMissingIteration(runID string, from, to int) error {
	return fmt.Errorf("ledger: run %s has no snapshots for iterations %d and %d", runID, from, to)
}
