package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"veriloop/internal/claim"
)

// File is a JSONL-backed ledger: one file per run, one JSON object per
// snapshot, append-only. The format is the external audit/replay contract;
// any tool that reads line-delimited JSON can consume it.
type File struct {
	mu  sync.Mutex
	dir string
	// last committed iteration per run, to enforce append-only ordering
	// without re-reading files on every append.
	lastIteration map[string]int
}

// NewFile creates a file ledger rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: creating %s: %w", dir, err)
	}
	return &File{dir: dir, lastIteration: make(map[string]int)}, nil
}

func (f *File) runPath(runID string) string {
	return filepath.Join(f.dir, runID+".jsonl")
}

// Append implements Ledger.
func (f *File) Append(snap claim.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("ledger: snapshot missing run id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.lastIteration[snap.RunID]; ok && snap.Iteration <= last {
		return fmt.Errorf("ledger: run %s iteration %d not after %d (append-only)",
			snap.RunID, snap.Iteration, last)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ledger: marshaling snapshot: %w", err)
	}
	file, err := os.OpenFile(f.runPath(snap.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: opening run file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ledger: appending snapshot: %w", err)
	}

	f.lastIteration[snap.RunID] = snap.Iteration
	return nil
}

// Replay implements Ledger.
func (f *File) Replay(runID string) ([]claim.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ledger: unknown run %s", runID)
		}
		return nil, fmt.Errorf("ledger: opening run file: %w", err)
	}
	defer file.Close()

	var snaps []claim.Snapshot
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap claim.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return nil, fmt.Errorf("ledger: corrupt snapshot in run %s: %w", runID, err)
		}
		snaps = append(snaps, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: reading run %s: %w", runID, err)
	}
	return snaps, nil
}
