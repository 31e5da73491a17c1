// Package memory keeps snapshots in process when no spreadsheet is
// configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"konto/internal/core"
	ports "konto/internal/sheets"
)

var (
	_ ports.SnapshotWriter = (*Store)(nil)
	_ ports.HistoryReader  = (*Store)(nil)
)

type Store struct {
	mu        sync.Mutex
	snapshots []core.Snapshot
	rows      int
}

func New() *Store {
	return &Store{}
}

// AppendSnapshot stores the snapshot and returns a synthetic row range.
func (s *Store) AppendSnapshot(_ context.Context, snap core.Snapshot) (string, error) {
	n := len(ports.Rows(snap))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	first := s.rows + 1
	s.rows += n
	return fmt.Sprintf("mem:%d-%d", first, s.rows), nil
}

// NetWorthHistory returns the stored net worth values oldest first.
func (s *Store) NetWorthHistory(_ context.Context) ([]ports.HistoryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.HistoryPoint, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = ports.HistoryPoint{TakenAt: snap.TakenAt, NetWorth: snap.Totals.NetWorth}
	}
	return out, nil
}

// Snapshots returns a copy of everything appended so far.
func (s *Store) Snapshots() []core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snapshots)
}
