// Package memory is an in-process SnapshotWriter used by tests and local
// runs without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"forecast/internal/core"
)

type Store struct {
	mu   sync.Mutex
	rows []core.Snapshot
	fail error
}

func New() *Store {
	return &Store{}
}

// FailWith makes every subsequent append return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// AppendSnapshot records the snapshot and returns a synthetic row reference.
func (s *Store) AppendSnapshot(_ context.Context, snap core.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, snap)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Snapshot(nil), s.rows...)
}
