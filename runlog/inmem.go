package runlog

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// InmemStore is a process-local Store, useful for tests and local
// development. It is not durable: events are lost on process restart. This
// is the "in-memory stub" persistence adapter the spec explicitly leaves as
// an external collaborator's concern in production, but allows as a
// reference implementation (§1).
type InmemStore struct {
	mu     sync.Mutex
	events map[string][]*Event
	seq    int
}

// NewInmemStore constructs an empty in-memory run log store.
func NewInmemStore() *InmemStore {
	return &InmemStore{events: make(map[string][]*Event)}
}

func (s *InmemStore) Append(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.ID = strconv.Itoa(s.seq)
	s.events[e.RunID] = append(s.events[e.RunID], e)
	return nil
}

func (s *InmemStore) List(_ context.Context, runID string, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, fmt.Errorf("runlog: limit must be greater than zero")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.events[runID]
	start := 0
	if cursor != "" {
		idx, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("runlog: invalid cursor %q: %w", cursor, err)
		}
		start = idx
	}
	if start >= len(all) {
		return Page{}, nil
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := Page{Events: all[start:end]}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
