package audit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Storage persists and queries audit events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// Criteria filters audit events. Zero-valued fields match everything.
// Results are ordered newest first.
type Criteria struct {
	ActorID    string
	Subject    string
	Action     string
	Resource   string
	ResourceID string
	Result     Result
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

// Matches reports whether e satisfies every non-zero field of c.
func (c Criteria) Matches(e Event) bool {
	switch {
	case c.ActorID != "" && e.ActorID != c.ActorID:
		return false
	case c.Subject != "" && e.Subject != c.Subject:
		return false
	case c.Action != "" && e.Action != c.Action:
		return false
	case c.Resource != "" && e.Resource != c.Resource:
		return false
	case c.ResourceID != "" && e.ResourceID != c.ResourceID:
		return false
	case c.Result != "" && e.Result != c.Result:
		return false
	case !c.StartTime.IsZero() && e.CreatedAt.Before(c.StartTime):
		return false
	case !c.EndTime.IsZero() && !e.CreatedAt.Before(c.EndTime):
		return false
	}
	return true
}

// MemoryStorage keeps events in memory. Suitable for tests and single-process tools.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemoryStorage) Query(_ context.Context, c Criteria) ([]Event, error) {
	s.mu.RLock()
	var matched []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if c.Matches(s.events[i]) {
			matched = append(matched, s.events[i])
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if c.Offset > 0 {
		if c.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[c.Offset:]
	}
	if c.Limit > 0 && len(matched) > c.Limit {
		matched = matched[:c.Limit]
	}
	return matched, nil
}
