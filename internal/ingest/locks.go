package ingest

import (
	"sync"

	"github.com/sells-group/leadsync/internal/model"
)

// scopeLocks serializes get-or-create for the same tag key across imports
// running on one Engine. Entries are dropped when no holder remains.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[model.TagKey]*scopeLock
}

type scopeLock struct {
	mu   sync.Mutex
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[model.TagKey]*scopeLock)}
}

// lock acquires the lock for key and returns its release func.
func (s *scopeLocks) lock(key model.TagKey) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &scopeLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *scopeLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
