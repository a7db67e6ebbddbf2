package callstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process single-slot store useful for tests.
// It is not intended for production use: it does not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	rec    *PersistedCall
	window time.Duration
	now    func() time.Time

	// OnStale, when set, is invoked after a stale record is discarded.
	OnStale func()
}

func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultRecoveryWindow
	}
	return &MemoryStore{window: window, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, rec PersistedCall) error {
	s.mu.Lock()
	s.rec = &rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*PersistedCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return nil, nil
	}
	if s.now().UnixMilli()-s.rec.JoinTimestampMillis > s.window.Milliseconds() {
		s.rec = nil
		if s.OnStale != nil {
			s.OnStale()
		}
		return nil, nil
	}
	out := *s.rec
	return &out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	return nil
}
