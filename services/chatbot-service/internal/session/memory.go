package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

// MemoryStore is a single-process Store. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]*memoryLock
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]*memoryLock),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, sender string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sender]
	if !ok {
		return State{}, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, sender)
		return State{}, false, nil
	}
	return cloneState(e.state), true, nil
}

func (s *MemoryStore) Put(_ context.Context, sender string, st State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memoryEntry{state: cloneState(st)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[sender] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sender)
	return nil
}

// Lock blocks until the sender's lock is free or ctx is done.
func (s *MemoryStore) Lock(ctx context.Context, sender string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[sender]
	if !ok {
		l = &memoryLock{ch: make(chan struct{}, 1)}
		s.locks[sender] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		s.release(sender, l)
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			s.release(sender, l)
		})
	}, nil
}

func (s *MemoryStore) release(sender string, l *memoryLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sender)
	}
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for sender, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, sender)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 && onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneState(st State) State {
	if st.StaffOptions != nil {
		st.StaffOptions = append([]Option(nil), st.StaffOptions...)
	}
	if st.AvailableTimes != nil {
		st.AvailableTimes = append([]string(nil), st.AvailableTimes...)
	}
	return st
}

var _ Store = (*MemoryStore)(nil)
