package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	turns      []Turn
	lastActive time.Time
}

// InMemoryStore keeps conversation history in a mutex-guarded map. The
// janitor evicts identities whose history has been idle too long, so the
// identity space cannot grow without bound.
type InMemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	idleTimeout time.Duration
	onEvict     func(identity string)
}

func NewInMemoryStore(idleTimeout time.Duration) *InMemoryStore {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &InMemoryStore{
		entries:     make(map[string]*entry),
		idleTimeout: idleTimeout,
	}
}

// SetEvictHook registers a callback invoked once per evicted identity.
func (s *InMemoryStore) SetEvictHook(hook func(identity string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

func (s *InMemoryStore) History(_ context.Context, identity string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[identity]
	if !ok || len(e.turns) == 0 {
		return nil, nil
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *InMemoryStore) CommitExchange(_ context.Context, identity, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok {
		e = &entry{}
		s.entries[identity] = e
	}
	e.turns = append(e.turns,
		Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: assistantText},
	)
	if limit := MaxExchanges * 2; len(e.turns) > limit {
		trimmed := make([]Turn, limit)
		copy(trimmed, e.turns[len(e.turns)-limit:])
		e.turns = trimmed
	}
	e.lastActive = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Reset(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// ActiveIdentities reports how many identities currently hold history.
func (s *InMemoryStore) ActiveIdentities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor sweeps idle identities until ctx is canceled.
func (s *InMemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

func (s *InMemoryStore) evictIdle() {
	now := time.Now().UTC()
	var evicted []string

	s.mu.Lock()
	for identity, e := range s.entries {
		if now.Sub(e.lastActive) < s.idleTimeout {
			continue
		}
		delete(s.entries, identity)
		evicted = append(evicted, identity)
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, identity := range evicted {
			hook(identity)
		}
	}
}
