package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Chat contract: each identity gets 30 requests per trailing minute.
const (
	DefaultMaxRequests = 30
	DefaultWindow      = time.Minute
)

// Limiter is a sliding-window request log keyed by identity. Windows live
// in an LRU so the identity space stays bounded; evicting a cold identity
// only means a returning caller starts with a fresh window.
type Limiter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
	max     int
	window  time.Duration
}

// NewLimiter builds a limiter admitting max requests per window, tracking
// at most identityCap identities.
func NewLimiter(max int, window time.Duration, identityCap int) (*Limiter, error) {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if identityCap <= 0 {
		identityCap = 4096
	}
	windows, err := lru.New[string, []time.Time](identityCap)
	if err != nil {
		return nil, err
	}
	return &Limiter{
		windows: windows,
		max:     max,
		window:  window,
	}, nil
}

// Admit prunes the identity's window to the trailing period and then either
// records the request and admits it, or rejects it without recording when
// the window is full. Pruning happens on every call, rejections included.
func (l *Limiter) Admit(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	times, _ := l.windows.Get(identity)
	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= l.max {
		l.windows.Add(identity, pruned)
		return false
	}
	l.windows.Add(identity, append(pruned, now))
	return true
}

// WindowLen reports how many requests the identity has recorded inside the
// current window.
func (l *Limiter) WindowLen(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	times, _ := l.windows.Peek(identity)
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// TrackedIdentities reports how many identities currently hold a window.
func (l *Limiter) TrackedIdentities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windows.Len()
}
