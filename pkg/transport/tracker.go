package transport

import (
	"sync"
	"time"
)

// connTracker holds connections that are still upgrading. A connection
// is removed when it is released, whatever path releases it.
type connTracker struct {
	mu    sync.Mutex
	conns map[*SecureConn]time.Time
}

func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[*SecureConn]time.Time),
	}
}

// Add records a connection with the current time.
func (t *connTracker) Add(c *SecureConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = time.Now()
}

// Remove forgets a connection. Safe to call for untracked connections.
func (t *connTracker) Remove(c *SecureConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

// Len returns the number of tracked connections.
func (t *connTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseStale closes connections tracked for longer than maxAge and
// returns how many were closed. Closing a connection re-enters the
// tracker through its release hook, so the stale set is collected
// first and closed with the lock dropped.
func (t *connTracker) CloseStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	var stale []*SecureConn
	for c, added := range t.conns {
		if added.Before(cutoff) {
			stale = append(stale, c)
			delete(t.conns, c)
		}
	}
	t.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// CloseAll closes every tracked connection.
func (t *connTracker) CloseAll() {
	t.mu.Lock()
	conns := make([]*SecureConn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[*SecureConn]time.Time)
	t.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
