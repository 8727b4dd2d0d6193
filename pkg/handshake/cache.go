package handshake

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a client may take to complete a handshake.
// Browsers finish the three round-trips in well under a second; a few
// minutes leaves room for slow links and retries.
const DefaultTTL = 5 * time.Minute

// StateCache is a time-bounded mapping from session token to handshake
// state.
//
// Steps for the same token arrive on different HTTP requests, potentially
// concurrently (a retried negotiate probe while an authenticate is in
// flight). Implementations must be atomic per key: TryGet never observes a
// torn state, and Update applies its mutation under a per-entry lock so no
// write is lost between a lookup and a mutation. An expired entry is never
// returned; whether expiry is passive or swept in the background is an
// implementation detail.
type StateCache interface {
	// Add inserts or overwrites the state for a token, starting its TTL.
	Add(token string, state *State)

	// TryGet returns a consistent snapshot of a live entry's state.
	// Returns false for missing or expired tokens.
	TryGet(token string) (*State, bool)

	// Update applies fn to the live state under the entry's lock.
	// Returns false if the entry is missing or expired; fn is not called.
	Update(token string, fn func(*State)) bool

	// Remove deletes an entry. Removing an absent token is a no-op.
	Remove(token string)
}

// ============================================================================
// MemoryStateCache - In-memory implementation
// ============================================================================

// entry pairs a state with its deadline. The per-entry mutex serializes
// mutation without blocking unrelated tokens.
type entry struct {
	mu        sync.Mutex
	state     *State
	expiresAt time.Time
}

// MemoryStateCache is an in-memory StateCache with TTL expiry.
//
// Expiry is both passive (checked at lookup) and active (a background sweep
// reclaims abandoned entries), so memory is bounded by TTL times the
// handshake arrival rate rather than growing without limit.
//
// Thread safety: operations on different tokens are fully parallel;
// operations on the same token are serialized by the entry lock.
type MemoryStateCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	metrics Metrics
	stop    chan struct{}
	done    chan struct{}
}

// NewMemoryStateCache creates a cache whose entries live for ttl and starts
// the background sweep. ttl <= 0 falls back to DefaultTTL. metrics may be
// nil. Call Close to stop the sweep.
func NewMemoryStateCache(ttl time.Duration, metrics Metrics) *MemoryStateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryStateCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Add inserts or overwrites the state for a token.
func (c *MemoryStateCache) Add(token string, state *State) {
	e := &entry{
		state:     state,
		expiresAt: time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	c.entries[token] = e
	size := len(c.entries)
	c.mu.Unlock()

	c.reportSize(size)
}

// lookup returns the live entry for a token, treating expired entries as
// absent.
func (c *MemoryStateCache) lookup(token string) (*entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		// Passive expiry; the sweep reclaims the map slot.
		return nil, false
	}
	return e, true
}

// TryGet returns a consistent snapshot of a live entry's state.
func (c *MemoryStateCache) TryGet(token string) (*State, bool) {
	e, ok := c.lookup(token)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	snapshot := e.state.clone()
	e.mu.Unlock()

	return snapshot, true
}

// Update applies fn to the live state under the entry's lock.
func (c *MemoryStateCache) Update(token string, fn func(*State)) bool {
	e, ok := c.lookup(token)
	if !ok {
		return false
	}

	e.mu.Lock()
	fn(e.state)
	e.mu.Unlock()

	return true
}

// Remove deletes an entry.
func (c *MemoryStateCache) Remove(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	size := len(c.entries)
	c.mu.Unlock()

	c.reportSize(size)
}

// Len returns the number of entries, expired ones included until swept.
func (c *MemoryStateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweep periodically removes expired entries.
func (c *MemoryStateCache) sweep() {
	defer close(c.done)

	interval := c.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for token, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, token)
				}
			}
			size := len(c.entries)
			c.mu.Unlock()

			c.reportSize(size)
		}
	}
}

func (c *MemoryStateCache) reportSize(n int) {
	if c.metrics != nil {
		c.metrics.CacheEntries(n)
	}
}

// Close stops the background sweep. The cache remains usable afterwards
// with passive expiry only.
func (c *MemoryStateCache) Close() {
	select {
	case <-c.stop:
		// already closed
	default:
		close(c.stop)
		<-c.done
	}
}
