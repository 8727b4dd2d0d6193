package handshake

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *MemoryStateCache {
	t.Helper()
	c := NewMemoryStateCache(ttl, nil)
	t.Cleanup(c.Close)
	return c
}

func TestCacheAddAndTryGet(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Add("tok", NewState(Properties{RedirectURL: "/docs"}))

	st, ok := c.TryGet("tok")
	require.True(t, ok)
	assert.Equal(t, "/docs", st.Properties.RedirectURL)

	_, ok = c.TryGet("missing")
	assert.False(t, ok)
}

func TestCacheAddOverwrites(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Add("tok", NewState(Properties{RedirectURL: "/first"}))
	c.Add("tok", NewState(Properties{RedirectURL: "/second"}))

	st, ok := c.TryGet("tok")
	require.True(t, ok)
	assert.Equal(t, "/second", st.Properties.RedirectURL)
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(t, 30*time.Millisecond)

	c.Add("tok", NewState(Properties{RedirectURL: "/"}))

	_, ok := c.TryGet("tok")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = c.TryGet("tok")
	assert.False(t, ok, "expired entry must never be returned")

	assert.False(t, c.Update("tok", func(*State) {
		t.Error("update fn must not run on an expired entry")
	}))
}

func TestCacheSweepReclaims(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond)

	for i := 0; i < 10; i++ {
		c.Add(fmt.Sprintf("tok-%d", i), NewState(Properties{RedirectURL: "/"}))
	}
	require.Equal(t, 10, c.Len())

	// TTL 20ms puts the sweep interval at 10ms.
	assert.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 10*time.Millisecond,
		"background sweep should reclaim expired entries")
}

func TestCacheUpdate(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Add("tok", NewState(Properties{RedirectURL: "/"}))

	ok := c.Update("tok", func(s *State) {
		s.ServerChallenge = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	})
	require.True(t, ok)

	st, ok := c.TryGet("tok")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, st.ServerChallenge)

	assert.False(t, c.Update("missing", func(*State) {}))
}

func TestCacheRemove(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Add("tok", NewState(Properties{RedirectURL: "/"}))
	c.Remove("tok")

	_, ok := c.TryGet("tok")
	assert.False(t, ok)

	// Removing an absent token is a no-op.
	c.Remove("tok")
}

func TestCacheSnapshotIsolation(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Add("tok", NewState(Properties{RedirectURL: "/"}))

	snap, ok := c.TryGet("tok")
	require.True(t, ok)
	snap.ServerChallenge = []byte{0xFF}

	again, ok := c.TryGet("tok")
	require.True(t, ok)
	assert.Nil(t, again.ServerChallenge,
		"mutating a snapshot must not affect the cached state")
}

// Interleaved writers and readers on the same token: every read must see an
// internally consistent state, never a half-applied update.
func TestCacheNoTornReads(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.Add("tok", NewState(Properties{RedirectURL: "/"}))

	challengeA := bytes.Repeat([]byte{0xAA}, 8)
	challengeB := bytes.Repeat([]byte{0xBB}, 8)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	writer := func(challenge []byte, ctx Context) {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Update("tok", func(s *State) {
					s.ServerChallenge = challenge
					s.Context = ctx
				})
			}
		}
	}

	wg.Add(2)
	go writer(challengeA, "ctx-a")
	go writer(challengeB, "ctx-b")

	var readErr error
	var readOnce sync.Once
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				st, ok := c.TryGet("tok")
				if !ok {
					continue
				}
				if st.Context == nil {
					continue // initial state, nothing written yet
				}
				want := challengeA
				if st.Context == Context("ctx-b") {
					want = challengeB
				}
				if !bytes.Equal(st.ServerChallenge, want) {
					readOnce.Do(func() {
						readErr = fmt.Errorf("torn read: context %v with challenge %x",
							st.Context, st.ServerChallenge)
					})
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()

	require.NoError(t, readErr)
}

func TestCacheConcurrentTokens(t *testing.T) {
	c := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tok := fmt.Sprintf("tok-%d", n)
			for j := 0; j < 100; j++ {
				c.Add(tok, NewState(Properties{RedirectURL: tok}))
				if st, ok := c.TryGet(tok); ok {
					assert.Equal(t, tok, st.Properties.RedirectURL)
				}
				c.Remove(tok)
			}
		}(i)
	}
	wg.Wait()
}

func TestCacheCloseIdempotent(t *testing.T) {
	c := NewMemoryStateCache(time.Minute, nil)
	c.Close()
	c.Close()

	// Cache stays usable with passive expiry after Close.
	c.Add("tok", NewState(Properties{RedirectURL: "/"}))
	_, ok := c.TryGet("tok")
	assert.True(t, ok)
}
