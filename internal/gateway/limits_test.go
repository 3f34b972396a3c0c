package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestGlobalLimiter(t *testing.T) {
	l := NewGlobalLimiter(2)
	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())

	l.Release()
	assert.True(t, l.Acquire())

	l.Release()
	l.Release()
	l.Release()
	assert.Equal(t, int64(0), l.Current(), "release never goes negative")
}

func TestGlobalLimiter_Concurrent(t *testing.T) {
	l := NewGlobalLimiter(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}

func TestIPLimiter(t *testing.T) {
	l := NewIPLimiter(1)
	assert.True(t, l.Acquire("10.0.0.1"))
	assert.False(t, l.Acquire("10.0.0.1"))
	assert.True(t, l.Acquire("10.0.0.2"))

	l.Release("10.0.0.1")
	assert.Equal(t, 0, l.Count("10.0.0.1"))
	assert.True(t, l.Acquire("10.0.0.1"))
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewRateLimiter(1, 2, clock)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per address")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestRateLimiter_DropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewRateLimiter(1, 1, clock)

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	assert.Equal(t, 2, l.ActiveLimiters())

	clock.Advance(11 * time.Minute)
	l.Allow("10.0.0.3")
	assert.Equal(t, 1, l.ActiveLimiters())
}

func TestLimits_Acquire(t *testing.T) {
	clock := clockwork.NewFakeClock()

	l := NewLimits(1, 5, 100, 100, clock)
	ok, _ := l.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, reason := l.Acquire("10.0.0.2")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
	l.Release("10.0.0.1")
	assert.Equal(t, int64(0), l.Global().Current())

	l = NewLimits(5, 1, 100, 100, clock)
	ok, _ = l.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, reason = l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), l.Global().Current(), "a per-address refusal gives back the global slot")

	l = NewLimits(5, 5, 1, 1, clock)
	ok, _ = l.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, reason = l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}
