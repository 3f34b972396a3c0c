package hub

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Counters holds a connection count per group. Counts never go below zero.
type Counters struct {
	counts cmap.ConcurrentMap[string, *atomic.Int64]
}

func NewCounters() *Counters {
	return &Counters{counts: cmap.New[*atomic.Int64]()}
}

func (c *Counters) counter(group string) *atomic.Int64 {
	return c.counts.Upsert(group, nil, func(exist bool, current, _ *atomic.Int64) *atomic.Int64 {
		if exist {
			return current
		}
		return new(atomic.Int64)
	})
}

// Increment adds one to the group's count and returns the new value.
func (c *Counters) Increment(group string) int64 {
	return c.counter(group).Add(1)
}

// Decrement subtracts one from the group's count, stopping at zero, and returns the new value.
func (c *Counters) Decrement(group string) int64 {
	counter, ok := c.counts.Get(group)
	if !ok {
		return 0
	}
	for {
		current := counter.Load()
		if current <= 0 {
			return 0
		}
		if counter.CompareAndSwap(current, current-1) {
			return current - 1
		}
	}
}

// Forget drops the group's counter if it is zero, so groups that have emptied do not
// accumulate.
func (c *Counters) Forget(group string) {
	c.counts.RemoveCb(group, func(_ string, counter *atomic.Int64, exists bool) bool {
		return exists && counter.Load() <= 0
	})
}

func (c *Counters) Get(group string) int64 {
	counter, ok := c.counts.Get(group)
	if !ok {
		return 0
	}
	return counter.Load()
}

// Snapshot copies every non-zero count.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for item := range c.counts.IterBuffered() {
		if n := item.Val.Load(); n > 0 {
			out[item.Key] = n
		}
	}
	return out
}
