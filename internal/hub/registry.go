package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Member is a connection that can be placed in groups.
type Member interface {
	ID() string
	// Enqueue hands a frame to the member's writer without blocking. It returns false when
	// the member cannot accept it.
	Enqueue(frame []byte) bool
	// Close terminates the member. It must be safe to call more than once.
	Close(reason string)
}

type group struct {
	mu      sync.RWMutex
	members map[string]Member
}

func (g *group) snapshot() []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	return out
}

// Registry maps group keys to their members and keeps the per-group Counters in step.
type Registry struct {
	groups   cmap.ConcurrentMap[string, *group]
	counters *Counters
	metrics  *metrics.WebSocketMetrics
}

func NewRegistry(m *metrics.WebSocketMetrics) *Registry {
	return &Registry{
		groups:   cmap.New[*group](),
		counters: NewCounters(),
		metrics:  m,
	}
}

// Join adds member to the group. It returns false if the member was already in it, in
// which case the count is left alone.
func (r *Registry) Join(key string, member Member) bool {
	added := false
	r.groups.Upsert(key, nil, func(exist bool, g, _ *group) *group {
		if !exist {
			g = &group{members: make(map[string]Member)}
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, dup := g.members[member.ID()]; dup {
			return g
		}
		g.members[member.ID()] = member
		r.counters.Increment(key)
		added = true
		return g
	})
	if added && r.metrics != nil {
		r.metrics.GroupMembers.Inc()
	}
	return added
}

// Leave removes member from the group and drops the group once it is empty. It returns
// false if the member was not in the group, in which case the count is left alone.
func (r *Registry) Leave(key string, member Member) bool {
	removed := false
	r.groups.RemoveCb(key, func(_ string, g *group, exists bool) bool {
		if !exists {
			return false
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.members[member.ID()]; ok {
			delete(g.members, member.ID())
			r.counters.Decrement(key)
			removed = true
		}
		if len(g.members) > 0 {
			return false
		}
		// Join for this key takes the same shard lock, so the count cannot rise meanwhile
		r.counters.Forget(key)
		return true
	})
	if removed && r.metrics != nil {
		r.metrics.GroupMembers.Dec()
	}
	return removed
}

// SendToGroup enqueues payload on every current member of the group. A group without members
// is not an error. Members that cannot keep up are closed, which runs their normal disconnect.
func (r *Registry) SendToGroup(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, ok := r.groups.Get(key)
	if !ok {
		return nil
	}
	for _, m := range g.snapshot() {
		if m.Enqueue(payload) {
			continue
		}
		slog.WarnContext(ctx, "Evicting slow client", "connection_id", m.ID(), "group", key)
		if r.metrics != nil {
			r.metrics.SlowClientsEvicted.Inc()
		}
		go m.Close("slow consumer")
	}
	return nil
}

// Members returns the ids of the group's members in sorted order.
func (r *Registry) Members(key string) []string {
	g, ok := r.groups.Get(key)
	if !ok {
		return nil
	}
	members := g.snapshot()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID())
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count(key string) int64 {
	return r.counters.Get(key)
}

func (r *Registry) Counts() map[string]int64 {
	return r.counters.Snapshot()
}

// CloseAll closes every member of every group.
func (r *Registry) CloseAll(reason string) {
	seen := make(map[string]Member)
	for item := range r.groups.IterBuffered() {
		for _, m := range item.Val.snapshot() {
			seen[m.ID()] = m
		}
	}
	var wg sync.WaitGroup
	for _, m := range seen {
		wg.Add(1)
		go func(m Member) {
			defer wg.Done()
			m.Close(reason)
		}(m)
	}
	wg.Wait()
}
