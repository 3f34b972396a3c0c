package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const groupChannelPrefix = "live:group:"

var (
	ErrRelayNotSubscribed = errors.New("relay is not subscribed")
	errSubscriptionClosed = errors.New("relay subscription closed")
)

func groupChannel(group string) string {
	return groupChannelPrefix + group
}

// Relay is a domain.GroupSender that publishes frames on a Redis channel per group.
// Every instance runs Run, which hands frames received on those channels to its local
// registry, so a publish reaches connections on all instances.
type Relay struct {
	rdb        *goredis.Client
	local      domain.GroupSender
	metrics    *metrics.RedisMetrics
	ready      chan struct{}
	readyOnce  sync.Once
	subscribed atomic.Bool
}

func NewRelay(rdb *goredis.Client, local domain.GroupSender, m *metrics.RedisMetrics) *Relay {
	return &Relay{rdb: rdb, local: local, metrics: m, ready: make(chan struct{})}
}

// SendToGroup publishes payload. Zero receiving instances is not an error. A Redis failure
// is returned as is.
//
// While this instance is not subscribed its own members would never hear the publish, so
// they are served directly from the local registry.
func (r *Relay) SendToGroup(ctx context.Context, group string, payload []byte) error {
	if !r.subscribed.Load() {
		if err := r.local.SendToGroup(ctx, group, payload); err != nil {
			return err
		}
		r.count("local_fallback")
	}
	if err := r.rdb.Publish(ctx, groupChannel(group), payload).Err(); err != nil {
		return err
	}
	r.count("published")
	return nil
}

func (r *Relay) count(outcome string) {
	if r.metrics != nil {
		r.metrics.RelayMessages.WithLabelValues(outcome).Inc()
	}
}

// Ready is closed once the first subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Check fails while the subscription is down. It is one of the readiness checks.
func (r *Relay) Check(context.Context) error {
	if !r.subscribed.Load() {
		return ErrRelayNotSubscribed
	}
	return nil
}

// Run keeps the relay subscribed until ctx is cancelled, resubscribing with p's backoff
// whenever the subscription fails or closes.
func (r *Relay) Run(ctx context.Context, p retry.Policy) {
	for ctx.Err() == nil {
		err := retry.DoVoid(ctx, p, retry.Transient, r.Start)
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "Relay resubscription attempts exhausted, starting over", "error", err)
	}
}

// Start subscribes to every group channel and delivers locally until ctx is cancelled. It
// returns an error when the subscription cannot be made or is closed underneath it.
func (r *Relay) Start(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, groupChannelPrefix+"*")
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe relay: %w", err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.readyOnce.Do(func() { close(r.ready) })
	slog.Info("Relay subscribed", "pattern", groupChannelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			group := strings.TrimPrefix(msg.Channel, groupChannelPrefix)
			if err := r.local.SendToGroup(ctx, group, []byte(msg.Payload)); err != nil {
				slog.WarnContext(ctx, "Relay delivery failed", "group", group, "error", err)
				continue
			}
			r.count("delivered")
		}
	}
}
