package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/internal/hub"
	"github.com/fabgilson/scrumboard-live/internal/platform/correlation"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second

	abortWriteTimeout = 5 * time.Second
	maxInboundFrame   = 4096
	shutdownReason    = "server shutting down"
)

var ErrShuttingDown = errors.New("gateway is shutting down")

// Options configures a Gateway. Zero values select defaults; a nil Limits admits every
// connection and a nil CheckOrigin accepts every origin.
type Options struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	Limits           *Limits
	Clock            clockwork.Clock
	Metrics          *metrics.GatewayMetrics
	WebSocketMetrics *metrics.WebSocketMetrics
}

// Gateway is an http.Handler serving the live websocket endpoint.
type Gateway struct {
	identities  domain.IdentityResolver
	memberships domain.MembershipResolver
	registry    *hub.Registry
	upgrader    websocket.Upgrader
	opts        Options

	joined   cmap.ConcurrentMap[string, *Connection]
	sessions sync.WaitGroup
	closing  atomic.Bool
}

func New(identities domain.IdentityResolver, memberships domain.MembershipResolver, registry *hub.Registry, opts Options) *Gateway {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Gateway{
		identities:  identities,
		memberships: memberships,
		registry:    registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		opts:   opts,
		joined: cmap.New[*Connection](),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.closing.Load() {
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	ip := remoteIP(r)
	if g.opts.Limits != nil {
		ok, reason := g.opts.Limits.Acquire(ip)
		if !ok {
			g.refuse(w, r, ip, reason)
			return
		}
		defer g.opts.Limits.Release(ip)
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	g.sessions.Add(1)
	defer g.sessions.Done()

	c := newConnection(ws, ip, g.opts.Clock.Now())
	ctx, cancel := context.WithCancel(correlation.WithID(context.WithoutCancel(r.Context()), c.ID()))
	defer cancel()

	g.serve(ctx, c, r)
}

func (g *Gateway) refuse(w http.ResponseWriter, r *http.Request, ip string, reason LimitReason) {
	if g.opts.Metrics != nil {
		g.opts.Metrics.LimitedConnections.WithLabelValues(string(reason)).Inc()
	}
	slog.WarnContext(r.Context(), "Connection refused by limits", "remote_ip", ip, "reason", reason)

	status := http.StatusTooManyRequests
	if reason == LimitReasonGlobal {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, string(reason), status)
}

func (g *Gateway) serve(ctx context.Context, c *Connection, r *http.Request) {
	start := g.opts.Clock.Now()
	if herr := g.handshake(ctx, c, r); herr != nil {
		g.abort(ctx, c, herr)
		g.observeHandshake("aborted", start)
		return
	}

	g.join(ctx, c)
	g.observeHandshake("joined", start)
	defer g.disconnect(ctx, c)

	g.readPump(ctx, c)
}

// abort rejects a connection that has not joined any group. The writer is not running yet,
// so the error frame is written directly.
func (g *Gateway) abort(ctx context.Context, c *Connection, herr *HandshakeError) {
	if err := c.transition(StateAborted); err != nil {
		slog.ErrorContext(ctx, "Abort from unexpected state", "state", c.State(), "error", err)
	}
	if g.opts.Metrics != nil {
		g.opts.Metrics.Rejections.WithLabelValues(string(herr.Step)).Inc()
	}
	slog.InfoContext(ctx, "Handshake rejected",
		"connection_id", c.ID(),
		"remote_ip", c.RemoteIP(),
		"step", herr.Step,
		"reason", herr.Reason,
		"error", herr.Err,
	)

	frame, err := wire.ConnectionErrorFrame(herr.Reason)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode connection error frame", "error", err)
		_ = c.ws.Close()
		return
	}
	_ = c.ws.SetWriteDeadline(g.opts.Clock.Now().Add(abortWriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		slog.DebugContext(ctx, "Failed to write connection error frame", "error", err)
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, herr.Reason))
	_ = c.ws.Close()
}

func (g *Gateway) join(ctx context.Context, c *Connection) {
	c.writer = hub.NewWriter(c.ws, g.opts.Clock, g.opts.WebSocketMetrics)

	userGroup := domain.UserGroup(c.UserID())
	g.registry.Join(userGroup, c)
	c.recordGroup(domain.GroupUser, userGroup)

	projectGroup := domain.ProjectGroup(c.ProjectID())
	g.registry.Join(projectGroup, c)
	c.recordGroup(domain.GroupProject, projectGroup)

	if err := c.transition(StateJoined); err != nil {
		slog.ErrorContext(ctx, "Join from unexpected state", "state", c.State(), "error", err)
	}
	g.joined.Set(c.ID(), c)
	if g.opts.WebSocketMetrics != nil {
		g.opts.WebSocketMetrics.ActiveConnections.Inc()
	}

	slog.InfoContext(ctx, "Connection joined",
		"connection_id", c.ID(),
		"user_id", c.UserID(),
		"project_id", c.ProjectID(),
		"admin", c.IsAdmin(),
	)

	// Shutdown sets closing before sweeping the registry, so a connection that joined after
	// the sweep sees the flag here and closes itself.
	if g.closing.Load() {
		slog.InfoContext(ctx, "Closing connection joined during shutdown", "connection_id", c.ID())
		c.Close(shutdownReason)
		return
	}

	frame, err := wire.ConnectionSuccessFrame()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode connection success frame", "error", err)
		return
	}
	if !c.Enqueue(frame) {
		slog.WarnContext(ctx, "Connection success frame dropped", "connection_id", c.ID())
	}
}

// readPump drains inbound frames until the socket fails. Clients have nothing to say after
// the handshake; reading keeps pong and close handling alive.
func (g *Gateway) readPump(ctx context.Context, c *Connection) {
	c.ws.SetReadLimit(maxInboundFrame)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Connection read failed", "connection_id", c.ID(), "error", err)
			}
			return
		}
	}
}

// disconnect removes c from the groups recorded on it. It never panics: a failure while
// cleaning up one connection must not affect any other.
func (g *Gateway) disconnect(ctx context.Context, c *Connection) {
	outcome := "clean"
	defer func() {
		if r := recover(); r != nil {
			outcome = "recovered"
			slog.ErrorContext(ctx, "Panic during disconnect", "connection_id", c.ID(), "panic", r)
		}
		if g.opts.Metrics != nil {
			g.opts.Metrics.Disconnects.WithLabelValues(outcome).Inc()
		}
	}()

	if err := c.transition(StateDisconnected); err != nil {
		slog.WarnContext(ctx, "Disconnect from unexpected state", "connection_id", c.ID(), "state", c.State(), "error", err)
	}

	for _, kind := range []domain.GroupKind{domain.GroupUser, domain.GroupProject} {
		key, ok := c.Group(kind)
		if !ok {
			slog.WarnContext(ctx, "No recorded group on disconnect", "connection_id", c.ID(), "group_kind", kind)
			continue
		}
		if !g.registry.Leave(key, c) {
			slog.WarnContext(ctx, "Connection was not a member of its recorded group", "connection_id", c.ID(), "group", key)
		}
	}

	if g.joined.Has(c.ID()) {
		g.joined.Remove(c.ID())
		if g.opts.WebSocketMetrics != nil {
			g.opts.WebSocketMetrics.ActiveConnections.Dec()
		}
	}
	if c.writer != nil {
		c.writer.Stop()
	}

	slog.InfoContext(ctx, "Connection disconnected",
		"connection_id", c.ID(),
		"user_id", c.UserID(),
		"project_id", c.ProjectID(),
		"duration", g.opts.Clock.Since(c.ConnectedAt()).String(),
	)
}

func (g *Gateway) observeHandshake(result string, start time.Time) {
	if g.opts.Metrics == nil {
		return
	}
	g.opts.Metrics.Handshakes.WithLabelValues(result).Inc()
	g.opts.Metrics.HandshakeDuration.Observe(g.opts.Clock.Since(start).Seconds())
}

// ActiveConnections returns the number of joined connections on this instance.
func (g *Gateway) ActiveConnections() int {
	return g.joined.Count()
}

// Shutdown stops admitting connections, closes every group member with a close frame and
// waits for all connection goroutines to finish or ctx to end. Handshakes still in flight
// close their connection as soon as they join.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closing.Store(true)
	g.registry.CloseAll(shutdownReason)

	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
