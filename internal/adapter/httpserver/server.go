package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/broadcast"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// Publisher is the broadcast service as seen by the internal API.
type Publisher interface {
	PublishValueUpdated(ctx context.Context, audience broadcast.Audience, entityID, audienceID int64, value wire.Entity, editingUserID int64) *broadcast.Delivery
	PublishChanged(ctx context.Context, audience broadcast.Audience, kind wire.EntityKind, entityID, audienceID int64) *broadcast.Delivery
	PublishEditStarted(ctx context.Context, audience broadcast.Audience, kind wire.EntityKind, entityID, audienceID, editingUserID int64) *broadcast.Delivery
	PublishEditEnded(ctx context.Context, audience broadcast.Audience, kind wire.EntityKind, entityID, audienceID, editingUserID int64) *broadcast.Delivery
}

// GroupStats reports group membership on this instance.
type GroupStats interface {
	Count(key string) int64
	Counts() map[string]int64
	Members(key string) []string
}

// Options wires the server. Live serves the websocket endpoint; Metrics serves /metrics.
type Options struct {
	Port          string
	PublishAPIKey string
	Live          http.Handler
	Publisher     Publisher
	Groups        GroupStats
	HealthChecks  []HealthCheck

	// Memberships and Tokens enable the access routes when set.
	Memberships     MembershipStore
	MembershipCache MembershipInvalidator
	Tokens          TokenRegistry

	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
	Clock       clockwork.Clock

	// InternalRate and InternalBurst limit the internal API per caller address.
	InternalRate  float64
	InternalBurst int
}

type Server struct {
	echo      *echo.Echo
	opts      Options
	startTime time.Time
}

const (
	defaultInternalRate  = 500
	defaultInternalBurst = 1000
)

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.InternalRate <= 0 {
		opts.InternalRate = defaultInternalRate
	}
	if opts.InternalBurst <= 0 {
		opts.InternalBurst = defaultInternalBurst
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		opts:      opts,
		startTime: opts.Clock.Now(),
	}
	srv.registerRoutes()
	return srv
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.opts.Port)
	if err := s.echo.Start(":" + s.opts.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Hijacked websocket
// connections are not tracked by echo; the gateway closes those.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
