package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/jonboulle/clockwork"
)

const publishTimeout = 2 * time.Second

// Audience selects which group an event goes to.
type Audience string

const (
	AudienceProject Audience = "project"
	AudienceUser    Audience = "user"
)

func (a Audience) groupKey(id int64) (string, error) {
	switch a {
	case AudienceProject:
		return domain.GroupKey(domain.GroupProject, id)
	case AudienceUser:
		return domain.GroupKey(domain.GroupUser, id)
	}
	return "", fmt.Errorf("%w: audience %q", domain.ErrInvalidGroupKind, string(a))
}

type Service struct {
	sender  domain.GroupSender
	clock   clockwork.Clock
	metrics *metrics.BroadcastMetrics
}

func NewService(sender domain.GroupSender, clock clockwork.Clock, m *metrics.BroadcastMetrics) *Service {
	return &Service{sender: sender, clock: clock, metrics: m}
}

func (s *Service) PublishValueUpdatedToProject(ctx context.Context, entityID, projectID int64, value wire.Entity, editingUserID int64) *Delivery {
	return s.publishValueUpdated(ctx, AudienceProject, entityID, projectID, value, editingUserID)
}

func (s *Service) PublishValueUpdatedToUser(ctx context.Context, entityID, userID int64, value wire.Entity, editingUserID int64) *Delivery {
	return s.publishValueUpdated(ctx, AudienceUser, entityID, userID, value, editingUserID)
}

func (s *Service) PublishChangedToProject(ctx context.Context, kind wire.EntityKind, entityID, projectID int64) *Delivery {
	return s.PublishChanged(ctx, AudienceProject, kind, entityID, projectID)
}

func (s *Service) PublishChangedToUser(ctx context.Context, kind wire.EntityKind, entityID, userID int64) *Delivery {
	return s.PublishChanged(ctx, AudienceUser, kind, entityID, userID)
}

func (s *Service) PublishEditStartedToProject(ctx context.Context, kind wire.EntityKind, entityID, projectID, editingUserID int64) *Delivery {
	return s.PublishEditStarted(ctx, AudienceProject, kind, entityID, projectID, editingUserID)
}

func (s *Service) PublishEditStartedToUser(ctx context.Context, kind wire.EntityKind, entityID, userID, editingUserID int64) *Delivery {
	return s.PublishEditStarted(ctx, AudienceUser, kind, entityID, userID, editingUserID)
}

func (s *Service) PublishEditEndedToProject(ctx context.Context, kind wire.EntityKind, entityID, projectID, editingUserID int64) *Delivery {
	return s.PublishEditEnded(ctx, AudienceProject, kind, entityID, projectID, editingUserID)
}

func (s *Service) PublishEditEndedToUser(ctx context.Context, kind wire.EntityKind, entityID, userID, editingUserID int64) *Delivery {
	return s.PublishEditEnded(ctx, AudienceUser, kind, entityID, userID, editingUserID)
}

func (s *Service) publishValueUpdated(ctx context.Context, audience Audience, entityID, audienceID int64, value wire.Entity, editingUserID int64) *Delivery {
	if value == nil {
		return s.fail(wire.TargetEntityUpdated, audience, fmt.Errorf("%w: nil value", wire.ErrUnknownEntityKind))
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		return s.fail(wire.TargetEntityUpdated, audience, fmt.Errorf("serialize %s %d: %w", value.EntityKind(), entityID, err))
	}
	frame, err := wire.EntityUpdatedFrame(value.EntityKind(), entityID, string(serialized), editingUserID)
	return s.send(ctx, wire.TargetEntityUpdated, audience, audienceID, frame, err)
}

// PublishChanged is the audience-parameterised form of PublishChangedToProject and
// PublishChangedToUser.
func (s *Service) PublishChanged(ctx context.Context, audience Audience, kind wire.EntityKind, entityID, audienceID int64) *Delivery {
	frame, err := wire.EntityChangedFrame(kind, entityID)
	return s.send(ctx, wire.TargetEntityChanged, audience, audienceID, frame, err)
}

func (s *Service) PublishEditStarted(ctx context.Context, audience Audience, kind wire.EntityKind, entityID, audienceID, editingUserID int64) *Delivery {
	frame, err := wire.EditStartedFrame(kind, entityID, editingUserID)
	return s.send(ctx, wire.TargetEditStarted, audience, audienceID, frame, err)
}

func (s *Service) PublishEditEnded(ctx context.Context, audience Audience, kind wire.EntityKind, entityID, audienceID, editingUserID int64) *Delivery {
	frame, err := wire.EditEndedFrame(kind, entityID, editingUserID)
	return s.send(ctx, wire.TargetEditEnded, audience, audienceID, frame, err)
}

// PublishValueUpdated is the audience-parameterised form of the two ValueUpdated operations.
func (s *Service) PublishValueUpdated(ctx context.Context, audience Audience, entityID, audienceID int64, value wire.Entity, editingUserID int64) *Delivery {
	return s.publishValueUpdated(ctx, audience, entityID, audienceID, value, editingUserID)
}

// send runs the transport call on its own goroutine. The caller's cancellation does not
// abort a publish already handed off; publishTimeout bounds it instead.
func (s *Service) send(ctx context.Context, event string, audience Audience, audienceID int64, frame []byte, encodeErr error) *Delivery {
	if encodeErr != nil {
		return s.fail(event, audience, encodeErr)
	}
	group, err := audience.groupKey(audienceID)
	if err != nil {
		return s.fail(event, audience, err)
	}

	d := newDelivery()
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		start := s.clock.Now()
		err := s.sender.SendToGroup(ctx, group, frame)
		s.observe(event, audience, start, err)
		d.complete(err)
	}()
	return d
}

func (s *Service) fail(event string, audience Audience, err error) *Delivery {
	if s.metrics != nil {
		s.metrics.Events.WithLabelValues(event, string(audience), "invalid").Inc()
	}
	return failedDelivery(err)
}

func (s *Service) observe(event string, audience Audience, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	s.metrics.Events.WithLabelValues(event, string(audience), status).Inc()
	s.metrics.PublishDuration.WithLabelValues(string(audience)).Observe(s.clock.Since(start).Seconds())
}
