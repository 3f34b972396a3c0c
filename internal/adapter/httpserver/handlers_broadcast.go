package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fabgilson/scrumboard-live/internal/broadcast"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	apperrors "github.com/fabgilson/scrumboard-live/internal/platform/errors"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Event names accepted by POST /internal/broadcast.
const (
	EventValueUpdated = "ValueUpdated"
	EventChanged      = "Changed"
	EventEditStarted  = "EditStarted"
	EventEditEnded    = "EditEnded"
)

const maxBroadcastBody = "1M"

// BroadcastRequest asks the service to publish one event. Value is required for
// ValueUpdated; EditingUserID is ignored for Changed.
type BroadcastRequest struct {
	Event         string          `json:"event"`
	Audience      string          `json:"audience"`
	AudienceID    int64           `json:"audience_id"`
	EntityKind    string          `json:"entity_kind"`
	EntityID      int64           `json:"entity_id"`
	Value         json.RawMessage `json:"value,omitempty"`
	EditingUserID int64           `json:"editing_user_id,omitempty"`
}

type BroadcastResponse struct {
	Status string `json:"status"`
	Group  string `json:"group"`
}

type GroupResponse struct {
	Group       string   `json:"group"`
	Connections int64    `json:"connections"`
	Members     []string `json:"members"`
}

func (s *Server) registerBroadcastRoutes(g *echo.Group) {
	g.POST("/broadcast", s.handleBroadcast, middleware.BodyLimit(maxBroadcastBody))
	g.GET("/groups", s.handleGroups)
	g.GET("/groups/:group", s.handleGroup)
}

// handleBroadcast publishes and answers 202 without waiting. With ?wait=true it waits for
// the transport and answers 200, or 502 when the transport refused the frame.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON broadcast request")
	}

	kind, audience, group, verr := req.validate()
	if verr != nil {
		return verr
	}

	ctx := c.Request().Context()
	var d *broadcast.Delivery
	switch req.Event {
	case EventValueUpdated:
		d = s.opts.Publisher.PublishValueUpdated(ctx, audience, req.EntityID, req.AudienceID, wire.RawEntity{Kind: kind, Value: req.Value}, req.EditingUserID)
	case EventChanged:
		d = s.opts.Publisher.PublishChanged(ctx, audience, kind, req.EntityID, req.AudienceID)
	case EventEditStarted:
		d = s.opts.Publisher.PublishEditStarted(ctx, audience, kind, req.EntityID, req.AudienceID, req.EditingUserID)
	case EventEditEnded:
		d = s.opts.Publisher.PublishEditEnded(ctx, audience, kind, req.EntityID, req.AudienceID, req.EditingUserID)
	}

	if c.QueryParam("wait") != "true" {
		if err := d.Err(); rejected(err) {
			return publishError(err, group)
		}
		return c.JSON(http.StatusAccepted, BroadcastResponse{Status: "accepted", Group: group})
	}

	if err := d.Wait(ctx); err != nil {
		return publishError(err, group)
	}
	return c.JSON(http.StatusOK, BroadcastResponse{Status: "sent", Group: group})
}

// rejected reports whether the service refused the event itself, as opposed to the
// transport failing to carry it.
func rejected(err error) bool {
	return errors.Is(err, wire.ErrUnknownEntityKind) ||
		errors.Is(err, domain.ErrInvalidGroupKind) ||
		errors.Is(err, domain.ErrInvalidGroupKey)
}

func publishError(err error, group string) error {
	if rejected(err) {
		return apperrors.ValidationError(err.Error()).WithField("group", group)
	}
	return apperrors.ExternalError("publish failed", err).WithField("group", group)
}

func (r BroadcastRequest) validate() (wire.EntityKind, broadcast.Audience, string, error) {
	switch r.Event {
	case EventValueUpdated, EventChanged, EventEditStarted, EventEditEnded:
	default:
		return 0, "", "", apperrors.ValidationError(fmt.Sprintf("unknown event %q", r.Event))
	}

	kind, ok := wire.ParseRoutingKey(r.EntityKind)
	if !ok {
		return 0, "", "", apperrors.ValidationError(fmt.Sprintf("unknown entity kind %q", r.EntityKind))
	}

	var groupKind domain.GroupKind
	audience := broadcast.Audience(r.Audience)
	switch audience {
	case broadcast.AudienceProject:
		groupKind = domain.GroupProject
	case broadcast.AudienceUser:
		groupKind = domain.GroupUser
	default:
		return 0, "", "", apperrors.ValidationError(fmt.Sprintf("unknown audience %q", r.Audience))
	}
	if r.AudienceID <= 0 {
		return 0, "", "", apperrors.ValidationError("audience_id must be positive")
	}
	group, err := domain.GroupKey(groupKind, r.AudienceID)
	if err != nil {
		return 0, "", "", apperrors.ValidationError(err.Error())
	}

	if r.Event == EventValueUpdated && (len(r.Value) == 0 || !json.Valid(r.Value)) {
		return 0, "", "", apperrors.ValidationError("value must be a JSON document for ValueUpdated")
	}
	return kind, audience, group, nil
}

// handleGroups lists the connection count of every non-empty group on this instance.
func (s *Server) handleGroups(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"groups": s.opts.Groups.Counts()})
}

func (s *Server) handleGroup(c echo.Context) error {
	key := c.Param("group")
	if _, _, err := domain.ParseGroupKey(key); err != nil {
		return apperrors.ValidationError(err.Error())
	}

	members := s.opts.Groups.Members(key)
	if members == nil {
		members = []string{}
	}
	return c.JSON(http.StatusOK, GroupResponse{
		Group:       key,
		Connections: s.opts.Groups.Count(key),
		Members:     members,
	})
}
