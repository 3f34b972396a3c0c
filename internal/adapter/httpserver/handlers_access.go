package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	apperrors "github.com/fabgilson/scrumboard-live/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

// MembershipStore is the write side of project membership, fed by the application that
// owns projects.
type MembershipStore interface {
	Upsert(ctx context.Context, projectID, userID int64, role domain.ProjectRole) error
	Delete(ctx context.Context, projectID, userID int64) (bool, error)
	ListProjectMembers(ctx context.Context, projectID int64) ([]int64, error)
	DeleteProject(ctx context.Context, projectID int64) (int64, error)
}

// MembershipInvalidator drops cached roles after a membership write.
type MembershipInvalidator interface {
	Invalidate(projectID, userID int64)
	InvalidateProject(projectID int64)
}

// TokenRegistry records tokens issued elsewhere so the gateway can resolve them.
type TokenRegistry interface {
	Store(ctx context.Context, token, subject string, roles []domain.GlobalRole, ttl time.Duration) error
	Revoke(ctx context.Context, token string) error
}

type MemberRequest struct {
	Role string `json:"role"`
}

type MembersResponse struct {
	ProjectID int64   `json:"project_id"`
	UserIDs   []int64 `json:"user_ids"`
}

type TokenRequest struct {
	Token      string   `json:"token"`
	Subject    string   `json:"subject"`
	Roles      []string `json:"roles"`
	TTLSeconds int64    `json:"ttl_seconds"`
}

type RevokeRequest struct {
	Token string `json:"token"`
}

func (s *Server) registerAccessRoutes(g *echo.Group) {
	if s.opts.Memberships != nil {
		g.GET("/projects/:project/members", s.handleListMembers)
		g.DELETE("/projects/:project/members", s.handleDeleteProject)
		g.PUT("/projects/:project/members/:user", s.handlePutMember)
		g.DELETE("/projects/:project/members/:user", s.handleDeleteMember)
	}
	if s.opts.Tokens != nil {
		g.POST("/tokens", s.handleRegisterToken)
		g.POST("/tokens/revoke", s.handleRevokeToken)
	}
}

func positiveParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError(name + " must be a positive integer").WithField(name, c.Param(name))
	}
	return id, nil
}

func (s *Server) handleListMembers(c echo.Context) error {
	projectID, err := positiveParam(c, "project")
	if err != nil {
		return err
	}

	ids, err := s.opts.Memberships.ListProjectMembers(c.Request().Context(), projectID)
	if err != nil {
		return apperrors.InternalError("failed to list project members", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(http.StatusOK, MembersResponse{ProjectID: projectID, UserIDs: ids})
}

func (s *Server) handlePutMember(c echo.Context) error {
	projectID, err := positiveParam(c, "project")
	if err != nil {
		return err
	}
	userID, err := positiveParam(c, "user")
	if err != nil {
		return err
	}

	var req MemberRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON member request")
	}
	role, err := domain.ParseProjectRole(req.Role)
	if err != nil {
		return apperrors.ValidationError(err.Error()).WithField("role", req.Role)
	}

	ctx := c.Request().Context()
	if err := s.opts.Memberships.Upsert(ctx, projectID, userID, role); err != nil {
		if errors.Is(err, domain.ErrInvalidRole) {
			return apperrors.ValidationError(err.Error())
		}
		return apperrors.InternalError("failed to store project member", err)
	}
	s.invalidateMember(projectID, userID)

	slog.InfoContext(ctx, "Project member stored", "project_id", projectID, "user_id", userID, "role", role)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteMember(c echo.Context) error {
	projectID, err := positiveParam(c, "project")
	if err != nil {
		return err
	}
	userID, err := positiveParam(c, "user")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	removed, err := s.opts.Memberships.Delete(ctx, projectID, userID)
	if err != nil {
		return apperrors.InternalError("failed to delete project member", err)
	}
	s.invalidateMember(projectID, userID)
	if !removed {
		return apperrors.NotFoundError("project member not found").
			WithField("project_id", projectID).
			WithField("user_id", userID)
	}

	slog.InfoContext(ctx, "Project member removed", "project_id", projectID, "user_id", userID)
	return c.NoContent(http.StatusNoContent)
}

// handleDeleteProject drops every membership of a project, e.g. after the project was
// deleted. Connections already joined stay joined until they disconnect.
func (s *Server) handleDeleteProject(c echo.Context) error {
	projectID, err := positiveParam(c, "project")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	removed, err := s.opts.Memberships.DeleteProject(ctx, projectID)
	if err != nil {
		return apperrors.InternalError("failed to delete project members", err)
	}
	if s.opts.MembershipCache != nil {
		s.opts.MembershipCache.InvalidateProject(projectID)
	}

	slog.InfoContext(ctx, "Project members removed", "project_id", projectID, "count", removed)
	return c.JSON(http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) invalidateMember(projectID, userID int64) {
	if s.opts.MembershipCache != nil {
		s.opts.MembershipCache.Invalidate(projectID, userID)
	}
}

func (s *Server) handleRegisterToken(c echo.Context) error {
	var req TokenRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON token request")
	}
	if req.Token == "" {
		return apperrors.ValidationError("token is required")
	}
	if req.Subject == "" {
		return apperrors.ValidationError("subject is required")
	}
	if req.TTLSeconds < 0 {
		return apperrors.ValidationError("ttl_seconds must not be negative")
	}

	roles := make([]domain.GlobalRole, 0, len(req.Roles))
	for _, r := range req.Roles {
		roles = append(roles, domain.GlobalRole(r))
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.opts.Tokens.Store(c.Request().Context(), req.Token, req.Subject, roles, ttl); err != nil {
		return apperrors.ExternalError("failed to register token", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRevokeToken(c echo.Context) error {
	var req RevokeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Token == "" {
		return apperrors.ValidationError("request body must name a token")
	}
	if err := s.opts.Tokens.Revoke(c.Request().Context(), req.Token); err != nil {
		return apperrors.ExternalError("failed to revoke token", err)
	}
	return c.NoContent(http.StatusNoContent)
}
