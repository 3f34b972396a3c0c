package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fabgilson/scrumboard-live/pkg/wire"
)

// Step names the handshake step that rejected a connection.
type Step string

const (
	StepToken        Step = "token"
	StepAuthenticate Step = "authenticate"
	StepProject      Step = "project"
	StepAuthorize    Step = "authorize"
)

// HandshakeError is a rejected handshake. Reason is the message sent to the client.
type HandshakeError struct {
	Step   Step
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake rejected at %s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake rejected at %s: %s", e.Step, e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func reject(step Step, reason string, err error) *HandshakeError {
	return &HandshakeError{Step: step, Reason: reason, Err: err}
}

// handshake authenticates and authorizes c from the upgrade request. Resolver calls share a
// single deadline of HandshakeTimeout.
func (g *Gateway) handshake(ctx context.Context, c *Connection, r *http.Request) *HandshakeError {
	ctx, cancel := context.WithTimeout(ctx, g.opts.HandshakeTimeout)
	defer cancel()

	token, ok := bearerToken(r)
	if !ok {
		return reject(StepToken, wire.MsgNoBearerToken, nil)
	}

	identity, err := g.identities.ResolveIdentityForToken(ctx, token)
	if err != nil {
		return reject(StepAuthenticate, wire.MsgAuthenticationFailed, err)
	}
	if !identity.Authenticated {
		return reject(StepAuthenticate, wire.MsgAuthenticationFailed, nil)
	}
	userID, err := strconv.ParseInt(identity.Subject, 10, 64)
	if err != nil {
		return reject(StepAuthenticate, wire.MsgAuthenticationFailed, fmt.Errorf("subject %q is not a user id: %w", identity.Subject, err))
	}
	if err := c.authenticate(userID, identity.IsAdmin()); err != nil {
		return reject(StepAuthenticate, wire.MsgAuthenticationFailed, err)
	}

	projectID, ok := projectIDHeader(r)
	if !ok {
		return reject(StepProject, wire.MsgNoValidProjectID, nil)
	}

	role, found, err := g.memberships.GetRoleForUserInProject(ctx, projectID, userID)
	switch {
	case err != nil && !identity.IsAdmin():
		return reject(StepAuthorize, wire.MsgNotAuthorized, err)
	case err != nil:
		slog.WarnContext(ctx, "Membership lookup failed, admitting admin", "user_id", userID, "project_id", projectID, "error", err)
	case !found && !identity.IsAdmin():
		return reject(StepAuthorize, wire.MsgNotAuthorized, nil)
	}

	if err := c.authorize(projectID, role); err != nil {
		return reject(StepAuthorize, wire.MsgNotAuthorized, err)
	}
	return nil
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter for browser clients that cannot set headers on a websocket upgrade.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get(wire.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
		if !ok || !strings.EqualFold(scheme, wire.BearerScheme) {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}
	token := strings.TrimSpace(r.URL.Query().Get(wire.QueryAccessToken))
	return token, token != ""
}

func projectIDHeader(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(wire.HeaderProjectID))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
