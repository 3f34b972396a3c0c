package domain

import (
	"context"
	"fmt"
)

// GlobalRole is a role held independently of any project.
type GlobalRole string

const (
	RoleUser               GlobalRole = "User"
	RoleGlobalProjectAdmin GlobalRole = "GlobalProjectAdmin"
	RoleSystemAdmin        GlobalRole = "SystemAdmin"
)

// Identity is the outcome of resolving a bearer token. Subject carries the user id as text,
// exactly as the token store holds it; the gateway is responsible for parsing it.
type Identity struct {
	Authenticated bool
	Subject       string
	Roles         []GlobalRole
}

// IsAdmin reports whether the identity may observe every project regardless of membership.
func (i Identity) IsAdmin() bool {
	for _, r := range i.Roles {
		if r == RoleGlobalProjectAdmin || r == RoleSystemAdmin {
			return true
		}
	}
	return false
}

// ProjectRole is a user's role inside one project.
type ProjectRole string

const (
	ProjectGuest     ProjectRole = "Guest"
	ProjectReviewer  ProjectRole = "Reviewer"
	ProjectDeveloper ProjectRole = "Developer"
	ProjectLeader    ProjectRole = "Leader"
)

func ParseProjectRole(s string) (ProjectRole, error) {
	switch r := ProjectRole(s); r {
	case ProjectGuest, ProjectReviewer, ProjectDeveloper, ProjectLeader:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// IdentityResolver turns a bearer token into an identity. An unknown token is an
// unauthenticated identity, not an error; errors are reserved for lookup failures.
type IdentityResolver interface {
	ResolveIdentityForToken(ctx context.Context, token string) (Identity, error)
}

// MembershipResolver reports a user's role in a project. found is false when the user
// holds no role there.
type MembershipResolver interface {
	GetRoleForUserInProject(ctx context.Context, projectID, userID int64) (role ProjectRole, found bool, err error)
}
