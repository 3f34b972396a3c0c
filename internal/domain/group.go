package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupKind names the audience a group represents.
type GroupKind string

const (
	GroupProject GroupKind = "Project"
	GroupUser    GroupKind = "User"
)

const groupSeparator = "_"

func (k GroupKind) Valid() bool {
	return k == GroupProject || k == GroupUser
}

// GroupKey is the only place group names are produced. Both the gateway (on join) and the
// broadcast service (on publish) go through it, so the two sides cannot drift apart.
func GroupKey(kind GroupKind, id int64) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGroupKind, string(kind))
	}
	return string(kind) + groupSeparator + strconv.FormatInt(id, 10), nil
}

func ProjectGroup(projectID int64) string {
	key, _ := GroupKey(GroupProject, projectID)
	return key
}

func UserGroup(userID int64) string {
	key, _ := GroupKey(GroupUser, userID)
	return key
}

// ParseGroupKey is the inverse of GroupKey.
func ParseGroupKey(key string) (GroupKind, int64, error) {
	kind, raw, ok := strings.Cut(key, groupSeparator)
	if !ok || !GroupKind(kind).Valid() {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidGroupKey, key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidGroupKey, key)
	}
	return GroupKind(kind), id, nil
}
