package domain

import "context"

// GroupSender delivers an encoded frame to every connection in a group. Sending to a group
// with no members succeeds.
type GroupSender interface {
	SendToGroup(ctx context.Context, group string, payload []byte) error
}
