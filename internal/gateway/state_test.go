package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Transitions(t *testing.T) {
	allowed := map[State][]State{
		StateConnecting:    {StateAuthenticated, StateAborted},
		StateAuthenticated: {StateAuthorized, StateAborted},
		StateAuthorized:    {StateJoined, StateAborted},
		StateJoined:        {StateDisconnected},
	}
	all := []State{StateConnecting, StateAuthenticated, StateAuthorized, StateJoined, StateDisconnected, StateAborted}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateDisconnected.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateJoined.Terminal())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestConnection_Lifecycle(t *testing.T) {
	c := newConnection(nil, "10.0.0.1", testTime)
	assert.Equal(t, StateConnecting, c.State())
	assert.NotEmpty(t, c.ID())

	require.NoError(t, c.authenticate(42, false))
	require.NoError(t, c.authorize(7, "Developer"))
	assert.Equal(t, StateAuthorized, c.State())
	assert.Equal(t, int64(42), c.UserID())
	assert.Equal(t, int64(7), c.ProjectID())

	err := c.transition(StateDisconnected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, c.Enqueue([]byte("x")), "no writer before join")

	_, ok := c.Group("Project")
	assert.False(t, ok)
}
