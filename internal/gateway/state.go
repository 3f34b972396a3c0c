package gateway

import (
	"errors"
	"fmt"
	"slices"
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateAuthorized
	StateJoined
	StateDisconnected
	StateAborted
)

var ErrInvalidTransition = errors.New("invalid connection state transition")

var transitions = map[State][]State{
	StateConnecting:    {StateAuthenticated, StateAborted},
	StateAuthenticated: {StateAuthorized, StateAborted},
	StateAuthorized:    {StateJoined, StateAborted},
	StateJoined:        {StateDisconnected},
}

func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateAborted
}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthorized:
		return "authorized"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
