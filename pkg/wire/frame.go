package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names, as invoked on the client.
const (
	TargetEntityUpdated     = "ReceiveEntityUpdate"
	TargetEntityChanged     = "EntityHasChanged"
	TargetEditStarted       = "StartedUpdatingEntity"
	TargetEditEnded         = "StoppedUpdatingEntity"
	TargetConnectionError   = "HandleConnectionError"
	TargetConnectionSuccess = "HandleConnectionSuccess"
)

// Handshake metadata.
const (
	HeaderAuthorization = "Authorization"
	HeaderProjectID     = "ProjectId"
	QueryAccessToken    = "access_token"
	BearerScheme        = "Bearer"
)

// Handshake rejection messages. Clients match on these verbatim.
const (
	MsgNoBearerToken        = "No bearer token given"
	MsgAuthenticationFailed = "Authentication failed"
	MsgNoValidProjectID     = "No valid project ID given"
	MsgNotAuthorized        = "User is not authorized to connect to given project"
)

var ErrMalformedFrame = errors.New("malformed frame")

type outboundFrame struct {
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

// Frame is a decoded inbound frame. Arguments stay raw until the receiver knows their types.
type Frame struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Encode builds a frame invoking target with the given positional arguments.
func Encode(target string, args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(outboundFrame{Target: target, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", target, err)
	}
	return data, nil
}

// Decode parses a frame. A frame without a target is malformed.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.Target == "" {
		return Frame{}, fmt.Errorf("%w: missing target", ErrMalformedFrame)
	}
	return f, nil
}

// Arg unmarshals the i-th argument into dst.
func (f Frame) Arg(i int, dst any) error {
	if i < 0 || i >= len(f.Arguments) {
		return fmt.Errorf("%w: %s has %d arguments, wanted index %d", ErrMalformedFrame, f.Target, len(f.Arguments), i)
	}
	if err := json.Unmarshal(f.Arguments[i], dst); err != nil {
		return fmt.Errorf("%w: %s argument %d: %w", ErrMalformedFrame, f.Target, i, err)
	}
	return nil
}

// EntityEvent is the common shape of the four entity events. Fields an event does not
// carry are left zero.
type EntityEvent struct {
	Target          string
	TypeName        string
	EntityID        int64
	SerializedValue string
	EditingUserID   int64
}

// IsEntityTarget reports whether target names one of the four entity events.
func IsEntityTarget(target string) bool {
	switch target {
	case TargetEntityUpdated, TargetEntityChanged, TargetEditStarted, TargetEditEnded:
		return true
	}
	return false
}

// EntityEvent extracts the positional arguments of an entity event.
func (f Frame) EntityEvent() (EntityEvent, error) {
	ev := EntityEvent{Target: f.Target}
	if !IsEntityTarget(f.Target) {
		return ev, fmt.Errorf("%w: %s is not an entity event", ErrMalformedFrame, f.Target)
	}
	if err := f.Arg(0, &ev.TypeName); err != nil {
		return ev, err
	}
	if err := f.Arg(1, &ev.EntityID); err != nil {
		return ev, err
	}

	switch f.Target {
	case TargetEntityUpdated:
		if err := f.Arg(2, &ev.SerializedValue); err != nil {
			return ev, err
		}
		if err := f.Arg(3, &ev.EditingUserID); err != nil {
			return ev, err
		}
	case TargetEditStarted, TargetEditEnded:
		if err := f.Arg(2, &ev.EditingUserID); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

func EntityUpdatedFrame(kind EntityKind, entityID int64, serializedValue string, editingUserID int64) ([]byte, error) {
	key, err := routingKey(kind)
	if err != nil {
		return nil, err
	}
	return Encode(TargetEntityUpdated, key, entityID, serializedValue, editingUserID)
}

func EntityChangedFrame(kind EntityKind, entityID int64) ([]byte, error) {
	key, err := routingKey(kind)
	if err != nil {
		return nil, err
	}
	return Encode(TargetEntityChanged, key, entityID)
}

func EditStartedFrame(kind EntityKind, entityID, editingUserID int64) ([]byte, error) {
	key, err := routingKey(kind)
	if err != nil {
		return nil, err
	}
	return Encode(TargetEditStarted, key, entityID, editingUserID)
}

func EditEndedFrame(kind EntityKind, entityID, editingUserID int64) ([]byte, error) {
	key, err := routingKey(kind)
	if err != nil {
		return nil, err
	}
	return Encode(TargetEditEnded, key, entityID, editingUserID)
}

func ConnectionErrorFrame(message string) ([]byte, error) {
	return Encode(TargetConnectionError, message)
}

func ConnectionSuccessFrame() ([]byte, error) {
	return Encode(TargetConnectionSuccess)
}

func routingKey(kind EntityKind) (string, error) {
	key := kind.RoutingKey()
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntityKind, kind)
	}
	return key, nil
}
