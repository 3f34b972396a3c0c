package liveclient

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/fabgilson/scrumboard-live/pkg/wire"
)

type handler struct {
	target   string
	key      string
	entityID int64
	invoke   func(wire.EntityEvent) error
}

// Subscriptions holds the handlers of one connection. It is safe for concurrent use;
// handlers run on the goroutine calling Dispatch.
type Subscriptions struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]*handler
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{handlers: make(map[uint64]*handler)}
}

// Subscription is the handle returned by a registration.
type Subscription struct {
	once    sync.Once
	dispose func()
}

// Dispose removes the handler. Calling it more than once has no effect.
func (s *Subscription) Dispose() {
	s.once.Do(s.dispose)
}

func (s *Subscriptions) add(target string, kind wire.EntityKind, entityID int64, invoke func(wire.EntityEvent) error) *Subscription {
	s.mu.Lock()
	s.next++
	id := s.next
	s.handlers[id] = &handler{
		target:   target,
		key:      kind.RoutingKey(),
		entityID: entityID,
		invoke:   invoke,
	}
	s.mu.Unlock()

	return &Subscription{dispose: func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}}
}

// Len returns the number of live registrations.
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

func (s *Subscriptions) matching(ev wire.EntityEvent) []*handler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*handler
	for _, h := range s.handlers {
		if h.key != "" && h.target == ev.Target && h.key == ev.TypeName && h.entityID == ev.EntityID {
			out = append(out, h)
		}
	}
	return out
}

// Dispatch decodes a frame and invokes every handler registered for its event, entity kind
// and entity id. Frames for other targets are ignored. Decode failures, including a
// ValueUpdated payload that does not fit a handler's type, are returned as *DecodeError.
func (s *Subscriptions) Dispatch(data []byte) error {
	frame, err := wire.Decode(data)
	if err != nil {
		return &DecodeError{Err: err}
	}
	if !wire.IsEntityTarget(frame.Target) {
		return nil
	}
	ev, err := frame.EntityEvent()
	if err != nil {
		return &DecodeError{Target: frame.Target, Err: err}
	}

	var errs []error
	for _, h := range s.matching(ev) {
		if err := h.invoke(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnValueUpdated registers fn for fresh snapshots of one entity. The serialized value is
// decoded into T.
func OnValueUpdated[T any](s *Subscriptions, kind wire.EntityKind, entityID int64, fn func(value T, editingUserID int64)) *Subscription {
	return s.add(wire.TargetEntityUpdated, kind, entityID, func(ev wire.EntityEvent) error {
		var value T
		if err := json.Unmarshal([]byte(ev.SerializedValue), &value); err != nil {
			return &DecodeError{Target: ev.Target, TypeName: ev.TypeName, EntityID: ev.EntityID, Err: err}
		}
		fn(value, ev.EditingUserID)
		return nil
	})
}

// OnChanged registers fn for notifications that an entity changed and should be refetched.
func OnChanged(s *Subscriptions, kind wire.EntityKind, entityID int64, fn func()) *Subscription {
	return s.add(wire.TargetEntityChanged, kind, entityID, func(wire.EntityEvent) error {
		fn()
		return nil
	})
}

func OnEditStarted(s *Subscriptions, kind wire.EntityKind, entityID int64, fn func(editingUserID int64)) *Subscription {
	return s.add(wire.TargetEditStarted, kind, entityID, func(ev wire.EntityEvent) error {
		fn(ev.EditingUserID)
		return nil
	})
}

func OnEditEnded(s *Subscriptions, kind wire.EntityKind, entityID int64, fn func(editingUserID int64)) *Subscription {
	return s.add(wire.TargetEditEnded, kind, entityID, func(ev wire.EntityEvent) error {
		fn(ev.EditingUserID)
		return nil
	})
}
