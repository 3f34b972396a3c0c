package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// EntityKind identifies a broadcastable domain entity.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindProject
	KindSprint
	KindUserStory
	KindUserStoryTask
	KindAcceptanceCriteria
	KindWorklogEntry
	KindFormInstance
	KindFormAnswer
	KindStandUpMeeting
	KindCheckIn
	KindAnnouncement
)

var ErrUnknownEntityKind = errors.New("unknown entity kind")

// routingKeys must stay stable: clients filter on these strings.
var routingKeys = map[EntityKind]string{
	KindProject:            "Project",
	KindSprint:             "Sprint",
	KindUserStory:          "UserStory",
	KindUserStoryTask:      "UserStoryTask",
	KindAcceptanceCriteria: "AcceptanceCriteria",
	KindWorklogEntry:       "WorklogEntry",
	KindFormInstance:       "FormInstance",
	KindFormAnswer:         "FormAnswer",
	KindStandUpMeeting:     "StandUpMeeting",
	KindCheckIn:            "CheckIn",
	KindAnnouncement:       "Announcement",
}

var kindsByRoutingKey = indexRoutingKeys(routingKeys)

func indexRoutingKeys(keys map[EntityKind]string) map[string]EntityKind {
	index := make(map[string]EntityKind, len(keys))
	for kind, key := range keys {
		if key == "" {
			panic(fmt.Sprintf("wire: entity kind %d has an empty routing key", kind))
		}
		if other, dup := index[key]; dup {
			panic(fmt.Sprintf("wire: routing key %q shared by entity kinds %d and %d", key, other, kind))
		}
		index[key] = kind
	}
	return index
}

// RoutingKey returns the stable identifier carried on the wire, or "" for unregistered kinds.
func (k EntityKind) RoutingKey() string {
	return routingKeys[k]
}

// Valid reports whether k is registered.
func (k EntityKind) Valid() bool {
	_, ok := routingKeys[k]
	return ok
}

func (k EntityKind) String() string {
	if key, ok := routingKeys[k]; ok {
		return key
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// ParseRoutingKey maps a routing key back to its kind. Matching is exact and case-sensitive.
func ParseRoutingKey(key string) (EntityKind, bool) {
	kind, ok := kindsByRoutingKey[key]
	return kind, ok
}

// Kinds returns every registered kind in ascending order.
func Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(routingKeys))
	for kind := range routingKeys {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Entity is implemented by values that can be sent as a ValueUpdated snapshot.
type Entity interface {
	EntityKind() EntityKind
}

// RawEntity carries an already-serialized snapshot, e.g. one received over the publish API.
type RawEntity struct {
	Kind  EntityKind
	Value json.RawMessage
}

func (r RawEntity) EntityKind() EntityKind { return r.Kind }

func (r RawEntity) MarshalJSON() ([]byte, error) {
	if len(r.Value) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(r.Value) {
		return nil, errors.New("raw entity value is not valid JSON")
	}
	return r.Value, nil
}
