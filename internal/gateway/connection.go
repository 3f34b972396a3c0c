package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/internal/hub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is the gateway's record of one websocket client. It implements hub.Member.
type Connection struct {
	id          string
	ws          *websocket.Conn
	remoteIP    string
	connectedAt time.Time
	state       atomic.Int32

	// set once before the connection joins any group
	writer *hub.Writer

	mu        sync.Mutex
	userID    int64
	projectID int64
	admin     bool
	role      domain.ProjectRole
	groups    map[domain.GroupKind]string
}

func newConnection(ws *websocket.Conn, remoteIP string, now time.Time) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		ws:          ws,
		remoteIP:    remoteIP,
		connectedAt: now,
		groups:      make(map[domain.GroupKind]string, 2),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) RemoteIP() string { return c.remoteIP }

func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) transition(to State) error {
	for {
		from := c.State()
		if !from.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

func (c *Connection) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) ProjectID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

func (c *Connection) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

func (c *Connection) Role() domain.ProjectRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Connection) authenticate(userID int64, admin bool) error {
	c.mu.Lock()
	c.userID = userID
	c.admin = admin
	c.mu.Unlock()
	return c.transition(StateAuthenticated)
}

func (c *Connection) authorize(projectID int64, role domain.ProjectRole) error {
	c.mu.Lock()
	c.projectID = projectID
	c.role = role
	c.mu.Unlock()
	return c.transition(StateAuthorized)
}

func (c *Connection) recordGroup(kind domain.GroupKind, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[kind] = key
}

// Group returns the group key recorded for kind at join time.
func (c *Connection) Group(kind domain.GroupKind) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.groups[kind]
	return key, ok
}

func (c *Connection) Enqueue(frame []byte) bool {
	if c.writer == nil {
		return false
	}
	return c.writer.Enqueue(frame)
}

// Close sends a close frame with reason and closes the socket. The read loop then fails and
// the connection's normal disconnect handling runs.
func (c *Connection) Close(reason string) {
	if c.writer == nil {
		_ = c.ws.Close()
		return
	}
	c.writer.StopGraceful(reason)
}
