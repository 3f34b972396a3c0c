package liveclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeTimeout = time.Second

// Conn is an admitted connection. Frames are read only inside Run.
type Conn struct {
	ws      *websocket.Conn
	subs    *Subscriptions
	pending [][]byte

	mu      sync.Mutex
	onError func(error)

	closeOnce sync.Once
}

func (c *Conn) Subscriptions() *Subscriptions {
	return c.subs
}

// OnError installs a handler for dispatch errors. With a handler installed Run keeps going
// after a bad frame; without one Run returns the error.
func (c *Conn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Run dispatches frames until the server closes the connection, the socket fails or ctx
// ends. A normal close from the server returns nil.
func (c *Conn) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	pending := c.pending
	c.pending = nil
	for _, data := range pending {
		if err := c.dispatch(data); err != nil {
			return err
		}
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := c.dispatch(data); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(data []byte) error {
	err := c.subs.Dispatch(data)
	if err == nil {
		return nil
	}
	c.mu.Lock()
	onError := c.onError
	c.mu.Unlock()
	if onError != nil {
		onError(err)
		return nil
	}
	return err
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		err = c.ws.Close()
	})
	return err
}
