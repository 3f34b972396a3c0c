package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 32
)

// Writer owns all writes to one websocket connection: queued frames and keepalive pings.
type Writer struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	// set when the write loop gave up after a failed write
	failed atomic.Bool
}

// NewWriter starts the write loop. The caller must not write to conn afterwards; reads
// remain the caller's job and the pong handler installed here extends the read deadline.
func NewWriter(conn *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Writer {
	w := &Writer{
		conn:    conn,
		clock:   clock,
		metrics: m,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case frame := <-w.send:
			start := w.clock.Now()
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				w.fail()
				return
			}
			if w.metrics != nil {
				w.metrics.FramesSent.Inc()
				w.metrics.FrameSendDuration.Observe(w.clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if w.metrics != nil {
					w.metrics.PingFailures.Inc()
				}
				w.fail()
				return
			}
		case <-w.done:
			return
		}
	}
}

// fail closes the socket so the reader errors out at once and the connection's disconnect
// runs. It must not take stopOnce: a concurrent StopGraceful holds it while waiting for run.
func (w *Writer) fail() {
	w.failed.Store(true)
	_ = w.conn.Close()
}

// Enqueue queues a frame without blocking. It returns false if the buffer is full or the
// writer has stopped.
func (w *Writer) Enqueue(frame []byte) bool {
	if w.failed.Load() {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.send <- frame:
		return true
	default:
		return false
	}
}

// Stop ends the write loop and closes the socket without a close frame.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

// StopGraceful ends the write loop, then sends a normal close frame carrying reason.
func (w *Writer) StopGraceful(reason string) {
	w.stopOnce.Do(func() {
		close(w.done)
		// the close frame must not race the write loop
		w.wg.Wait()

		w.updateWriteDeadline()
		_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

func (w *Writer) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

func (w *Writer) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *Writer) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}
