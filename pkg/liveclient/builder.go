package liveclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/platform/version"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/gorilla/websocket"
)

// TokenSource supplies a bearer token at connect time.
type TokenSource func(ctx context.Context) (string, error)

// Builder describes a connection to the live endpoint. URL is a ws:// or wss:// URL.
// TokenSource takes precedence over Token; with neither, no Authorization header is sent
// and the server will reject the handshake.
type Builder struct {
	URL           string
	Token         string
	TokenSource   TokenSource
	ProjectID     int64
	Dialer        *websocket.Dialer
	Header        http.Header
	Subscriptions *Subscriptions
}

// Connect dials and waits for the server's handshake verdict. A refusal is returned as
// *RejectedError. Entity frames that arrive before the verdict are kept and dispatched
// first by Run.
func (b Builder) Connect(ctx context.Context) (*Conn, error) {
	header, err := b.header(ctx)
	if err != nil {
		return nil, err
	}

	dialer := b.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, b.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", b.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", b.URL, err)
	}

	pending, err := awaitVerdict(ctx, ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	subs := b.Subscriptions
	if subs == nil {
		subs = NewSubscriptions()
	}
	return &Conn{ws: ws, subs: subs, pending: pending}, nil
}

func (b Builder) header(ctx context.Context) (http.Header, error) {
	header := http.Header{}
	for k, v := range b.Header {
		header[k] = append([]string(nil), v...)
	}

	token := b.Token
	if b.TokenSource != nil {
		t, err := b.TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("token source: %w", err)
		}
		token = t
	}
	if token != "" {
		header.Set(wire.HeaderAuthorization, wire.BearerScheme+" "+token)
	}
	if b.ProjectID != 0 {
		header.Set(wire.HeaderProjectID, strconv.FormatInt(b.ProjectID, 10))
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", version.UserAgent("client"))
	}
	return header, nil
}

func awaitVerdict(ctx context.Context, ws *websocket.Conn) ([][]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	var pending [][]byte
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", ErrHandshakeIncomplete, err)
		}

		frame, err := wire.Decode(data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		switch frame.Target {
		case wire.TargetConnectionSuccess:
			if !stop() {
				return nil, ctx.Err()
			}
			return pending, nil
		case wire.TargetConnectionError:
			var message string
			if err := frame.Arg(0, &message); err != nil {
				return nil, &DecodeError{Target: frame.Target, Err: err}
			}
			return nil, &RejectedError{Message: message}
		default:
			pending = append(pending, data)
		}
	}
}
