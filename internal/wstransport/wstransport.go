// Package wstransport carries wire.Envelope frames over WebSocket text
// frames, following the control-stream framing style of this
// codebase's ancestor adapted to a self-delimiting transport: a
// WebSocket frame already carries exactly one message, so there is no
// length prefix to write or parse.
package wstransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Garmelon/wot/internal/wire"
)

// ErrClosed is returned by Conn methods once the underlying connection
// has been closed.
var ErrClosed = errors.New("wstransport: connection closed")

// ErrMalformedFrame is returned by ReadMessage when a frame arrived
// intact but did not decode into a wire.Envelope. This is not a
// transport failure: callers log and keep reading rather than tearing
// down the connection.
var ErrMalformedFrame = errors.New("wstransport: malformed frame")

// Conn is a duplex channel of wire envelopes. Both the server (one per
// accepted session) and the client use the same interface.
type Conn interface {
	ReadMessage() (wire.Envelope, error)
	WriteMessage(wire.Envelope) error
	RemoteAddr() string
	Close() error
}

type wsConn struct {
	ws     *websocket.Conn
	closed bool
}

func wrap(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadMessage() (wire.Envelope, error) {
	if c.closed {
		return wire.Envelope{}, ErrClosed
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return wire.Envelope{}, ErrClosed
		}
		return wire.Envelope{}, err
	}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return wire.Envelope{}, ErrMalformedFrame
	}
	return env, nil
}

func (c *wsConn) WriteMessage(env wire.Envelope) error {
	if c.closed {
		return ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *wsConn) Close() error {
	c.closed = true
	return c.ws.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade upgrades an incoming HTTP request to a WebSocket connection
// and wraps it as a Conn. Callers are typically an http.HandlerFunc
// registered at the server's grid endpoint.
func Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return wrap(ws), nil
}

// Dial opens a WebSocket connection to a wot server.
func Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wrap(ws), nil
}
