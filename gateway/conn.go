package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PoisonousPython/PluralKit/types"
)

const (
	// maxFrameSize bounds inbound frames. Large guilds produce dispatch
	// payloads in the low megabytes.
	maxFrameSize = 8 << 20

	writeTimeout = 10 * time.Second
)

// conn wraps a single gateway websocket connection. Reads happen from one
// goroutine and writes from another; the write mutex keeps control frames
// and payload frames from interleaving.
type conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// dialGateway opens a websocket connection to the gateway URL. The dialer is
// injectable so tests can point shards at a local fake server.
func dialGateway(ctx context.Context, url string, dialer *websocket.Dialer) (*conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck // handshake already failed
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)", types.ErrConnection, url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", types.ErrConnection, url, err)
	}
	ws.SetReadLimit(maxFrameSize)
	return &conn{ws: ws}, nil
}

// readPayload blocks until the next frame arrives or the connection fails.
func (c *conn) readPayload() (*payload, error) {
	var p payload
	if err := c.ws.ReadJSON(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// writePayload sends one frame with a bounded write deadline.
func (c *conn) writePayload(op int, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(struct {
		Op   int `json:"op"`
		Data any `json:"d"`
	}{Op: op, Data: data})
}

// writeClose sends a close frame without tearing down the transport, so the
// peer's close response can still be read.
func (c *conn) writeClose(code int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(code, "")
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func (c *conn) close() error {
	return c.ws.Close()
}
