package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// gwPayload mirrors the gateway wire frame.
type gwPayload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

const (
	gwOpDispatch     = 0
	gwOpHeartbeat    = 1
	gwOpIdentify     = 2
	gwOpResume       = 6
	gwOpReconnect    = 7
	gwOpInvalidSess  = 9
	gwOpHello        = 10
	gwOpHeartbeatAck = 11
)

// FakeGateway is an in-process websocket server speaking the gateway
// protocol. It completes hello/identify/resume handshakes on its own and
// exposes each accepted connection for scripting: tests push dispatch
// events, drop heartbeat acks, or close with specific codes.
type FakeGateway struct {
	t      *testing.T
	server *httptest.Server

	// HeartbeatInterval is sent in the hello frame. Defaults to 500ms.
	HeartbeatInterval time.Duration

	dropAcks   atomic.Bool
	identifies atomic.Int32
	resumes    atomic.Int32
	sessionSeq atomic.Int32

	connCh chan *FakeConn
}

// NewFakeGateway starts a fake gateway. The server shuts down via t.Cleanup.
func NewFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()

	g := &FakeGateway{
		t:                 t,
		HeartbeatInterval: 500 * time.Millisecond,
		connCh:            make(chan *FakeConn, 16),
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)

	return g
}

// URL returns the websocket endpoint of the fake gateway.
func (g *FakeGateway) URL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

// Identifies returns how many identify payloads the gateway accepted.
func (g *FakeGateway) Identifies() int {
	return int(g.identifies.Load())
}

// Resumes returns how many resume payloads the gateway accepted.
func (g *FakeGateway) Resumes() int {
	return int(g.resumes.Load())
}

// SetDropAcks makes the gateway stop acknowledging heartbeats, so shards
// detect a dead connection.
func (g *FakeGateway) SetDropAcks(drop bool) {
	g.dropAcks.Store(drop)
}

// NextConn waits for the next accepted connection to finish its handshake.
func (g *FakeGateway) NextConn(timeout time.Duration) *FakeConn {
	g.t.Helper()

	select {
	case conn := <-g.connCh:
		return conn
	case <-time.After(timeout):
		g.t.Fatalf("no gateway connection within %s", timeout)
		return nil
	}
}

// FakeConn is one accepted shard connection.
type FakeConn struct {
	gw *FakeGateway
	ws *websocket.Conn

	// SessionID is assigned at identify time or echoed at resume time.
	SessionID string

	writeMu sync.Mutex
	seq     atomic.Int64
	Resumed bool

	closed chan struct{}
}

func (g *FakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &FakeConn{gw: g, ws: ws, closed: make(chan struct{})}
	go conn.serve()
}

func (c *FakeConn) serve() {
	defer close(c.closed)
	defer c.ws.Close() //nolint:errcheck

	c.send(gwPayload{Op: gwOpHello, Data: mustMarshal(map[string]int64{
		"heartbeat_interval": c.gw.HeartbeatInterval.Milliseconds(),
	})})

	handshook := false
	for {
		var p gwPayload
		if err := c.ws.ReadJSON(&p); err != nil {
			return
		}

		switch p.Op {
		case gwOpIdentify:
			c.gw.identifies.Add(1)
			c.SessionID = fmt.Sprintf("session-%d", c.gw.sessionSeq.Add(1))
			c.seq.Store(1)
			c.send(gwPayload{
				Op:   gwOpDispatch,
				Type: "READY",
				Seq:  1,
				Data: mustMarshal(map[string]string{"session_id": c.SessionID}),
			})
			if !handshook {
				handshook = true
				c.gw.connCh <- c
			}
		case gwOpResume:
			c.gw.resumes.Add(1)
			var resume struct {
				SessionID string `json:"session_id"`
				Seq       int64  `json:"seq"`
			}
			_ = json.Unmarshal(p.Data, &resume)
			c.SessionID = resume.SessionID
			c.Resumed = true
			c.seq.Store(resume.Seq)
			c.send(gwPayload{Op: gwOpDispatch, Type: "RESUMED"})
			if !handshook {
				handshook = true
				c.gw.connCh <- c
			}
		case gwOpHeartbeat:
			if !c.gw.dropAcks.Load() {
				c.send(gwPayload{Op: gwOpHeartbeatAck})
			}
		}
	}
}

// SendDispatch pushes a dispatch event with the next sequence number.
func (c *FakeConn) SendDispatch(eventType string, data any) {
	c.send(gwPayload{
		Op:   gwOpDispatch,
		Type: eventType,
		Seq:  c.seq.Add(1),
		Data: mustMarshal(data),
	})
}

// SendReconnect asks the shard to drop the connection and resume.
func (c *FakeConn) SendReconnect() {
	c.send(gwPayload{Op: gwOpReconnect})
}

// SendInvalidSession invalidates the shard's session.
func (c *FakeConn) SendInvalidSession(resumable bool) {
	c.send(gwPayload{Op: gwOpInvalidSess, Data: mustMarshal(resumable)})
}

// CloseWithCode performs a server-initiated close with the given code.
func (c *FakeConn) CloseWithCode(code int) {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// WaitClosed blocks until the shard side closed the connection.
func (c *FakeConn) WaitClosed(timeout time.Duration) bool {
	select {
	case <-c.closed:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *FakeConn) send(p gwPayload) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.ws.WriteJSON(p)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return data
}
