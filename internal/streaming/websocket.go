package streaming

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/modelgate/gateway/internal/connmgr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// DefaultBufferSize sizes the WebSocket upgrader's read and write buffers.
const DefaultBufferSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  DefaultBufferSize,
	WriteBufferSize: DefaultBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSFrame is the envelope every WebSocket chunk carries: a monotonically
// increasing per-request sequence number alongside the chunk payload, so a
// client can detect drops or reordering.
type WSFrame struct {
	RequestID string         `json:"request_id"`
	Seq       uint64         `json:"seq"`
	Chunk     map[string]any `json:"chunk,omitempty"`
	Done      bool           `json:"done,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// WSConnection adapts a gorilla/websocket connection to connmgr.Subscriber.
// Send is non-blocking: a subscriber whose outbound buffer is full is
// reported dead rather than stalling the publisher.
type WSConnection struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// NewWSConnection upgrades r to a WebSocket and returns a connection ready
// to register with a connmgr.Manager. Callers must call Run in its own
// goroutine after registering.
func NewWSConnection(id string, w http.ResponseWriter, r *http.Request) (*WSConnection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return &WSConnection{id: id, conn: conn, send: make(chan []byte, 256)}, nil
}

func (c *WSConnection) ID() string { return c.id }

func (c *WSConnection) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *WSConnection) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Run drives the connection's read and write pumps until the socket closes
// or onUnregister is invoked (typically connmgr.Manager.Unregister), the
// same read/write-pump split as the teacher's dashboard hub pattern.
func (c *WSConnection) Run(onUnregister func(connID string), onMessage func(connID string, raw []byte)) {
	done := make(chan struct{})
	go c.writePump(done)
	c.readPump(onUnregister, onMessage)
	close(done)
}

func (c *WSConnection) readPump(onUnregister func(connID string), onMessage func(connID string, raw []byte)) {
	defer onUnregister(c.id)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(c.id, message)
		}
	}
}

func (c *WSConnection) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PublishFrame marshals frame and publishes it through mgr to every
// subscriber of frame.RequestID.
func PublishFrame(mgr *connmgr.Manager, frame WSFrame) (int, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	return mgr.Publish(frame.RequestID, data), nil
}
