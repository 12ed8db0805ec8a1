package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriter is the slice of *websocket.Conn the hub needs, kept narrow so hub
// and presence tests can run against in-memory connections.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live authenticated connection: the unit of registry and room
// membership.
type Client struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	conn    wsWriter
	writeMu sync.Mutex
}

// NewClient wraps a connection for the given identity.
func NewClient(userID int, conn wsWriter) *Client {
	return &Client{
		ConnID:      newConnID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// send marshals one event frame onto the connection. Writes are serialized per
// connection, which also preserves per-recipient delivery order.
func (c *Client) send(event string, payload any) error {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		frame.Data = data
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, body)
}

func (c *Client) close() {
	_ = c.conn.Close()
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
