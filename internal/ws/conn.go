package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger/internal/models"
)

// ConnInfo describes a live socket for event payloads and logging.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn wraps a websocket connection with serialized writes. gorilla permits
// one concurrent writer only, and broadcasts arrive from many goroutines.
type Conn struct {
	ws   *websocket.Conn
	info ConnInfo

	writeMu sync.Mutex
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn, info ConnInfo) *Conn {
	return &Conn{ws: ws, info: info}
}

// UserID returns the authenticated owner of the connection.
func (c *Conn) UserID() int64 {
	return c.info.UserID
}

// Info returns the connection metadata captured at handshake time.
func (c *Conn) Info() ConnInfo {
	return c.info
}

// WriteEvent sends one server event frame.
func (c *Conn) WriteEvent(event models.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(event)
}

// ReadFrame blocks for the next client frame.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
