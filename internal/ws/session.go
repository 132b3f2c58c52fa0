package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dm-service/internal/models"
)

// ConnInfo carries connection metadata for lifecycle events.
type ConnInfo struct {
	ConnID        string
	ParticipantID string
	DeviceID      string
	IP            string
	RequestID     string
	TraceID       string
	ConnectedAt   time.Time
}

// Session wraps one websocket connection. Writes are serialized so the
// delivery engine and presence broadcasts can push from any goroutine.
type Session struct {
	info ConnInfo
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn, info ConnInfo) *Session {
	return &Session{conn: conn, info: info}
}

// ID returns the unique connection id.
func (s *Session) ID() string {
	return s.info.ConnID
}

// Send writes one event to the connection.
func (s *Session) Send(event models.PushEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
