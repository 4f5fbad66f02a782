package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"messaging-core/internal/models"
)

// conn is the slice of *websocket.Conn the session needs; sessions in
// tests run over in-memory fakes.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one authenticated websocket connection. Identity is attached
// once at handshake time; per-event authorization happens in the handlers.
type Session struct {
	conn     conn
	identity models.Identity
	info     ConnInfo

	// gorilla permits a single concurrent writer per connection.
	writeMu sync.Mutex
}

func NewSession(c conn, identity models.Identity, info ConnInfo) *Session {
	return &Session{conn: c, identity: identity, info: info}
}

func (s *Session) Identity() models.Identity { return s.identity }

func (s *Session) Info() ConnInfo { return s.info }

// Send frames and writes a single event to this connection.
func (s *Session) Send(event string, data any) error {
	payload, err := models.MarshalEvent(event, data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendError emits an error event to this connection only.
func (s *Session) SendError(code models.ErrorCode, message string) {
	_ = s.Send(models.EventError, models.ErrorEvent{Code: code, Message: message})
}

func (s *Session) Close() error {
	return s.conn.Close()
}
