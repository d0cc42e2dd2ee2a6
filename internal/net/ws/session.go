package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quickstrike/server/internal/net/proto"
)

// writeWait bounds every outbound frame write. A peer that cannot drain the
// socket within it fails the write and gets dropped.
const writeWait = 10 * time.Second

// session is one connected client socket. The mutex serializes writes: tick
// broadcasts, heartbeat echoes from the read loop, and the engine's private
// frames all land here concurrently.
type session struct {
	actorID string
	conn    *websocket.Conn
	mu      sync.Mutex
}

func newSession(actorID string, conn *websocket.Conn) *session {
	return &session{actorID: actorID, conn: conn}
}

// deliver writes one encoded envelope. Binary envelopes carry msgpack state
// frames; everything else is JSON text.
func (s *session) deliver(env proto.Envelope) error {
	messageType := websocket.TextMessage
	if env.Binary {
		messageType = websocket.BinaryMessage
	}
	return s.write(messageType, env.Payload)
}

func (s *session) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// close sends a best-effort close frame and drops the socket.
func (s *session) close(code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	s.mu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, message)
	s.mu.Unlock()
	s.conn.Close()
}
