package transporthttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// helloTimeout bounds how long a fresh socket may sit silent before sending
// its hello frame.
const helloTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware on the HTTP side.
	CheckOrigin: func(*http.Request) bool { return true },
}

type helloMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// handleWS upgrades the connection and waits for the identifying hello frame.
// Anything else closes the socket with a policy violation before the
// connection is registered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	var hello helloMessage
	if err := json.Unmarshal(frame, &hello); err != nil || hello.Type != "hello" || strings.TrimSpace(hello.UserID) == "" {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello frame")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	userID := strings.TrimSpace(hello.UserID)
	connID := s.registry.Register(userID, conn)
	defer func() {
		s.registry.Remove(userID, connID)
		_ = conn.Close()
	}()

	// Drain client frames; the registry is the only writer after the hello.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
