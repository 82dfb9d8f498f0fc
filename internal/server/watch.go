package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"repolens/internal/pipeline"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchMessage struct {
	Type    string          `json:"type"`
	Session *sessionView    `json:"session,omitempty"`
	Event   *pipeline.Event `json:"event,omitempty"`
}

// HandleWatch streams a session snapshot followed by one message per task
// status change. The stream ends with a "closed" message when the session
// is finalized or abandoned.
func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.get(r.PathValue("id"), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	// The client never sends data; reading only services control frames
	// and notices a closed connection.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	write := func(msg watchMessage) error {
		if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(msg)
	}

	v := h.view(s)
	if err := write(watchMessage{Type: "snapshot", Session: &v}); err != nil {
		return
	}

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				_ = write(watchMessage{Type: "closed"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(watchWriteWait))
				return
			}
			if err := write(watchMessage{Type: "task", Event: &evt}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
