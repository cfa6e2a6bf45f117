package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"preset-relay/preset"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watchMessage is sent to watch clients. The first message is a "snapshot"
// of the registry; every later one mirrors a preset.Change.
type watchMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Key     string          `json:"key,omitempty"`
	Preset  *preset.Preset  `json:"preset,omitempty"`
	Presets []preset.Preset `json:"presets,omitempty"`
}

func (h *handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("watch upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, ok := h.hub.Subscribe(r.URL.Query().Get("id"))
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.hub.Unsubscribe(sub)
	h.logger.Debug("watch client connected", "id", sub.ID)

	// Subscribing first means no change between the snapshot and the stream
	// is lost; at worst one is seen twice.
	if err := h.writeWatch(conn, watchMessage{Type: "snapshot", ID: sub.ID, Presets: h.registry.List()}); err != nil {
		return
	}

	// Only this goroutine writes; the reader exists to notice the client
	// going away.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case c := <-sub.C():
			msg := watchMessage{Type: string(c.Type), Key: c.Key, Preset: c.Preset}
			if err := h.writeWatch(conn, msg); err != nil {
				return
			}
		case <-sub.Kicked():
			// Displaced by a newer client with the same id, or shutdown.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription ended"),
				time.Now().Add(writeWait))
			return
		case <-readDone:
			h.logger.Debug("watch client disconnected", "id", sub.ID)
			return
		}
	}
}

func (h *handler) writeWatch(conn *websocket.Conn, msg watchMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
