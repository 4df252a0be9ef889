package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/surgemap/internal/adapters/nats"
	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/pkg/metrics"
)

// wsMessage is sent from client to server.
type wsMessage struct {
	Action string `json:"action"` // "current" | "ping"
}

// wsEnvelope wraps every server push.
type wsEnvelope struct {
	Type  string          `json:"type"` // "scene" | "pong" | "error"
	Scene json.RawMessage `json:"scene,omitempty"`
	Error string          `json:"error,omitempty"`
}

// WebSocketHandler returns a handler that pushes the current scene on
// connect and relays every newly published scene from NATS afterwards.
// Clients may send {"action":"current"} to have the current scene resent.
func WebSocketHandler(nc *nats.Conn, current func() *domain.Scene) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		log := slog.Default().With("remote", remoteAddr)
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		sendCurrent := func() {
			scene := current()
			if scene == nil {
				return
			}
			data, err := json.Marshal(scene)
			if err != nil {
				return
			}
			_ = writeJSON(wsEnvelope{Type: "scene", Scene: data})
		}

		sendCurrent()

		if nc != nil {
			sub, err := nc.Subscribe(natsadapter.SubjectSceneReady, func(msg *nats.Msg) {
				_ = writeJSON(wsEnvelope{Type: "scene", Scene: json.RawMessage(msg.Data)})
			})
			if err != nil {
				log.Error("ws subscribe failed", "error", err)
				return
			}
			defer func() { _ = sub.Unsubscribe() }()
		}

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(wsEnvelope{Type: "error", Error: "invalid JSON"})
				continue
			}

			switch m.Action {
			case "current":
				sendCurrent()
			case "ping":
				_ = writeJSON(wsEnvelope{Type: "pong"})
			default:
				_ = writeJSON(wsEnvelope{Type: "error", Error: "unknown action: " + m.Action})
			}
		}

		log.Info("ws client disconnected")
	}
}
