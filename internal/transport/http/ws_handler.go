// Package http exposes the quiz protocol over WebSocket for browser clients.
// Each text frame carries one JSON record with the same schema the TCP
// transport uses.
package http

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"flashquiz-server/internal/app"
	"flashquiz-server/internal/protocol"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and runs the same read loop as the TCP
// transport: decode, dispatch, tear down on transport error.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	sender := &wsSender{conn: conn}
	id := h.engine.Connect(sender)
	defer h.engine.Disconnect(id)

	ctx := r.Context()
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg protocol.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Undecodable frame; the socket itself is still good.
			_ = sender.Send(protocol.NewError("Invalid JSON format"))
			continue
		}
		h.engine.HandleMessage(ctx, id, msg)
	}
}

// wsSender guards the connection with a mutex; gorilla allows only one
// concurrent writer.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func (s *wsSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *wsSender) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
