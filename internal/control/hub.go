package control

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// event is one message pushed to every connected client: a scan progress
// update or a system status change.
type event struct {
	Type   string `json:"type"`
	ScanID string `json:"scan_id,omitempty"`
}

// hub fans a broadcast event out to every currently connected WebSocket
// client, in the same register/unregister/broadcast-channel shape the
// gorilla/websocket chat example uses.
type hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan event
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     make(chan event, 64),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.mu.Unlock()
		case ev := <-h.events:
			h.mu.Lock()
			for c := range h.clients {
				if err := c.WriteJSON(ev); err != nil {
					delete(h.clients, c)
					c.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) broadcast(ev event) {
	select {
	case h.events <- ev:
	default:
		// Drop rather than block the request path if the event buffer is
		// full — this is a best-effort progress feed, not a delivery
		// guarantee.
	}
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("control: websocket upgrade failed", "error", err)
		return
	}
	s.hub.register <- conn

	go func() {
		defer func() { s.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
