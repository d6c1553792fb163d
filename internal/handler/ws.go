package handler

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"steward/internal/service"
)

const (
	sessionWSWriteWait = 10 * time.Second
	sessionWSPongWait  = 60 * time.Second
	sessionWSPingEvery = (sessionWSPongWait * 9) / 10
)

var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// SessionHub fans session change events out to websocket watchers, keyed by
// user. It implements service.Notifier; delivery is best effort and a slow
// watcher loses events rather than blocking the services.
type SessionHub struct {
	mu     sync.RWMutex
	byUser map[string]map[chan service.SessionEvent]struct{}
}

func NewSessionHub() *SessionHub {
	return &SessionHub{byUser: make(map[string]map[chan service.SessionEvent]struct{})}
}

func (h *SessionHub) SessionChanged(userID string, ev service.SessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.byUser[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *SessionHub) subscribe(userID string) chan service.SessionEvent {
	ch := make(chan service.SessionEvent, 32)
	h.mu.Lock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[chan service.SessionEvent]struct{})
	}
	h.byUser[userID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *SessionHub) unsubscribe(userID string, ch chan service.SessionEvent) {
	h.mu.Lock()
	if subs := h.byUser[userID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.byUser, userID)
		}
	}
	h.mu.Unlock()
}

type sessionWSOutbound struct {
	Type    string                `json:"type"`
	Event   *service.SessionEvent `json:"event,omitempty"`
	Message string                `json:"message,omitempty"`
}

// HandleSessionWS streams session change events for one user over a
// websocket until the client goes away.
func (h *SessionHub) HandleSessionWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(sessionWSPongWait)); err != nil {
		log.Printf("session ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
	})

	events := h.subscribe(userID.String())
	defer h.unsubscribe(userID.String(), events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			// Drain control frames so pong handlers run; inbound data frames
			// are ignored.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSessionWS(conn, sessionWSOutbound{Type: "subscribed"}); err != nil {
		return
	}

	ticker := time.NewTicker(sessionWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if err := writeSessionWS(conn, sessionWSOutbound{Type: "session_changed", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSessionWS(conn *websocket.Conn, out sessionWSOutbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(out)
}
