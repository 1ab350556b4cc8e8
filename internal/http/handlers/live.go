package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/presqr/server/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16
)

// LiveRegistry tracks open live-update channels per course
type LiveRegistry interface {
	Register(courseID string, l broadcast.Listener) bool
	Unregister(courseID string, l broadcast.Listener)
}

// LiveHandler serves the lecturer's live-update WebSocket
type LiveHandler struct {
	registry LiveRegistry
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a live handler accepting the given origins ("*" for any)
func NewLiveHandler(registry LiveRegistry, allowedOrigins []string) *LiveHandler {
	return &LiveHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleCourse handles GET /attendance/{courseId} (WebSocket upgrade)
func (h *LiveHandler) HandleCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "courseId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.Printf("WebSocket upgrade failed for course %s: %v", courseID, err)
		return
	}

	key := courseID.String()
	conn := newLiveConn(ws)
	if !h.registry.Register(key, conn) {
		_ = ws.Close()
		return
	}
	log.Printf("Live channel opened for course %s", key)

	go conn.writePump()
	conn.readPump()

	h.registry.Unregister(key, conn)
	conn.Close()
	log.Printf("Live channel closed for course %s", key)
}

// liveConn adapts a WebSocket connection to broadcast.Listener
type liveConn struct {
	ws        *websocket.Conn
	send      chan broadcast.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newLiveConn(ws *websocket.Conn) *liveConn {
	return &liveConn{
		ws:   ws,
		send: make(chan broadcast.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// Deliver queues ev without blocking; a full or closed connection drops it
func (c *liveConn) Deliver(ev broadcast.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket
func (c *liveConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump is the only writer on ws
func (c *liveConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
// It returns when the client goes away or the socket is closed.
func (c *liveConn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Live channel read error: %v", err)
			}
			return
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
