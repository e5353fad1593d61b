package listener

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smazurov/framelink/internal/logging"
)

const previewWriteTimeout = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// viewer is one WebSocket client. Each viewer keeps at most one pending frame
// so a slow browser never holds back the producer or other viewers.
type viewer struct {
	conn    *websocket.Conn
	pending chan []byte
	done    chan struct{}
}

// Hub relays received frames to WebSocket viewers as binary messages.
type Hub struct {
	mu      sync.RWMutex
	viewers map[*viewer]struct{}
	closed  bool
	logger  *slog.Logger
}

// NewHub creates an empty preview hub.
func NewHub() *Hub {
	return &Hub{
		viewers: make(map[*viewer]struct{}),
		logger:  logging.GetLogger("preview"),
	}
}

// ServeHTTP upgrades the request and registers the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	v := &viewer{conn: conn, pending: make(chan []byte, 1), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.viewers[v] = struct{}{}
	count := len(h.viewers)
	h.mu.Unlock()
	h.logger.Info("Viewer connected", "remote", r.RemoteAddr, "viewers", count)

	go h.writeLoop(v)

	// Viewers send nothing; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(v)
	h.logger.Info("Viewer disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(v *viewer) {
	for {
		select {
		case data := <-v.pending:
			_ = v.conn.SetWriteDeadline(time.Now().Add(previewWriteTimeout))
			if err := v.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				h.remove(v)
				return
			}
		case <-v.done:
			return
		}
	}
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.done)
		_ = v.conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast queues data for every viewer, replacing any frame a viewer has
// not yet been sent.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		select {
		case <-v.pending:
		default:
		}
		select {
		case v.pending <- data:
		default:
		}
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Close disconnects all viewers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[*viewer]struct{})
	h.mu.Unlock()

	for v := range viewers {
		close(v.done)
		_ = v.conn.Close()
	}
}
