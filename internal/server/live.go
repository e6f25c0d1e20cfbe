package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// liveInterval is how often the live feed pushes a fresh snapshot.
const liveInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from this same process; all origins are local.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveHub pushes streamer snapshots to every connected dashboard socket.
type liveHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newLiveHub() *liveHub {
	return &liveHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *liveHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *liveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// broadcast sends v as JSON to every connection, dropping the ones that fail.
func (h *liveHub) broadcast(v any) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
		if err := conn.WriteJSON(v); err != nil {
			h.remove(conn)
		}
	}
}

func (h *liveHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}

// handleLiveWS upgrades the connection and parks it in the hub. Reads are
// drained only to observe the close.
func (s *AnalyticsServer) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Live feed upgrade failed", "error", err)
		return
	}
	s.live.add(conn)

	go func() {
		defer s.live.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// runLiveFeed periodically broadcasts the streamer summary until ctx ends.
func (s *AnalyticsServer) runLiveFeed(ctx context.Context) {
	ticker := time.NewTicker(liveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.live.closeAll()
			return
		case <-ticker.C:
			s.live.broadcast(map[string]any{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"streamers": s.streamerSummaries(),
			})
		}
	}
}
