package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// writeTimeout bounds one push to a client.
const writeTimeout = 5 * time.Second

// serveWebSocket upgrades the request and writes one JSON snapshot per
// broadcast until the client goes away. Client messages are ignored.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		monitoring.Diagf("[api] websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	id, ch := s.bcast.Subscribe()
	defer s.bcast.Unsubscribe(id)
	monitoring.Diagf("[api] websocket subscriber %s connected from %s", id, r.RemoteAddr)

	// CloseRead discards client frames and cancels ctx when the peer
	// closes.
	ctx := conn.CloseRead(r.Context())

	// Send the current state straight away so clients need not wait a tick.
	if err := s.writeWS(ctx, conn, s.state.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			monitoring.Diagf("[api] websocket subscriber %s disconnected", id)
			return
		case snap, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := s.writeWS(ctx, conn, snap); err != nil {
				monitoring.Diagf("[api] websocket subscriber %s: %v", id, err)
				return
			}
		}
	}
}

func (s *Server) writeWS(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// serveStream pushes snapshots as Server-Sent Events.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, ch := s.bcast.Subscribe()
	defer s.bcast.Unsubscribe(id)

	if err := writeEvent(w, s.state.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
