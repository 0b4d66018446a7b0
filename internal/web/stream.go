// pattern: Imperative Shell

package web

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// handleOutputStream upgrades to a websocket and sends the surface's lines,
// existing ones first, one text message per line. The stream ends when the
// client goes away or the surface is evicted.
func (s *Server) handleOutputStream(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.surface(w, r)
	if !ok {
		return
	}

	// Restrict to localhost origins to prevent cross-origin WebSocket attacks.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// CloseRead handles control frames and cancels ctx when the peer leaves.
	ctx := conn.CloseRead(context.Background())

	sub := surface.Subscribe()
	defer surface.Unsubscribe(sub)

	s.logger.Debug("output stream connected", "surface", surface.Name())

	sent := 0
	for {
		var lines []string
		lines, sent = surface.LinesSince(sent)
		for _, line := range lines {
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "surface evicted")
				return
			}
		}
	}
}
