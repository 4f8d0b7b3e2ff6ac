package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"quill/internal/middleware"
	"quill/internal/notifications"
	"quill/internal/visibility"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients never send payloads; anything larger than a control frame is noise.
	maxMessageSize = 512
)

const (
	threadPostLocal   = "threadPostID"
	threadViewerLocal = "threadViewer"
)

// ThreadUpgrade admits a websocket upgrade for the thread of a post the
// caller may read.
func (s *Server) ThreadUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	viewer := viewerOf(c)
	post, err := s.posts.GetPost(c.UserContext(), c.Params("slug"), viewer)
	if err != nil {
		return s.respondError(c, err)
	}
	c.Locals(threadPostLocal, post.ID)
	c.Locals(threadViewerLocal, viewer)
	return c.Next()
}

// ThreadStream relays the thread events of one post to the connection as
// htmx out-of-band fragments. Visibility is checked again before every frame;
// once the viewer loses access the socket is closed.
func (s *Server) ThreadStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		postID, _ := conn.Locals(threadPostLocal).(uint)
		viewer, _ := conn.Locals(threadViewerLocal).(visibility.Viewer)

		sub, err := s.hub.Subscribe(postID)
		if err != nil {
			middleware.Logger.Warn("thread subscription refused",
				slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			_ = conn.Close()
			return
		}
		defer s.hub.Unsubscribe(sub)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(maxMessageSize)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						middleware.Logger.Debug("thread stream read error",
							slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
					}
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			_ = conn.Close()
		}()

		for {
			select {
			case <-closed:
				return
			case payload, ok := <-sub.Messages():
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				frame, send := threadFrame(payload, viewer.UserID)
				if !send {
					continue
				}
				if !s.threadStillVisible(postID, viewer) {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "post not found"))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) threadStillVisible(postID uint, viewer visibility.Viewer) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	visible, err := s.posts.CanView(ctx, postID, viewer)
	if err != nil {
		middleware.Logger.Warn("thread visibility check failed",
			slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
		return false
	}
	return visible
}

// threadFrame extracts the fragment to send for one published event. Events
// caused by the viewer are skipped since their own response already applied
// the change.
func threadFrame(payload []byte, viewerID uint) ([]byte, bool) {
	var ev notifications.ThreadEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.HTML == "" {
		return nil, false
	}
	if viewerID != 0 && ev.ActorID == viewerID {
		return nil, false
	}
	return []byte(ev.HTML), true
}
