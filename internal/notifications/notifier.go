// Package notifications relays comment thread events through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"quill/internal/cache"
	"quill/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Thread event names.
const (
	EventCommentCreated = "comment.created"
	EventCommentUpdated = "comment.updated"
	EventCommentDeleted = "comment.deleted"
)

// ThreadEvent is the payload published for every comment mutation. HTML is
// an out-of-band fragment rendered for a neutral viewer. ActorID lets the
// relay skip the client that already applied its own response.
type ThreadEvent struct {
	Event     string `json:"event"`
	PostID    uint   `json:"post_id"`
	CommentID uint   `json:"comment_id"`
	ParentID  *uint  `json:"parent_id,omitempty"`
	ActorID   uint   `json:"actor_id"`
	HTML      string `json:"html"`
}

// Notifier publishes thread events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a Notifier. A nil client makes every publish a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishThread sends ev on the post's thread channel.
func (n *Notifier) PublishThread(ctx context.Context, ev ThreadEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal thread event: %w", err)
	}
	return n.rdb.Publish(ctx, cache.ThreadChannel(ev.PostID), payload).Err()
}

// StartThreadSubscriber subscribes to every thread channel and calls
// onMessage with the post id and raw payload until ctx is cancelled.
func (n *Notifier) StartThreadSubscriber(ctx context.Context, onMessage func(postID uint, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, cache.ThreadChannelGlob)
	// wait for the subscription to be confirmed so no early publish is lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", cache.ThreadChannelGlob, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var postID uint
				if _, err := fmt.Sscanf(msg.Channel, "posts:%d:thread", &postID); err != nil {
					middleware.Logger.Warn("invalid thread channel", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in thread subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(postID, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
