package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishThread(context.Background(), ThreadEvent{PostID: 1}))
	assert.NoError(t, n.StartThreadSubscriber(context.Background(), func(uint, string) {}))
}

func TestNotifier_RelaysThreadEventsToHub(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	hub := NewThreadHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := hub.Subscribe(7)
	require.NoError(t, err)
	other, err := hub.Subscribe(8)
	require.NoError(t, err)

	require.NoError(t, hub.StartWiring(ctx, n))

	parent := uint(3)
	require.NoError(t, n.PublishThread(context.Background(), ThreadEvent{
		Event:     EventCommentCreated,
		PostID:    7,
		CommentID: 11,
		ParentID:  &parent,
		HTML:      `<div id="comment-11"></div>`,
	}))

	select {
	case raw := <-sub.Messages():
		var ev ThreadEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, EventCommentCreated, ev.Event)
		assert.Equal(t, uint(11), ev.CommentID)
		require.NotNil(t, ev.ParentID)
		assert.Equal(t, uint(3), *ev.ParentID)
	case <-time.After(2 * time.Second):
		t.Fatal("thread event was not relayed")
	}

	assert.Never(t, func() bool { return len(other.Messages()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
