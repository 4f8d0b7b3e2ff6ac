package notifications

import (
	"context"
	"errors"
	"sync"

	"quill/internal/observability"
)

const (
	maxSubscribersPerThread = 256
	maxTotalSubscribers     = 10000
	subscriberBuffer        = 16
)

var (
	ErrThreadFull = errors.New("thread subscriber limit reached")
	ErrServerFull = errors.New("server subscriber limit reached")
	ErrHubClosed  = errors.New("hub is shut down")
)

// Subscriber receives the payloads published for one post.
type Subscriber struct {
	PostID uint
	send   chan []byte
}

// Messages is closed when the subscriber is removed or the hub shuts down.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// ThreadHub fans thread events out to the local subscribers of each post.
type ThreadHub struct {
	mu     sync.RWMutex
	subs   map[uint]map[*Subscriber]struct{}
	total  int
	closed bool
}

// NewThreadHub creates an empty hub.
func NewThreadHub() *ThreadHub {
	return &ThreadHub{subs: make(map[uint]map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for postID.
func (h *ThreadHub) Subscribe(postID uint) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= maxTotalSubscribers {
		return nil, ErrServerFull
	}
	m, ok := h.subs[postID]
	if !ok {
		m = make(map[*Subscriber]struct{})
		h.subs[postID] = m
	}
	if len(m) >= maxSubscribersPerThread {
		return nil, ErrThreadFull
	}

	sub := &Subscriber{PostID: postID, send: make(chan []byte, subscriberBuffer)}
	m[sub] = struct{}{}
	h.total++
	observability.ThreadSubscribers.Inc()
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (h *ThreadHub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.subs[sub.PostID]
	if !ok {
		return
	}
	if _, exists := m[sub]; !exists {
		return
	}
	delete(m, sub)
	if len(m) == 0 {
		delete(h.subs, sub.PostID)
	}
	h.total--
	observability.ThreadSubscribers.Dec()
	close(sub.send)
}

// Broadcast delivers payload to every subscriber of postID. Slow subscribers
// drop the message rather than block the relay.
func (h *ThreadHub) Broadcast(postID uint, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[postID] {
		select {
		case sub.send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// Count returns the number of subscribers of postID.
func (h *ThreadHub) Count(postID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[postID])
}

// StartWiring relays every thread event received by n to local subscribers.
func (h *ThreadHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartThreadSubscriber(ctx, func(postID uint, payload string) {
		h.Broadcast(postID, []byte(payload))
	})
}

// Shutdown closes every subscriber channel and refuses new subscriptions.
func (h *ThreadHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for postID, m := range h.subs {
		for sub := range m {
			close(sub.send)
			observability.ThreadSubscribers.Dec()
		}
		delete(h.subs, postID)
	}
	h.total = 0
	return nil
}
