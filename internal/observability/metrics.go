// Package observability provides metrics and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})

	// PostsSaved counts post writes by operation and resulting publication status.
	PostsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_posts_saved_total",
		Help: "Total number of post creates and updates",
	}, []string{"operation", "status"})

	// VotesCast counts vote toggles by target kind and outcome (like, dislike, none).
	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_votes_cast_total",
		Help: "Total number of vote toggles",
	}, []string{"target", "outcome"})

	// CommentEvents counts comment mutations.
	CommentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_comment_events_total",
		Help: "Total number of comment creates, edits and deletes",
	}, []string{"event"})

	// FollowEvents counts follow graph changes.
	FollowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_follow_events_total",
		Help: "Total number of follow and unfollow operations",
	}, []string{"event"})

	// CacheLookups counts cache-aside lookups by key family and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_cache_lookups_total",
		Help: "Total number of cache lookups by result",
	}, []string{"family", "result"})

	// ThreadSubscribers is the number of open live thread streams.
	ThreadSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_thread_subscribers",
		Help: "Number of websocket connections following a comment thread",
	})
)
