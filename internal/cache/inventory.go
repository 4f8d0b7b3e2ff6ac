package cache

import "fmt"

const (
	CategoryListKey    = "categories:live"
	CategoryListFamily = "categories"

	threadChannelPattern = "posts:%d:thread"
	// ThreadChannelGlob matches every per-post thread channel.
	ThreadChannelGlob = "posts:*:thread"
)

// ThreadChannel is the pub/sub channel carrying comment events for a post.
func ThreadChannel(postID uint) string {
	return fmt.Sprintf(threadChannelPattern, postID)
}

