package models

import (
	"time"

	"gorm.io/gorm"
)

// Visibility controls who may read a published post.
type Visibility string

const (
	// VisibilityPublic posts are readable by everyone, anonymous viewers included.
	VisibilityPublic Visibility = "public"
	// VisibilityFollowers posts are readable by the author and the author's followers.
	VisibilityFollowers Visibility = "followers"
	// VisibilityPrivate posts are readable by the author only.
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility validates a user supplied visibility value.
func ParseVisibility(raw string) (Visibility, error) {
	switch v := Visibility(raw); v {
	case VisibilityPublic, VisibilityFollowers, VisibilityPrivate:
		return v, nil
	case "":
		return VisibilityPublic, nil
	default:
		return "", NewValidationError("visibility must be one of public, followers, private")
	}
}

// Post is the central piece of authored content.
type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Slug        string     `gorm:"size:32;uniqueIndex;not null" json:"slug"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	AuthorID    uint       `gorm:"not null;index" json:"author_id"`
	Author      User       `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	CategoryID  *uint      `gorm:"index" json:"category_id,omitempty"`
	Category    *Category  `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Visibility  Visibility `gorm:"type:varchar(20);not null;default:'private';index" json:"visibility"`
	IsPublished bool       `gorm:"not null;default:false" json:"is_published"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Counts are not persisted; computed at query time from live rows
	LikesCount    int64 `gorm:"->;-:migration" json:"likes_count"`
	DislikesCount int64 `gorm:"->;-:migration" json:"dislikes_count"`
	CommentsCount int64 `gorm:"->;-:migration" json:"comments_count"`
	// ViewerVote is the requesting user's vote on this post, if any (computed)
	ViewerVote *VoteType `gorm:"->;-:migration" json:"viewer_vote,omitempty"`
}

// PublicationStatus is the read-time classification of a post.
type PublicationStatus string

const (
	StatusDraft     PublicationStatus = "draft"
	StatusScheduled PublicationStatus = "scheduled"
	StatusLive      PublicationStatus = "live"
)

// IsDraftAt reports whether the post is not yet effectively public at now.
// A published post without a timestamp counts as a draft.
func (p *Post) IsDraftAt(now time.Time) bool {
	return !p.IsPublished || p.PublishedAt == nil || p.PublishedAt.After(now)
}

// StatusAt classifies the post at the given instant.
func (p *Post) StatusAt(now time.Time) PublicationStatus {
	switch {
	case !p.IsPublished || p.PublishedAt == nil:
		return StatusDraft
	case p.PublishedAt.After(now):
		return StatusScheduled
	default:
		return StatusLive
	}
}

// BeforeSave re-normalizes the publication pair on every write: an
// unpublished post never carries a timestamp and is always private.
func (p *Post) BeforeSave(_ *gorm.DB) error {
	if !p.IsPublished {
		p.PublishedAt = nil
		p.Visibility = VisibilityPrivate
	}
	return nil
}
