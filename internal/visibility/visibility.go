// Package visibility decides which posts a viewer may read. The single-post
// check and the bulk query scope encode the same rule and must agree.
package visibility

import (
	"context"
	"time"

	"quill/internal/models"

	"gorm.io/gorm"
)

// Viewer is the identity a read is evaluated for. The zero value is anonymous.
type Viewer struct {
	UserID    uint
	ProfileID uint
}

// Anonymous returns the unauthenticated viewer.
func Anonymous() Viewer { return Viewer{} }

// IsAnonymous reports whether the viewer is unauthenticated.
func (v Viewer) IsAnonymous() bool { return v.UserID == 0 }

// FollowChecker answers whether a profile follows a post author.
type FollowChecker interface {
	FollowsAuthor(ctx context.Context, followerProfileID, authorUserID uint) (bool, error)
}

// Resolver evaluates visibility against a clock.
type Resolver struct {
	follows FollowChecker
	now     func() time.Time
}

// NewResolver creates a Resolver. A nil clock uses the current UTC time.
func NewResolver(follows FollowChecker, now func() time.Time) *Resolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{follows: follows, now: now}
}

// Now returns the resolver's current instant.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Decide is the visibility rule for one post at one instant. follows reports
// whether the viewer follows the post's author.
func Decide(post *models.Post, viewer Viewer, now time.Time, follows bool) bool {
	if viewer.IsAnonymous() {
		return !post.IsDraftAt(now) && post.Visibility == models.VisibilityPublic
	}

	isAuthor := post.AuthorID == viewer.UserID
	if post.IsDraftAt(now) {
		return isAuthor
	}

	switch post.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityPrivate:
		return isAuthor
	case models.VisibilityFollowers:
		return isAuthor || (viewer.ProfileID != 0 && follows)
	default:
		return false
	}
}

// IsVisible reports whether viewer may read post right now.
func (r *Resolver) IsVisible(ctx context.Context, post *models.Post, viewer Viewer) (bool, error) {
	now := r.now()

	follows := false
	if needsFollowLookup(post, viewer, now) {
		var err error
		follows, err = r.follows.FollowsAuthor(ctx, viewer.ProfileID, post.AuthorID)
		if err != nil {
			return false, err
		}
	}

	return Decide(post, viewer, now, follows), nil
}

func needsFollowLookup(post *models.Post, viewer Viewer, now time.Time) bool {
	return !viewer.IsAnonymous() &&
		viewer.ProfileID != 0 &&
		post.AuthorID != viewer.UserID &&
		post.Visibility == models.VisibilityFollowers &&
		!post.IsDraftAt(now) &&
		post.AuthorID != 0
}

// Scope restricts a posts query to the rows viewer may read: published posts
// meeting their visibility rule, plus the viewer's own drafts.
func (r *Resolver) Scope(viewer Viewer) func(*gorm.DB) *gorm.DB {
	now := r.now()
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAnonymous() {
			return db.Where(anonymousSQL, true, now, string(models.VisibilityPublic))
		}
		published, args := publishedClause(viewer, now)
		args = append(args, viewer.UserID, false, now)
		return db.Where("(("+published+") OR (posts.author_id = ? AND "+draftSQL+"))", args...)
	}
}

// PublishedScope keeps only published posts meeting their visibility rule.
// Authors do not see their own drafts through it.
func (r *Resolver) PublishedScope(viewer Viewer) func(*gorm.DB) *gorm.DB {
	now := r.now()
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAnonymous() {
			return db.Where(anonymousSQL, true, now, string(models.VisibilityPublic))
		}
		published, args := publishedClause(viewer, now)
		return db.Where(published, args...)
	}
}

// Ordered sorts posts newest first by publication, unpublished rows last.
func Ordered(db *gorm.DB) *gorm.DB {
	return db.Order("CASE WHEN posts.published_at IS NULL THEN 1 ELSE 0 END").
		Order("posts.published_at DESC").
		Order("posts.created_at DESC").
		Order("posts.id DESC")
}

const (
	liveSQL      = "posts.is_published = ? AND posts.published_at IS NOT NULL AND posts.published_at <= ?"
	anonymousSQL = liveSQL + " AND posts.visibility = ?"
	draftSQL     = "(posts.is_published = ? OR posts.published_at IS NULL OR posts.published_at > ?)"
	followsSQL   = "EXISTS (SELECT 1 FROM follows JOIN profiles ON profiles.id = follows.following_id " +
		"WHERE follows.follower_id = ? AND profiles.user_id = posts.author_id)"
)

func publishedClause(viewer Viewer, now time.Time) (string, []any) {
	followersRule := "posts.author_id = ?"
	followersArgs := []any{viewer.UserID}
	if viewer.ProfileID != 0 {
		followersRule = "(posts.author_id = ? OR " + followsSQL + ")"
		followersArgs = append(followersArgs, viewer.ProfileID)
	}

	sql := liveSQL + " AND (" +
		"posts.visibility = ?" +
		" OR (posts.visibility = ? AND posts.author_id = ?)" +
		" OR (posts.visibility = ? AND " + followersRule + "))"

	args := []any{
		true, now,
		string(models.VisibilityPublic),
		string(models.VisibilityPrivate), viewer.UserID,
		string(models.VisibilityFollowers),
	}
	args = append(args, followersArgs...)
	return sql, args
}
