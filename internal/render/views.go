package render

import (
	"fmt"
	"time"

	"quill/internal/models"
)

// View is the data every page receives.
type View struct {
	Title  string
	Viewer *models.User
	Now    time.Time
	Data   any
}

// VoteView drives the vote_actions fragment.
type VoteView struct {
	Kind     models.TargetKind
	ID       uint
	URL      string
	Likes    int64
	Dislikes int64
	Current  *models.VoteType
	CanVote  bool
}

// DOMID is the element id of the vote widget.
func (v VoteView) DOMID() string {
	return fmt.Sprintf("votes-%s-%d", v.Kind, v.ID)
}

// PostVote builds the vote widget for a post carrying its computed counts.
func PostVote(p *models.Post, canVote bool) VoteView {
	return VoteView{
		Kind:     models.TargetPost,
		ID:       p.ID,
		URL:      "/posts/" + p.Slug + "/vote",
		Likes:    p.LikesCount,
		Dislikes: p.DislikesCount,
		Current:  p.ViewerVote,
		CanVote:  canVote,
	}
}

// CommentVote builds the vote widget for a comment.
func CommentVote(id uint, counts models.VoteCounts, current *models.VoteType, canVote bool) VoteView {
	return VoteView{
		Kind:     models.TargetComment,
		ID:       id,
		URL:      fmt.Sprintf("/comments/%d/vote", id),
		Likes:    counts.Likes,
		Dislikes: counts.Dislikes,
		Current:  current,
		CanVote:  canVote,
	}
}

// ThreadContext is shared by every node of one rendered thread.
type ThreadContext struct {
	PostSlug     string
	ViewerID     uint
	MaxDepth     int
	VotesEnabled bool
}

// CommentNode is one comment with its rendered children.
type CommentNode struct {
	Comment *models.Comment
	Vote    VoteView
	Replies []*CommentNode
	Ctx     *ThreadContext
	// OOB marks the node for out-of-band replacement of its existing element.
	OOB bool
}

// CanReply reports whether a reply to this comment stays within the depth bound.
func (n *CommentNode) CanReply() bool {
	return n.Ctx.ViewerID != 0 && n.Comment.Depth < n.Ctx.MaxDepth
}

// IsOwn reports whether the viewer wrote the comment.
func (n *CommentNode) IsOwn() bool {
	return n.Ctx.ViewerID != 0 && n.Comment.AuthorID == n.Ctx.ViewerID
}

// FollowView drives the follow_button fragment.
type FollowView struct {
	Username       string
	Following      bool
	CanFollow      bool
	FollowersCount int64
}

// PostListPage backs the home, feed, category and author listings.
type PostListPage struct {
	Heading    string
	Posts      []*models.Post
	Votes      map[uint]VoteView
	Page       int
	HasNext    bool
	BasePath   string
	Category   *models.Category
	CanCompose bool
	Categories []*models.Category
}

// PostDetailPage backs a single post.
type PostDetailPage struct {
	Post       *models.Post
	Status     models.PublicationStatus
	Vote       VoteView
	Thread     []*CommentNode
	IsAuthor   bool
	Categories []*models.Category
}

// ProfilePage backs a user's profile.
type ProfilePage struct {
	Profile *models.Profile
	Follow  FollowView
	IsSelf  bool
	Posts   PostListPage
}

// ProfileListPage backs the followers and following lists.
type ProfileListPage struct {
	Profile  *models.Profile
	Heading  string
	Profiles []*models.Profile
	Page     int
	HasNext  bool
	BasePath string
}

// CategoryListPage backs the category index.
type CategoryListPage struct {
	Categories []*models.Category
}
