package service

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/observability"
	"quill/internal/render"
	"quill/internal/repository"
	"quill/internal/validation"
	"quill/internal/visibility"
)

// CommentService owns the comment tree of a post.
type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	voteRepo    repository.VoteRepository
	resolver    *visibility.Resolver
	renderer    *render.Renderer
	notifier    *notifications.Notifier
	flags       *featureflags.Manager
	maxDepth    int
}

type CommentInput struct {
	Content  string
	ParentID *uint
}

// CommentResult carries a created or edited comment with the fragment the
// acting client swaps in.
type CommentResult struct {
	Comment       *models.Comment
	Fragment      string
	ParentID      *uint
	FirstTopLevel bool
}

// DeleteResult reports a removal. Fragment holds the empty-state markup when
// the post has no comments left.
type DeleteResult struct {
	PostID         uint
	CommentID      uint
	NoCommentsLeft bool
	Fragment       string
}

// NewCommentService creates a CommentService.
func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	voteRepo repository.VoteRepository,
	resolver *visibility.Resolver,
	renderer *render.Renderer,
	notifier *notifications.Notifier,
	flags *featureflags.Manager,
	maxDepth int,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		voteRepo:    voteRepo,
		resolver:    resolver,
		renderer:    renderer,
		notifier:    notifier,
		flags:       flags,
		maxDepth:    maxDepth,
	}
}

// AddComment creates a top-level comment or a reply on the post with slug.
// Depth is checked without locking; two concurrent replies near the bound
// may both pass.
func (s *CommentService) AddComment(ctx context.Context, author visibility.Viewer, slug string, in CommentInput) (result *CommentResult, err error) {
	ctx, span := observability.StartService(ctx, "CommentService", "AddComment")
	defer func() { observability.EndSpan(span, err) }()

	if author.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to comment")
	}
	content, err := validation.Text("content", in.Content, validation.MaxCommentLength)
	if err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetBySlug(ctx, slug, author.UserID)
	if err != nil {
		return nil, err
	}
	visible, err := s.resolver.IsVisible(ctx, post, author)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !visible {
		return nil, models.NewForbiddenError("You cannot comment on this post")
	}

	depth := 0
	if in.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *in.ParentID)
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError("Parent comment does not exist")
		}
		if err != nil {
			return nil, err
		}
		if parent.PostID != post.ID {
			return nil, models.NewValidationError("Parent comment belongs to a different post")
		}
		depth = parent.Depth + 1
		if depth > s.maxDepth {
			return nil, models.NewValidationError(fmt.Sprintf("Replies cannot be nested more than %d levels deep", s.maxDepth))
		}
	}

	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: author.UserID,
		ParentID: in.ParentID,
		Depth:    depth,
		Content:  content,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment, err = s.commentRepo.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}

	first := false
	if comment.IsTopLevel() {
		count, err := s.commentRepo.CountTopLevel(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		first = count == 1
	}

	node := s.newNode(comment, models.VoteCounts{}, nil, s.threadContext(post.Slug, author.UserID))
	fragment, err := s.renderer.CommentFragment(node, first)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	neutral := s.newNode(comment, models.VoteCounts{}, nil, s.threadContext(post.Slug, 0))
	broadcast, err := s.renderer.BroadcastCommentFragment(neutral, true, first)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.publish(ctx, notifications.ThreadEvent{
		Event:     notifications.EventCommentCreated,
		PostID:    post.ID,
		CommentID: comment.ID,
		ParentID:  comment.ParentID,
		ActorID:   author.UserID,
		HTML:      broadcast,
	})

	observability.CommentEvents.WithLabelValues("created").Inc()
	middleware.Logger.InfoContext(ctx, "comment created",
		slog.Uint64("comment_id", uint64(comment.ID)),
		slog.Uint64("post_id", uint64(post.ID)),
		slog.Int("depth", depth),
	)

	return &CommentResult{Comment: comment, Fragment: fragment, ParentID: comment.ParentID, FirstTopLevel: first}, nil
}

// EditComment replaces the content of the editor's own comment. The fragment
// is the whole comment subtree so it can replace the existing element.
func (s *CommentService) EditComment(ctx context.Context, editor visibility.Viewer, commentID uint, content string) (result *CommentResult, err error) {
	ctx, span := observability.StartService(ctx, "CommentService", "EditComment")
	defer func() { observability.EndSpan(span, err) }()

	comment, err := s.ownComment(ctx, editor, commentID, "You can only edit your own comments")
	if err != nil {
		return nil, err
	}
	content, err = validation.Text("content", content, validation.MaxCommentLength)
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.UpdateContent(ctx, comment.ID, content); err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, comment.PostID)
	if err != nil {
		return nil, err
	}
	data, err := s.loadThread(ctx, post.ID, editor.UserID)
	if err != nil {
		return nil, err
	}

	node := findNode(data.build(s.threadContext(post.Slug, editor.UserID)), comment.ID)
	if node == nil {
		return nil, models.NewNotFoundError("comment", comment.ID)
	}
	fragment, err := s.renderer.Fragment("comment", node)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	data.userVotes = nil
	neutral := findNode(data.build(s.threadContext(post.Slug, 0)), comment.ID)
	broadcast, err := s.renderer.BroadcastCommentFragment(neutral, false, false)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.publish(ctx, notifications.ThreadEvent{
		Event:     notifications.EventCommentUpdated,
		PostID:    post.ID,
		CommentID: comment.ID,
		ParentID:  comment.ParentID,
		ActorID:   editor.UserID,
		HTML:      broadcast,
	})

	observability.CommentEvents.WithLabelValues("updated").Inc()
	middleware.Logger.InfoContext(ctx, "comment updated", slog.Uint64("comment_id", uint64(comment.ID)))

	return &CommentResult{Comment: node.Comment, Fragment: fragment, ParentID: comment.ParentID}, nil
}

// DeleteComment removes the editor's own comment with all of its replies.
func (s *CommentService) DeleteComment(ctx context.Context, editor visibility.Viewer, commentID uint) (result *DeleteResult, err error) {
	ctx, span := observability.StartService(ctx, "CommentService", "DeleteComment")
	defer func() { observability.EndSpan(span, err) }()

	comment, err := s.ownComment(ctx, editor, commentID, "You can only delete your own comments")
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.Delete(ctx, comment); err != nil {
		return nil, err
	}

	remaining, err := s.commentRepo.CountTopLevel(ctx, comment.PostID)
	if err != nil {
		return nil, err
	}
	result = &DeleteResult{PostID: comment.PostID, CommentID: comment.ID, NoCommentsLeft: remaining == 0}
	if result.NoCommentsLeft {
		if result.Fragment, err = s.renderer.NoCommentsFragment(); err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	broadcast, err := s.renderer.DeletedCommentBroadcast(comment.ID, result.NoCommentsLeft)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.publish(ctx, notifications.ThreadEvent{
		Event:     notifications.EventCommentDeleted,
		PostID:    comment.PostID,
		CommentID: comment.ID,
		ParentID:  comment.ParentID,
		ActorID:   editor.UserID,
		HTML:      broadcast,
	})

	observability.CommentEvents.WithLabelValues("deleted").Inc()
	middleware.Logger.InfoContext(ctx, "comment deleted",
		slog.Uint64("comment_id", uint64(comment.ID)),
		slog.Uint64("post_id", uint64(comment.PostID)),
		slog.Bool("no_comments_left", result.NoCommentsLeft),
	)
	return result, nil
}

// Thread returns the post's comments as a tree ready to render for viewer.
// The caller must already have checked that viewer can see the post.
func (s *CommentService) Thread(ctx context.Context, post *models.Post, viewer visibility.Viewer) ([]*render.CommentNode, error) {
	data, err := s.loadThread(ctx, post.ID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	return data.build(s.threadContext(post.Slug, viewer.UserID)), nil
}

func (s *CommentService) ownComment(ctx context.Context, editor visibility.Viewer, commentID uint, forbidden string) (*models.Comment, error) {
	if editor.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to change comments")
	}
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != editor.UserID {
		return nil, models.NewForbiddenError(forbidden)
	}
	return comment, nil
}

func (s *CommentService) threadContext(slug string, viewerID uint) *render.ThreadContext {
	return &render.ThreadContext{
		PostSlug:     slug,
		ViewerID:     viewerID,
		MaxDepth:     s.maxDepth,
		VotesEnabled: s.flags.Enabled(featureflags.CommentVotes, viewerID),
	}
}

func (s *CommentService) newNode(c *models.Comment, counts models.VoteCounts, current *models.VoteType, tctx *render.ThreadContext) *render.CommentNode {
	return &render.CommentNode{
		Comment: c,
		Vote:    render.CommentVote(c.ID, counts, current, tctx.ViewerID != 0),
		Ctx:     tctx,
	}
}

func (s *CommentService) publish(ctx context.Context, ev notifications.ThreadEvent) {
	if err := s.notifier.PublishThread(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "thread event not published",
			slog.String("event", ev.Event),
			slog.Uint64("post_id", uint64(ev.PostID)),
			slog.String("error", err.Error()),
		)
	}
}

// threadData is everything needed to assemble one post's comment tree.
type threadData struct {
	svc       *CommentService
	comments  []*models.Comment
	counts    map[uint]models.VoteCounts
	userVotes map[uint]models.VoteType
}

func (s *CommentService) loadThread(ctx context.Context, postID, viewerID uint) (*threadData, error) {
	comments, err := s.commentRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	data := &threadData{svc: s, comments: comments}
	if len(comments) == 0 {
		return data, nil
	}

	ids := make([]uint, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	if data.counts, err = s.voteRepo.CountsFor(ctx, models.TargetComment, ids); err != nil {
		return nil, err
	}
	if viewerID != 0 {
		if data.userVotes, err = s.voteRepo.UserVotes(ctx, viewerID, models.TargetComment, ids); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (d *threadData) build(tctx *render.ThreadContext) []*render.CommentNode {
	nodes := make(map[uint]*render.CommentNode, len(d.comments))
	for _, c := range d.comments {
		var current *models.VoteType
		if v, ok := d.userVotes[c.ID]; ok {
			current = &v
		}
		nodes[c.ID] = d.svc.newNode(c, d.counts[c.ID], current, tctx)
	}

	var roots []*render.CommentNode
	for _, c := range d.comments {
		node := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[*c.ParentID]; ok {
			parent.Replies = append(parent.Replies, node)
		}
	}
	return roots
}

func findNode(nodes []*render.CommentNode, id uint) *render.CommentNode {
	for _, n := range nodes {
		if n.Comment.ID == id {
			return n
		}
		if found := findNode(n.Replies, id); found != nil {
			return found
		}
	}
	return nil
}
