// Package service holds the command and query entry points the HTTP layer
// calls into.
package service

import (
	"context"
	"log/slog"
	"time"

	"quill/internal/cache"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/publication"
	"quill/internal/repository"
	"quill/internal/validation"
	"quill/internal/visibility"
)

// PostService owns post authoring and the visible-post listings.
type PostService struct {
	postRepo     repository.PostRepository
	categoryRepo repository.CategoryRepository
	resolver     *visibility.Resolver
	scheduler    *publication.Scheduler
	slugs        *publication.SlugAssigner
	cache        *cache.Store
	perPage      int
}

// PostInput is what an author submits for a new or edited post.
type PostInput struct {
	Title        string
	Content      string
	CategorySlug string
	Visibility   string
	ScheduledAt  *time.Time
}

// ListFilter selects a listing. CategorySlug and AuthorID are optional.
type ListFilter struct {
	CategorySlug string
	AuthorID     uint
	Page         int
}

// PostPage is one page of a listing.
type PostPage struct {
	Posts    []*models.Post
	Page     int
	HasNext  bool
	Category *models.Category
}

func NewPostService(
	postRepo repository.PostRepository,
	categoryRepo repository.CategoryRepository,
	resolver *visibility.Resolver,
	scheduler *publication.Scheduler,
	slugs *publication.SlugAssigner,
	store *cache.Store,
	perPage int,
) *PostService {
	if perPage < 1 {
		perPage = 10
	}
	return &PostService{
		postRepo:     postRepo,
		categoryRepo: categoryRepo,
		resolver:     resolver,
		scheduler:    scheduler,
		slugs:        slugs,
		cache:        store,
		perPage:      perPage,
	}
}

// Resolver exposes the visibility rules the service applies.
func (s *PostService) Resolver() *visibility.Resolver {
	return s.resolver
}

func (s *PostService) CreatePost(ctx context.Context, author visibility.Viewer, in PostInput) (post *models.Post, err error) {
	ctx, span := observability.StartService(ctx, "PostService", "CreatePost")
	defer func() { observability.EndSpan(span, err) }()

	if author.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to write a post")
	}
	title, content, vis, err := s.validateInput(in)
	if err != nil {
		return nil, err
	}
	categoryID, err := s.categoryID(ctx, in.CategorySlug)
	if err != nil {
		return nil, err
	}
	state, err := s.scheduler.Plan(publication.Input{Visibility: vis, ScheduledAt: in.ScheduledAt})
	if err != nil {
		return nil, err
	}

	post = &models.Post{
		Title:       title,
		Content:     content,
		AuthorID:    author.UserID,
		CategoryID:  categoryID,
		Visibility:  state.Visibility,
		IsPublished: state.IsPublished,
		PublishedAt: state.PublishedAt,
	}
	if err := s.insertWithSlug(ctx, post); err != nil {
		return nil, err
	}

	s.afterSave(ctx, "create", post)
	return s.postRepo.GetBySlug(ctx, post.Slug, author.UserID)
}

// insertWithSlug assigns a fresh slug and inserts, drawing again when a
// concurrent writer claimed the same slug between the check and the insert.
func (s *PostService) insertWithSlug(ctx context.Context, post *models.Post) error {
	const insertAttempts = 2
	var err error
	for i := 0; i < insertAttempts; i++ {
		post.Slug, err = s.slugs.Assign(ctx, s.postRepo.SlugExists)
		if err != nil {
			return err
		}
		err = s.postRepo.Create(ctx, post)
		if !models.IsCode(err, models.CodeConflict) {
			return err
		}
	}
	return models.NewInternalError(err)
}

func (s *PostService) UpdatePost(ctx context.Context, editor visibility.Viewer, slug string, in PostInput) (post *models.Post, err error) {
	ctx, span := observability.StartService(ctx, "PostService", "UpdatePost")
	defer func() { observability.EndSpan(span, err) }()

	post, err = s.authoredPost(ctx, editor, slug, "You can only edit your own posts")
	if err != nil {
		return nil, err
	}
	title, content, vis, err := s.validateInput(in)
	if err != nil {
		return nil, err
	}
	categoryID, err := s.categoryID(ctx, in.CategorySlug)
	if err != nil {
		return nil, err
	}
	state, err := s.scheduler.Plan(publication.Input{
		Visibility:          vis,
		ScheduledAt:         in.ScheduledAt,
		ExistingPublishedAt: post.PublishedAt,
	})
	if err != nil {
		return nil, err
	}

	post.Title = title
	post.Content = content
	post.CategoryID = categoryID
	post.Category = nil
	post.Visibility = state.Visibility
	post.IsPublished = state.IsPublished
	post.PublishedAt = state.PublishedAt
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}

	s.afterSave(ctx, "update", post)
	return s.postRepo.GetBySlug(ctx, post.Slug, editor.UserID)
}

func (s *PostService) DeletePost(ctx context.Context, editor visibility.Viewer, slug string) (err error) {
	ctx, span := observability.StartService(ctx, "PostService", "DeletePost")
	defer func() { observability.EndSpan(span, err) }()

	post, err := s.authoredPost(ctx, editor, slug, "You can only delete your own posts")
	if err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, cache.CategoryListKey)
	middleware.Logger.InfoContext(ctx, "post deleted",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("slug", post.Slug),
	)
	return nil
}

// authoredPost loads a post for a write by editor. Posts the editor cannot
// see are reported missing; visible posts by someone else are forbidden.
func (s *PostService) authoredPost(ctx context.Context, editor visibility.Viewer, slug, forbidden string) (*models.Post, error) {
	if editor.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to change posts")
	}
	post, err := s.postRepo.GetBySlug(ctx, slug, editor.UserID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID == editor.UserID {
		return post, nil
	}
	visible, err := s.resolver.IsVisible(ctx, post, editor)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !visible {
		return nil, models.NewNotFoundError("post", slug)
	}
	return nil, models.NewForbiddenError(forbidden)
}

// GetPost returns the post when viewer may read it. Invisible posts are
// indistinguishable from missing ones.
func (s *PostService) GetPost(ctx context.Context, slug string, viewer visibility.Viewer) (*models.Post, error) {
	post, err := s.postRepo.GetBySlug(ctx, slug, viewer.UserID)
	if err != nil {
		return nil, err
	}
	visible, err := s.resolver.IsVisible(ctx, post, viewer)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !visible {
		return nil, models.NewNotFoundError("post", slug)
	}
	return post, nil
}

// CanView reports whether viewer may still read the post with id. A deleted
// post reads as not visible.
func (s *PostService) CanView(ctx context.Context, id uint, viewer visibility.Viewer) (bool, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if models.IsCode(err, models.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	visible, err := s.resolver.IsVisible(ctx, post, viewer)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return visible, nil
}

// ListVisiblePosts returns one page of the home, category or author listing.
// Category listings apply only the published branch of the visibility rule,
// so authors do not see their own drafts there.
func (s *PostService) ListVisiblePosts(ctx context.Context, viewer visibility.Viewer, f ListFilter) (*PostPage, error) {
	page := &PostPage{Page: normalizePage(f.Page)}

	var scopes []repository.Scope
	if f.CategorySlug != "" {
		category, err := s.categoryRepo.GetBySlug(ctx, f.CategorySlug)
		if err != nil {
			return nil, err
		}
		page.Category = category
		scopes = append(scopes, s.resolver.PublishedScope(viewer), repository.InCategory(category.ID))
	} else {
		scopes = append(scopes, s.resolver.Scope(viewer))
	}
	if f.AuthorID != 0 {
		scopes = append(scopes, repository.ByAuthor(f.AuthorID))
	}

	return s.list(ctx, viewer, page, scopes)
}

// Feed lists published posts by authors the viewer follows.
func (s *PostService) Feed(ctx context.Context, viewer visibility.Viewer, pageNum int) (*PostPage, error) {
	if viewer.IsAnonymous() || viewer.ProfileID == 0 {
		return nil, models.NewUnauthorizedError("Sign in to see your feed")
	}
	page := &PostPage{Page: normalizePage(pageNum)}
	scopes := []repository.Scope{
		s.resolver.PublishedScope(viewer),
		repository.FollowedBy(viewer.ProfileID),
	}
	return s.list(ctx, viewer, page, scopes)
}

func (s *PostService) list(ctx context.Context, viewer visibility.Viewer, page *PostPage, scopes []repository.Scope) (*PostPage, error) {
	scopes = append(scopes, visibility.Ordered)
	posts, err := s.postRepo.List(ctx, repository.PostQuery{
		Scopes:   scopes,
		ViewerID: viewer.UserID,
		Limit:    s.perPage + 1,
		Offset:   (page.Page - 1) * s.perPage,
	})
	if err != nil {
		return nil, err
	}
	if len(posts) > s.perPage {
		page.HasNext = true
		posts = posts[:s.perPage]
	}
	page.Posts = posts
	return page, nil
}

func (s *PostService) validateInput(in PostInput) (string, string, models.Visibility, error) {
	title, err := validation.Text("title", in.Title, validation.MaxTitleLength)
	if err != nil {
		return "", "", "", err
	}
	content, err := validation.Text("content", in.Content, validation.MaxPostLength)
	if err != nil {
		return "", "", "", err
	}
	vis, err := models.ParseVisibility(in.Visibility)
	if err != nil {
		return "", "", "", err
	}
	return title, content, vis, nil
}

func (s *PostService) categoryID(ctx context.Context, slug string) (*uint, error) {
	if slug == "" {
		return nil, nil
	}
	category, err := s.categoryRepo.GetBySlug(ctx, slug)
	if models.IsCode(err, models.CodeNotFound) {
		return nil, models.NewValidationError("Unknown category")
	}
	if err != nil {
		return nil, err
	}
	return &category.ID, nil
}

func (s *PostService) afterSave(ctx context.Context, operation string, post *models.Post) {
	status := publication.Classify(post, s.resolver.Now())
	observability.PostsSaved.WithLabelValues(operation, string(status)).Inc()
	s.cache.Invalidate(ctx, cache.CategoryListKey)
	middleware.Logger.InfoContext(ctx, "post saved",
		slog.String("operation", operation),
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("slug", post.Slug),
		slog.String("visibility", string(post.Visibility)),
		slog.String("status", string(status)),
	)
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
