package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/publication"
	"quill/internal/repository"
	"quill/internal/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostService_CreatePostResolvesPublication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")

	t.Run("public without schedule goes live now", func(t *testing.T) {
		post, err := h.posts.CreatePost(ctx, author, PostInput{Title: " Hello ", Content: "body", Visibility: "public"})
		require.NoError(t, err)
		assert.Equal(t, "Hello", post.Title)
		assert.Len(t, post.Slug, 16)
		assert.True(t, post.IsPublished)
		require.NotNil(t, post.PublishedAt)
		assert.True(t, post.PublishedAt.Equal(h.clock))
		assert.Equal(t, "author", post.Author.Username)
	})

	t.Run("private ignores the schedule", func(t *testing.T) {
		post, err := h.posts.CreatePost(ctx, author, PostInput{
			Title:       "secret",
			Content:     "body",
			Visibility:  "private",
			ScheduledAt: timePtr(h.clock.Add(time.Hour)),
		})
		require.NoError(t, err)
		assert.False(t, post.IsPublished)
		assert.Nil(t, post.PublishedAt)
		assert.Equal(t, models.VisibilityPrivate, post.Visibility)
	})

	t.Run("scheduled keeps the requested time", func(t *testing.T) {
		at := h.clock.Add(2 * time.Hour)
		post, err := h.posts.CreatePost(ctx, author, PostInput{Title: "later", Content: "body", Visibility: "followers", ScheduledAt: &at})
		require.NoError(t, err)
		require.NotNil(t, post.PublishedAt)
		assert.True(t, post.PublishedAt.Equal(at))
		assert.Equal(t, models.StatusScheduled, publication.Classify(post, h.clock))
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name string
			in   PostInput
		}{
			{"empty title", PostInput{Title: "  ", Content: "body"}},
			{"empty content", PostInput{Title: "t", Content: ""}},
			{"title too long", PostInput{Title: strings.Repeat("x", 201), Content: "body"}},
			{"bad visibility", PostInput{Title: "t", Content: "body", Visibility: "friends"}},
			{"unknown category", PostInput{Title: "t", Content: "body", CategorySlug: "nope"}},
			{"schedule in the past", PostInput{Title: "t", Content: "body", ScheduledAt: timePtr(h.clock.Add(-time.Minute))}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.posts.CreatePost(ctx, author, tt.in)
				requireCode(t, err, models.CodeValidation)
			})
		}
	})

	t.Run("schedule within the grace window is accepted", func(t *testing.T) {
		_, err := h.posts.CreatePost(ctx, author, PostInput{Title: "t", Content: "body", ScheduledAt: timePtr(h.clock.Add(-2 * time.Second))})
		require.NoError(t, err)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := h.posts.CreatePost(ctx, visibility.Anonymous(), PostInput{Title: "t", Content: "body"})
		requireCode(t, err, models.CodeUnauthorized)
	})
}

func TestPostService_UpdatePreservesPublishedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")

	post := h.publicPost(t, author, "first")
	original := *post.PublishedAt
	slug := post.Slug

	h.advance(time.Hour)
	updated, err := h.posts.UpdatePost(ctx, author, slug, PostInput{Title: "renamed", Content: "new body", Visibility: "public"})
	require.NoError(t, err)
	assert.Equal(t, slug, updated.Slug, "slug never changes")
	assert.Equal(t, "renamed", updated.Title)
	assert.True(t, updated.PublishedAt.Equal(original))

	// echoing the stored timestamp is not a past schedule
	updated, err = h.posts.UpdatePost(ctx, author, slug, PostInput{Title: "renamed", Content: "new body", Visibility: "public", ScheduledAt: &original})
	require.NoError(t, err)
	assert.True(t, updated.PublishedAt.Equal(original))

	updated, err = h.posts.UpdatePost(ctx, author, slug, PostInput{Title: "renamed", Content: "new body", Visibility: "private"})
	require.NoError(t, err)
	assert.False(t, updated.IsPublished)
	assert.Nil(t, updated.PublishedAt)

	updated, err = h.posts.UpdatePost(ctx, author, slug, PostInput{Title: "renamed", Content: "new body", Visibility: "public"})
	require.NoError(t, err)
	require.NotNil(t, updated.PublishedAt)
	assert.True(t, updated.PublishedAt.Equal(h.clock), "republishing a draft stamps the current time")
}

func TestPostService_WritesByOtherUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	_, stranger := h.user(t, "stranger")

	public := h.publicPost(t, author, "public")
	draft, err := h.posts.CreatePost(ctx, author, PostInput{Title: "draft", Content: "body", Visibility: "private"})
	require.NoError(t, err)

	_, err = h.posts.UpdatePost(ctx, stranger, public.Slug, PostInput{Title: "x", Content: "y"})
	requireCode(t, err, models.CodeForbidden)
	err = h.posts.DeletePost(ctx, stranger, public.Slug)
	requireCode(t, err, models.CodeForbidden)

	_, err = h.posts.UpdatePost(ctx, stranger, draft.Slug, PostInput{Title: "x", Content: "y"})
	requireCode(t, err, models.CodeNotFound)
	err = h.posts.DeletePost(ctx, stranger, draft.Slug)
	requireCode(t, err, models.CodeNotFound)
}

func TestPostService_ScheduledFollowersPost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	_, follower := h.user(t, "follower")
	_, stranger := h.user(t, "stranger")
	h.follow(t, follower, author)

	post, err := h.posts.CreatePost(ctx, author, PostInput{
		Title:       "soon",
		Content:     "body",
		Visibility:  "followers",
		ScheduledAt: timePtr(h.clock.Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = h.posts.GetPost(ctx, post.Slug, stranger)
	requireCode(t, err, models.CodeNotFound)
	_, err = h.posts.GetPost(ctx, post.Slug, follower)
	requireCode(t, err, models.CodeNotFound)
	_, err = h.posts.GetPost(ctx, post.Slug, author)
	require.NoError(t, err, "authors always see their own drafts")

	h.advance(time.Hour + time.Minute)

	got, err := h.posts.GetPost(ctx, post.Slug, follower)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
	_, err = h.posts.GetPost(ctx, post.Slug, stranger)
	requireCode(t, err, models.CodeNotFound)
	_, err = h.posts.GetPost(ctx, post.Slug, visibility.Anonymous())
	requireCode(t, err, models.CodeNotFound)

	page, err := h.posts.ListVisiblePosts(ctx, follower, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	page, err = h.posts.ListVisiblePosts(ctx, stranger, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestPostService_ListingAsymmetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")

	_, err := h.categories.Create(ctx, "Go", "")
	require.NoError(t, err)

	_, err = h.posts.CreatePost(ctx, author, PostInput{Title: "live", Content: "b", Visibility: "public", CategorySlug: "go"})
	require.NoError(t, err)
	_, err = h.posts.CreatePost(ctx, author, PostInput{Title: "draft", Content: "b", Visibility: "private", CategorySlug: "go"})
	require.NoError(t, err)

	home, err := h.posts.ListVisiblePosts(ctx, author, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, home.Posts, 2, "home includes the author's drafts")
	assert.Equal(t, "live", home.Posts[0].Title, "drafts sort after published posts")

	category, err := h.posts.ListVisiblePosts(ctx, author, ListFilter{CategorySlug: "go"})
	require.NoError(t, err)
	require.Len(t, category.Posts, 1, "category listings never include drafts")
	assert.Equal(t, "live", category.Posts[0].Title)
	assert.Equal(t, "Go", category.Category.Name)

	anon, err := h.posts.ListVisiblePosts(ctx, visibility.Anonymous(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, anon.Posts, 1)

	_, err = h.posts.ListVisiblePosts(ctx, author, ListFilter{CategorySlug: "missing"})
	requireCode(t, err, models.CodeNotFound)
}

func TestPostService_Pagination(t *testing.T) {
	h := newHarness(t, withPerPage(2))
	ctx := context.Background()
	_, author := h.user(t, "author")

	for _, title := range []string{"one", "two", "three"} {
		h.publicPost(t, author, title)
		h.advance(time.Minute)
	}

	first, err := h.posts.ListVisiblePosts(ctx, visibility.Anonymous(), ListFilter{Page: 1})
	require.NoError(t, err)
	require.Len(t, first.Posts, 2)
	assert.True(t, first.HasNext)
	assert.Equal(t, "three", first.Posts[0].Title)

	second, err := h.posts.ListVisiblePosts(ctx, visibility.Anonymous(), ListFilter{Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Posts, 1)
	assert.False(t, second.HasNext)
	assert.Equal(t, "one", second.Posts[0].Title)

	zero, err := h.posts.ListVisiblePosts(ctx, visibility.Anonymous(), ListFilter{Page: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, zero.Page)
}

func TestPostService_Feed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, reader := h.user(t, "reader")
	_, followed := h.user(t, "followed")
	_, other := h.user(t, "other")
	h.follow(t, reader, followed)

	h.publicPost(t, followed, "public by followed")
	_, err := h.posts.CreatePost(ctx, followed, PostInput{Title: "followers by followed", Content: "b", Visibility: "followers"})
	require.NoError(t, err)
	_, err = h.posts.CreatePost(ctx, followed, PostInput{Title: "private by followed", Content: "b", Visibility: "private"})
	require.NoError(t, err)
	h.publicPost(t, other, "public by other")

	feed, err := h.posts.Feed(ctx, reader, 1)
	require.NoError(t, err)
	titles := make([]string, 0, len(feed.Posts))
	for _, p := range feed.Posts {
		titles = append(titles, p.Title)
	}
	assert.ElementsMatch(t, []string{"public by followed", "followers by followed"}, titles)

	_, err = h.posts.Feed(ctx, visibility.Anonymous(), 1)
	requireCode(t, err, models.CodeUnauthorized)
}

func TestPostService_DeleteInvalidatesCategoryCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	post := h.publicPost(t, author, "doomed")

	require.NoError(t, h.mr.Set(cache.CategoryListKey, "[]"))
	require.NoError(t, h.posts.DeletePost(ctx, author, post.Slug))
	assert.False(t, h.mr.Exists(cache.CategoryListKey))

	_, err := h.posts.GetPost(ctx, post.Slug, author)
	requireCode(t, err, models.CodeNotFound)
}

func TestPostService_SlugExhaustion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	existing := h.publicPost(t, author, "taken")

	slugs := &publication.SlugAssigner{
		Token:       func() (string, error) { return existing.Slug, nil },
		MaxAttempts: 3,
	}
	svc := NewPostService(h.postRepo, h.categoryRepo, h.resolver,
		publication.NewScheduler(publication.DefaultGrace, nil), slugs, nil, 10)

	_, err := svc.CreatePost(ctx, author, PostInput{Title: "t", Content: "b"})
	requireCode(t, err, models.CodeInternal)
	assert.True(t, errors.Is(err, publication.ErrSlugExhausted))
}

// racingPostRepo reports every slug free but fails the first insert as if a
// concurrent writer had claimed the slug.
type racingPostRepo struct {
	repository.PostRepository
	inserts int
}

func (r *racingPostRepo) SlugExists(context.Context, string) (bool, error) { return false, nil }

func (r *racingPostRepo) Create(ctx context.Context, post *models.Post) error {
	r.inserts++
	if r.inserts == 1 {
		return models.NewConflictError("post already exists", nil)
	}
	return r.PostRepository.Create(ctx, post)
}

func TestPostService_RetriesSlugRace(t *testing.T) {
	h := newHarness(t)
	_, author := h.user(t, "author")

	repo := &racingPostRepo{PostRepository: h.postRepo}
	svc := NewPostService(repo, h.categoryRepo, h.resolver,
		publication.NewScheduler(publication.DefaultGrace, nil), publication.NewSlugAssigner(10), nil, 10)

	post, err := svc.CreatePost(context.Background(), author, PostInput{Title: "t", Content: "b", Visibility: "public"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.inserts)
	assert.NotEmpty(t, post.Slug)
}

func TestPostService_CanViewFollowsCurrentState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	_, reader := h.user(t, "reader")

	post := h.publicPost(t, author, "open")
	visible, err := h.posts.CanView(ctx, post.ID, reader)
	require.NoError(t, err)
	assert.True(t, visible)

	_, err = h.posts.UpdatePost(ctx, author, post.Slug, PostInput{Title: "open", Content: "body", Visibility: "private"})
	require.NoError(t, err)
	visible, err = h.posts.CanView(ctx, post.ID, reader)
	require.NoError(t, err)
	assert.False(t, visible, "private posts close to other readers")

	visible, err = h.posts.CanView(ctx, post.ID, author)
	require.NoError(t, err)
	assert.True(t, visible)

	require.NoError(t, h.posts.DeletePost(ctx, author, post.Slug))
	visible, err = h.posts.CanView(ctx, post.ID, author)
	require.NoError(t, err)
	assert.False(t, visible)
}
