package repository

import (
	"context"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_ListCarriesCountsAndViewerVote(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	posts := NewPostRepository(db)
	votes := NewVoteRepository(db)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	author, _ := testutil.CreateUser(t, db, "author")
	reader, _ := testutil.CreateUser(t, db, "reader")
	past := time.Now().UTC().Add(-time.Hour)
	post := testutil.CreatePost(t, db, author, "hello", testutil.Published(models.VisibilityPublic, past))

	_, err := votes.Toggle(ctx, author.ID, models.PostTarget(post.ID), models.VoteLike)
	require.NoError(t, err)
	_, err = votes.Toggle(ctx, reader.ID, models.PostTarget(post.ID), models.VoteDislike)
	require.NoError(t, err)
	require.NoError(t, comments.Create(ctx, &models.Comment{PostID: post.ID, AuthorID: reader.ID, Content: "hi"}))

	list, err := posts.List(ctx, PostQuery{ViewerID: reader.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, int64(1), got.LikesCount)
	assert.Equal(t, int64(1), got.DislikesCount)
	assert.Equal(t, int64(1), got.CommentsCount)
	require.NotNil(t, got.ViewerVote)
	assert.Equal(t, models.VoteDislike, *got.ViewerVote)
	assert.Equal(t, "author", got.Author.Username)

	anon, err := posts.GetBySlug(ctx, post.Slug, 0)
	require.NoError(t, err)
	assert.Nil(t, anon.ViewerVote)
	assert.Equal(t, int64(1), anon.LikesCount)
}

func TestPostRepository_DeleteRemovesVotesAndComments(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	posts := NewPostRepository(db)
	votes := NewVoteRepository(db)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	author, _ := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author, "doomed")
	keep := testutil.CreatePost(t, db, author, "kept")

	c := &models.Comment{PostID: post.ID, AuthorID: author.ID, Content: "bye"}
	require.NoError(t, comments.Create(ctx, c))
	_, err := votes.Toggle(ctx, author.ID, models.PostTarget(post.ID), models.VoteLike)
	require.NoError(t, err)
	_, err = votes.Toggle(ctx, author.ID, models.CommentTarget(c.ID), models.VoteLike)
	require.NoError(t, err)
	_, err = votes.Toggle(ctx, author.ID, models.PostTarget(keep.ID), models.VoteLike)
	require.NoError(t, err)

	require.NoError(t, posts.Delete(ctx, post.ID))

	var voteRows, commentRows int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&voteRows).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&commentRows).Error)
	assert.Equal(t, int64(1), voteRows)
	assert.Zero(t, commentRows)

	_, err = posts.GetByID(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	err = posts.Delete(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_UpdateKeepsSlugAndAuthor(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	posts := NewPostRepository(db)
	ctx := context.Background()

	author, _ := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author, "first")
	slug := post.Slug

	post.Slug = "tampered"
	post.Title = "second"
	require.NoError(t, posts.Update(ctx, post))

	exists, err := posts.SlugExists(ctx, slug)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := posts.GetBySlug(ctx, slug, 0)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.Equal(t, author.ID, got.AuthorID)
}

func TestPostRepository_Scopes(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	posts := NewPostRepository(db)
	ctx := context.Background()

	alice, aliceProfile := testutil.CreateUser(t, db, "alice")
	bob, bobProfile := testutil.CreateUser(t, db, "bob")
	carol, _ := testutil.CreateUser(t, db, "carol")
	testutil.Follow(t, db, aliceProfile, bobProfile)

	cat := &models.Category{Name: "Go", Slug: "go"}
	require.NoError(t, db.Create(cat).Error)

	bobPost := testutil.CreatePost(t, db, bob, "bob", testutil.InCategory(cat))
	testutil.CreatePost(t, db, carol, "carol")
	testutil.CreatePost(t, db, alice, "alice", testutil.InCategory(cat))

	feed, err := posts.List(ctx, PostQuery{Scopes: []Scope{FollowedBy(aliceProfile.ID)}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, bobPost.ID, feed[0].ID)

	inCat, err := posts.List(ctx, PostQuery{Scopes: []Scope{InCategory(cat.ID)}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, inCat, 2)

	byCarol, err := posts.List(ctx, PostQuery{Scopes: []Scope{ByAuthor(carol.ID)}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byCarol, 1)
	assert.Equal(t, "carol", byCarol[0].Title)
}
