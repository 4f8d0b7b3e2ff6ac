package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteRepository_ToggleSemantics(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewVoteRepository(db)
	ctx := context.Background()

	voter, _ := testutil.CreateUser(t, db, "voter")
	author, _ := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author, "votable", testutil.Published(models.VisibilityPublic, time.Now().Add(-time.Hour)))
	target := models.PostTarget(post.ID)

	rowCount := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.Vote{}).Where("user_id = ?", voter.ID).Count(&n).Error)
		return n
	}

	t.Run("like creates a vote", func(t *testing.T) {
		got, err := repo.Toggle(ctx, voter.ID, target, models.VoteLike)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VoteLike, *got)
		assert.Equal(t, int64(1), rowCount())
	})

	t.Run("like again removes it", func(t *testing.T) {
		got, err := repo.Toggle(ctx, voter.ID, target, models.VoteLike)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, int64(0), rowCount())
	})

	t.Run("like then dislike switches in place", func(t *testing.T) {
		_, err := repo.Toggle(ctx, voter.ID, target, models.VoteLike)
		require.NoError(t, err)
		got, err := repo.Toggle(ctx, voter.ID, target, models.VoteDislike)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VoteDislike, *got)
		assert.Equal(t, int64(1), rowCount())

		counts, err := repo.Counts(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, models.VoteCounts{Likes: 0, Dislikes: 1}, counts)
	})
}

func TestVoteRepository_CountsAndUserVotes(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewVoteRepository(db)
	ctx := context.Background()

	author, _ := testutil.CreateUser(t, db, "author")
	a, _ := testutil.CreateUser(t, db, "alice")
	b, _ := testutil.CreateUser(t, db, "bob")
	p1 := testutil.CreatePost(t, db, author, "one")
	p2 := testutil.CreatePost(t, db, author, "two")
	p3 := testutil.CreatePost(t, db, author, "three")

	for _, v := range []struct {
		user uint
		post uint
		vt   models.VoteType
	}{
		{a.ID, p1.ID, models.VoteLike},
		{b.ID, p1.ID, models.VoteLike},
		{a.ID, p2.ID, models.VoteDislike},
	} {
		_, err := repo.Toggle(ctx, v.user, models.PostTarget(v.post), v.vt)
		require.NoError(t, err)
	}
	// a comment vote with the same numeric id must not leak into post counts
	_, err := repo.Toggle(ctx, b.ID, models.CommentTarget(p2.ID), models.VoteLike)
	require.NoError(t, err)

	counts, err := repo.CountsFor(ctx, models.TargetPost, []uint{p1.ID, p2.ID, p3.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VoteCounts{Likes: 2}, counts[p1.ID])
	assert.Equal(t, models.VoteCounts{Dislikes: 1}, counts[p2.ID])
	assert.Equal(t, models.VoteCounts{}, counts[p3.ID])

	votes, err := repo.UserVotes(ctx, a.ID, models.TargetPost, []uint{p1.ID, p2.ID, p3.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]models.VoteType{p1.ID: models.VoteLike, p2.ID: models.VoteDislike}, votes)

	none, err := repo.UserVotes(ctx, 0, models.TargetPost, []uint{p1.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestVoteRepository_RacingInsertFallsIntoToggle(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewVoteRepository(db)

	selectVote := regexp.QuoteMeta(`SELECT * FROM "votes" WHERE user_id = $1 AND target_type = $2 AND target_id = $3`)

	// first pass: no row yet, but the insert loses to a concurrent one
	mock.ExpectBegin()
	mock.ExpectQuery(selectVote).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "target_type", "target_id", "vote_type"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "votes"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	// second pass: the winner's like is visible and is toggled off
	mock.ExpectBegin()
	mock.ExpectQuery(selectVote).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "target_type", "target_id", "vote_type"}).
			AddRow(9, 1, "post", 5, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "votes" WHERE "votes"."id" = $1`)).
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Toggle(context.Background(), 1, models.PostTarget(5), models.VoteLike)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueConstraintError(t *testing.T) {
	t.Parallel()

	assert.False(t, isUniqueConstraintError(nil))
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueConstraintError(assert.AnError))
}
