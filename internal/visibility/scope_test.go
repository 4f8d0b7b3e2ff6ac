package visibility_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/testutil"
	"quill/internal/visibility"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type dbFollows struct{ db *gorm.DB }

func (d dbFollows) FollowsAuthor(ctx context.Context, followerProfileID, authorUserID uint) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Table("follows").
		Joins("JOIN profiles ON profiles.id = follows.following_id").
		Where("follows.follower_id = ? AND profiles.user_id = ?", followerProfileID, authorUserID).
		Count(&n).Error
	return n > 0, err
}

// The bulk scope must select exactly the posts IsVisible accepts.
func TestScopeAgreesWithIsVisible(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	faker := gofakeit.New(42)

	var users []*models.User
	var profiles []*models.Profile
	for i := 0; i < 5; i++ {
		u, p := testutil.CreateUser(t, db, fmt.Sprintf("user%d", i))
		users = append(users, u)
		profiles = append(profiles, p)
	}
	testutil.Follow(t, db, profiles[1], profiles[0])
	testutil.Follow(t, db, profiles[2], profiles[0])
	testutil.Follow(t, db, profiles[0], profiles[3])
	testutil.Follow(t, db, profiles[4], profiles[4])

	visibilities := []models.Visibility{models.VisibilityPublic, models.VisibilityFollowers, models.VisibilityPrivate}
	offsets := []time.Duration{-72 * time.Hour, -time.Second, 0, time.Second, 2 * time.Hour}
	for i := 0; i < 120; i++ {
		author := users[faker.Number(0, len(users)-1)]
		v := visibilities[faker.Number(0, len(visibilities)-1)]
		var opts []testutil.PostOption
		if faker.Bool() {
			opts = append(opts, testutil.Published(v, now.Add(offsets[faker.Number(0, len(offsets)-1)])))
		}
		testutil.CreatePost(t, db, author, faker.Sentence(4), opts...)
	}

	var all []models.Post
	require.NoError(t, db.Find(&all).Error)

	resolver := visibility.NewResolver(dbFollows{db}, func() time.Time { return now })
	viewers := []visibility.Viewer{visibility.Anonymous(), {UserID: users[4].ID}}
	for i := range users {
		viewers = append(viewers, visibility.Viewer{UserID: users[i].ID, ProfileID: profiles[i].ID})
	}

	for _, viewer := range viewers {
		var want []uint
		for i := range all {
			ok, err := resolver.IsVisible(context.Background(), &all[i], viewer)
			require.NoError(t, err)
			if ok {
				want = append(want, all[i].ID)
			}
		}

		var got []uint
		require.NoError(t, db.Model(&models.Post{}).Scopes(resolver.Scope(viewer)).Pluck("posts.id", &got).Error)

		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		assert.Equal(t, want, got, "viewer %+v", viewer)
	}
}

func TestPublishedScopeExcludesOwnDrafts(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	now := time.Now().UTC()

	author, profile := testutil.CreateUser(t, db, "author")
	testutil.CreatePost(t, db, author, "draft")
	testutil.CreatePost(t, db, author, "scheduled", testutil.Published(models.VisibilityPublic, now.Add(time.Hour)))
	live := testutil.CreatePost(t, db, author, "live", testutil.Published(models.VisibilityPublic, now.Add(-time.Hour)))

	resolver := visibility.NewResolver(dbFollows{db}, func() time.Time { return now })
	viewer := visibility.Viewer{UserID: author.ID, ProfileID: profile.ID}

	var full, published []uint
	require.NoError(t, db.Model(&models.Post{}).Scopes(resolver.Scope(viewer)).Pluck("posts.id", &full).Error)
	require.NoError(t, db.Model(&models.Post{}).Scopes(resolver.PublishedScope(viewer)).Pluck("posts.id", &published).Error)

	assert.Len(t, full, 3)
	assert.Equal(t, []uint{live.ID}, published)
}

func TestOrderedPutsUnpublishedLast(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	now := time.Now().UTC()

	author, _ := testutil.CreateUser(t, db, "author")
	draft := testutil.CreatePost(t, db, author, "draft")
	older := testutil.CreatePost(t, db, author, "older", testutil.Published(models.VisibilityPublic, now.Add(-2*time.Hour)))
	newer := testutil.CreatePost(t, db, author, "newer", testutil.Published(models.VisibilityPublic, now.Add(-time.Hour)))

	var ids []uint
	require.NoError(t, db.Model(&models.Post{}).Scopes(visibility.Ordered).Pluck("posts.id", &ids).Error)

	assert.Equal(t, []uint{newer.ID, older.ID, draft.ID}, ids)
}
