package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/models"
	"quill/internal/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService_RegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.profiles.Register(ctx, RegisterInput{Username: "ada", Email: " Ada@Example.com ", Password: "analytical1"})
	require.NoError(t, err)
	assert.NotZero(t, res.User.ID)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.NotEqual(t, "analytical1", res.User.Password, "password is stored hashed")

	userID, err := h.auth.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	profile, err := h.profiles.EnsureProfile(ctx, res.User.ID)
	require.NoError(t, err)
	again, err := h.profiles.EnsureProfile(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID, "registration created exactly one profile")

	_, err = h.profiles.Register(ctx, RegisterInput{Username: "ada", Email: "other@example.com", Password: "analytical1"})
	requireCode(t, err, models.CodeValidation)
	assert.Contains(t, err.Error(), "already taken")

	for _, login := range []string{"ada", "ada@example.com"} {
		got, err := h.profiles.Login(ctx, LoginInput{Login: login, Password: "analytical1"})
		require.NoError(t, err, login)
		assert.Equal(t, res.User.ID, got.User.ID)
		assert.NotEmpty(t, got.Token)
	}

	_, err = h.profiles.Login(ctx, LoginInput{Login: "ada", Password: "wrong-pass1"})
	requireCode(t, err, models.CodeUnauthorized)
	_, err = h.profiles.Login(ctx, LoginInput{Login: "nobody", Password: "analytical1"})
	requireCode(t, err, models.CodeUnauthorized)
	_, err = h.profiles.Login(ctx, LoginInput{})
	requireCode(t, err, models.CodeValidation)
}

func TestProfileService_RegisterValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "ab", Email: "a@example.com", Password: "passw0rd!"}},
		{"bad email", RegisterInput{Username: "abc", Email: "nope", Password: "passw0rd!"}},
		{"weak password", RegisterInput{Username: "abc", Email: "a@example.com", Password: "letters-only"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.profiles.Register(context.Background(), tt.in)
			requireCode(t, err, models.CodeValidation)
		})
	}
}

func TestProfileService_Viewer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, expected := h.user(t, "ada")

	viewer, got, err := h.profiles.Viewer(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, viewer)
	assert.Equal(t, "ada", got.Username)

	anon, none, err := h.profiles.Viewer(ctx, 0)
	require.NoError(t, err)
	assert.True(t, anon.IsAnonymous())
	assert.Nil(t, none)

	_, _, err = h.profiles.Viewer(ctx, 9999)
	requireCode(t, err, models.CodeNotFound)
}

func TestProfileService_FollowLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aUser, a := h.user(t, "alice")
	bUser, b := h.user(t, "bob")

	res, err := h.profiles.Follow(ctx, a, "bob")
	require.NoError(t, err)
	assert.True(t, res.Following)
	assert.Equal(t, int64(1), res.FollowersCount)

	res, err = h.profiles.Follow(ctx, a, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.FollowersCount, "following twice is idempotent")

	following, err := h.profiles.IsFollowing(ctx, aUser.ID, bUser.ID)
	require.NoError(t, err)
	assert.True(t, following)

	res, err = h.profiles.Unfollow(ctx, a, "bob")
	require.NoError(t, err)
	assert.False(t, res.Following)
	assert.Zero(t, res.FollowersCount)

	following, err = h.profiles.IsFollowing(ctx, aUser.ID, bUser.ID)
	require.NoError(t, err)
	assert.False(t, following)

	var rows int64
	require.NoError(t, h.db.Model(&models.Follow{}).Count(&rows).Error)
	assert.Zero(t, rows, "unfollow leaves no row behind")

	res, err = h.profiles.ToggleFollow(ctx, b, "alice")
	require.NoError(t, err)
	assert.True(t, res.Following)
	assert.EqualValues(t, 1, res.FollowersCount)
	res, err = h.profiles.ToggleFollow(ctx, b, "alice")
	require.NoError(t, err)
	assert.False(t, res.Following)

	_, err = h.profiles.Follow(ctx, a, "alice")
	requireCode(t, err, models.CodeForbidden)
	_, err = h.profiles.ToggleFollow(ctx, a, "alice")
	requireCode(t, err, models.CodeForbidden)
	_, err = h.profiles.Follow(ctx, visibility.Anonymous(), "bob")
	requireCode(t, err, models.CodeUnauthorized)
	_, err = h.profiles.Follow(ctx, a, "nobody")
	requireCode(t, err, models.CodeNotFound)
}

func TestProfileService_FollowerLists(t *testing.T) {
	h := newHarness(t, withPerPage(2))
	ctx := context.Background()
	_, star := h.user(t, "star")
	for _, name := range []string{"carol", "alice", "bob"} {
		_, fan := h.user(t, name)
		h.follow(t, fan, star)
	}

	first, err := h.profiles.Followers(ctx, "star", 1)
	require.NoError(t, err)
	require.Len(t, first.Profiles, 2)
	assert.True(t, first.HasNext)
	assert.Equal(t, "alice", first.Profiles[0].User.Username)
	assert.Equal(t, "bob", first.Profiles[1].User.Username)
	assert.Equal(t, int64(3), first.Profile.FollowersCount)

	second, err := h.profiles.Followers(ctx, "star", 2)
	require.NoError(t, err)
	require.Len(t, second.Profiles, 1)
	assert.False(t, second.HasNext)
	assert.Equal(t, "carol", second.Profiles[0].User.Username)

	following, err := h.profiles.Following(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, following.Profiles, 1)
	assert.Equal(t, "star", following.Profiles[0].User.Username)
}

func TestProfileService_GetProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, author := h.user(t, "author")
	_, reader := h.user(t, "reader")
	h.follow(t, reader, author)

	h.publicPost(t, author, "public")
	_, err := h.posts.CreatePost(ctx, author, PostInput{Title: "draft", Content: "b", Visibility: "private"})
	require.NoError(t, err)

	self, err := h.profiles.GetProfile(ctx, "author", author, 1)
	require.NoError(t, err)
	assert.True(t, self.IsSelf)
	assert.Len(t, self.Posts.Posts, 2, "own profile includes drafts")
	assert.Equal(t, int64(1), self.Profile.FollowersCount)

	seen, err := h.profiles.GetProfile(ctx, "author", reader, 1)
	require.NoError(t, err)
	assert.False(t, seen.IsSelf)
	assert.True(t, seen.Following)
	require.Len(t, seen.Posts.Posts, 1)
	assert.Equal(t, "public", seen.Posts.Posts[0].Title)

	anon, err := h.profiles.GetProfile(ctx, "reader", visibility.Anonymous(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), anon.Profile.FollowingCount)
	assert.Empty(t, anon.Posts.Posts)
}

func TestProfileService_UpdateProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, _ := h.user(t, "ada")

	profile, err := h.profiles.UpdateProfile(ctx, user.ID, "  counting engines  ")
	require.NoError(t, err)
	assert.Equal(t, "counting engines", profile.Bio)

	_, err = h.profiles.UpdateProfile(ctx, user.ID, strings.Repeat("b", 501))
	requireCode(t, err, models.CodeValidation)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProfileService_UpdateAvatar(t *testing.T) {
	media := t.TempDir()
	h := newHarness(t, withMediaDir(media))
	ctx := context.Background()
	user, _ := h.user(t, "ada")

	first, err := h.profiles.UpdateAvatar(ctx, user.ID, bytes.NewReader(pngBytes(t, 120, 80)))
	require.NoError(t, err)
	require.NotNil(t, first.Avatar)
	firstPath := filepath.Join(media, filepath.FromSlash(*first.Avatar))
	assert.FileExists(t, firstPath)
	assert.True(t, strings.HasSuffix(*first.Avatar, ".webp"))

	second, err := h.profiles.UpdateAvatar(ctx, user.ID, bytes.NewReader(pngBytes(t, 10, 10)))
	require.NoError(t, err)
	assert.NotEqual(t, *first.Avatar, *second.Avatar)
	_, statErr := os.Stat(firstPath)
	assert.True(t, os.IsNotExist(statErr), "the replaced avatar is removed")

	_, err = h.profiles.UpdateAvatar(ctx, user.ID, strings.NewReader("not an image"))
	requireCode(t, err, models.CodeValidation)
}
