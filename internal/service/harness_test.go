package service

import (
	"context"
	"testing"
	"time"

	"quill/internal/cache"
	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/publication"
	"quill/internal/render"
	"quill/internal/repository"
	"quill/internal/testutil"
	"quill/internal/visibility"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "service-test-secret-that-is-long-enough"

// harness wires every service over an in-memory database, miniredis and a
// clock the test controls.
type harness struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	clock time.Time
	auth  *middleware.Auth

	postRepo     repository.PostRepository
	commentRepo  repository.CommentRepository
	voteRepo     repository.VoteRepository
	userRepo     repository.UserRepository
	followRepo   repository.FollowRepository
	categoryRepo repository.CategoryRepository

	resolver   *visibility.Resolver
	posts      *PostService
	comments   *CommentService
	votes      *VoteService
	profiles   *ProfileService
	categories *CategoryService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	flags    string
	perPage  int
	maxDepth int
	mediaDir string
}

func withFlags(raw string) harnessOption { return func(c *harnessConfig) { c.flags = raw } }
func withPerPage(n int) harnessOption    { return func(c *harnessConfig) { c.perPage = n } }
func withMediaDir(d string) harnessOption {
	return func(c *harnessConfig) { c.mediaDir = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{perPage: 10, maxDepth: 5, mediaDir: t.TempDir()}
	for _, opt := range opts {
		opt(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		db:    testutil.NewSQLiteDB(t),
		mr:    mr,
		rdb:   rdb,
		clock: time.Now().UTC().Truncate(time.Second),
		auth:  middleware.NewAuth(testSecret, time.Hour),
	}
	now := func() time.Time { return h.clock }

	h.postRepo = repository.NewPostRepository(h.db)
	h.commentRepo = repository.NewCommentRepository(h.db)
	h.voteRepo = repository.NewVoteRepository(h.db)
	h.userRepo = repository.NewUserRepository(h.db)
	h.followRepo = repository.NewFollowRepository(h.db)
	h.categoryRepo = repository.NewCategoryRepository(h.db)

	store := cache.NewStore(rdb)
	flags := featureflags.NewManager(cfg.flags)
	renderer, err := render.New()
	require.NoError(t, err)

	h.resolver = visibility.NewResolver(h.followRepo, now)
	h.posts = NewPostService(h.postRepo, h.categoryRepo, h.resolver,
		publication.NewScheduler(publication.DefaultGrace, now),
		publication.NewSlugAssigner(10), store, cfg.perPage)
	h.comments = NewCommentService(h.commentRepo, h.postRepo, h.voteRepo, h.resolver,
		renderer, notifications.NewNotifier(rdb), flags, cfg.maxDepth)
	h.votes = NewVoteService(h.voteRepo, h.postRepo, h.commentRepo, h.resolver, flags)
	h.profiles = NewProfileService(h.userRepo, h.followRepo, h.posts, h.auth, ProfileOptions{
		MediaDir:           cfg.mediaDir,
		AvatarMaxDimension: 64,
		ProfilesPerPage:    cfg.perPage,
		BcryptCost:         bcrypt.MinCost,
	})
	h.categories = NewCategoryService(h.categoryRepo, store, time.Minute, now)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

// user creates an account and returns it with its viewer identity.
func (h *harness) user(t *testing.T, username string) (*models.User, visibility.Viewer) {
	t.Helper()
	user, profile := testutil.CreateUser(t, h.db, username)
	return user, visibility.Viewer{UserID: user.ID, ProfileID: profile.ID}
}

func (h *harness) follow(t *testing.T, follower, followee visibility.Viewer) {
	t.Helper()
	_, err := h.followRepo.Follow(context.Background(), follower.ProfileID, followee.ProfileID)
	require.NoError(t, err)
}

func (h *harness) publicPost(t *testing.T, author visibility.Viewer, title string) *models.Post {
	t.Helper()
	post, err := h.posts.CreatePost(context.Background(), author, PostInput{
		Title:      title,
		Content:    "body of " + title,
		Visibility: string(models.VisibilityPublic),
	})
	require.NoError(t, err)
	return post
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, models.IsCode(err, code), "want %s, got %v", code, err)
}

func timePtr(t time.Time) *time.Time { return &t }
