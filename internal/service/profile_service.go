package service

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"quill/internal/imaging"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/validation"
	"quill/internal/visibility"

	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	IssueToken(userID uint) (string, error)
}

// ProfileService owns accounts, profiles and the follow graph.
type ProfileService struct {
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	posts      *PostService
	tokens     TokenIssuer
	mediaDir   string
	avatarMax  int
	perPage    int
	bcryptCost int
}

type ProfileOptions struct {
	MediaDir           string
	AvatarMaxDimension int
	ProfilesPerPage    int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Login    string
	Password string
}

// AuthResult is a signed-in user with a fresh session token.
type AuthResult struct {
	User  *models.User
	Token string
}

// ProfileView is a profile as seen by one viewer.
type ProfileView struct {
	Profile   *models.Profile
	Following bool
	IsSelf    bool
	Posts     *PostPage
}

// FollowResult is the follow state after a follow command.
type FollowResult struct {
	Following      bool  `json:"following"`
	FollowersCount int64 `json:"followers_count"`
}

// ProfileList is one page of followers or followed profiles.
type ProfileList struct {
	Profile  *models.Profile
	Profiles []*models.Profile
	Page     int
	HasNext  bool
}

func NewProfileService(
	userRepo repository.UserRepository,
	followRepo repository.FollowRepository,
	posts *PostService,
	tokens TokenIssuer,
	opts ProfileOptions,
) *ProfileService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.ProfilesPerPage < 1 {
		opts.ProfilesPerPage = 20
	}
	return &ProfileService{
		userRepo:   userRepo,
		followRepo: followRepo,
		posts:      posts,
		tokens:     tokens,
		mediaDir:   opts.MediaDir,
		avatarMax:  opts.AvatarMaxDimension,
		perPage:    opts.ProfilesPerPage,
		bcryptCost: opts.BcryptCost,
	}
}

// Register creates the user and its profile in one transaction.
func (s *ProfileService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(in.Password, username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{Username: username, Email: email, Password: string(hash)}
	if err := s.userRepo.CreateWithProfile(ctx, user, &models.Profile{}); err != nil {
		if models.IsCode(err, models.CodeConflict) {
			return nil, models.NewValidationError("Username or email already taken")
		}
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user registered",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Login checks credentials given as username or email.
func (s *ProfileService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	login := strings.TrimSpace(in.Login)
	if login == "" || in.Password == "" {
		return nil, models.NewValidationError("Login and password are required")
	}

	user, err := s.userRepo.GetByLogin(ctx, login)
	if models.IsCode(err, models.CodeNotFound) {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if _, err := s.userRepo.EnsureProfile(ctx, user.ID); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *ProfileService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// EnsureProfile returns the user's profile, creating it when missing.
func (s *ProfileService) EnsureProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	return s.userRepo.EnsureProfile(ctx, userID)
}

// Viewer resolves an authenticated user id into the identity visibility
// checks run against. A zero id is the anonymous viewer.
func (s *ProfileService) Viewer(ctx context.Context, userID uint) (visibility.Viewer, *models.User, error) {
	if userID == 0 {
		return visibility.Anonymous(), nil, nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return visibility.Anonymous(), nil, err
	}
	profile, err := s.userRepo.EnsureProfile(ctx, userID)
	if err != nil {
		return visibility.Anonymous(), nil, err
	}
	return visibility.Viewer{UserID: user.ID, ProfileID: profile.ID}, user, nil
}

// GetProfile loads username's profile with follow counts and one page of
// the posts viewer may read. Viewing oneself includes one's own drafts.
func (s *ProfileService) GetProfile(ctx context.Context, username string, viewer visibility.Viewer, page int) (*ProfileView, error) {
	profile, err := s.loadProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	view := &ProfileView{Profile: profile, IsSelf: viewer.ProfileID == profile.ID}
	if !viewer.IsAnonymous() && !view.IsSelf {
		if view.Following, err = s.followRepo.IsFollowing(ctx, viewer.ProfileID, profile.ID); err != nil {
			return nil, err
		}
	}
	if view.Posts, err = s.posts.ListVisiblePosts(ctx, viewer, ListFilter{AuthorID: profile.UserID, Page: page}); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ProfileService) loadProfile(ctx context.Context, username string) (*models.Profile, error) {
	profile, err := s.userRepo.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if profile.FollowersCount, err = s.followRepo.CountFollowers(ctx, profile.ID); err != nil {
		return nil, err
	}
	if profile.FollowingCount, err = s.followRepo.CountFollowing(ctx, profile.ID); err != nil {
		return nil, err
	}
	return profile, nil
}

// Follow makes viewer follow username. Following twice is a no-op.
func (s *ProfileService) Follow(ctx context.Context, viewer visibility.Viewer, username string) (*FollowResult, error) {
	target, err := s.followTarget(ctx, viewer, username)
	if err != nil {
		return nil, err
	}
	return s.follow(ctx, viewer, target)
}

// Unfollow removes the follow edge, if any.
func (s *ProfileService) Unfollow(ctx context.Context, viewer visibility.Viewer, username string) (*FollowResult, error) {
	target, err := s.followTarget(ctx, viewer, username)
	if err != nil {
		return nil, err
	}
	return s.unfollow(ctx, viewer, target)
}

// ToggleFollow follows when not following and unfollows otherwise.
func (s *ProfileService) ToggleFollow(ctx context.Context, viewer visibility.Viewer, username string) (*FollowResult, error) {
	target, err := s.followTarget(ctx, viewer, username)
	if err != nil {
		return nil, err
	}
	following, err := s.followRepo.Toggle(ctx, viewer.ProfileID, target.ID)
	if err != nil {
		return nil, err
	}
	s.recordFollow(ctx, viewer, target, following)
	return s.followResult(ctx, target, following)
}

func (s *ProfileService) followTarget(ctx context.Context, viewer visibility.Viewer, username string) (*models.Profile, error) {
	if viewer.IsAnonymous() || viewer.ProfileID == 0 {
		return nil, models.NewUnauthorizedError("Sign in to follow people")
	}
	target, err := s.userRepo.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == viewer.ProfileID {
		return nil, models.NewForbiddenError("You cannot follow yourself")
	}
	return target, nil
}

func (s *ProfileService) follow(ctx context.Context, viewer visibility.Viewer, target *models.Profile) (*FollowResult, error) {
	created, err := s.followRepo.Follow(ctx, viewer.ProfileID, target.ID)
	if err != nil {
		return nil, err
	}
	if created {
		s.recordFollow(ctx, viewer, target, true)
	}
	return s.followResult(ctx, target, true)
}

func (s *ProfileService) unfollow(ctx context.Context, viewer visibility.Viewer, target *models.Profile) (*FollowResult, error) {
	removed, err := s.followRepo.Unfollow(ctx, viewer.ProfileID, target.ID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.recordFollow(ctx, viewer, target, false)
	}
	return s.followResult(ctx, target, false)
}

func (s *ProfileService) recordFollow(ctx context.Context, viewer visibility.Viewer, target *models.Profile, following bool) {
	event, msg := "unfollow", "profile unfollowed"
	if following {
		event, msg = "follow", "profile followed"
	}
	observability.FollowEvents.WithLabelValues(event).Inc()
	middleware.Logger.InfoContext(ctx, msg,
		slog.Uint64("follower_id", uint64(viewer.ProfileID)),
		slog.Uint64("following_id", uint64(target.ID)),
	)
}

func (s *ProfileService) followResult(ctx context.Context, target *models.Profile, following bool) (*FollowResult, error) {
	count, err := s.followRepo.CountFollowers(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return &FollowResult{Following: following, FollowersCount: count}, nil
}

// IsFollowing reports whether followerUserID follows followingUserID.
func (s *ProfileService) IsFollowing(ctx context.Context, followerUserID, followingUserID uint) (bool, error) {
	follower, err := s.userRepo.EnsureProfile(ctx, followerUserID)
	if err != nil {
		return false, err
	}
	following, err := s.userRepo.EnsureProfile(ctx, followingUserID)
	if err != nil {
		return false, err
	}
	return s.followRepo.IsFollowing(ctx, follower.ID, following.ID)
}

// Followers lists who follows username, ordered by username.
func (s *ProfileService) Followers(ctx context.Context, username string, page int) (*ProfileList, error) {
	return s.listProfiles(ctx, username, page, s.followRepo.Followers)
}

// Following lists whom username follows, ordered by username.
func (s *ProfileService) Following(ctx context.Context, username string, page int) (*ProfileList, error) {
	return s.listProfiles(ctx, username, page, s.followRepo.Following)
}

func (s *ProfileService) listProfiles(
	ctx context.Context,
	username string,
	page int,
	fetch func(ctx context.Context, profileID uint, limit, offset int) ([]*models.Profile, error),
) (*ProfileList, error) {
	profile, err := s.loadProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	list := &ProfileList{Profile: profile, Page: normalizePage(page)}
	profiles, err := fetch(ctx, profile.ID, s.perPage+1, (list.Page-1)*s.perPage)
	if err != nil {
		return nil, err
	}
	if len(profiles) > s.perPage {
		list.HasNext = true
		profiles = profiles[:s.perPage]
	}
	list.Profiles = profiles
	return list, nil
}

// UpdateProfile replaces the user's bio.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uint, bio string) (*models.Profile, error) {
	bio, err := validation.OptionalText("bio", bio, validation.MaxBioLength)
	if err != nil {
		return nil, err
	}
	profile, err := s.userRepo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.Bio = bio
	if err := s.userRepo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateAvatar normalises the uploaded image to a bounded WebP square and
// replaces the user's avatar with it.
func (s *ProfileService) UpdateAvatar(ctx context.Context, userID uint, r io.Reader) (*models.Profile, error) {
	raw, err := io.ReadAll(io.LimitReader(r, imaging.MaxUploadBytes+1))
	if err != nil {
		return nil, models.NewValidationError("Could not read upload")
	}
	data, err := imaging.NormalizeAvatar(raw, s.avatarMax)
	if err != nil {
		return nil, err
	}

	profile, err := s.userRepo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	rel, err := imaging.SaveAvatar(s.mediaDir, data)
	if err != nil {
		return nil, err
	}

	previous := profile.Avatar
	profile.Avatar = &rel
	if err := s.userRepo.UpdateProfile(ctx, profile); err != nil {
		_ = imaging.RemoveAvatar(s.mediaDir, rel)
		return nil, err
	}
	if previous != nil {
		if err := imaging.RemoveAvatar(s.mediaDir, *previous); err != nil {
			middleware.Logger.WarnContext(ctx, "old avatar not removed",
				slog.String("path", *previous), slog.String("error", err.Error()))
		}
	}
	return profile, nil
}
