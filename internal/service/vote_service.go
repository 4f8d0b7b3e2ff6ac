package service

import (
	"context"
	"log/slog"

	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/visibility"
)

// VoteService records like and dislike votes on posts and comments.
type VoteService struct {
	voteRepo    repository.VoteRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	resolver    *visibility.Resolver
	flags       *featureflags.Manager
}

// VoteResult is the outcome of a toggle. Final is nil when the vote was
// withdrawn; the counts are aggregated after the write.
type VoteResult struct {
	Target   models.VoteTarget `json:"target"`
	Final    *models.VoteType  `json:"final"`
	Likes    int64             `json:"likes"`
	Dislikes int64             `json:"dislikes"`
}

// NewVoteService creates a VoteService.
func NewVoteService(
	voteRepo repository.VoteRepository,
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	resolver *visibility.Resolver,
	flags *featureflags.Manager,
) *VoteService {
	return &VoteService{
		voteRepo:    voteRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		resolver:    resolver,
		flags:       flags,
	}
}

// CommentVotesEnabled reports whether userID may vote on comments.
func (s *VoteService) CommentVotesEnabled(userID uint) bool {
	return s.flags.Enabled(featureflags.CommentVotes, userID)
}

// CastPostVote toggles the voter's vote on the post with the given slug.
func (s *VoteService) CastPostVote(ctx context.Context, voter visibility.Viewer, slug string, voteType models.VoteType) (*VoteResult, error) {
	if voter.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to vote")
	}
	post, err := s.postRepo.GetBySlug(ctx, slug, voter.UserID)
	if err != nil {
		return nil, err
	}
	return s.CastVote(ctx, voter, models.PostTarget(post.ID), voteType)
}

// CastVote applies the three-way toggle to target and returns the live counts.
func (s *VoteService) CastVote(ctx context.Context, voter visibility.Viewer, target models.VoteTarget, voteType models.VoteType) (result *VoteResult, err error) {
	ctx, span := observability.StartService(ctx, "VoteService", "CastVote")
	defer func() { observability.EndSpan(span, err) }()

	if voter.IsAnonymous() {
		return nil, models.NewUnauthorizedError("Sign in to vote")
	}
	if voteType != models.VoteLike && voteType != models.VoteDislike {
		return nil, models.NewValidationError("vote type must be like or dislike")
	}
	if err := s.checkTarget(ctx, voter, target); err != nil {
		return nil, err
	}

	final, err := s.voteRepo.Toggle(ctx, voter.UserID, target, voteType)
	if err != nil {
		return nil, err
	}
	counts, err := s.voteRepo.Counts(ctx, target)
	if err != nil {
		return nil, err
	}

	outcome := "none"
	if final != nil {
		outcome = final.String()
	}
	observability.VotesCast.WithLabelValues(string(target.Kind), outcome).Inc()
	middleware.Logger.InfoContext(ctx, "vote cast",
		slog.String("target", target.String()),
		slog.Uint64("user_id", uint64(voter.UserID)),
		slog.String("outcome", outcome),
	)

	return &VoteResult{Target: target, Final: final, Likes: counts.Likes, Dislikes: counts.Dislikes}, nil
}

// checkTarget requires the target to exist and its post to be visible to
// the voter.
func (s *VoteService) checkTarget(ctx context.Context, voter visibility.Viewer, target models.VoteTarget) error {
	var postID uint
	switch target.Kind {
	case models.TargetPost:
		postID = target.ID
	case models.TargetComment:
		if !s.CommentVotesEnabled(voter.UserID) {
			return models.NewForbiddenError("Comment voting is not available")
		}
		comment, err := s.commentRepo.GetByID(ctx, target.ID)
		if err != nil {
			return err
		}
		postID = comment.PostID
	default:
		return models.NewValidationError("unknown vote target")
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	visible, err := s.resolver.IsVisible(ctx, post, voter)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !visible {
		return models.NewForbiddenError("You cannot vote on this post")
	}
	return nil
}
