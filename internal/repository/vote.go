package repository

import (
	"context"
	"errors"

	"quill/internal/models"

	"gorm.io/gorm"
)

// errVoteRace marks an insert that lost to a concurrent vote by the same
// user on the same target.
var errVoteRace = errors.New("concurrent vote insert")

// VoteRepository defines the interface for the voting ledger
type VoteRepository interface {
	// Toggle creates, switches or removes the user's vote on target and
	// returns the resulting vote type, nil when no vote remains.
	Toggle(ctx context.Context, userID uint, target models.VoteTarget, voteType models.VoteType) (*models.VoteType, error)
	Counts(ctx context.Context, target models.VoteTarget) (models.VoteCounts, error)
	CountsFor(ctx context.Context, kind models.TargetKind, ids []uint) (map[uint]models.VoteCounts, error)
	UserVotes(ctx context.Context, userID uint, kind models.TargetKind, ids []uint) (map[uint]models.VoteType, error)
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Toggle(ctx context.Context, userID uint, target models.VoteTarget, voteType models.VoteType) (*models.VoteType, error) {
	result, err := r.toggleOnce(ctx, userID, target, voteType)
	if errors.Is(err, errVoteRace) {
		// the racing row is committed now, so this pass lands in the toggle branch
		result, err = r.toggleOnce(ctx, userID, target, voteType)
	}
	if errors.Is(err, errVoteRace) {
		return nil, models.NewConflictError("vote changed concurrently", err)
	}
	if err != nil {
		return nil, translate(err, "vote", target)
	}
	return result, nil
}

func (r *voteRepository) toggleOnce(ctx context.Context, userID uint, target models.VoteTarget, voteType models.VoteType) (*models.VoteType, error) {
	var result *models.VoteType
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		err := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, string(target.Kind), target.ID).
			Take(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote := models.Vote{UserID: userID, TargetType: target.Kind, TargetID: target.ID, VoteType: voteType}
			if err := tx.Omit("User").Create(&vote).Error; err != nil {
				if isUniqueConstraintError(err) {
					return errVoteRace
				}
				return err
			}
			result = &voteType
		case err != nil:
			return err
		case existing.VoteType == voteType:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			result = nil
		default:
			if err := tx.Model(&existing).Update("vote_type", voteType).Error; err != nil {
				return err
			}
			result = &voteType
		}
		return nil
	})
	return result, err
}

type countRow struct {
	TargetID uint
	Likes    int64
	Dislikes int64
}

func (r *voteRepository) Counts(ctx context.Context, target models.VoteTarget) (models.VoteCounts, error) {
	counts, err := r.CountsFor(ctx, target.Kind, []uint{target.ID})
	if err != nil {
		return models.VoteCounts{}, err
	}
	return counts[target.ID], nil
}

// CountsFor aggregates live rows for every id; ids without votes map to zero counts.
func (r *voteRepository) CountsFor(ctx context.Context, kind models.TargetKind, ids []uint) (map[uint]models.VoteCounts, error) {
	out := make(map[uint]models.VoteCounts, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []countRow
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("target_id, "+
			"SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END) AS likes, "+
			"SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END) AS dislikes",
			int(models.VoteLike), int(models.VoteDislike)).
		Where("target_type = ? AND target_id IN ?", string(kind), ids).
		Group("target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	for _, id := range ids {
		out[id] = models.VoteCounts{}
	}
	for _, row := range rows {
		out[row.TargetID] = models.VoteCounts{Likes: row.Likes, Dislikes: row.Dislikes}
	}
	return out, nil
}

func (r *voteRepository) UserVotes(ctx context.Context, userID uint, kind models.TargetKind, ids []uint) (map[uint]models.VoteType, error) {
	out := make(map[uint]models.VoteType)
	if userID == 0 || len(ids) == 0 {
		return out, nil
	}

	var votes []models.Vote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, string(kind), ids).
		Find(&votes).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, v := range votes {
		out[v.TargetID] = v.VoteType
	}
	return out, nil
}
