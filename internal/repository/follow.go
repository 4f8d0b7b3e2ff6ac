package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines the interface for the follow graph. All ids are
// profile ids unless named otherwise.
type FollowRepository interface {
	// Follow adds the edge; it reports false when it already existed.
	Follow(ctx context.Context, followerID, followingID uint) (bool, error)
	// Unfollow hard-deletes the edge; it reports false when there was none.
	Unfollow(ctx context.Context, followerID, followingID uint) (bool, error)
	// Toggle flips the edge in one transaction and reports whether it now exists.
	Toggle(ctx context.Context, followerID, followingID uint) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
	FollowsAuthor(ctx context.Context, followerProfileID, authorUserID uint) (bool, error)
	CountFollowers(ctx context.Context, profileID uint) (int64, error)
	CountFollowing(ctx context.Context, profileID uint) (int64, error)
	Followers(ctx context.Context, profileID uint, limit, offset int) ([]*models.Profile, error)
	Following(ctx context.Context, profileID uint, limit, offset int) ([]*models.Profile, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Follow(ctx context.Context, followerID, followingID uint) (bool, error) {
	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit(clause.Associations).
			Create(&models.Follow{FollowerID: followerID, FollowingID: followingID})
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, translate(err, "profile", followingID)
	}
	return created, nil
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followingID uint) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).
			Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return removed, nil
}

func (r *followRepository) Toggle(ctx context.Context, followerID, followingID uint) (bool, error) {
	var following bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize toggles by the same follower on its profile row.
		var follower models.Profile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Take(&follower, followerID).Error; err != nil {
			return err
		}
		res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).
			Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		following = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit(clause.Associations).
			Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error
	})
	if err != nil {
		return false, translate(err, "profile", followingID)
	}
	return following, nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// FollowsAuthor answers the visibility question keyed by the author's user id.
func (r *followRepository) FollowsAuthor(ctx context.Context, followerProfileID, authorUserID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Joins("JOIN profiles ON profiles.id = follows.following_id").
		Where("follows.follower_id = ? AND profiles.user_id = ?", followerProfileID, authorUserID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *followRepository) CountFollowers(ctx context.Context, profileID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("following_id = ?", profileID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *followRepository) CountFollowing(ctx context.Context, profileID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ?", profileID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *followRepository) Followers(ctx context.Context, profileID uint, limit, offset int) ([]*models.Profile, error) {
	return r.listProfiles(ctx, "follows.follower_id = profiles.id", "follows.following_id = ?", profileID, limit, offset)
}

func (r *followRepository) Following(ctx context.Context, profileID uint, limit, offset int) ([]*models.Profile, error) {
	return r.listProfiles(ctx, "follows.following_id = profiles.id", "follows.follower_id = ?", profileID, limit, offset)
}

func (r *followRepository) listProfiles(ctx context.Context, join, where string, profileID uint, limit, offset int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	err := r.db.WithContext(ctx).
		Select("profiles.*").
		Joins("JOIN follows ON "+join).
		Joins("JOIN users ON users.id = profiles.user_id").
		Where(where, profileID).
		Order("users.username ASC").
		Limit(limit).
		Offset(offset).
		Preload("User").
		Find(&profiles).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return profiles, nil
}
