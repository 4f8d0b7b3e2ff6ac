package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines the interface for account and profile operations
type UserRepository interface {
	// CreateWithProfile inserts the user and its profile in one transaction.
	CreateWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	EnsureProfile(ctx context.Context, userID uint) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, profile *models.Profile) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		return tx.Omit("User").Create(profile).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("username or email already taken", err)
		}
		return models.NewInternalError(err)
	}
	profile.User = user
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "user", id)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err, "user", username)
	}
	return &user, nil
}

// GetByLogin finds a user by username or email.
func (r *userRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&user).Error
	if err != nil {
		return nil, translate(err, "user", login)
	}
	return &user, nil
}

// EnsureProfile returns the user's profile, creating it on first access.
func (r *userRepository) EnsureProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	db := r.db.WithContext(ctx)

	var profile models.Profile
	err := db.Where(models.Profile{UserID: userID}).FirstOrCreate(&profile).Error
	if isUniqueConstraintError(err) {
		// lost a creation race; the winner's row is there now
		err = db.Where("user_id = ?", userID).First(&profile).Error
	}
	if err != nil {
		return nil, translate(err, "profile", userID)
	}
	return &profile, nil
}

func (r *userRepository) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	user, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	profile, err := r.EnsureProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	profile.User = user
	return profile, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]any{"bio": profile.Bio, "avatar": profile.Avatar}).Error
	if err != nil {
		return translate(err, "profile", profile.ID)
	}
	return nil
}
