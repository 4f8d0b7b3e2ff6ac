package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope narrows a posts query; visibility rules are passed in this form.
type Scope = func(*gorm.DB) *gorm.DB

// PostQuery describes one page of a post listing.
type PostQuery struct {
	Scopes   []Scope
	ViewerID uint
	Limit    int
	Offset   int
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	// Delete removes the post, its comment tree, and every vote on either.
	Delete(ctx context.Context, id uint) error
	GetBySlug(ctx context.Context, slug string, viewerID uint) (*models.Post, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, q PostQuery) ([]*models.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(post).Error
	})
	return translate(err, "post", post.Slug)
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations, "slug", "author_id", "created_at").Save(post).Error
	})
	return translate(err, "post", post.Slug)
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commentIDs := tx.Model(&models.Comment{}).Select("id").Where("post_id = ?", id)
		if err := tx.Where("target_type = ? AND target_id IN (?)", string(models.TargetComment), commentIDs).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_type = ? AND target_id = ?", string(models.TargetPost), id).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate(err, "post", id)
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string, viewerID uint) (*models.Post, error) {
	var post models.Post
	err := r.withDetails(r.db.WithContext(ctx), viewerID).
		Preload("Author").
		Preload("Category").
		Where("posts.slug = ?", slug).
		Take(&post).Error
	if err != nil {
		return nil, translate(err, "post", slug)
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Take(&post, id).Error; err != nil {
		return nil, translate(err, "post", id)
	}
	return &post, nil
}

func (r *postRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) List(ctx context.Context, q PostQuery) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.withDetails(r.db.WithContext(ctx), q.ViewerID).
		Scopes(q.Scopes...).
		Preload("Author").
		Preload("Category").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// withDetails selects live vote and comment counts, plus the viewer's own
// vote when viewerID is set. Counts are never stored.
func (r *postRepository) withDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM votes WHERE votes.target_type = ? AND votes.target_id = posts.id AND votes.vote_type = ?) AS likes_count, " +
		"(SELECT COUNT(*) FROM votes WHERE votes.target_type = ? AND votes.target_id = posts.id AND votes.vote_type = ?) AS dislikes_count, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count"
	args := []any{
		string(models.TargetPost), int(models.VoteLike),
		string(models.TargetPost), int(models.VoteDislike),
	}

	if viewerID != 0 {
		selectQuery += ", (SELECT votes.vote_type FROM votes WHERE votes.target_type = ? AND votes.target_id = posts.id AND votes.user_id = ?) AS viewer_vote"
		args = append(args, string(models.TargetPost), viewerID)
	} else {
		selectQuery += ", NULL AS viewer_vote"
	}

	return db.Model(&models.Post{}).Select(selectQuery, args...)
}

// FollowedBy keeps posts whose author is followed by the given profile.
func FollowedBy(profileID uint) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.author_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Table("follows").
				Select("profiles.user_id").
				Joins("JOIN profiles ON profiles.id = follows.following_id").
				Where("follows.follower_id = ?", profileID))
	}
}

// InCategory keeps posts filed under the category.
func InCategory(categoryID uint) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.category_id = ?", categoryID)
	}
}

// ByAuthor keeps posts written by the user.
func ByAuthor(userID uint) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.author_id = ?", userID)
	}
}
