// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"quill/internal/database"
	"quill/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an isolated in-memory database with foreign keys on and
// the full schema migrated.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with a profile and returns both.
func CreateUser(t *testing.T, db *gorm.DB, username string) (*models.User, *models.Profile) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3r-secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{Username: username, Email: username + "@example.com", Password: string(hash)}
	require.NoError(t, db.Create(user).Error)

	profile := &models.Profile{UserID: user.ID}
	require.NoError(t, db.Create(profile).Error)
	return user, profile
}

// Follow records follower following followee.
func Follow(t *testing.T, db *gorm.DB, follower, followee *models.Profile) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{FollowerID: follower.ID, FollowingID: followee.ID}).Error)
}

// PostOption customizes CreatePost.
type PostOption func(*models.Post)

// Published marks the post published at the given time with the given visibility.
func Published(v models.Visibility, at time.Time) PostOption {
	return func(p *models.Post) {
		at := at.UTC()
		p.IsPublished = true
		p.PublishedAt = &at
		p.Visibility = v
	}
}

// InCategory files the post under a category.
func InCategory(c *models.Category) PostOption {
	return func(p *models.Post) { p.CategoryID = &c.ID }
}

// CreatePost inserts a post by author. Without options it is a private draft.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, title string, opts ...PostOption) *models.Post {
	t.Helper()

	post := &models.Post{
		Slug:       uuid.NewString()[:16],
		Title:      title,
		Content:    "content of " + title,
		AuthorID:   author.ID,
		Visibility: models.VisibilityPrivate,
	}
	for _, opt := range opts {
		opt(post)
	}
	require.NoError(t, db.Create(post).Error)
	return post
}
