// Package seed creates demo data for development databases and tests.
package seed

import (
	"fmt"
	"strings"
	"time"

	"quill/internal/models"
	"quill/internal/publication"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// PostState selects where a seeded post sits in its publication lifecycle.
type PostState int

const (
	StateLive PostState = iota
	StateScheduled
	StateDraft
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	now   func() time.Time
	hash  string
	users int
}

// NewFactory creates a Factory. A zero seed draws a random one.
func NewFactory(db *gorm.DB, seed int64) (*Factory, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{
		db:    db,
		faker: gofakeit.New(seed),
		now:   func() time.Time { return time.Now().UTC() },
		hash:  string(hash),
	}, nil
}

// Faker exposes the generator so callers draw from the same sequence.
func (f *Factory) Faker() *gofakeit.Faker {
	return f.faker
}

// CreateUser persists a user with its profile. Overrides run before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, *models.Profile, error) {
	f.users++
	username := usernameFrom(f.faker.Username(), f.users)
	user := &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@example.com",
		Password: f.hash,
	}
	for _, override := range overrides {
		override(user)
	}

	profile := &models.Profile{Bio: f.faker.Sentence(10)}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create user %s: %w", username, err)
	}
	profile.User = user
	return user, profile, nil
}

// usernameFrom keeps the alphanumeric part of a generated name and makes it
// unique with the running counter. The base never contains an underscore,
// so distinct counters cannot collide.
func usernameFrom(raw string, n int) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	suffix := fmt.Sprintf("_%d", n)
	if len(base)+len(suffix) > 30 {
		base = base[:30-len(suffix)]
	}
	return base + suffix
}

// Follow records follower following followee. Existing edges are kept.
func (f *Factory) Follow(follower, followee *models.Profile) error {
	if follower.ID == followee.ID {
		return nil
	}
	edge := &models.Follow{FollowerID: follower.ID, FollowingID: followee.ID}
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error
}

// CreatePost persists a post by author in the given state. Live posts get
// a random past publication time; scheduled ones a time within the next week.
func (f *Factory) CreatePost(author *models.User, state PostState, visibility models.Visibility, category *models.Category) (*models.Post, error) {
	slug, err := publication.NewToken()
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		Slug:       slug,
		Title:      strings.TrimSuffix(f.faker.Sentence(f.faker.IntRange(3, 8)), "."),
		Content:    f.faker.Paragraph(f.faker.IntRange(1, 4), 4, 12, "\n\n"),
		AuthorID:   author.ID,
		Visibility: visibility,
	}
	if category != nil {
		post.CategoryID = &category.ID
	}

	now := f.now()
	switch state {
	case StateLive:
		at := now.Add(-time.Duration(f.faker.IntRange(1, 60*24*30)) * time.Minute)
		post.IsPublished, post.PublishedAt = true, &at
	case StateScheduled:
		at := now.Add(time.Duration(f.faker.IntRange(60, 60*24*7)) * time.Minute)
		post.IsPublished, post.PublishedAt = true, &at
	case StateDraft:
		post.IsPublished = false
	}

	if err := f.db.Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = *author
	return post, nil
}

// CreateComment persists a comment on post, as a reply when parent is set.
func (f *Factory) CreateComment(author *models.User, post *models.Post, parent *models.Comment) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: author.ID,
		Content:  f.faker.Sentence(f.faker.IntRange(4, 20)),
	}
	if parent != nil {
		comment.ParentID = &parent.ID
		comment.Depth = parent.Depth + 1
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// Vote stores voter's vote on target, replacing an earlier one.
func (f *Factory) Vote(voter *models.User, target models.VoteTarget, voteType models.VoteType) error {
	vote := &models.Vote{
		UserID:     voter.ID,
		TargetType: target.Kind,
		TargetID:   target.ID,
		VoteType:   voteType,
	}
	return f.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_type", "updated_at"}),
	}).Create(vote).Error
}
