package seed

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/middleware"
	"quill/internal/models"

	"gorm.io/gorm"
)

// Summary counts what a run created.
type Summary struct {
	Users    int
	Follows  int
	Posts    int
	Comments int
	Votes    int
}

// Seeder fills a database according to a Preset.
type Seeder struct {
	db       *gorm.DB
	maxDepth int
}

// NewSeeder creates a Seeder. Reply chains stop at maxDepth.
func NewSeeder(db *gorm.DB, maxDepth int) *Seeder {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Seeder{db: db, maxDepth: maxDepth}
}

// ClearAll removes every row of every domain table.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{
		&models.Vote{}, &models.Comment{}, &models.Post{}, &models.Follow{},
		&models.Profile{}, &models.User{}, &models.Category{},
	} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	middleware.Logger.InfoContext(ctx, "database cleared")
	return nil
}

type seededUser struct {
	user    *models.User
	profile *models.Profile
}

// Run seeds categories, users, the follow graph, posts in every publication
// state, comment trees and votes.
func (s *Seeder) Run(ctx context.Context, preset Preset) (*Summary, error) {
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	factory, err := NewFactory(s.db.WithContext(ctx), preset.Seed)
	if err != nil {
		return nil, err
	}
	fake := factory.Faker()
	summary := &Summary{}

	categories, err := Categories(ctx, s.db)
	if err != nil {
		return nil, err
	}

	users := make([]seededUser, 0, preset.Users)
	for i := 0; i < preset.Users; i++ {
		user, profile, err := factory.CreateUser()
		if err != nil {
			return nil, err
		}
		users = append(users, seededUser{user: user, profile: profile})
	}
	summary.Users = len(users)

	// follows[a][b] means a follows b
	follows := make(map[uint]map[uint]bool, len(users))
	for _, a := range users {
		follows[a.user.ID] = make(map[uint]bool)
		for _, b := range users {
			if a.user.ID == b.user.ID || fake.Float64() >= preset.FollowRatio {
				continue
			}
			if err := factory.Follow(a.profile, b.profile); err != nil {
				return nil, err
			}
			follows[a.user.ID][b.user.ID] = true
			summary.Follows++
		}
	}

	for _, author := range users {
		for i := 0; i < preset.PostsPerUser; i++ {
			state, visibility := postShape(fake.Float64())
			var category *models.Category
			if len(categories) > 0 && fake.Float64() < 0.8 {
				category = categories[fake.IntRange(0, len(categories)-1)]
			}
			post, err := factory.CreatePost(author.user, state, visibility, category)
			if err != nil {
				return nil, err
			}
			summary.Posts++
			if state != StateLive {
				continue
			}

			readers := make([]*models.User, 0, len(users))
			for _, u := range users {
				if visibility == models.VisibilityPublic || u.user.ID == author.user.ID || follows[u.user.ID][author.user.ID] {
					readers = append(readers, u.user)
				}
			}
			if err := s.engage(factory, post, readers, preset, summary); err != nil {
				return nil, err
			}
		}
	}

	middleware.Logger.InfoContext(ctx, "seed completed",
		slog.String("preset", preset.Name),
		slog.Int("users", summary.Users),
		slog.Int("follows", summary.Follows),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Int("votes", summary.Votes),
	)
	return summary, nil
}

// postShape maps a uniform draw onto publication state and visibility:
// mostly live posts, some scheduled, some private drafts.
func postShape(draw float64) (PostState, models.Visibility) {
	switch {
	case draw < 0.55:
		return StateLive, models.VisibilityPublic
	case draw < 0.70:
		return StateLive, models.VisibilityFollowers
	case draw < 0.85:
		return StateScheduled, models.VisibilityPublic
	default:
		return StateDraft, models.VisibilityPrivate
	}
}

// engage adds comments and votes to a live post, drawing participants only
// from users who can read it.
func (s *Seeder) engage(factory *Factory, post *models.Post, readers []*models.User, preset Preset, summary *Summary) error {
	if len(readers) == 0 {
		return nil
	}
	fake := factory.Faker()
	pick := func() *models.User { return readers[fake.IntRange(0, len(readers)-1)] }

	var thread []*models.Comment
	for i := 0; i < preset.CommentsPerPost; i++ {
		var parent *models.Comment
		if len(thread) > 0 && fake.Float64() < 0.5 {
			candidate := thread[fake.IntRange(0, len(thread)-1)]
			if candidate.Depth < s.maxDepth {
				parent = candidate
			}
		}
		comment, err := factory.CreateComment(pick(), post, parent)
		if err != nil {
			return err
		}
		thread = append(thread, comment)
		summary.Comments++
	}

	for _, reader := range readers {
		if fake.Float64() < preset.VoteRatio {
			if err := factory.Vote(reader, models.PostTarget(post.ID), voteFrom(fake.Float64())); err != nil {
				return err
			}
			summary.Votes++
		}
		for _, comment := range thread {
			if fake.Float64() < preset.VoteRatio/4 {
				if err := factory.Vote(reader, models.CommentTarget(comment.ID), voteFrom(fake.Float64())); err != nil {
					return err
				}
				summary.Votes++
			}
		}
	}
	return nil
}

func voteFrom(draw float64) models.VoteType {
	if draw < 0.75 {
		return models.VoteLike
	}
	return models.VoteDislike
}
