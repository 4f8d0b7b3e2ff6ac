package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"quill/internal/cache"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/validation"

	"github.com/google/uuid"
)

const (
	maxCategoryName = 100
	maxCategorySlug = 120
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// CategoryService lists categories with their live post counts, cached in redis.
type CategoryService struct {
	categoryRepo repository.CategoryRepository
	cache        *cache.Store
	ttl          time.Duration
	now          func() time.Time
}

// NewCategoryService creates a CategoryService. A nil clock uses the current UTC time.
func NewCategoryService(categoryRepo repository.CategoryRepository, store *cache.Store, ttl time.Duration, now func() time.Time) *CategoryService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CategoryService{categoryRepo: categoryRepo, cache: store, ttl: ttl, now: now}
}

// Create adds a category. An empty slug is derived from the name.
func (s *CategoryService) Create(ctx context.Context, name, slug string) (*models.Category, error) {
	name, err := validation.Text("name", name, maxCategoryName)
	if err != nil {
		return nil, err
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(name)
	} else if slug != Slugify(slug) {
		return nil, models.NewValidationError("slug may contain only lowercase letters, digits and dashes")
	}

	category := &models.Category{Name: name, Slug: slug}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cache.CategoryListKey)
	middleware.Logger.InfoContext(ctx, "category created", slog.String("slug", slug))
	return category, nil
}

// List returns categories with at least one live post, ordered by name.
func (s *CategoryService) List(ctx context.Context) ([]*models.Category, error) {
	return cache.Aside(ctx, s.cache, cache.CategoryListFamily, cache.CategoryListKey, s.ttl,
		func(ctx context.Context) ([]*models.Category, error) {
			return s.categoryRepo.ListWithLiveCounts(ctx, s.now())
		})
}

// All returns every category, for pickers.
func (s *CategoryService) All(ctx context.Context) ([]*models.Category, error) {
	return s.categoryRepo.ListAll(ctx)
}

// Slugify lowercases name and joins its alphanumeric runs with dashes. Names
// with nothing usable fall back to a random slug.
func Slugify(name string) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > maxCategorySlug {
		slug = strings.TrimRight(slug[:maxCategorySlug], "-")
	}
	if slug == "" {
		return uuid.NewString()
	}
	return slug
}
