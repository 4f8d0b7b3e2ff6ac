package seed

import (
	"context"
	"fmt"

	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BuiltInCategories are created on every development start and by the seeder.
var BuiltInCategories = []models.Category{
	{Name: "Announcements", Slug: "announcements"},
	{Name: "Programming", Slug: "programming"},
	{Name: "Linux", Slug: "linux"},
	{Name: "Books", Slug: "books"},
	{Name: "Music", Slug: "music"},
	{Name: "Food", Slug: "food"},
	{Name: "Travel", Slug: "travel"},
	{Name: "Science", Slug: "science"},
}

// Categories inserts the built-in categories that do not exist yet and
// returns all of them.
func Categories(ctx context.Context, db *gorm.DB) ([]*models.Category, error) {
	for _, item := range BuiltInCategories {
		category := item
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&category).Error; err != nil {
			return nil, fmt.Errorf("seed category %s: %w", item.Slug, err)
		}
	}

	slugs := make([]string, len(BuiltInCategories))
	for i, item := range BuiltInCategories {
		slugs[i] = item.Slug
	}
	var categories []*models.Category
	if err := db.WithContext(ctx).Where("slug IN ?", slugs).Order("name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return categories, nil
}
