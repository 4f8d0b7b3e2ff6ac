package models

// Category is a named tag posts may be filed under.
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`
	Slug string `gorm:"size:120;uniqueIndex;not null" json:"slug"`

	// PostsCount is not persisted; computed at query time
	PostsCount int64 `gorm:"->;-:migration" json:"posts_count"`
}

// TableName specifies the table name for GORM
func (Category) TableName() string {
	return "categories"
}
