package seed

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset sizes a seeding run.
type Preset struct {
	Name            string  `yaml:"name"`
	Users           int     `yaml:"users"`
	PostsPerUser    int     `yaml:"posts_per_user"`
	CommentsPerPost int     `yaml:"comments_per_post"`
	FollowRatio     float64 `yaml:"follow_ratio"`
	VoteRatio       float64 `yaml:"vote_ratio"`
	// Seed makes runs reproducible; zero picks a random one.
	Seed int64 `yaml:"seed"`
}

// DefaultPreset is used when no preset file is given.
func DefaultPreset() Preset {
	return Preset{
		Name:            "default",
		Users:           20,
		PostsPerUser:    5,
		CommentsPerPost: 4,
		FollowRatio:     0.3,
		VoteRatio:       0.4,
	}
}

// LoadPreset reads a YAML preset. Keys missing from the file keep their
// default values.
func LoadPreset(path string) (Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("read preset: %w", err)
	}
	preset := DefaultPreset()
	if err := yaml.Unmarshal(raw, &preset); err != nil {
		return Preset{}, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if err := preset.Validate(); err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", path, err)
	}
	return preset, nil
}

// Validate checks the preset describes a runnable seed.
func (p Preset) Validate() error {
	if p.Users < 1 {
		return errors.New("users must be at least 1")
	}
	if p.PostsPerUser < 0 || p.CommentsPerPost < 0 {
		return errors.New("posts_per_user and comments_per_post cannot be negative")
	}
	if p.FollowRatio < 0 || p.FollowRatio > 1 || p.VoteRatio < 0 || p.VoteRatio > 1 {
		return errors.New("follow_ratio and vote_ratio must be between 0 and 1")
	}
	return nil
}
