package models

import (
	"fmt"
	"time"
)

// VoteType is the direction of a vote.
type VoteType int

const (
	// VoteLike counts +1.
	VoteLike VoteType = 1
	// VoteDislike counts -1.
	VoteDislike VoteType = -1
)

// ParseVoteType accepts "like" or "dislike".
func ParseVoteType(raw string) (VoteType, error) {
	switch raw {
	case "like":
		return VoteLike, nil
	case "dislike":
		return VoteDislike, nil
	default:
		return 0, NewValidationError("vote type must be like or dislike")
	}
}

func (v VoteType) String() string {
	switch v {
	case VoteLike:
		return "like"
	case VoteDislike:
		return "dislike"
	default:
		return fmt.Sprintf("VoteType(%d)", int(v))
	}
}

// TargetKind names a votable entity.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// VoteTarget identifies the entity a vote applies to.
type VoteTarget struct {
	Kind TargetKind `json:"kind"`
	ID   uint       `json:"id"`
}

// PostTarget returns the target for a post.
func PostTarget(id uint) VoteTarget { return VoteTarget{Kind: TargetPost, ID: id} }

// CommentTarget returns the target for a comment.
func CommentTarget(id uint) VoteTarget { return VoteTarget{Kind: TargetComment, ID: id} }

func (t VoteTarget) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Vote records one user's vote on one target. The unique index guarantees
// at most one row per (user, target).
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_votes_user_target" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TargetType TargetKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_type"`
	TargetID   uint       `gorm:"not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_id"`
	VoteType   VoteType   `gorm:"not null" json:"vote_type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Target returns the typed target of the vote.
func (v *Vote) Target() VoteTarget {
	return VoteTarget{Kind: v.TargetType, ID: v.TargetID}
}

// VoteCounts is the live aggregate for one target.
type VoteCounts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}
