// Package publication resolves the publication state of a post at save time
// and assigns its permanent slug.
package publication

import (
	"time"

	"quill/internal/models"
)

// DefaultGrace absorbs submission latency for schedules set to "now".
const DefaultGrace = 5 * time.Second

// Input is what the author submitted plus the stored timestamp, if any.
type Input struct {
	Visibility          models.Visibility
	ScheduledAt         *time.Time
	ExistingPublishedAt *time.Time
}

// State is the normalized publication triple written to the post.
type State struct {
	IsPublished bool
	PublishedAt *time.Time
	Visibility  models.Visibility
}

// Scheduler turns author input into a publication State.
type Scheduler struct {
	Grace time.Duration
	Now   func() time.Time
}

// NewScheduler creates a Scheduler. A nil clock uses the current UTC time.
func NewScheduler(grace time.Duration, now func() time.Time) *Scheduler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{Grace: grace, Now: now}
}

// Plan validates the input and resolves it in one step.
func (s *Scheduler) Plan(in Input) (State, error) {
	in = unchangedSchedule(in)
	if err := s.Validate(in.ScheduledAt); err != nil {
		return State{}, err
	}
	return s.Resolve(in), nil
}

// Validate rejects schedules earlier than now minus the grace window.
func (s *Scheduler) Validate(scheduledAt *time.Time) error {
	if scheduledAt == nil {
		return nil
	}
	if scheduledAt.Before(s.Now().Add(-s.Grace)) {
		return models.NewValidationError("scheduled time cannot be in the past")
	}
	return nil
}

// Resolve computes the publication state. Private always yields an
// unpublished post without a timestamp. Otherwise the post is published at
// the schedule, else at its existing timestamp, else now.
func (s *Scheduler) Resolve(in Input) State {
	if in.Visibility == models.VisibilityPrivate {
		return State{IsPublished: false, PublishedAt: nil, Visibility: models.VisibilityPrivate}
	}

	var at time.Time
	switch {
	case in.ScheduledAt != nil:
		at = in.ScheduledAt.UTC()
	case in.ExistingPublishedAt != nil:
		at = in.ExistingPublishedAt.UTC()
	default:
		at = s.Now().UTC()
	}

	return State{IsPublished: true, PublishedAt: &at, Visibility: in.Visibility}
}

// unchangedSchedule drops a schedule that merely echoes the stored timestamp,
// so re-saving a post keeps it. Form inputs carry minute precision, so an
// echo of the stored time cut to the minute counts too.
func unchangedSchedule(in Input) Input {
	if in.ScheduledAt == nil || in.ExistingPublishedAt == nil {
		return in
	}
	stored := *in.ExistingPublishedAt
	if in.ScheduledAt.Equal(stored) || in.ScheduledAt.Equal(stored.Truncate(time.Minute)) {
		in.ScheduledAt = nil
	}
	return in
}

// Classify is the read-time publication status of post at now. Scheduled
// posts become live by the clock alone.
func Classify(post *models.Post, now time.Time) models.PublicationStatus {
	return post.StatusAt(now)
}
