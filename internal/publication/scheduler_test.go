package publication

import (
	"testing"
	"time"

	"quill/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedScheduler() *Scheduler {
	return NewScheduler(DefaultGrace, func() time.Time { return fixedNow })
}

func ptr(t time.Time) *time.Time { return &t }

func TestScheduler_Resolve(t *testing.T) {
	t.Parallel()

	future := fixedNow.Add(time.Hour)
	existing := fixedNow.Add(-48 * time.Hour)

	tests := []struct {
		name            string
		in              Input
		wantPublished   bool
		wantPublishedAt *time.Time
		wantVisibility  models.Visibility
	}{
		{
			name:            "public without schedule publishes now",
			in:              Input{Visibility: models.VisibilityPublic},
			wantPublished:   true,
			wantPublishedAt: ptr(fixedNow),
			wantVisibility:  models.VisibilityPublic,
		},
		{
			name:            "followers with future schedule",
			in:              Input{Visibility: models.VisibilityFollowers, ScheduledAt: &future},
			wantPublished:   true,
			wantPublishedAt: &future,
			wantVisibility:  models.VisibilityFollowers,
		},
		{
			name:            "re-save keeps existing timestamp",
			in:              Input{Visibility: models.VisibilityPublic, ExistingPublishedAt: &existing},
			wantPublished:   true,
			wantPublishedAt: &existing,
			wantVisibility:  models.VisibilityPublic,
		},
		{
			name:            "new schedule replaces existing timestamp",
			in:              Input{Visibility: models.VisibilityPublic, ScheduledAt: &future, ExistingPublishedAt: &existing},
			wantPublished:   true,
			wantPublishedAt: &future,
			wantVisibility:  models.VisibilityPublic,
		},
		{
			name:           "private ignores schedule",
			in:             Input{Visibility: models.VisibilityPrivate, ScheduledAt: &future},
			wantPublished:  false,
			wantVisibility: models.VisibilityPrivate,
		},
		{
			name:           "private clears existing timestamp",
			in:             Input{Visibility: models.VisibilityPrivate, ExistingPublishedAt: &existing},
			wantPublished:  false,
			wantVisibility: models.VisibilityPrivate,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := fixedScheduler().Resolve(tt.in)

			assert.Equal(t, tt.wantPublished, got.IsPublished)
			assert.Equal(t, tt.wantVisibility, got.Visibility)
			if tt.wantPublishedAt == nil {
				assert.Nil(t, got.PublishedAt)
			} else {
				require.NotNil(t, got.PublishedAt)
				assert.True(t, tt.wantPublishedAt.Equal(*got.PublishedAt))
			}
		})
	}
}

func TestScheduler_Validate(t *testing.T) {
	t.Parallel()

	s := fixedScheduler()

	assert.NoError(t, s.Validate(nil))
	assert.NoError(t, s.Validate(ptr(fixedNow.Add(time.Minute))))
	assert.NoError(t, s.Validate(ptr(fixedNow.Add(-3*time.Second))), "within grace window")

	err := s.Validate(ptr(fixedNow.Add(-10 * time.Second)))
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestScheduler_PlanTreatsEchoedScheduleAsUnchanged(t *testing.T) {
	t.Parallel()

	published := fixedNow.Add(-30 * 24 * time.Hour)
	state, err := fixedScheduler().Plan(Input{
		Visibility:          models.VisibilityPublic,
		ScheduledAt:         ptr(published),
		ExistingPublishedAt: &published,
	})

	require.NoError(t, err)
	require.NotNil(t, state.PublishedAt)
	assert.True(t, published.Equal(*state.PublishedAt))
}

func TestScheduler_PlanKeepsStoredTimeForMinuteEcho(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored time.Time
	}{
		{"live", fixedNow.Add(-2*time.Hour + 45*time.Second + 759*time.Millisecond)},
		{"scheduled", fixedNow.Add(3*time.Hour + 12*time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := tt.stored
			state, err := fixedScheduler().Plan(Input{
				Visibility:          models.VisibilityPublic,
				ScheduledAt:         ptr(stored.Truncate(time.Minute)),
				ExistingPublishedAt: &stored,
			})

			require.NoError(t, err)
			require.NotNil(t, state.PublishedAt)
			assert.True(t, stored.Equal(*state.PublishedAt), "seconds survive the re-save")
		})
	}
}

func TestScheduler_PlanRejectsPastScheduleBeforeResolving(t *testing.T) {
	t.Parallel()

	_, err := fixedScheduler().Plan(Input{
		Visibility:  models.VisibilityPublic,
		ScheduledAt: ptr(fixedNow.Add(-time.Hour)),
	})

	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		post *models.Post
		want models.PublicationStatus
	}{
		{"private draft", &models.Post{Visibility: models.VisibilityPrivate}, models.StatusDraft},
		{"published without timestamp", &models.Post{IsPublished: true, Visibility: models.VisibilityPublic}, models.StatusDraft},
		{"scheduled", &models.Post{IsPublished: true, PublishedAt: &future, Visibility: models.VisibilityFollowers}, models.StatusScheduled},
		{"live", &models.Post{IsPublished: true, PublishedAt: &past, Visibility: models.VisibilityPublic}, models.StatusLive},
		{"live exactly now", &models.Post{IsPublished: true, PublishedAt: &now, Visibility: models.VisibilityPublic}, models.StatusLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.post, now))
		})
	}

	scheduled := &models.Post{IsPublished: true, PublishedAt: &future, Visibility: models.VisibilityPublic}
	assert.Equal(t, models.StatusLive, Classify(scheduled, future.Add(time.Second)), "scheduled posts go live by the clock")
}
