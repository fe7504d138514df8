package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/clients/formsclient"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

type fakeFormSource struct {
	responses []formsclient.AvailabilityResponse
	err       error
}

func (f *fakeFormSource) GetAvailabilityResponses(ctx context.Context, formID string, since time.Time) ([]formsclient.AvailabilityResponse, error) {
	return f.responses, f.err
}

var eventJan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestImportFormAvailability(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t,
		model.Rider{ID: "alice", Name: "Alice", Email: "Alice@Example.com", Status: model.RiderActive},
		model.Rider{ID: "bob", Name: "Bob", Email: "bob@example.com", Status: model.RiderActive},
	)
	_, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
		RiderID: "alice", Weekday: "mon", StartDate: "2024-01-01", Start: "08:00", End: "18:00",
	}, intakeTime)
	require.NoError(t, err)

	source := &fakeFormSource{responses: []formsclient.AvailabilityResponse{
		{Email: "alice@example.com", UnavailableDates: []time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}},
		{Email: "stranger@example.com", UnavailableDates: []time.Time{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}},
		{Email: "bob@example.com"},
	}}

	result, err := ImportFormAvailability(ctx, source, store, zap.NewNop(), "form-1", time.Time{}, intakeTime)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Responses)
	assert.Equal(t, 1, result.Entries)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"stranger@example.com"}, result.Unmatched)

	resolver := availability.NewResolver(store, zap.NewNop())
	ok, _ := resolver.Check(ctx, "alice", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), model.MustWindow("09:00", "10:00"))
	assert.False(t, ok, "form date blocks the weekly availability")
	ok, _ = resolver.Check(ctx, "alice", time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), model.MustWindow("09:00", "10:00"))
	assert.True(t, ok)

	t.Run("re-import is idempotent", func(t *testing.T) {
		_, err := ImportFormAvailability(ctx, source, store, zap.NewNop(), "form-1", time.Time{}, intakeTime)
		require.NoError(t, err)
		entries, err := store.GetAvailabilityEntries(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("unticked date is reported as stale", func(t *testing.T) {
		jan22 := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
		first := &fakeFormSource{responses: []formsclient.AvailabilityResponse{
			{Email: "bob@example.com", UnavailableDates: []time.Time{eventJan15, jan22}},
		}}
		_, err := ImportFormAvailability(ctx, first, store, zap.NewNop(), "form-2", time.Time{}, intakeTime)
		require.NoError(t, err)

		later := &fakeFormSource{responses: []formsclient.AvailabilityResponse{
			{Email: "bob@example.com", UnavailableDates: []time.Time{eventJan15}},
		}}
		result, err := ImportFormAvailability(ctx, later, store, zap.NewNop(), "form-2", time.Time{}, intakeTime)
		require.NoError(t, err)
		assert.Equal(t, []StaleFormDate{{RiderID: "bob", Date: jan22}}, result.Stale)

		// Another form's entries are never reported
		other, err := ImportFormAvailability(ctx, &fakeFormSource{responses: []formsclient.AvailabilityResponse{
			{Email: "bob@example.com"},
		}}, store, zap.NewNop(), "form-3", time.Time{}, intakeTime)
		require.NoError(t, err)
		assert.Empty(t, other.Stale)
	})

	t.Run("source error", func(t *testing.T) {
		_, err := ImportFormAvailability(ctx, &fakeFormSource{err: errors.New("forbidden")}, store, zap.NewNop(), "form-1", time.Time{}, intakeTime)
		assert.ErrorContains(t, err, "forbidden")
	})
}
