package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"Monday", time.Monday, false},
		{"sat", time.Saturday, false},
		{" SUNDAY ", time.Sunday, false},
		{"Mo", 0, true},
		{"Funday", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeekday(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAvailability(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t, model.Rider{ID: "alice", Name: "Alice", Status: model.RiderActive})

	t.Run("stores a weekly entry", func(t *testing.T) {
		entry, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
			RiderID:   "alice",
			Weekday:   "Monday",
			StartDate: "2024-01-01",
			Start:     "08:00",
			End:       "18:00",
		}, intakeTime)
		require.NoError(t, err)

		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, model.KindAvailable, entry.Kind)
		require.NotNil(t, entry.Recurrence)
		assert.Equal(t, time.Monday, entry.Recurrence.Weekday)
	})

	t.Run("same key replaces the earlier entry", func(t *testing.T) {
		input := NewAvailability{RiderID: "alice", Date: "2024-01-20", Start: "10:00", End: "12:00"}
		first, err := AddAvailability(ctx, store, zap.NewNop(), input, intakeTime)
		require.NoError(t, err)

		input.Notes = "updated"
		second, err := AddAvailability(ctx, store, zap.NewNop(), input, intakeTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		entries, err := store.GetAvailabilityEntries(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("unknown rider", func(t *testing.T) {
		_, err := AddAvailability(ctx, store, zap.NewNop(),
			NewAvailability{RiderID: "nobody", Date: "2024-01-20", Start: "10:00", End: "12:00"}, intakeTime)
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("date and recurrence together", func(t *testing.T) {
		_, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
			RiderID: "alice", Date: "2024-01-20", Weekday: "sat", StartDate: "2024-01-06", Start: "10:00", End: "12:00",
		}, intakeTime)
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "date", verr.Field)
	})

	t.Run("bad kind", func(t *testing.T) {
		_, err := AddAvailability(ctx, store, zap.NewNop(),
			NewAvailability{RiderID: "alice", Date: "2024-01-20", Start: "10:00", End: "12:00", Kind: "maybe"}, intakeTime)
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "kind", verr.Field)
	})
}

func TestShowAvailability(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t, model.Rider{ID: "alice", Name: "Alice", Status: model.RiderActive})
	_, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
		RiderID: "alice", Weekday: "mon", StartDate: "2024-01-01", Start: "08:00", End: "18:00",
	}, intakeTime)
	require.NoError(t, err)
	_, err = AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
		RiderID: "alice", Date: "2024-01-15", Start: "12:00", End: "13:00", Kind: "Unavailable",
	}, intakeTime)
	require.NoError(t, err)

	resolver := availability.NewResolver(store, zap.NewNop())
	days, err := ShowAvailability(ctx, resolver, "alice",
		time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, days, 3)
	assert.Equal(t, DayAvailability{Date: "2024-01-14", Weekday: "Sunday", Windows: []string{}}, days[0])
	assert.Equal(t, "Monday", days[1].Weekday)
	assert.Equal(t, []string{"[08:00,12:00)", "[13:00,18:00)"}, days[1].Windows)
	assert.Empty(t, days[2].Windows)

	_, err = ShowAvailability(ctx, resolver, "alice",
		time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	assert.True(t, model.IsClientError(err))
}

func TestCheckRider(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t, model.Rider{ID: "alice", Name: "Alice", Status: model.RiderActive})
	_, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
		RiderID: "alice", Date: "2024-01-15", Start: "08:00", End: "18:00",
	}, intakeTime)
	require.NoError(t, err)

	require.NoError(t, store.InsertRequest(ctx, escortRequest))
	require.NoError(t, store.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       escortRequest.ID,
		ExpectedVersion: 1,
		Create:          []model.Assignment{assignmentFor("ASG-0001", "alice", "Alice")},
		Status:          model.RequestUnassigned,
		RidersAssigned:  "Alice",
	}))

	resolver := availability.NewResolver(store, zap.NewNop())
	detector := conflicts.NewDetector(store)

	report, err := CheckRider(ctx, resolver, detector, "alice", escortRequest.EventDate, model.MustWindow("11:00", "14:00"))
	require.NoError(t, err)
	assert.True(t, report.Available)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "ASG-0001", report.Conflicts[0].ID)

	report, err = CheckRider(ctx, resolver, detector, "alice", escortRequest.EventDate, model.MustWindow("12:00", "19:00"))
	require.NoError(t, err)
	assert.False(t, report.Available)
	assert.NotEmpty(t, report.Reason)
	assert.Empty(t, report.Conflicts)
}
