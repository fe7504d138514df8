package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator/criteria"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/db/memstore"
)

// assignOther books a rider onto a separate request
func assignOther(t *testing.T, store *memstore.Store, assignmentID, requestID string, date time.Time, window model.Window, riderID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InsertRequest(ctx, model.Request{
		ID: requestID, EventDate: date, Window: window, RidersNeeded: 1, Status: model.RequestUnassigned,
	}))
	require.NoError(t, store.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       requestID,
		ExpectedVersion: 1,
		Create: []model.Assignment{{
			ID: assignmentID, RequestID: requestID, RiderID: riderID,
			EventDate: date, Window: window, Status: model.AssignmentAssigned,
		}},
		Status: model.RequestAssigned,
	}))
}

func TestSuggestRiders(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t,
		model.Rider{ID: "alice", Name: "Alice", Status: model.RiderActive},
		model.Rider{ID: "bob", Name: "Bob", Status: model.RiderActive},
		model.Rider{ID: "carol", Name: "Carol", Status: model.RiderInactive},
		model.Rider{ID: "dave", Name: "Dave", Status: model.RiderActive},
		model.Rider{ID: "eve", Name: "Eve", Status: model.RiderActive},
	)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		_, err := AddAvailability(ctx, store, zap.NewNop(), NewAvailability{
			RiderID: id, Date: "2024-01-15", Start: "08:00", End: "18:00",
		}, intakeTime)
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertRequest(ctx, escortRequest))

	assignOther(t, store, "ASG-0101", "B-01-24", escortRequest.EventDate, model.MustWindow("10:00", "11:00"), "bob")
	assignOther(t, store, "ASG-0102", "C-01-24", escortRequest.EventDate.AddDate(0, 0, -1), model.MustWindow("09:00", "12:00"), "dave")

	resolver := availability.NewResolver(store, zap.NewNop())

	request, outcome, err := SuggestRiders(ctx, store, resolver, criteria.Default(), zap.NewNop(), escortRequest.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, escortRequest.ID, request.ID)

	require.Len(t, outcome.Ranked, 2)
	assert.Equal(t, "alice", outcome.Ranked[0].Rider.ID)
	assert.Equal(t, "dave", outcome.Ranked[1].Rider.ID)
	assert.Greater(t, outcome.Ranked[0].Score, outcome.Ranked[1].Score)

	require.Len(t, outcome.Excluded, 3)
	assert.Equal(t, "bob", outcome.Excluded[0].Rider.ID)
	assert.Contains(t, outcome.Excluded[0].Excluded[0], "overlaps B-01-24")
	assert.Equal(t, "carol", outcome.Excluded[1].Rider.ID)
	assert.Equal(t, "eve", outcome.Excluded[2].Rider.ID)

	assert.Equal(t, 2, outcome.Needed)
	assert.Equal(t, 0, outcome.Shortfall)

	t.Run("limit", func(t *testing.T) {
		_, outcome, err := SuggestRiders(ctx, store, resolver, criteria.Default(), zap.NewNop(), escortRequest.ID, 1)
		require.NoError(t, err)
		require.Len(t, outcome.Ranked, 1)
		assert.Equal(t, 1, outcome.Shortfall)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, _, err := SuggestRiders(ctx, store, resolver, criteria.Default(), zap.NewNop(), "Z-01-24", 0)
		assert.True(t, model.IsNotFound(err))
	})
}

func TestSuggestRiders_TerminalRequest(t *testing.T) {
	ctx := context.Background()
	store := riderStore(t)
	cancelled := escortRequest
	cancelled.Status = model.RequestCancelled
	require.NoError(t, store.InsertRequest(ctx, cancelled))

	_, _, err := SuggestRiders(ctx, store, availability.NewResolver(store, zap.NewNop()), criteria.Default(), zap.NewNop(), cancelled.ID, 0)
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Field)
}
