package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func seedRequest(t *testing.T, s *Store) model.Request {
	t.Helper()
	req := model.Request{
		ID:           "A-01-24",
		EventDate:    day,
		Window:       model.MustWindow("09:00", "12:00"),
		RidersNeeded: 2,
		Status:       model.RequestNew,
	}
	require.NoError(t, s.InsertRequest(context.Background(), req))
	stored, err := s.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	return stored
}

func newAssignment(id, rider string) model.Assignment {
	return model.Assignment{
		ID:        id,
		RequestID: "A-01-24",
		RiderID:   rider,
		RiderName: rider,
		EventDate: day,
		Window:    model.MustWindow("09:00", "12:00"),
		Status:    model.AssignmentAssigned,
	}
}

func TestApplyChangeSet_CreatesAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)
	assert.Equal(t, int64(1), req.Version)

	err := s.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       req.ID,
		ExpectedVersion: 1,
		Create:          []model.Assignment{newAssignment("ASG-0001", "alice")},
		Status:          model.RequestUnassigned,
		RidersAssigned:  "alice",
	})
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, model.RequestUnassigned, got.Status)
	assert.Equal(t, "alice", got.RidersAssigned)

	forRider, err := s.GetAssignmentsForRider(ctx, "alice", day)
	require.NoError(t, err)
	assert.Len(t, forRider, 1)
}

func TestApplyChangeSet_StaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)
	s.BumpVersion(req.ID)

	err := s.ApplyChangeSet(ctx, model.ChangeSet{RequestID: req.ID, ExpectedVersion: 1, Status: model.RequestUnassigned})
	assert.True(t, errors.Is(err, model.ErrConcurrentModification))
}

func TestApplyChangeSet_RejectsSecondActiveAssignmentAndWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)

	err := s.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       req.ID,
		ExpectedVersion: 1,
		Create:          []model.Assignment{newAssignment("ASG-0001", "alice"), newAssignment("ASG-0002", "alice")},
		Status:          model.RequestUnassigned,
	})
	assert.True(t, errors.Is(err, model.ErrValidation))

	all, err := s.ListAssignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	got, _ := s.GetRequest(ctx, req.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestApplyChangeSet_CancelThenRecreateSameRider(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)

	require.NoError(t, s.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID: req.ID, ExpectedVersion: 1,
		Create: []model.Assignment{newAssignment("ASG-0001", "alice")},
		Status: model.RequestUnassigned,
	}))
	require.NoError(t, s.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID: req.ID, ExpectedVersion: 2,
		Update: []model.AssignmentStatusChange{{AssignmentID: "ASG-0001", Status: model.AssignmentCancelled}},
		Create: []model.Assignment{newAssignment("ASG-0002", "alice")},
		Status: model.RequestUnassigned,
	}))

	first, err := s.GetAssignment(ctx, "ASG-0001")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentCancelled, first.Status)

	_, err = s.GetAssignment(ctx, "ASG-0404")
	assert.True(t, model.IsNotFound(err))
}

func TestApplyHook(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)

	s.SetApplyHook(func(ctx context.Context, changes model.ChangeSet) error {
		s.BumpVersion(changes.RequestID)
		return nil
	})

	err := s.ApplyChangeSet(ctx, model.ChangeSet{RequestID: req.ID, ExpectedVersion: 1, Status: model.RequestUnassigned})
	assert.True(t, model.IsRetryable(err))
}

func TestPutAvailabilityEntry_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := New()

	entry := model.AvailabilityEntry{RiderID: "alice", Date: day, Window: model.MustWindow("09:00", "12:00"), Kind: model.KindAvailable}
	first, err := s.PutAvailabilityEntry(ctx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	entry.Kind = model.KindUnavailable
	entry.Notes = "dentist"
	second, err := s.PutAvailabilityEntry(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	entries, err := s.GetAvailabilityEntries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.KindUnavailable, entries[0].Kind)

	_, err = s.PutAvailabilityEntry(ctx, model.AvailabilityEntry{RiderID: "alice", Date: day, Window: model.MustWindow("12:00", "09:00"), Kind: model.KindAvailable})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestNext_ContinuesFromStoredAssignments(t *testing.T) {
	ctx := context.Background()
	s := New()
	req := seedRequest(t, s)
	require.NoError(t, s.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID: req.ID, ExpectedVersion: 1,
		Create: []model.Assignment{newAssignment("ASG-0041", "alice")},
		Status: model.RequestUnassigned,
	}))

	n, err := s.Next(ctx, ids.AssignmentScope)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = s.Next(ctx, ids.AssignmentScope)
	require.NoError(t, err)
	assert.Equal(t, int64(43), n)
}

func TestRiders(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertRiders(ctx, []model.Rider{{ID: "r1", Name: "Alice"}}))
	r, err := s.GetRider(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", r.Name)

	_, err = s.GetRider(ctx, "nobody")
	assert.True(t, model.IsNotFound(err))

	err = s.UpsertRiders(ctx, []model.Rider{{ID: "r2"}})
	assert.True(t, errors.Is(err, model.ErrValidation))
}
