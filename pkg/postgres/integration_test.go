//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Run with: DISPATCH_POSTGRES_URL=postgres://... go test -tags integration ./pkg/postgres/
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DISPATCH_POSTGRES_URL")
	if url == "" {
		t.Skip("DISPATCH_POSTGRES_URL not set")
	}

	ctx := context.Background()
	d, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	_, err = d.RunMigrations(ctx)
	require.NoError(t, err)
	_, err = d.pool.Exec(ctx, `TRUNCATE assignments, requests, id_sequences, availability_entries, riders`)
	require.NoError(t, err)
	return d
}

var integrationDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func insertTestRequest(t *testing.T, d *DB, id string) model.Request {
	t.Helper()
	req := model.Request{
		ID:           id,
		EventDate:    integrationDay,
		Window:       model.MustWindow("09:00", "12:00"),
		RidersNeeded: 2,
		Status:       model.RequestNew,
	}
	require.NoError(t, d.InsertRequest(context.Background(), req))
	return req
}

func newAssignment(id, requestID, riderID string) model.Assignment {
	return model.Assignment{
		ID:          id,
		RequestID:   requestID,
		RiderID:     riderID,
		RiderName:   riderID,
		EventDate:   integrationDay,
		Window:      model.MustWindow("09:00", "12:00"),
		Status:      model.AssignmentAssigned,
		CreatedDate: integrationDay,
	}
}

func TestApplyChangeSet_WritesAssignmentsAndRequest(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertTestRequest(t, d, "A-01-24")

	err := d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 1,
		Create:          []model.Assignment{newAssignment("ASG-0001", "A-01-24", "alice")},
		Status:          model.RequestUnassigned,
		RidersAssigned:  "alice",
	})
	require.NoError(t, err)

	req, err := d.GetRequest(ctx, "A-01-24")
	require.NoError(t, err)
	assert.Equal(t, int64(2), req.Version)
	assert.Equal(t, model.RequestUnassigned, req.Status)
	assert.Equal(t, "alice", req.RidersAssigned)

	created, err := d.GetAssignmentsForRequest(ctx, "A-01-24")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.MustWindow("09:00", "12:00"), created[0].Window)

	// A cancelled row no longer counts against the partial index, so the rider can be re-added
	err = d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 2,
		Update:          []model.AssignmentStatusChange{{AssignmentID: "ASG-0001", Status: model.AssignmentCancelled}},
		Status:          model.RequestUnassigned,
	})
	require.NoError(t, err)
	err = d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 3,
		Create:          []model.Assignment{newAssignment("ASG-0002", "A-01-24", "alice")},
		Status:          model.RequestUnassigned,
		RidersAssigned:  "alice",
	})
	require.NoError(t, err)
}

func TestApplyChangeSet_StaleVersion(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertTestRequest(t, d, "A-01-24")

	changes := func(id string) model.ChangeSet {
		return model.ChangeSet{
			RequestID:       "A-01-24",
			ExpectedVersion: 1,
			Create:          []model.Assignment{newAssignment(id, "A-01-24", id)},
			Status:          model.RequestUnassigned,
		}
	}

	// Two writers read version 1; the row lock lets exactly one through
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range []string{"ASG-0001", "ASG-0002"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := d.ApplyChangeSet(ctx, changes(id))
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}(id)
	}
	wg.Wait()

	var ok, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrConcurrentModification):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicted)

	all, err := d.GetAssignmentsForRequest(ctx, "A-01-24")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApplyChangeSet_DuplicateIDRollsBack(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertTestRequest(t, d, "A-01-24")
	insertTestRequest(t, d, "A-02-24")

	require.NoError(t, d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 1,
		Create:          []model.Assignment{newAssignment("ASG-0001", "A-01-24", "alice")},
		Status:          model.RequestUnassigned,
	}))

	// ASG-0001 belongs to another request, so only the primary key catches it
	err := d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-02-24",
		ExpectedVersion: 1,
		Create: []model.Assignment{
			newAssignment("ASG-0002", "A-02-24", "bob"),
			newAssignment("ASG-0001", "A-02-24", "carol"),
		},
		Status: model.RequestUnassigned,
	})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	assert.Equal(t, "ID", verr.Field)

	req, err := d.GetRequest(ctx, "A-02-24")
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.Version, "request row untouched")
	assert.Equal(t, model.RequestNew, req.Status)

	none, err := d.GetAssignmentsForRequest(ctx, "A-02-24")
	require.NoError(t, err)
	assert.Empty(t, none, "earlier inserts in the batch are rolled back")
}

func TestNext_SeedsAssignmentCounterOnce(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertTestRequest(t, d, "A-01-24")

	require.NoError(t, d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 1,
		Create:          []model.Assignment{newAssignment("ASG-0041", "A-01-24", "alice")},
		Status:          model.RequestUnassigned,
	}))

	n, err := d.Next(ctx, "assignment")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	// Rows written after seeding are not rescanned
	require.NoError(t, d.ApplyChangeSet(ctx, model.ChangeSet{
		RequestID:       "A-01-24",
		ExpectedVersion: 2,
		Create:          []model.Assignment{newAssignment("ASG-0100", "A-01-24", "bob")},
		Status:          model.RequestUnassigned,
	}))
	n, err = d.Next(ctx, "assignment")
	require.NoError(t, err)
	assert.Equal(t, int64(43), n)

	// A second process seeds again but never lowers the counter
	other := &DB{pool: d.pool}
	n, err = other.Next(ctx, "assignment")
	require.NoError(t, err)
	assert.Equal(t, int64(101), n)

	first, err := d.Next(ctx, "request:A-24")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
}
