package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

type mockStore struct {
	requests    []model.Request
	assignments []model.Assignment
	err         error
}

func (m *mockStore) ListRequests(ctx context.Context) ([]model.Request, error) {
	return m.requests, m.err
}

func (m *mockStore) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	return m.assignments, nil
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func asg(id, rider, name string, d int, start, end string, status model.AssignmentStatus) model.Assignment {
	return model.Assignment{ID: id, RiderID: rider, RiderName: name, EventDate: day(d), Window: model.MustWindow(start, end), Status: status}
}

func TestBuild(t *testing.T) {
	store := &mockStore{
		requests: []model.Request{
			{ID: "A-01-24", EventDate: day(15), Status: model.RequestCompleted},
			{ID: "A-02-24", EventDate: day(16), Status: model.RequestUnassigned},
			{ID: "A-03-24", EventDate: day(20), Status: model.RequestAssigned},
			{ID: "A-04-24", EventDate: day(31), Status: model.RequestUnassigned},
		},
		assignments: []model.Assignment{
			asg("ASG-0001", "alice", "Alice", 15, "09:00", "11:30", model.AssignmentCompleted),
			asg("ASG-0002", "bob", "Bob", 15, "09:00", "11:30", model.AssignmentNoShow),
			asg("ASG-0003", "alice", "Alice", 16, "13:00", "13:20", model.AssignmentInProgress),
			asg("ASG-0004", "carol", "Carol", 20, "08:00", "09:00", model.AssignmentCompleted),
			asg("ASG-0005", "bob", "Bob", 20, "08:00", "09:00", model.AssignmentCancelled),
			asg("ASG-0006", "dave", "Dave", 31, "08:00", "18:00", model.AssignmentCompleted),
		},
	}

	report, err := Build(context.Background(), store, day(1), day(30))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Requests)
	assert.Equal(t, 1, report.RequestsByStatus[model.RequestCompleted])
	assert.Equal(t, []string{"A-02-24"}, report.UnderStaffed)
	assert.Equal(t, 2, report.AssignmentsByStatus[model.AssignmentCompleted])

	require.Len(t, report.Riders, 3)
	assert.Equal(t, "alice", report.Riders[0].RiderID)
	assert.Equal(t, "2.83", report.Riders[0].Hours.StringFixed(2), "2h30 + 20m")
	assert.Equal(t, 1, report.Riders[0].Completed)

	assert.Equal(t, "carol", report.Riders[1].RiderID)
	assert.Equal(t, "1.00", report.Riders[1].Hours.StringFixed(2))

	assert.Equal(t, "bob", report.Riders[2].RiderID)
	assert.True(t, report.Riders[2].Hours.IsZero())
	assert.Equal(t, 1, report.Riders[2].NoShows)
	assert.Equal(t, 1, report.Riders[2].Cancelled)
	assert.Equal(t, 2, report.Riders[2].Assignments)

	assert.Equal(t, "3.83", report.TotalHours.StringFixed(2))
}

func TestBuild_OpenRange(t *testing.T) {
	store := &mockStore{requests: []model.Request{
		{ID: "A-01-24", EventDate: day(1)},
		{ID: "A-02-24", EventDate: day(31)},
	}}
	report, err := Build(context.Background(), store, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Requests)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), &mockStore{}, day(10), day(1))
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = Build(context.Background(), &mockStore{err: errors.New("boom")}, time.Time{}, time.Time{})
	assert.Error(t, err)
}
