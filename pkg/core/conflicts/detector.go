package conflicts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// AssignmentStore is the read side of the assignment store used for conflict checks
type AssignmentStore interface {
	GetAssignmentsForRider(ctx context.Context, riderID string, date time.Time) ([]model.Assignment, error)
}

// Detector finds double-bookings. It only reports; callers decide whether to block, warn or override.
type Detector struct {
	store AssignmentStore
}

func NewDetector(store AssignmentStore) *Detector {
	return &Detector{store: store}
}

// FindConflicts returns the rider's active assignments on date whose window overlaps window
// (half-open: touching boundaries are not a conflict). Results are ordered by start time then ID.
func (d *Detector) FindConflicts(ctx context.Context, riderID string, date time.Time, window model.Window) ([]model.Assignment, error) {
	return d.FindConflictsExcluding(ctx, riderID, date, window, "")
}

// FindConflictsExcluding is FindConflicts ignoring assignments that belong to excludeRequestID
func (d *Detector) FindConflictsExcluding(ctx context.Context, riderID string, date time.Time, window model.Window, excludeRequestID string) ([]model.Assignment, error) {
	assignments, err := d.store.GetAssignmentsForRider(ctx, riderID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments for rider %s: %w", riderID, err)
	}
	return Overlapping(assignments, riderID, date, window, excludeRequestID), nil
}

// Overlapping is the pure filter behind FindConflicts
func Overlapping(assignments []model.Assignment, riderID string, date time.Time, window model.Window, excludeRequestID string) []model.Assignment {
	conflicts := make([]model.Assignment, 0)
	for _, a := range assignments {
		if a.RiderID != riderID || !a.IsActive() {
			continue
		}
		if excludeRequestID != "" && a.RequestID == excludeRequestID {
			continue
		}
		if !model.SameDate(a.EventDate, date) {
			continue
		}
		if a.Window.Overlaps(window) {
			conflicts = append(conflicts, a)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Window.Start != conflicts[j].Window.Start {
			return conflicts[i].Window.Start < conflicts[j].Window.Start
		}
		return conflicts[i].ID < conflicts[j].ID
	})
	return conflicts
}

// Describe renders conflicts for notes and CLI output
func Describe(conflicts []model.Assignment) string {
	s := ""
	for i, c := range conflicts {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s on %s %s", c.RequestID, model.FormatDate(c.EventDate), c.Window)
	}
	return s
}
