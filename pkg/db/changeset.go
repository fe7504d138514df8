package db

import (
	"fmt"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// CheckChangeSet validates a change set against the current request and its assignments.
// It enforces the version check and the at-most-one-active-assignment rule, and returns the
// assignments as they will be after the change set is applied.
func CheckChangeSet(request model.Request, current []model.Assignment, changes model.ChangeSet) ([]model.Assignment, error) {
	if request.Version != changes.ExpectedVersion {
		return nil, fmt.Errorf("request %s is at version %d, expected %d: %w",
			request.ID, request.Version, changes.ExpectedVersion, model.ErrConcurrentModification)
	}
	if !changes.Status.IsValid() {
		return nil, &model.ValidationError{Entity: "request", ID: request.ID, Field: "Status",
			Reason: fmt.Sprintf("unknown status %q", changes.Status)}
	}
	if request.Status.IsTerminal() && changes.Status != request.Status {
		return nil, &model.ValidationError{Entity: "request", ID: request.ID, Field: "Status",
			Reason: fmt.Sprintf("request is %s and cannot move to %s", request.Status, changes.Status)}
	}

	after := make([]model.Assignment, len(current))
	copy(after, current)
	index := make(map[string]int, len(after))
	for i, a := range after {
		index[a.ID] = i
	}

	for _, u := range changes.Update {
		i, ok := index[u.AssignmentID]
		if !ok {
			return nil, &model.NotFoundError{Entity: "assignment", ID: u.AssignmentID}
		}
		if !after[i].Status.CanTransition(u.Status) {
			return nil, &model.ValidationError{Entity: "assignment", ID: u.AssignmentID, Field: "Status",
				Reason: fmt.Sprintf("cannot move from %s to %s", after[i].Status, u.Status)}
		}
		after[i].Status = u.Status
	}

	activeRiders := make(map[string]string)
	for _, a := range after {
		if a.IsActive() {
			activeRiders[a.RiderID] = a.ID
		}
	}

	for _, c := range changes.Create {
		if _, exists := index[c.ID]; exists {
			return nil, &model.ValidationError{Entity: "assignment", ID: c.ID, Field: "ID", Reason: "assignment ID already in use"}
		}
		if c.RequestID != request.ID {
			return nil, &model.ValidationError{Entity: "assignment", ID: c.ID, Field: "RequestID",
				Reason: fmt.Sprintf("belongs to %s, not %s", c.RequestID, request.ID)}
		}
		if c.IsActive() {
			if other, ok := activeRiders[c.RiderID]; ok {
				return nil, &model.ValidationError{Entity: "assignment", ID: c.ID, Field: "RiderID",
					Reason: fmt.Sprintf("rider %s already has active assignment %s on %s", c.RiderID, other, request.ID)}
			}
			activeRiders[c.RiderID] = c.ID
		}
		index[c.ID] = len(after)
		after = append(after, c)
	}

	return after, nil
}
