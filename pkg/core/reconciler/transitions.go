package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// TransitionRequest moves a request to Completed or Cancelled. These are the only writes of a
// terminal request status. With cascade the request's active assignments follow it.
func (r *Reconciler) TransitionRequest(ctx context.Context, requestID string, status model.RequestStatus, cascade bool) (*Result, error) {
	if !status.IsTerminal() {
		return nil, &model.ValidationError{
			Entity: "request", ID: requestID, Field: "Status",
			Reason: fmt.Sprintf("operators may only move a request to %s or %s, not %q", model.RequestCompleted, model.RequestCancelled, status),
		}
	}

	var result *Result
	err := r.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		return r.retry(ctx, requestID, func(ctx context.Context) error {
			res, err := r.transitionRequestOnce(ctx, requestID, status, cascade)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r.metrics.AddAssignmentChanges(0, len(result.Cancelled))
	r.logger.Info("Request transitioned",
		zap.String("request_id", requestID),
		zap.String("from", string(result.PreviousStatus)),
		zap.String("to", string(result.Status)),
		zap.Bool("cascade", cascade))
	return result, nil
}

func (r *Reconciler) transitionRequestOnce(ctx context.Context, requestID string, status model.RequestStatus, cascade bool) (*Result, error) {
	req, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RequestID:      req.ID,
		PreviousStatus: req.Status,
		Status:         status,
		RidersAssigned: req.RidersAssigned,
		Created:        []model.Assignment{},
		Cancelled:      []model.Assignment{},
	}

	if req.Status == status {
		return result, nil
	}
	if req.Status.IsTerminal() {
		return nil, &model.ValidationError{
			Entity: "request", ID: req.ID, Field: "Status",
			Reason: fmt.Sprintf("request is already %s", req.Status),
		}
	}

	changes := model.ChangeSet{
		RequestID:       req.ID,
		ExpectedVersion: req.Version,
		Status:          status,
		RidersAssigned:  req.RidersAssigned,
		UpdatedAt:       r.now(),
	}

	if cascade {
		existing, err := r.store.GetAssignmentsForRequest(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get assignments for request %s: %w", req.ID, err)
		}
		target := model.AssignmentCancelled
		if status == model.RequestCompleted {
			target = model.AssignmentCompleted
		}

		var remaining []model.Assignment
		for _, a := range existing {
			if !a.IsActive() || !a.Status.CanTransition(target) {
				remaining = append(remaining, a)
				continue
			}
			changes.Update = append(changes.Update, model.AssignmentStatusChange{AssignmentID: a.ID, Status: target})
			a.Status = target
			if target == model.AssignmentCancelled {
				result.Cancelled = append(result.Cancelled, a)
			} else {
				result.Updated = append(result.Updated, a)
			}
		}
		sortByID(result.Cancelled)
		sortByID(result.Updated)

		// Completed keeps the riders who did the escort on display
		if target == model.AssignmentCancelled {
			changes.RidersAssigned = RidersAssignedDisplay(remaining)
			result.RidersAssigned = changes.RidersAssigned
		}
	}

	if err := r.store.ApplyChangeSet(ctx, changes); err != nil {
		return nil, err
	}
	result.Applied = true
	return result, nil
}

// TransitionAssignment moves one assignment along its operational lifecycle. When the rider drops out
// (Cancelled or NoShow) the request's status and rider list are re-derived; completing an
// assignment leaves the request alone until an operator completes it.
func (r *Reconciler) TransitionAssignment(ctx context.Context, assignmentID string, status model.AssignmentStatus) (*Result, error) {
	if !status.IsValid() {
		return nil, &model.ValidationError{
			Entity: "assignment", ID: assignmentID, Field: "Status",
			Reason: fmt.Sprintf("unknown status %q", status),
		}
	}

	current, err := r.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = r.withRequestLock(ctx, current.RequestID, func(ctx context.Context) error {
		return r.retry(ctx, current.RequestID, func(ctx context.Context) error {
			res, err := r.transitionAssignmentOnce(ctx, assignmentID, status)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r.metrics.AddAssignmentChanges(0, len(result.Cancelled))
	r.logger.Info("Assignment transitioned",
		zap.String("assignment_id", assignmentID),
		zap.String("request_id", result.RequestID),
		zap.String("to", string(status)),
		zap.String("request_status", string(result.Status)))
	return result, nil
}

func (r *Reconciler) transitionAssignmentOnce(ctx context.Context, assignmentID string, status model.AssignmentStatus) (*Result, error) {
	assignment, err := r.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	req, err := r.store.GetRequest(ctx, assignment.RequestID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RequestID:      req.ID,
		PreviousStatus: req.Status,
		Status:         req.Status,
		RidersAssigned: req.RidersAssigned,
		Created:        []model.Assignment{},
		Cancelled:      []model.Assignment{},
	}

	if assignment.Status == status {
		return result, nil
	}
	if !assignment.Status.CanTransition(status) {
		return nil, &model.ValidationError{
			Entity: "assignment", ID: assignment.ID, Field: "Status",
			Reason: fmt.Sprintf("cannot move from %s to %s", assignment.Status, status),
		}
	}

	changes := model.ChangeSet{
		RequestID:       req.ID,
		ExpectedVersion: req.Version,
		Update:          []model.AssignmentStatusChange{{AssignmentID: assignment.ID, Status: status}},
		Status:          req.Status,
		RidersAssigned:  req.RidersAssigned,
		UpdatedAt:       r.now(),
	}

	updated := assignment
	updated.Status = status
	if status == model.AssignmentCancelled {
		result.Cancelled = append(result.Cancelled, updated)
	} else {
		result.Updated = append(result.Updated, updated)
	}

	if status == model.AssignmentCancelled || status == model.AssignmentNoShow {
		existing, err := r.store.GetAssignmentsForRequest(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get assignments for request %s: %w", req.ID, err)
		}
		remaining := make([]model.Assignment, 0, len(existing))
		for _, a := range existing {
			if a.ID == assignment.ID {
				a.Status = status
			}
			remaining = append(remaining, a)
		}
		active := 0
		for _, a := range remaining {
			if a.IsActive() {
				active++
			}
		}
		changes.Status = model.DeriveRequestStatus(req.Status, active, req.RidersNeeded)
		changes.RidersAssigned = RidersAssignedDisplay(remaining)
		result.Status = changes.Status
		result.RidersAssigned = changes.RidersAssigned
	}

	if err := r.store.ApplyChangeSet(ctx, changes); err != nil {
		return nil, err
	}
	result.Applied = true
	return result, nil
}
