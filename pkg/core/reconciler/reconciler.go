// Package reconciler diffs a desired rider set against a request's current assignments and applies
// the creates, cancels and status change as one atomic change set.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/lock"
	"github.com/jakechorley/escort-dispatch/pkg/metrics"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 50 * time.Millisecond
)

// Store is the part of the row-store the reconciler reads and writes
type Store interface {
	GetRequest(ctx context.Context, requestID string) (model.Request, error)
	GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error)
	GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error)
	ApplyChangeSet(ctx context.Context, changes model.ChangeSet) error
}

// RiderDirectory looks riders up by ID. It returns a NotFoundError for unknown riders.
type RiderDirectory interface {
	GetRider(ctx context.Context, riderID string) (model.Rider, error)
}

// AvailabilityChecker is satisfied by *availability.Resolver
type AvailabilityChecker interface {
	Check(ctx context.Context, riderID string, date time.Time, window model.Window) (bool, string)
}

// ConflictFinder is satisfied by *conflicts.Detector
type ConflictFinder interface {
	FindConflictsExcluding(ctx context.Context, riderID string, date time.Time, window model.Window, excludeRequestID string) ([]model.Assignment, error)
}

// IDGenerator is satisfied by *ids.AssignmentIDs
type IDGenerator interface {
	Next(ctx context.Context) (string, error)
}

// Reconciler is the single writer of request status
type Reconciler struct {
	store        Store
	availability AvailabilityChecker
	detector     ConflictFinder
	assignmentID IDGenerator

	riders   RiderDirectory
	locker   lock.Locker
	policy   Policy
	attempts int
	backoff  time.Duration
	metrics  *metrics.DispatchMetrics
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

func WithPolicy(policy Policy) Option {
	return func(r *Reconciler) {
		if policy != "" {
			r.policy = policy
		}
	}
}

// WithAttempts bounds how many times a reconcile is tried on concurrent modification
func WithAttempts(attempts int) Option {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// WithBackoff sets the base delay of the exponential retry backoff
func WithBackoff(base time.Duration) Option {
	return func(r *Reconciler) {
		if base > 0 {
			r.backoff = base
		}
	}
}

func WithLocker(locker lock.Locker) Option {
	return func(r *Reconciler) {
		if locker != nil {
			r.locker = locker
		}
	}
}

// WithRiderDirectory makes unknown rider IDs fail with NotFoundError and fills blank names
func WithRiderDirectory(riders RiderDirectory) Option {
	return func(r *Reconciler) {
		r.riders = riders
	}
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a reconciler. The store, checks and ID generator are injected; nothing is global.
func New(store Store, availability AvailabilityChecker, detector ConflictFinder, assignmentIDs IDGenerator, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		store:        store,
		availability: availability,
		detector:     detector,
		assignmentID: assignmentIDs,
		locker:       lock.NewLocal(),
		policy:       PolicyBlock,
		attempts:     defaultAttempts,
		backoff:      defaultBackoff,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured conflict policy
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Reconcile makes the request's active assignments match desired. Validation happens before any
// write and the outcome is all-or-nothing. Calling it again with the same set changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, requestID string, desired []model.DesiredRider) (*Result, error) {
	start := r.now()

	if err := validateDesired(requestID, desired); err != nil {
		r.metrics.ObserveReconcile("invalid", r.now().Sub(start))
		return nil, err
	}

	r.logger.Info("Reconciling request",
		zap.String("request_id", requestID),
		zap.Int("desired_riders", len(desired)),
		zap.String("policy", string(r.policy)))

	var result *Result
	err := r.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		resolved, inactive, err := r.resolveRiders(ctx, desired)
		if err != nil {
			return err
		}
		return r.retry(ctx, requestID, func(ctx context.Context) error {
			res, err := r.reconcileOnce(ctx, requestID, resolved, inactive)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})

	r.metrics.ObserveReconcile(outcomeLabel(err), r.now().Sub(start))
	if err != nil {
		r.logger.Warn("Reconcile failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	r.metrics.AddAssignmentChanges(len(result.Created), len(result.Cancelled))
	r.logger.Info("Reconciled request",
		zap.String("request_id", requestID),
		zap.String("status", string(result.Status)),
		zap.Strings("created", result.CreatedIDs()),
		zap.Strings("cancelled", result.CancelledIDs()),
		zap.Int("rejected", len(result.Rejected)))
	return result, nil
}

func (r *Reconciler) reconcileOnce(ctx context.Context, requestID string, desired []model.DesiredRider, inactive map[string]model.RiderStatus) (*Result, error) {
	req, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetAssignmentsForRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments for request %s: %w", requestID, err)
	}

	kept, toCancel := r.diffCurrent(req.ID, existing, desired)

	wanted := make(map[string]bool, len(kept))
	for _, a := range kept {
		wanted[a.RiderID] = true
	}

	result := &Result{
		RequestID:      req.ID,
		PreviousStatus: req.Status,
		Created:        []model.Assignment{},
		Cancelled:      []model.Assignment{},
	}

	now := r.now()
	var toCreate []model.Assignment
	for _, rider := range desired {
		if wanted[rider.RiderID] {
			continue
		}

		assignment, rejection, err := r.evaluateCandidate(ctx, req, rider, inactive[rider.RiderID], now)
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}
		toCreate = append(toCreate, assignment)
	}

	active := append(append([]model.Assignment{}, kept...), toCreate...)
	status := model.DeriveRequestStatus(req.Status, len(active), req.RidersNeeded)
	display := RidersAssignedDisplay(active)

	changes := model.ChangeSet{
		RequestID:       req.ID,
		ExpectedVersion: req.Version,
		Create:          toCreate,
		Status:          status,
		RidersAssigned:  display,
		UpdatedAt:       now,
	}
	for _, a := range toCancel {
		changes.Update = append(changes.Update, model.AssignmentStatusChange{AssignmentID: a.ID, Status: model.AssignmentCancelled})
		a.Status = model.AssignmentCancelled
		result.Cancelled = append(result.Cancelled, a)
	}
	result.Created = append(result.Created, toCreate...)
	result.Status = status
	result.RidersAssigned = display

	if changes.IsEmpty() && status == req.Status && display == req.RidersAssigned {
		r.logger.Debug("Request already reconciled", zap.String("request_id", req.ID))
		return result, nil
	}

	if err := r.store.ApplyChangeSet(ctx, changes); err != nil {
		return nil, err
	}
	result.Applied = true
	return result, nil
}

// diffCurrent splits the request's active assignments into those to keep and those to cancel.
// Should the store ever hold two active rows for one rider, the lowest ID is kept.
func (r *Reconciler) diffCurrent(requestID string, existing []model.Assignment, desired []model.DesiredRider) ([]model.Assignment, []model.Assignment) {
	desiredIDs := make(map[string]bool, len(desired))
	for _, d := range desired {
		desiredIDs[d.RiderID] = true
	}

	active := make([]model.Assignment, 0, len(existing))
	for _, a := range existing {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	sortByID(active)

	var kept, toCancel []model.Assignment
	seen := make(map[string]bool, len(active))
	for _, a := range active {
		switch {
		case seen[a.RiderID]:
			r.logger.Warn("Cancelling duplicate active assignment",
				zap.String("request_id", requestID),
				zap.String("assignment_id", a.ID),
				zap.String("rider_id", a.RiderID))
			toCancel = append(toCancel, a)
		case desiredIDs[a.RiderID]:
			seen[a.RiderID] = true
			kept = append(kept, a)
		default:
			seen[a.RiderID] = true
			toCancel = append(toCancel, a)
		}
	}
	return kept, toCancel
}

// evaluateCandidate runs the rider status, availability and conflict checks for a rider being added
// and either builds the new assignment or, under PolicyBlock, a rejection. PolicyStrict turns a
// failure into an error. inactiveStatus is blank unless the directory lists the rider as not Active.
func (r *Reconciler) evaluateCandidate(ctx context.Context, req model.Request, rider model.DesiredRider, inactiveStatus model.RiderStatus, now time.Time) (model.Assignment, *Rejection, error) {
	if !req.Window.Valid() {
		return model.Assignment{}, nil, &model.ValidationError{
			Entity: "request", ID: req.ID, Field: "Window",
			Reason: fmt.Sprintf("cannot assign riders to invalid window %s", req.Window),
		}
	}

	var notes []string
	if rider.Override {
		notes = append(notes, "assigned with override")
		r.logger.Info("Skipping checks for overridden rider",
			zap.String("request_id", req.ID),
			zap.String("rider_id", rider.RiderID))
	} else if reasons := r.checkCandidate(ctx, req, rider, inactiveStatus); len(reasons) > 0 {
		switch r.policy {
		case PolicyStrict:
			return model.Assignment{}, nil, &model.ConflictError{RequestID: req.ID, RiderID: rider.RiderID, Reasons: reasons}
		case PolicyWarn:
			notes = append(notes, reasons...)
		default:
			r.logger.Info("Rider not assigned",
				zap.String("request_id", req.ID),
				zap.String("rider_id", rider.RiderID),
				zap.Strings("reasons", reasons))
			return model.Assignment{}, &Rejection{RiderID: rider.RiderID, RiderName: rider.RiderName, Reasons: reasons}, nil
		}
	}

	id, err := r.assignmentID.Next(ctx)
	if err != nil {
		return model.Assignment{}, nil, err
	}
	r.metrics.IncIDIssued("assignment")

	return model.Assignment{
		ID:          id,
		RequestID:   req.ID,
		RiderID:     rider.RiderID,
		RiderName:   rider.RiderName,
		EventDate:   req.EventDate,
		Window:      req.Window,
		Status:      model.AssignmentAssigned,
		CreatedDate: model.DateOf(now),
		Notes:       strings.Join(notes, "; "),
	}, nil, nil
}

// checkCandidate returns why the rider should not take the request, or nothing when every check passes.
// A failing conflict lookup counts as a conflict rather than aborting the reconcile.
func (r *Reconciler) checkCandidate(ctx context.Context, req model.Request, rider model.DesiredRider, inactiveStatus model.RiderStatus) []string {
	var reasons []string

	if inactiveStatus != "" {
		reasons = append(reasons, fmt.Sprintf("rider is %s", inactiveStatus))
		r.metrics.IncRejection("inactive")
	}

	if r.availability != nil {
		if free, reason := r.availability.Check(ctx, rider.RiderID, req.EventDate, req.Window); !free {
			reasons = append(reasons, reason)
			r.metrics.IncRejection("availability")
		}
	}

	if r.detector != nil {
		found, err := r.detector.FindConflictsExcluding(ctx, rider.RiderID, req.EventDate, req.Window, req.ID)
		switch {
		case err != nil:
			r.logger.Warn("Conflict check failed, treating as conflict",
				zap.String("request_id", req.ID),
				zap.String("rider_id", rider.RiderID),
				zap.Error(err))
			reasons = append(reasons, "conflict check failed")
			r.metrics.IncRejection("conflict")
		case len(found) > 0:
			reasons = append(reasons, "already assigned to "+conflicts.Describe(found))
			r.metrics.IncRejection("conflict")
		}
	}
	return reasons
}

// resolveRiders checks desired riders against the directory and fills blank display names. It also
// returns the status of every rider the directory marks as not Active; a blank status counts as Active.
func (r *Reconciler) resolveRiders(ctx context.Context, desired []model.DesiredRider) ([]model.DesiredRider, map[string]model.RiderStatus, error) {
	resolved := make([]model.DesiredRider, len(desired))
	copy(resolved, desired)
	inactive := make(map[string]model.RiderStatus)
	if r.riders == nil {
		return resolved, inactive, nil
	}

	for i, d := range resolved {
		rider, err := r.riders.GetRider(ctx, d.RiderID)
		if err != nil {
			if model.IsNotFound(err) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("failed to look up rider %s: %w", d.RiderID, err)
		}
		if resolved[i].RiderName == "" {
			resolved[i].RiderName = rider.Name
		}
		if rider.Status != "" && !rider.Status.IsActive() {
			inactive[d.RiderID] = rider.Status
		}
	}
	return resolved, inactive, nil
}

func validateDesired(requestID string, desired []model.DesiredRider) error {
	if strings.TrimSpace(requestID) == "" {
		return &model.ValidationError{Entity: "request", Field: "ID", Reason: "request ID is required"}
	}

	seen := make(map[string]bool, len(desired))
	for i, d := range desired {
		if strings.TrimSpace(d.RiderID) == "" {
			return &model.ValidationError{
				Entity: "desired rider", ID: requestID, Field: fmt.Sprintf("riders[%d].RiderID", i),
				Reason: "rider ID is required",
			}
		}
		if seen[d.RiderID] {
			return &model.ValidationError{
				Entity: "desired rider", ID: requestID, Field: fmt.Sprintf("riders[%d].RiderID", i),
				Reason: fmt.Sprintf("rider %s is listed more than once", d.RiderID),
			}
		}
		seen[d.RiderID] = true
	}
	return nil
}

func (r *Reconciler) withRequestLock(ctx context.Context, requestID string, fn func(context.Context) error) error {
	unlock, err := r.locker.Lock(ctx, "reconcile:"+requestID)
	if err != nil {
		return fmt.Errorf("failed to lock request %s: %w", requestID, err)
	}
	defer unlock()
	return fn(ctx)
}

// retry runs fn up to r.attempts times while it fails with a concurrent modification
func (r *Reconciler) retry(ctx context.Context, requestID string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(r.attempts-1), retry.NewExponential(r.backoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.IncRetry()
			r.logger.Info("Retrying after concurrent modification",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt))
		}
		if err := fn(ctx); err != nil {
			if model.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && model.IsRetryable(err) {
		var concurrency *model.ConcurrencyError
		if !errors.As(err, &concurrency) {
			return &model.ConcurrencyError{RequestID: requestID, Attempts: attempt}
		}
	}
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrConcurrentModification):
		return "concurrent_modification"
	}
	return "error"
}
