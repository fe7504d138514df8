// Package memstore is an in-memory db.Database used by tests and dry runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/db"
)

// ApplyHook runs before a change set is applied, outside the store lock; a non-nil error aborts the apply
type ApplyHook func(ctx context.Context, changes model.ChangeSet) error

// Store keeps every entity in maps guarded by one mutex
type Store struct {
	mu          sync.RWMutex
	riders      map[string]model.Rider
	entries     []model.AvailabilityEntry
	requests    map[string]model.Request
	assignments map[string]model.Assignment
	applyHook   ApplyHook

	seq *ids.ScanSequencer
}

var _ db.Database = (*Store)(nil)

func New() *Store {
	s := &Store{
		riders:      make(map[string]model.Rider),
		requests:    make(map[string]model.Request),
		assignments: make(map[string]model.Assignment),
	}
	s.seq = ids.NewScanSequencer(s.maxSequence)
	return s
}

// SetApplyHook installs a hook that runs before each ApplyChangeSet
func (s *Store) SetApplyHook(hook ApplyHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyHook = hook
}

func (s *Store) ListRiders(ctx context.Context) ([]model.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	riders := make([]model.Rider, 0, len(s.riders))
	for _, r := range s.riders {
		riders = append(riders, r)
	}
	sort.Slice(riders, func(i, j int) bool { return riders[i].Name < riders[j].Name })
	return riders, nil
}

func (s *Store) GetRider(ctx context.Context, riderID string) (model.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.riders[riderID]
	if !ok {
		return model.Rider{}, &model.NotFoundError{Entity: "rider", ID: riderID}
	}
	return r, nil
}

func (s *Store) UpsertRiders(ctx context.Context, riders []model.Rider) error {
	for _, r := range riders {
		if err := model.ValidateRider(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range riders {
		s.riders[r.ID] = r
	}
	return nil
}

func (s *Store) GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AvailabilityEntry
	for _, e := range s.entries {
		if e.RiderID == riderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error) {
	if err := model.ValidateAvailabilityEntry(entry); err != nil {
		return model.AvailabilityEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.Key()
	for i, existing := range s.entries {
		if existing.Key() == key {
			entry.ID = existing.ID
			s.entries[i] = entry
			return entry, nil
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *Store) ListRequests(ctx context.Context) ([]model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListRequestIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.requests))
	for id := range s.requests {
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[requestID]
	if !ok {
		return model.Request{}, &model.NotFoundError{Entity: "request", ID: requestID}
	}
	return r, nil
}

func (s *Store) InsertRequest(ctx context.Context, request model.Request) error {
	if err := model.ValidateRequest(request); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[request.ID]; exists {
		return &model.ValidationError{Entity: "request", ID: request.ID, Field: "ID", Reason: "request ID already in use"}
	}
	if request.Version == 0 {
		request.Version = 1
	}
	s.requests[request.ID] = request
	return nil
}

func (s *Store) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterAssignments(func(model.Assignment) bool { return true }), nil
}

func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentID]
	if !ok {
		return model.Assignment{}, &model.NotFoundError{Entity: "assignment", ID: assignmentID}
	}
	return a, nil
}

func (s *Store) GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterAssignments(func(a model.Assignment) bool { return a.RequestID == requestID }), nil
}

func (s *Store) GetAssignmentsForRider(ctx context.Context, riderID string, date time.Time) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterAssignments(func(a model.Assignment) bool {
		return a.RiderID == riderID && model.SameDate(a.EventDate, date)
	}), nil
}

// ApplyChangeSet validates the whole change set first, then applies it; nothing is written on error
func (s *Store) ApplyChangeSet(ctx context.Context, changes model.ChangeSet) error {
	s.mu.RLock()
	hook := s.applyHook
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, changes); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[changes.RequestID]
	if !ok {
		return &model.NotFoundError{Entity: "request", ID: changes.RequestID}
	}

	current := s.filterAssignments(func(a model.Assignment) bool { return a.RequestID == req.ID })
	after, err := db.CheckChangeSet(req, current, changes)
	if err != nil {
		return err
	}

	for _, a := range after {
		s.assignments[a.ID] = a
	}
	req.Status = changes.Status
	req.RidersAssigned = changes.RidersAssigned
	req.UpdatedAt = changes.UpdatedAt
	req.Version++
	s.requests[req.ID] = req
	return nil
}

// Next implements ids.Sequencer over the stored assignment IDs
func (s *Store) Next(ctx context.Context, scope string) (int64, error) {
	return s.seq.Next(ctx, scope)
}

// BumpVersion simulates a write by another process
func (s *Store) BumpVersion(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[requestID]; ok {
		r.Version++
		s.requests[requestID] = r
	}
}

func (s *Store) maxSequence(ctx context.Context, scope string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope != ids.AssignmentScope {
		return 0, nil
	}
	existing := make([]string, 0, len(s.assignments))
	for id := range s.assignments {
		existing = append(existing, id)
	}
	return ids.MaxAssignmentNumber(existing), nil
}

// filterAssignments must be called with the lock held
func (s *Store) filterAssignments(keep func(model.Assignment) bool) []model.Assignment {
	out := make([]model.Assignment, 0)
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	db.SortAssignments(out)
	return out
}
