package db

import (
	"context"
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// RiderStore is the rider directory
type RiderStore interface {
	ListRiders(ctx context.Context) ([]model.Rider, error)
	GetRider(ctx context.Context, riderID string) (model.Rider, error)
	UpsertRiders(ctx context.Context, riders []model.Rider) error
}

// AvailabilityStore holds declared availability. PutAvailabilityEntry is last-write-wins on the
// entry's natural key and returns the stored entry (with its ID).
type AvailabilityStore interface {
	GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error)
	PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error)
}

// RequestStore holds escort requests. Requests are never deleted, only cancelled.
type RequestStore interface {
	ListRequests(ctx context.Context) ([]model.Request, error)
	ListRequestIDs(ctx context.Context) ([]string, error)
	GetRequest(ctx context.Context, requestID string) (model.Request, error)
	InsertRequest(ctx context.Context, request model.Request) error
}

// AssignmentStore holds rider assignments. All writes go through ApplyChangeSet.
type AssignmentStore interface {
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
	GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error)
	GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error)
	GetAssignmentsForRider(ctx context.Context, riderID string, date time.Time) ([]model.Assignment, error)
	ApplyChangeSet(ctx context.Context, changes model.ChangeSet) error
}

// Database defines the interface for all database operations.
// The SheetsSQL-backed db.DB, postgres.DB and memstore.Store implement this interface.
type Database interface {
	RiderStore
	AvailabilityStore
	RequestStore
	AssignmentStore

	// Next returns the next value of an ID sequence (see ids.Sequencer)
	Next(ctx context.Context, scope string) (int64, error)
}
