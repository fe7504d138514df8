package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/db"
)

const assignmentColumns = `id, request_id, rider_id, rider_name, event_date, start_minute, end_minute,
	status, created_date, notes`

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAssignments(ctx context.Context, q querier, where string, args ...any) ([]model.Assignment, error) {
	rows, err := q.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Assignment, 0)
	for rows.Next() {
		var (
			a          model.Assignment
			start, end int
			status     string
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &a.RiderID, &a.RiderName, &a.EventDate, &start, &end,
			&status, &a.CreatedDate, &a.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Window = model.Window{Start: model.Clock(start), End: model.Clock(end)}
		a.Status = model.AssignmentStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	db.SortAssignments(out)
	return out, nil
}

func (d *DB) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	return queryAssignments(ctx, d.pool, "")
}

func (d *DB) GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error) {
	found, err := queryAssignments(ctx, d.pool, "WHERE id = $1", assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}
	if len(found) == 0 {
		return model.Assignment{}, &model.NotFoundError{Entity: "assignment", ID: assignmentID}
	}
	return found[0], nil
}

func (d *DB) GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error) {
	return queryAssignments(ctx, d.pool, "WHERE request_id = $1", requestID)
}

func (d *DB) GetAssignmentsForRider(ctx context.Context, riderID string, date time.Time) ([]model.Assignment, error) {
	return queryAssignments(ctx, d.pool, "WHERE rider_id = $1 AND event_date = $2", riderID, model.DateOf(date))
}

// ApplyChangeSet locks the request row, checks the version, and writes everything in one transaction
func (d *DB) ApplyChangeSet(ctx context.Context, changes model.ChangeSet) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := scanRequest(tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, changes.RequestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.NotFoundError{Entity: "request", ID: changes.RequestID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock request %s: %w", changes.RequestID, err)
	}

	current, err := queryAssignments(ctx, tx, "WHERE request_id = $1", req.ID)
	if err != nil {
		return err
	}
	if _, err := db.CheckChangeSet(req, current, changes); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, a := range changes.Create {
		batch.Queue(`INSERT INTO assignments (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			a.ID, a.RequestID, a.RiderID, a.RiderName, model.DateOf(a.EventDate), int(a.Window.Start),
			int(a.Window.End), string(a.Status), model.DateOf(a.CreatedDate), a.Notes)
	}
	for _, u := range changes.Update {
		batch.Queue(`UPDATE assignments SET status = $2 WHERE id = $1`, u.AssignmentID, string(u.Status))
	}

	updatedAt := changes.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	batch.Queue(`
		UPDATE requests
		SET status = $2, riders_assigned = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`, req.ID, string(changes.Status), changes.RidersAssigned, updatedAt, changes.ExpectedVersion)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if verr := changeSetViolation(req.ID, err); verr != nil {
			return verr
		}
		return fmt.Errorf("failed to apply change set for %s: %w", req.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit change set for %s: %w", req.ID, err)
	}
	return nil
}

// oneActiveIndex is the partial unique index allowing one active assignment per rider per request
const oneActiveIndex = "assignments_one_active_idx"

// changeSetViolation maps a unique violation raised while applying a change set to a validation
// error. A primary key clash means the assignment ID is used by another request.
func changeSetViolation(requestID string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	if pgErr.ConstraintName == oneActiveIndex {
		return &model.ValidationError{Entity: "assignment", ID: requestID, Field: "RiderID",
			Reason: "rider already has an active assignment on this request"}
	}
	return &model.ValidationError{Entity: "assignment", ID: requestID, Field: "ID",
		Reason: "assignment ID already in use"}
}

// Next hands out sequence values with an atomic upsert. The assignment counter is raised to the
// highest stored assignment ID once per process; after that each call is a single statement.
func (d *DB) Next(ctx context.Context, scope string) (int64, error) {
	if scope == ids.AssignmentScope {
		if err := d.seedAssignments(ctx); err != nil {
			return 0, err
		}
	}

	var value int64
	err := d.pool.QueryRow(ctx, `
		INSERT INTO id_sequences (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = id_sequences.value + 1
		RETURNING value
	`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", scope, err)
	}
	return value, nil
}

// seedAssignments raises the assignment counter to at least the highest stored assignment number.
// A failed attempt is retried on the next call.
func (d *DB) seedAssignments(ctx context.Context) error {
	d.seedMu.Lock()
	defer d.seedMu.Unlock()
	if d.assignmentsSeeded {
		return nil
	}

	rows, err := d.pool.Query(ctx, `SELECT id FROM assignments`)
	if err != nil {
		return fmt.Errorf("failed to scan assignment ids: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan assignment ids: %w", err)
	}

	if _, err := d.pool.Exec(ctx, seedSequenceSQL, ids.AssignmentScope, ids.MaxAssignmentNumber(existing)); err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", ids.AssignmentScope, err)
	}
	d.assignmentsSeeded = true
	return nil
}

// seedSequenceSQL never lowers a counter
const seedSequenceSQL = `
	INSERT INTO id_sequences (scope, value) VALUES ($1, $2)
	ON CONFLICT (scope) DO UPDATE SET value = GREATEST(id_sequences.value, EXCLUDED.value)
`
