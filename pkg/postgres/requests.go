package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

const requestColumns = `id, event_date, start_minute, end_minute, riders_needed, status, riders_assigned,
	requester_name, pickup, dropoff, notes, version, updated_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

func scanRequest(row pgx.Row) (model.Request, error) {
	var (
		r          model.Request
		start, end int
		status     string
	)
	if err := row.Scan(&r.ID, &r.EventDate, &start, &end, &r.RidersNeeded, &status, &r.RidersAssigned,
		&r.RequesterName, &r.Pickup, &r.Dropoff, &r.Notes, &r.Version, &r.UpdatedAt); err != nil {
		return model.Request{}, err
	}
	r.Window = model.Window{Start: model.Clock(start), End: model.Clock(end)}
	r.Status = model.RequestStatus(status)
	return r, nil
}

func (d *DB) ListRequests(ctx context.Context) ([]model.Request, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+requestColumns+` FROM requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) ListRequestIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM requests`)
	if err != nil {
		return nil, fmt.Errorf("failed to query request ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (d *DB) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	r, err := scanRequest(d.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Request{}, &model.NotFoundError{Entity: "request", ID: requestID}
	}
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to get request %s: %w", requestID, err)
	}
	return r, nil
}

func (d *DB) InsertRequest(ctx context.Context, request model.Request) error {
	if err := model.ValidateRequest(request); err != nil {
		return err
	}
	if request.Version == 0 {
		request.Version = 1
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = time.Now().UTC()
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, request.ID, request.EventDate, int(request.Window.Start), int(request.Window.End), request.RidersNeeded,
		string(request.Status), request.RidersAssigned, request.RequesterName, request.Pickup, request.Dropoff,
		request.Notes, request.Version, request.UpdatedAt)
	if isUniqueViolation(err) {
		return &model.ValidationError{Entity: "request", ID: request.ID, Field: "ID", Reason: "request ID already in use"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert request %s: %w", request.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
