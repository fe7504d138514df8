package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

func (d *DB) ListRiders(ctx context.Context) ([]model.Rider, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, email, phone, status
		FROM riders
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query riders: %w", err)
	}
	defer rows.Close()

	var riders []model.Rider
	for rows.Next() {
		var r model.Rider
		var status string
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &status); err != nil {
			return nil, fmt.Errorf("failed to scan rider: %w", err)
		}
		r.Status = model.RiderStatus(status)
		riders = append(riders, r)
	}
	return riders, rows.Err()
}

func (d *DB) GetRider(ctx context.Context, riderID string) (model.Rider, error) {
	var r model.Rider
	var status string
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, status FROM riders WHERE id = $1
	`, riderID).Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Rider{}, &model.NotFoundError{Entity: "rider", ID: riderID}
	}
	if err != nil {
		return model.Rider{}, fmt.Errorf("failed to get rider %s: %w", riderID, err)
	}
	r.Status = model.RiderStatus(status)
	return r, nil
}

// UpsertRiders writes all riders in one transaction
func (d *DB) UpsertRiders(ctx context.Context, riders []model.Rider) error {
	for _, r := range riders {
		if err := model.ValidateRider(r); err != nil {
			return err
		}
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range riders {
		status := r.Status
		if status == "" {
			status = model.RiderActive
		}
		batch.Queue(`
			INSERT INTO riders (id, name, email, phone, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			    status = EXCLUDED.status, updated_at = NOW()
		`, r.ID, r.Name, r.Email, r.Phone, string(status))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert riders: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit riders: %w", err)
	}
	return nil
}
