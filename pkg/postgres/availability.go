package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

func (d *DB) GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, rider_id, event_date, weekday, start_date, repeat_until, week_interval,
		       start_minute, end_minute, kind, notes, updated_at
		FROM availability_entries
		WHERE rider_id = $1
		ORDER BY updated_at, id
	`, riderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability for %s: %w", riderID, err)
	}
	defer rows.Close()

	var entries []model.AvailabilityEntry
	for rows.Next() {
		var (
			e                           model.AvailabilityEntry
			id                          uuid.UUID
			date, startDate, repeatTill *time.Time
			weekday                     *int16
			interval                    int
			start, end                  int
			kind                        string
		)
		if err := rows.Scan(&id, &e.RiderID, &date, &weekday, &startDate, &repeatTill, &interval,
			&start, &end, &kind, &e.Notes, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan availability entry: %w", err)
		}

		e.ID = id.String()
		e.Window = model.Window{Start: model.Clock(start), End: model.Clock(end)}
		e.Kind = model.AvailabilityKind(kind)
		if date != nil {
			e.Date = *date
		}
		if startDate != nil {
			r := &model.Recurrence{StartDate: *startDate, Interval: interval}
			if weekday != nil {
				r.Weekday = time.Weekday(*weekday)
			}
			if repeatTill != nil {
				r.RepeatUntil = *repeatTill
			}
			e.Recurrence = r
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PutAvailabilityEntry upserts on the entry's natural key and keeps the original ID
func (d *DB) PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error) {
	if err := model.ValidateAvailabilityEntry(entry); err != nil {
		return model.AvailabilityEntry{}, err
	}

	id := uuid.New()
	if entry.ID != "" {
		parsed, err := uuid.Parse(entry.ID)
		if err != nil {
			return model.AvailabilityEntry{}, &model.ValidationError{Entity: "availability entry", ID: entry.ID,
				Field: "ID", Reason: "must be a UUID"}
		}
		id = parsed
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	var date, startDate, repeatUntil *time.Time
	var weekday *int16
	interval := 0
	if !entry.Date.IsZero() {
		date = &entry.Date
	}
	if r := entry.Recurrence; r != nil {
		startDate = &r.StartDate
		wd := int16(r.Weekday)
		weekday = &wd
		interval = r.Interval
		if !r.RepeatUntil.IsZero() {
			repeatUntil = &r.RepeatUntil
		}
	}

	var stored uuid.UUID
	err := d.pool.QueryRow(ctx, `
		INSERT INTO availability_entries
			(id, rider_id, entry_key, event_date, weekday, start_date, repeat_until, week_interval,
			 start_minute, end_minute, kind, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (entry_key) DO UPDATE
		SET repeat_until = EXCLUDED.repeat_until, kind = EXCLUDED.kind,
		    notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
		RETURNING id
	`, id, entry.RiderID, entry.Key(), date, weekday, startDate, repeatUntil, interval,
		int(entry.Window.Start), int(entry.Window.End), string(entry.Kind), entry.Notes, entry.UpdatedAt,
	).Scan(&stored)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("failed to upsert availability entry: %w", err)
	}

	entry.ID = stored.String()
	return entry, nil
}
