package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekday accepts full or three-letter English day names in any case
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) >= 3 {
		if d, ok := weekdays[key[:3]]; ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// NewAvailability declares a window for one rider. Set Date for a one-off entry, or Weekday and
// StartDate for a weekly one.
type NewAvailability struct {
	RiderID     string `json:"riderId"`
	Date        string `json:"date,omitempty"`
	Weekday     string `json:"weekday,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	RepeatUntil string `json:"repeatUntil,omitempty"`
	Interval    int    `json:"interval,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Kind        string `json:"kind"`
	Notes       string `json:"notes,omitempty"`
}

// AvailabilityWriter stores availability entries for known riders
type AvailabilityWriter interface {
	GetRider(ctx context.Context, riderID string) (model.Rider, error)
	PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error)
}

// ToEntry parses the form into an entry without storing it
func (n NewAvailability) ToEntry(now time.Time) (model.AvailabilityEntry, error) {
	invalid := func(field string, err error) error {
		return &model.ValidationError{Entity: "availability entry", Field: field, Reason: err.Error()}
	}

	window, err := model.NewWindow(n.Start, n.End)
	if err != nil {
		return model.AvailabilityEntry{}, invalid("window", err)
	}

	kind := model.KindAvailable
	if n.Kind != "" {
		if kind, err = model.ParseAvailabilityKind(n.Kind); err != nil {
			return model.AvailabilityEntry{}, invalid("kind", err)
		}
	}

	entry := model.AvailabilityEntry{
		RiderID:   n.RiderID,
		Window:    window,
		Kind:      kind,
		Notes:     n.Notes,
		UpdatedAt: now,
	}

	if n.Date != "" {
		if entry.Date, err = model.ParseDate(n.Date); err != nil {
			return model.AvailabilityEntry{}, invalid("date", err)
		}
	}

	if n.Weekday != "" || n.StartDate != "" {
		rec := &model.Recurrence{Interval: n.Interval}
		if rec.Weekday, err = ParseWeekday(n.Weekday); err != nil {
			return model.AvailabilityEntry{}, invalid("recurrence.weekday", err)
		}
		if rec.StartDate, err = model.ParseDate(n.StartDate); err != nil {
			return model.AvailabilityEntry{}, invalid("recurrence.startDate", err)
		}
		if n.RepeatUntil != "" {
			if rec.RepeatUntil, err = model.ParseDate(n.RepeatUntil); err != nil {
				return model.AvailabilityEntry{}, invalid("recurrence.repeatUntil", err)
			}
		}
		entry.Recurrence = rec
	}

	if err := model.ValidateAvailabilityEntry(entry); err != nil {
		return model.AvailabilityEntry{}, err
	}
	return entry, nil
}

// AddAvailability stores a declared window. An entry with the same rider, date or recurrence and
// time range replaces the earlier one.
func AddAvailability(ctx context.Context, store AvailabilityWriter, logger *zap.Logger, input NewAvailability, now time.Time) (model.AvailabilityEntry, error) {
	entry, err := input.ToEntry(now)
	if err != nil {
		return model.AvailabilityEntry{}, err
	}

	if _, err := store.GetRider(ctx, entry.RiderID); err != nil {
		return model.AvailabilityEntry{}, err
	}

	stored, err := store.PutAvailabilityEntry(ctx, entry)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("failed to store availability entry: %w", err)
	}

	logger.Info("Stored availability entry",
		zap.String("entry_id", stored.ID),
		zap.String("rider_id", stored.RiderID),
		zap.String("kind", string(stored.Kind)),
		zap.String("window", stored.Window.String()),
		zap.Bool("recurring", stored.IsRecurring()))
	return stored, nil
}

// DayAvailability is one date of a rider's availability view
type DayAvailability struct {
	Date    string   `json:"date"`
	Weekday string   `json:"weekday"`
	Windows []string `json:"windows"`
}

// ShowAvailability resolves a rider's windows for every date in [from, to]
func ShowAvailability(ctx context.Context, resolver *availability.Resolver, riderID string, from, to time.Time) ([]DayAvailability, error) {
	days, err := resolver.WindowsForRange(ctx, riderID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]DayAvailability, 0, len(days))
	for _, d := range days {
		windows := make([]string, 0, len(d.Windows))
		for _, w := range d.Windows {
			windows = append(windows, w.String())
		}
		out = append(out, DayAvailability{
			Date:    model.FormatDate(d.Date),
			Weekday: d.Date.Weekday().String(),
			Windows: windows,
		})
	}
	return out, nil
}

// ConflictReport is the result of checking one rider against a proposed window
type ConflictReport struct {
	RiderID   string             `json:"riderId"`
	Date      string             `json:"date"`
	Window    string             `json:"window"`
	Available bool               `json:"available"`
	Reason    string             `json:"reason,omitempty"`
	Conflicts []model.Assignment `json:"conflicts"`
}

// CheckRider reports availability and overlapping assignments without changing anything
func CheckRider(ctx context.Context, resolver *availability.Resolver, detector *conflicts.Detector, riderID string, date time.Time, window model.Window) (*ConflictReport, error) {
	if !window.Valid() {
		return nil, &model.ValidationError{Entity: "window", Field: "end", Reason: "end must be after start"}
	}

	found, err := detector.FindConflicts(ctx, riderID, date, window)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicts: %w", err)
	}
	if found == nil {
		found = []model.Assignment{}
	}

	available, reason := resolver.Check(ctx, riderID, date, window)
	return &ConflictReport{
		RiderID:   riderID,
		Date:      model.FormatDate(date),
		Window:    window.String(),
		Available: available,
		Reason:    reason,
		Conflicts: found,
	}, nil
}
