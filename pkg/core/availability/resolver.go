package availability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// EntryStore is the read side of the availability store used by the resolver
type EntryStore interface {
	GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error)
}

// Resolver expands recurring availability and answers "is rider R free during W on D"
type Resolver struct {
	store     EntryStore
	blackouts []Blackout
	logger    *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithBlackouts makes every matching date fully unavailable for all riders
func WithBlackouts(blackouts ...Blackout) Option {
	return func(r *Resolver) {
		r.blackouts = append(r.blackouts, blackouts...)
	}
}

// NewResolver creates a resolver over the given store
func NewResolver(store EntryStore, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{store: store, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WindowsForDate returns the rider's available windows on date, after unavailability overrides.
// A store failure or an unknown rider yields an empty list: the rider is treated as unavailable.
func (r *Resolver) WindowsForDate(ctx context.Context, riderID string, date time.Time) []model.Window {
	entries, err := r.store.GetAvailabilityEntries(ctx, riderID)
	if err != nil {
		r.logger.Warn("Failed to load availability, treating rider as unavailable",
			zap.String("rider_id", riderID),
			zap.String("date", model.FormatDate(date)),
			zap.Error(err))
		return []model.Window{}
	}

	if reason, blocked := r.blackedOut(date); blocked {
		r.logger.Debug("Date is blacked out",
			zap.String("date", model.FormatDate(date)),
			zap.String("reason", reason))
		return []model.Window{}
	}

	return Resolve(entries, riderID, date, r.logger)
}

// IsFree reports whether window lies entirely within one of the rider's windows on date
func (r *Resolver) IsFree(ctx context.Context, riderID string, date time.Time, window model.Window) bool {
	return Covers(r.WindowsForDate(ctx, riderID, date), window)
}

// Check is IsFree with a human-readable reason when the rider is not free
func (r *Resolver) Check(ctx context.Context, riderID string, date time.Time, window model.Window) (bool, string) {
	if reason, blocked := r.blackedOut(date); blocked {
		return false, fmt.Sprintf("%s is blacked out (%s)", model.FormatDate(date), reason)
	}

	windows := r.WindowsForDate(ctx, riderID, date)
	if len(windows) == 0 {
		return false, fmt.Sprintf("no availability declared on %s", model.FormatDate(date))
	}
	if !Covers(windows, window) {
		return false, fmt.Sprintf("not available for %s on %s (available %s)",
			window, model.FormatDate(date), formatWindows(windows))
	}
	return true, ""
}

// DayWindows is the resolved availability for one date
type DayWindows struct {
	Date    time.Time
	Windows []model.Window
}

// WindowsForRange resolves every date in [from, to] inclusive
func (r *Resolver) WindowsForRange(ctx context.Context, riderID string, from, to time.Time) ([]DayWindows, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if to.Before(from) {
		return nil, &model.ValidationError{Entity: "date range", Field: "to", Reason: "end date is before start date"}
	}

	entries, err := r.store.GetAvailabilityEntries(ctx, riderID)
	if err != nil {
		r.logger.Warn("Failed to load availability, treating rider as unavailable",
			zap.String("rider_id", riderID),
			zap.Error(err))
		entries = nil
	}

	days := make([]DayWindows, 0, int(to.Sub(from).Hours()/24)+1)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		windows := []model.Window{}
		if _, blocked := r.blackedOut(day); !blocked {
			windows = Resolve(entries, riderID, day, r.logger)
		}
		days = append(days, DayWindows{Date: day, Windows: windows})
	}
	return days, nil
}

func (r *Resolver) blackedOut(date time.Time) (string, bool) {
	for _, b := range r.blackouts {
		if b.AppliesTo != nil && b.AppliesTo(date) {
			return b.Reason, true
		}
	}
	return "", false
}

// Resolve computes the available windows for one rider and date from raw entries.
// Closed world: with no Available entry on the date the rider is unavailable all day.
// Exact-date Available entries add to recurring ones; every Unavailable entry is subtracted.
func Resolve(entries []model.AvailabilityEntry, riderID string, date time.Time, logger *zap.Logger) []model.Window {
	if logger == nil {
		logger = zap.NewNop()
	}

	var available, unavailable []model.Window
	for _, entry := range entries {
		if entry.RiderID != riderID {
			continue
		}

		applies, err := entryAppliesOn(entry, date)
		if err != nil {
			logger.Warn("Skipping availability entry with a bad recurrence",
				zap.String("entry_id", entry.ID),
				zap.String("rider_id", entry.RiderID),
				zap.Error(err))
			continue
		}
		if !applies {
			continue
		}

		switch entry.Kind {
		case model.KindAvailable:
			available = append(available, entry.Window)
		case model.KindUnavailable:
			unavailable = append(unavailable, entry.Window)
		}
	}

	if len(available) == 0 {
		return []model.Window{}
	}
	return Subtract(available, unavailable)
}

func entryAppliesOn(entry model.AvailabilityEntry, date time.Time) (bool, error) {
	if entry.Recurrence != nil {
		return OccursOn(*entry.Recurrence, date)
	}
	return model.SameDate(entry.Date, date), nil
}

func formatWindows(windows []model.Window) string {
	s := ""
	for i, w := range windows {
		if i > 0 {
			s += ", "
		}
		s += w.String()
	}
	return s
}
