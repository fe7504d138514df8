package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/clients/formsclient"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// FormResponseSource reads the availability form
type FormResponseSource interface {
	GetAvailabilityResponses(ctx context.Context, formID string, since time.Time) ([]formsclient.AvailabilityResponse, error)
}

// FormAvailabilityStore matches respondents to riders and stores their entries
type FormAvailabilityStore interface {
	ListRiders(ctx context.Context) ([]model.Rider, error)
	GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error)
	PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error)
}

// FormImportResult summarises an availability form import
type FormImportResult struct {
	Responses int
	Entries   int

	// Unmatched are respondent emails with no rider in the directory
	Unmatched []string

	// Skipped are dates before the import date
	Skipped int

	// Stale are future dates an earlier import of this form stored that the rider's latest
	// response no longer ticks. They stay in force until removed by hand.
	Stale []StaleFormDate
}

// StaleFormDate is a form-imported unavailable date missing from the rider's latest response
type StaleFormDate struct {
	RiderID string
	Date    time.Time
}

// ImportFormAvailability turns each rider's latest form response into whole-day Unavailable
// entries. Entries are keyed by rider and date, so re-importing the same form is idempotent.
// Dates already in the past are skipped. The stores only supersede entries, never delete them, so
// a date the rider has since unticked is reported in Stale rather than retracted.
func ImportFormAvailability(ctx context.Context, source FormResponseSource, store FormAvailabilityStore, logger *zap.Logger, formID string, since, now time.Time) (*FormImportResult, error) {
	responses, err := source.GetAvailabilityResponses(ctx, formID, since)
	if err != nil {
		return nil, err
	}
	riders, err := store.ListRiders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list riders: %w", err)
	}

	byEmail := make(map[string]model.Rider, len(riders))
	for _, r := range riders {
		if r.Email != "" {
			byEmail[strings.ToLower(strings.TrimSpace(r.Email))] = r
		}
	}

	result := &FormImportResult{Responses: len(responses)}
	today := model.DateOf(now)
	whole := model.Window{Start: 0, End: model.MaxClock}
	note := "availability form " + formID

	var errs error
	for _, resp := range responses {
		rider, ok := byEmail[strings.ToLower(resp.Email)]
		if !ok {
			result.Unmatched = append(result.Unmatched, resp.Email)
			continue
		}
		if len(resp.Unparsed) > 0 {
			logger.Warn("Ignoring form answers that are not dates",
				zap.String("rider_id", rider.ID),
				zap.Strings("answers", resp.Unparsed))
		}

		for _, date := range resp.UnavailableDates {
			if date.Before(today) {
				result.Skipped++
				continue
			}
			entry := model.AvailabilityEntry{
				RiderID:   rider.ID,
				Date:      date,
				Window:    whole,
				Kind:      model.KindUnavailable,
				Notes:     note,
				UpdatedAt: now,
			}
			if err := model.ValidateAvailabilityEntry(entry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("rider %s: %w", rider.ID, err))
				continue
			}
			if _, err := store.PutAvailabilityEntry(ctx, entry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("rider %s on %s: %w", rider.ID, model.FormatDate(date), err))
				continue
			}
			result.Entries++
		}

		stale, err := staleFormDates(ctx, store, rider.ID, note, resp.UnavailableDates, today)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, date := range stale {
			logger.Warn("Form date no longer ticked, entry left in place",
				zap.String("rider_id", rider.ID),
				zap.String("date", model.FormatDate(date)),
				zap.String("form_id", formID))
			result.Stale = append(result.Stale, StaleFormDate{RiderID: rider.ID, Date: date})
		}
	}

	logger.Info("Imported availability form",
		zap.String("form_id", formID),
		zap.Int("responses", result.Responses),
		zap.Int("entries", result.Entries),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.Int("skipped", result.Skipped),
		zap.Int("stale", len(result.Stale)))
	return result, errs
}

// staleFormDates returns the future dates of the rider's entries written by this form that the
// latest response does not tick
func staleFormDates(ctx context.Context, store FormAvailabilityStore, riderID, note string, ticked []time.Time, today time.Time) ([]time.Time, error) {
	entries, err := store.GetAvailabilityEntries(ctx, riderID)
	if err != nil {
		return nil, fmt.Errorf("rider %s: failed to get availability entries: %w", riderID, err)
	}

	current := make(map[string]bool, len(ticked))
	for _, date := range ticked {
		current[model.FormatDate(date)] = true
	}

	var stale []time.Time
	for _, e := range entries {
		if e.Recurrence != nil || e.Kind != model.KindUnavailable || e.Notes != note {
			continue
		}
		if e.Date.Before(today) || current[model.FormatDate(e.Date)] {
			continue
		}
		stale = append(stale, e.Date)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Before(stale[j]) })
	return stale, nil
}
