package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// rruleWeekdays is indexed by time.Weekday (Sunday = 0)
var rruleWeekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RecurrenceRule builds the weekly RRULE for a recurrence.
// DTSTART is the start date and UNTIL the repeat-until date, both inclusive.
func RecurrenceRule(r model.Recurrence) (*rrule.RRule, error) {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return nil, fmt.Errorf("weekday out of range: %d", r.Weekday)
	}

	opts := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  r.EffectiveInterval(),
		Byweekday: []rrule.Weekday{rruleWeekdays[r.Weekday]},
		Dtstart:   model.DateOf(r.StartDate),
	}
	if !r.RepeatUntil.IsZero() {
		opts.Until = model.DateOf(r.RepeatUntil)
	}

	rule, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule: %w", err)
	}
	return rule, nil
}

// OccursOn reports whether the recurrence produces an occurrence on the given calendar date
func OccursOn(r model.Recurrence, date time.Time) (bool, error) {
	day := model.DateOf(date)
	if day.Weekday() != r.Weekday {
		return false, nil
	}
	if day.Before(model.DateOf(r.StartDate)) {
		return false, nil
	}
	if !r.RepeatUntil.IsZero() && day.After(model.DateOf(r.RepeatUntil)) {
		return false, nil
	}

	rule, err := RecurrenceRule(r)
	if err != nil {
		return false, err
	}
	return ruleOccursOn(rule, day), nil
}

// ruleOccursOn checks for any occurrence within the calendar day
func ruleOccursOn(rule *rrule.RRule, day time.Time) bool {
	occurrences := rule.Between(day, day.Add(24*time.Hour-time.Second), true)
	return len(occurrences) > 0
}

// blackoutAnchor is the DTSTART given to blackout rules that do not carry their own
var blackoutAnchor = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Blackout marks whole days on which nobody is available (public holidays, club events)
type Blackout struct {
	Reason    string
	AppliesTo func(date time.Time) bool
}

// BlackoutFromRRule converts an RRULE string into a Blackout.
// Rules without DTSTART are anchored far enough back that any practical date is covered.
func BlackoutFromRRule(ruleStr, reason string) (Blackout, error) {
	rule, err := rrule.StrToRRule(ruleStr)
	if err != nil {
		return Blackout{}, fmt.Errorf("failed to parse blackout rrule: %w", err)
	}

	if !strings.Contains(strings.ToUpper(ruleStr), "DTSTART") {
		rule.DTStart(blackoutAnchor)
	}

	ruleForClosure := rule
	return Blackout{
		Reason: reason,
		AppliesTo: func(date time.Time) bool {
			return ruleOccursOn(ruleForClosure, model.DateOf(date))
		},
	}, nil
}
