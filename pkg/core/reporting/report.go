// Package reporting aggregates requests and assignments over a date range.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

var sixty = decimal.NewFromInt(60)

// Store is the read side used by reports
type Store interface {
	ListRequests(ctx context.Context) ([]model.Request, error)
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
}

// RiderSummary is one rider's activity in the period
type RiderSummary struct {
	RiderID     string          `json:"riderId"`
	RiderName   string          `json:"riderName"`
	Assignments int             `json:"assignments"`
	Completed   int             `json:"completed"`
	NoShows     int             `json:"noShows"`
	Cancelled   int             `json:"cancelled"`
	Hours       decimal.Decimal `json:"hours"`
}

// Report covers requests whose event date falls in [From, To]
type Report struct {
	From                time.Time                      `json:"from"`
	To                  time.Time                      `json:"to"`
	Requests            int                            `json:"requests"`
	RequestsByStatus    map[model.RequestStatus]int    `json:"requestsByStatus"`
	UnderStaffed        []string                       `json:"underStaffed"`
	AssignmentsByStatus map[model.AssignmentStatus]int `json:"assignmentsByStatus"`
	Riders              []RiderSummary                 `json:"riders"`
	TotalHours          decimal.Decimal                `json:"totalHours"`
}

// Build aggregates the period. A zero from or to leaves that side open.
// Hours count completed and in-progress assignments only.
func Build(ctx context.Context, store Store, from, to time.Time) (*Report, error) {
	if !from.IsZero() && !to.IsZero() && model.DateOf(to).Before(model.DateOf(from)) {
		return nil, &model.ValidationError{Entity: "report", Field: "to", Reason: "end date is before start date"}
	}

	requests, err := store.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	assignments, err := store.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	report := &Report{
		From:                from,
		To:                  to,
		RequestsByStatus:    make(map[model.RequestStatus]int),
		UnderStaffed:        []string{},
		AssignmentsByStatus: make(map[model.AssignmentStatus]int),
		Riders:              []RiderSummary{},
		TotalHours:          decimal.Zero,
	}

	inRange := func(d time.Time) bool {
		day := model.DateOf(d)
		if !from.IsZero() && day.Before(model.DateOf(from)) {
			return false
		}
		if !to.IsZero() && day.After(model.DateOf(to)) {
			return false
		}
		return true
	}

	for _, r := range requests {
		if !inRange(r.EventDate) {
			continue
		}
		report.Requests++
		report.RequestsByStatus[r.Status]++
		if r.Status == model.RequestUnassigned {
			report.UnderStaffed = append(report.UnderStaffed, r.ID)
		}
	}
	sort.Strings(report.UnderStaffed)

	riders := make(map[string]*RiderSummary)
	for _, a := range assignments {
		if !inRange(a.EventDate) {
			continue
		}
		report.AssignmentsByStatus[a.Status]++

		summary, ok := riders[a.RiderID]
		if !ok {
			summary = &RiderSummary{RiderID: a.RiderID, RiderName: a.RiderName, Hours: decimal.Zero}
			riders[a.RiderID] = summary
		}
		if summary.RiderName == "" {
			summary.RiderName = a.RiderName
		}

		summary.Assignments++
		switch a.Status {
		case model.AssignmentCompleted:
			summary.Completed++
			summary.Hours = summary.Hours.Add(hours(a.Window))
		case model.AssignmentInProgress:
			summary.Hours = summary.Hours.Add(hours(a.Window))
		case model.AssignmentNoShow:
			summary.NoShows++
		case model.AssignmentCancelled:
			summary.Cancelled++
		}
	}

	for _, s := range riders {
		s.Hours = s.Hours.Round(2)
		report.TotalHours = report.TotalHours.Add(s.Hours)
		report.Riders = append(report.Riders, *s)
	}
	sort.Slice(report.Riders, func(i, j int) bool {
		if c := report.Riders[i].Hours.Cmp(report.Riders[j].Hours); c != 0 {
			return c > 0
		}
		if report.Riders[i].RiderName != report.Riders[j].RiderName {
			return report.Riders[i].RiderName < report.Riders[j].RiderName
		}
		return report.Riders[i].RiderID < report.Riders[j].RiderID
	})

	return report, nil
}

func hours(w model.Window) decimal.Decimal {
	return decimal.NewFromInt(int64(w.Duration() / time.Minute)).Div(sixty)
}
