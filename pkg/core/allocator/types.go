package allocator

import (
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Candidate is one rider being considered for a request
type Candidate struct {
	Rider model.Rider

	// Available is the resolver's verdict for the request window; Unavailable holds its reason
	Available   bool
	Unavailable string

	// Conflicts are the rider's active assignments on other requests that overlap the window
	Conflicts []model.Assignment

	// History is the rider's assignments on other requests, any status.
	// Criteria use it for workload and spacing.
	History []model.Assignment

	// Score is the weighted criteria total, filled in by Rank
	Score float64

	// Excluded lists the veto reasons, filled in by Rank
	Excluded []string
}

// Name is the rider's display name, falling back to the ID
func (c *Candidate) Name() string {
	if c.Rider.Name != "" {
		return c.Rider.Name
	}
	return c.Rider.ID
}

// RequestState is everything criteria may look at while ranking
type RequestState struct {
	// Request being staffed
	Request model.Request

	// Assigned are the request's current active assignments
	Assigned []model.Assignment

	// Candidates under consideration (ranked and excluded)
	Candidates []*Candidate
}

// Needed is how many more riders the request wants
func (s *RequestState) Needed() int {
	return max(s.Request.RidersNeeded-len(s.Assigned), 0)
}

// IsAssigned reports whether the rider already has an active assignment on the request
func (s *RequestState) IsAssigned(riderID string) bool {
	for _, a := range s.Assigned {
		if a.RiderID == riderID {
			return true
		}
	}
	return false
}

// EventDate is the request's calendar date
func (s *RequestState) EventDate() time.Time {
	return model.DateOf(s.Request.EventDate)
}

// countsForWorkload reports whether an assignment represents work the rider did or will do
func countsForWorkload(a model.Assignment) bool {
	return a.IsActive() || a.Status == model.AssignmentCompleted
}

// WorkHistory returns the candidate's assignments that count as work, optionally limited to
// event dates within [from, to]
func (c *Candidate) WorkHistory(from, to time.Time) []model.Assignment {
	var out []model.Assignment
	for _, a := range c.History {
		if !countsForWorkload(a) {
			continue
		}
		day := model.DateOf(a.EventDate)
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out
}
