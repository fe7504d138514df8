package criteria

import (
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
)

// WorkloadCriterion shares escorts out evenly by favouring riders who have ridden fewer hours
// in the lookback period before the request.
//
// Veto:
//   - None
//
// Score:
//   - 1.0 for the least-worked candidate, 0.0 for the most-worked
//   - Relative to the other valid candidates, so everyone scores 1.0 when nobody has worked
type WorkloadCriterion struct {
	weight       float64
	lookbackDays int
}

// NewWorkloadCriterion creates a WorkloadCriterion looking back lookbackDays from the request date
func NewWorkloadCriterion(weight float64, lookbackDays int) *WorkloadCriterion {
	return &WorkloadCriterion{weight: weight, lookbackDays: max(lookbackDays, 1)}
}

func (c *WorkloadCriterion) Name() string {
	return "Workload"
}

func (c *WorkloadCriterion) Weight() float64 {
	return c.weight
}

func (c *WorkloadCriterion) Veto(state *allocator.RequestState, candidate *allocator.Candidate) string {
	return ""
}

func (c *WorkloadCriterion) Score(state *allocator.RequestState, candidate *allocator.Candidate) float64 {
	var most time.Duration
	for _, other := range state.Candidates {
		most = max(most, c.hours(state, other))
	}
	if most == 0 {
		return 1
	}
	return 1 - float64(c.hours(state, candidate))/float64(most)
}

func (c *WorkloadCriterion) hours(state *allocator.RequestState, candidate *allocator.Candidate) time.Duration {
	eventDate := state.EventDate()
	var total time.Duration
	for _, a := range candidate.WorkHistory(eventDate.AddDate(0, 0, -c.lookbackDays), eventDate) {
		total += a.Window.Duration()
	}
	return total
}
