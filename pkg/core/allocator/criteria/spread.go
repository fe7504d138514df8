package criteria

import (
	"math"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
)

// SpreadCriterion prefers riders whose nearest other escort is further from the request date.
//
// Veto:
//   - None
//
// Score:
//   - 1.0 when the rider has no work within the horizon either side of the request
//   - Scales linearly with the distance in days to the nearest escort, capped at the horizon
type SpreadCriterion struct {
	weight      float64
	horizonDays int
}

// NewSpreadCriterion creates a SpreadCriterion. A horizon below one day is treated as one.
func NewSpreadCriterion(weight float64, horizonDays int) *SpreadCriterion {
	return &SpreadCriterion{weight: weight, horizonDays: max(horizonDays, 1)}
}

func (c *SpreadCriterion) Name() string {
	return "Spread"
}

func (c *SpreadCriterion) Weight() float64 {
	return c.weight
}

func (c *SpreadCriterion) Veto(state *allocator.RequestState, candidate *allocator.Candidate) string {
	return ""
}

func (c *SpreadCriterion) Score(state *allocator.RequestState, candidate *allocator.Candidate) float64 {
	eventDate := state.EventDate()
	nearest := c.horizonDays
	for _, a := range candidate.WorkHistory(eventDate.AddDate(0, 0, -c.horizonDays), eventDate.AddDate(0, 0, c.horizonDays)) {
		days := int(math.Abs(a.EventDate.Sub(eventDate).Hours()/24) + 0.5)
		nearest = min(nearest, days)
	}
	return float64(nearest) / float64(c.horizonDays)
}
