package criteria

import (
	"fmt"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// DailyLimitCriterion caps how many escorts a rider is suggested for on a single day.
//
// Veto:
//   - Rider already has MaxPerDay active escorts on the request date
//
// Score:
//   - Prefers riders with fewer escorts that day
type DailyLimitCriterion struct {
	weight    float64
	maxPerDay int
}

// NewDailyLimitCriterion creates a DailyLimitCriterion. maxPerDay below one disables the veto.
func NewDailyLimitCriterion(weight float64, maxPerDay int) *DailyLimitCriterion {
	return &DailyLimitCriterion{weight: weight, maxPerDay: maxPerDay}
}

func (c *DailyLimitCriterion) Name() string {
	return "DailyLimit"
}

func (c *DailyLimitCriterion) Weight() float64 {
	return c.weight
}

func (c *DailyLimitCriterion) Veto(state *allocator.RequestState, candidate *allocator.Candidate) string {
	if c.maxPerDay < 1 {
		return ""
	}
	if n := sameDay(state, candidate); n >= c.maxPerDay {
		return fmt.Sprintf("already has %d escort(s) on %s", n, model.FormatDate(state.Request.EventDate))
	}
	return ""
}

func (c *DailyLimitCriterion) Score(state *allocator.RequestState, candidate *allocator.Candidate) float64 {
	n := sameDay(state, candidate)
	if c.maxPerDay < 1 {
		return 1 / float64(n+1)
	}
	return 1 - float64(n)/float64(c.maxPerDay)
}

func sameDay(state *allocator.RequestState, candidate *allocator.Candidate) int {
	n := 0
	for _, a := range candidate.History {
		if a.IsActive() && model.SameDate(a.EventDate, state.Request.EventDate) {
			n++
		}
	}
	return n
}
