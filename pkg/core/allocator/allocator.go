// Package allocator ranks riders for an escort request. Hard checks (active, available, no
// overlapping assignment) always apply; pluggable criteria add vetoes and weighted scores.
package allocator

import (
	"fmt"
	"sort"

	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
)

// RankConfig contains the inputs for a ranking
type RankConfig struct {
	// State is the request, its current riders and the candidates
	State *RequestState

	// Criteria to apply (with their weights)
	Criteria []Criterion

	// Limit caps the number of ranked candidates returned; zero means all
	Limit int
}

// RankOutcome is the result of a ranking
type RankOutcome struct {
	// Ranked candidates, best first
	Ranked []*Candidate

	// Excluded candidates with the reasons they were vetoed
	Excluded []*Candidate

	// Needed is how many more riders the request wants
	Needed int

	// Shortfall is how many of those cannot be covered by the ranked candidates
	Shortfall int
}

// Rank scores every candidate and orders the valid ones by score, then name, then rider ID
func Rank(config RankConfig) (*RankOutcome, error) {
	state := config.State
	if state == nil {
		return nil, fmt.Errorf("rank config has no request state")
	}

	outcome := &RankOutcome{
		Ranked:   []*Candidate{},
		Excluded: []*Candidate{},
		Needed:   state.Needed(),
	}

	for _, c := range state.Candidates {
		c.Score = 0
		c.Excluded = coreVetoes(state, c)
		for _, criterion := range config.Criteria {
			if reason := criterion.Veto(state, c); reason != "" {
				c.Excluded = append(c.Excluded, fmt.Sprintf("%s: %s", criterion.Name(), reason))
			}
		}
		if len(c.Excluded) > 0 {
			outcome.Excluded = append(outcome.Excluded, c)
			continue
		}
		outcome.Ranked = append(outcome.Ranked, c)
	}

	// Scores are computed once all vetoes are known, so relative criteria only compare valid riders
	rankedState := &RequestState{Request: state.Request, Assigned: state.Assigned, Candidates: outcome.Ranked}
	for _, c := range outcome.Ranked {
		for _, criterion := range config.Criteria {
			c.Score += criterion.Weight() * clamp(criterion.Score(rankedState, c))
		}
	}

	sort.SliceStable(outcome.Ranked, func(i, j int) bool {
		a, b := outcome.Ranked[i], outcome.Ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Name() != b.Name() {
			return a.Name() < b.Name()
		}
		return a.Rider.ID < b.Rider.ID
	})
	sort.SliceStable(outcome.Excluded, func(i, j int) bool {
		return outcome.Excluded[i].Rider.ID < outcome.Excluded[j].Rider.ID
	})

	if config.Limit > 0 && len(outcome.Ranked) > config.Limit {
		outcome.Ranked = outcome.Ranked[:config.Limit]
	}
	outcome.Shortfall = max(outcome.Needed-len(outcome.Ranked), 0)
	return outcome, nil
}

// coreVetoes are the checks the reconciler would apply to a new rider
func coreVetoes(state *RequestState, c *Candidate) []string {
	var reasons []string
	if !c.Rider.Status.IsActive() {
		reasons = append(reasons, fmt.Sprintf("rider is %s", c.Rider.Status))
	}
	if state.IsAssigned(c.Rider.ID) {
		reasons = append(reasons, "already assigned to this request")
	}
	if !c.Available {
		reason := c.Unavailable
		if reason == "" {
			reason = "not available"
		}
		reasons = append(reasons, reason)
	}
	if len(c.Conflicts) > 0 {
		reasons = append(reasons, "overlaps "+conflicts.Describe(c.Conflicts))
	}
	return reasons
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
