// Package criteria holds the ranking criteria used when suggesting riders for a request
package criteria

import "github.com/jakechorley/escort-dispatch/pkg/core/allocator"

// Default returns the criteria used by the dispatcher
func Default() []allocator.Criterion {
	return []allocator.Criterion{
		NewWorkloadCriterion(3, 28),
		NewSpreadCriterion(1, 7),
		NewDailyLimitCriterion(1, 2),
	}
}
