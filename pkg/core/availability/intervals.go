package availability

import (
	"sort"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Union merges overlapping or touching windows into a disjoint, time-ordered list.
// Invalid (empty or inverted) windows are dropped.
func Union(windows []model.Window) []model.Window {
	valid := make([]model.Window, 0, len(windows))
	for _, w := range windows {
		if w.Valid() {
			valid = append(valid, w)
		}
	}
	if len(valid) == 0 {
		return []model.Window{}
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})

	merged := []model.Window{valid[0]}
	for _, w := range valid[1:] {
		last := &merged[len(merged)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// Subtract removes every cut window from the union of base windows.
// Each overlapping cut truncates or splits a base window into zero, one or two remainders.
func Subtract(base, cuts []model.Window) []model.Window {
	result := Union(base)
	for _, cut := range Union(cuts) {
		next := make([]model.Window, 0, len(result)+1)
		for _, w := range result {
			next = append(next, subtractOne(w, cut)...)
		}
		result = next
	}
	return result
}

func subtractOne(w, cut model.Window) []model.Window {
	if !w.Overlaps(cut) {
		return []model.Window{w}
	}
	remainders := make([]model.Window, 0, 2)
	if cut.Start > w.Start {
		remainders = append(remainders, model.Window{Start: w.Start, End: cut.Start})
	}
	if cut.End < w.End {
		remainders = append(remainders, model.Window{Start: cut.End, End: w.End})
	}
	return remainders
}

// Covers reports whether target lies entirely inside one of the (disjoint) windows
func Covers(windows []model.Window, target model.Window) bool {
	for _, w := range windows {
		if w.Contains(target) {
			return true
		}
	}
	return false
}
