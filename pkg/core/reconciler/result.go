package reconciler

import (
	"sort"
	"strings"

	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Rejection is a desired rider that was not assigned because a check failed
type Rejection struct {
	RiderID   string   `json:"riderId"`
	RiderName string   `json:"riderName"`
	Reasons   []string `json:"reasons"`
}

// Result summarises what a reconcile or transition changed, for caller-side notification
type Result struct {
	RequestID      string              `json:"requestId"`
	PreviousStatus model.RequestStatus `json:"previousStatus"`
	Status         model.RequestStatus `json:"status"`
	RidersAssigned string              `json:"ridersAssigned"`
	Created        []model.Assignment  `json:"created"`
	Cancelled      []model.Assignment  `json:"cancelled"`
	Updated        []model.Assignment  `json:"updated,omitempty"`
	Rejected       []Rejection         `json:"rejected,omitempty"`
	Applied        bool                `json:"applied"`
}

func (r *Result) CreatedIDs() []string {
	return assignmentIDs(r.Created)
}

func (r *Result) CancelledIDs() []string {
	return assignmentIDs(r.Cancelled)
}

// Changed reports whether any assignment was created, cancelled or updated
func (r *Result) Changed() bool {
	return len(r.Created) > 0 || len(r.Cancelled) > 0 || len(r.Updated) > 0
}

func assignmentIDs(assignments []model.Assignment) []string {
	out := make([]string, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.ID)
	}
	return out
}

// RidersAssignedDisplay joins the names of the active assignments ordered by assignment ID
func RidersAssignedDisplay(assignments []model.Assignment) string {
	active := make([]model.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	sortByID(active)

	names := make([]string, 0, len(active))
	for _, a := range active {
		name := a.RiderName
		if name == "" {
			name = a.RiderID
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// sortByID orders ASG-#### IDs numerically so ASG-10000 follows ASG-9999
func sortByID(assignments []model.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		ni, okI := ids.ParseAssignmentID(assignments[i].ID)
		nj, okJ := ids.ParseAssignmentID(assignments[j].ID)
		if okI && okJ && ni != nj {
			return ni < nj
		}
		if okI != okJ {
			return okI
		}
		return assignments[i].ID < assignments[j].ID
	})
}
