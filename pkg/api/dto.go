package api

import (
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// RequestDTO is the wire form of a request
type RequestDTO struct {
	ID             string `json:"id"`
	EventDate      string `json:"eventDate"`
	Start          string `json:"start"`
	End            string `json:"end"`
	RidersNeeded   int    `json:"ridersNeeded"`
	Status         string `json:"status"`
	RidersAssigned string `json:"ridersAssigned"`
	RequesterName  string `json:"requesterName,omitempty"`
	Pickup         string `json:"pickup,omitempty"`
	Dropoff        string `json:"dropoff,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Version        int64  `json:"version"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// AssignmentDTO is the wire form of an assignment
type AssignmentDTO struct {
	ID          string `json:"id"`
	RequestID   string `json:"requestId"`
	RiderID     string `json:"riderId"`
	RiderName   string `json:"riderName"`
	EventDate   string `json:"eventDate"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Status      string `json:"status"`
	CreatedDate string `json:"createdDate,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// AvailabilityEntryDTO is the wire form of a stored availability entry
type AvailabilityEntryDTO struct {
	ID          string `json:"id"`
	RiderID     string `json:"riderId"`
	Date        string `json:"date,omitempty"`
	Weekday     string `json:"weekday,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	RepeatUntil string `json:"repeatUntil,omitempty"`
	Interval    int    `json:"interval,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Kind        string `json:"kind"`
	Notes       string `json:"notes,omitempty"`
}

// RequestDetailDTO is a request with every assignment on it
type RequestDetailDTO struct {
	Request     RequestDTO      `json:"request"`
	Assignments []AssignmentDTO `json:"assignments"`
}

// ResultDTO reports what a reconcile or transition changed
type ResultDTO struct {
	RequestID      string                 `json:"requestId"`
	PreviousStatus string                 `json:"previousStatus"`
	Status         string                 `json:"status"`
	RidersAssigned string                 `json:"ridersAssigned"`
	Created        []AssignmentDTO        `json:"created"`
	Cancelled      []AssignmentDTO        `json:"cancelled"`
	Updated        []AssignmentDTO        `json:"updated"`
	Rejected       []reconciler.Rejection `json:"rejected"`
	Applied        bool                   `json:"applied"`
	Notified       []NotifyDTO            `json:"notified,omitempty"`
}

// NotifyDTO is the outcome of one rider notification
type NotifyDTO struct {
	RiderID string `json:"riderId"`
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// ConflictDTO is the wire form of a conflict check
type ConflictDTO struct {
	RiderID   string          `json:"riderId"`
	Date      string          `json:"date"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Available bool            `json:"available"`
	Reason    string          `json:"reason,omitempty"`
	Conflicts []AssignmentDTO `json:"conflicts"`
}

// SuggestionDTO is one ranked or excluded rider
type SuggestionDTO struct {
	RiderID   string   `json:"riderId"`
	RiderName string   `json:"riderName"`
	Score     float64  `json:"score"`
	Excluded  []string `json:"excluded,omitempty"`
}

// SuggestionsDTO is the response of GET /requests/{id}/suggestions
type SuggestionsDTO struct {
	RequestID string          `json:"requestId"`
	Needed    int             `json:"needed"`
	Shortfall int             `json:"shortfall"`
	Ranked    []SuggestionDTO `json:"ranked"`
	Excluded  []SuggestionDTO `json:"excluded"`
}

// ReconcileRequest is the body of PUT /requests/{id}/riders
type ReconcileRequest struct {
	Riders []model.DesiredRider `json:"riders"`
	Notify bool                 `json:"notify,omitempty"`
}

// StatusRequest is the body of the status transition endpoints
type StatusRequest struct {
	Status  string `json:"status"`
	Cascade bool   `json:"cascade,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toRequestDTO(r model.Request) RequestDTO {
	return RequestDTO{
		ID:             r.ID,
		EventDate:      model.FormatDate(r.EventDate),
		Start:          r.Window.Start.String(),
		End:            r.Window.End.String(),
		RidersNeeded:   r.RidersNeeded,
		Status:         string(r.Status),
		RidersAssigned: r.RidersAssigned,
		RequesterName:  r.RequesterName,
		Pickup:         r.Pickup,
		Dropoff:        r.Dropoff,
		Notes:          r.Notes,
		Version:        r.Version,
		UpdatedAt:      formatTimestamp(r.UpdatedAt),
	}
}

func toAssignmentDTO(a model.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:          a.ID,
		RequestID:   a.RequestID,
		RiderID:     a.RiderID,
		RiderName:   a.RiderName,
		EventDate:   model.FormatDate(a.EventDate),
		Start:       a.Window.Start.String(),
		End:         a.Window.End.String(),
		Status:      string(a.Status),
		CreatedDate: formatTimestamp(a.CreatedDate),
		Notes:       a.Notes,
	}
}

func toAssignmentDTOs(assignments []model.Assignment) []AssignmentDTO {
	out := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, toAssignmentDTO(a))
	}
	return out
}

func toEntryDTO(e model.AvailabilityEntry) AvailabilityEntryDTO {
	dto := AvailabilityEntryDTO{
		ID:      e.ID,
		RiderID: e.RiderID,
		Start:   e.Window.Start.String(),
		End:     e.Window.End.String(),
		Kind:    string(e.Kind),
		Notes:   e.Notes,
	}
	if r := e.Recurrence; r != nil {
		dto.Weekday = r.Weekday.String()
		dto.StartDate = model.FormatDate(r.StartDate)
		dto.Interval = r.EffectiveInterval()
		if !r.RepeatUntil.IsZero() {
			dto.RepeatUntil = model.FormatDate(r.RepeatUntil)
		}
	} else {
		dto.Date = model.FormatDate(e.Date)
	}
	return dto
}

func toResultDTO(r *reconciler.Result, notified []services.NotifyResult) ResultDTO {
	rejected := r.Rejected
	if rejected == nil {
		rejected = []reconciler.Rejection{}
	}
	dto := ResultDTO{
		RequestID:      r.RequestID,
		PreviousStatus: string(r.PreviousStatus),
		Status:         string(r.Status),
		RidersAssigned: r.RidersAssigned,
		Created:        toAssignmentDTOs(r.Created),
		Cancelled:      toAssignmentDTOs(r.Cancelled),
		Updated:        toAssignmentDTOs(r.Updated),
		Rejected:       rejected,
		Applied:        r.Applied,
	}
	for _, n := range notified {
		nd := NotifyDTO{RiderID: n.RiderID, Channel: n.Channel, Sent: n.Sent}
		if n.Err != nil {
			nd.Error = n.Err.Error()
		}
		dto.Notified = append(dto.Notified, nd)
	}
	return dto
}

func toConflictDTO(c *services.ConflictReport, window model.Window) ConflictDTO {
	return ConflictDTO{
		RiderID:   c.RiderID,
		Date:      c.Date,
		Start:     window.Start.String(),
		End:       window.End.String(),
		Available: c.Available,
		Reason:    c.Reason,
		Conflicts: toAssignmentDTOs(c.Conflicts),
	}
}

func toSuggestionDTOs(candidates []*allocator.Candidate) []SuggestionDTO {
	out := make([]SuggestionDTO, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, SuggestionDTO{
			RiderID:   c.Rider.ID,
			RiderName: c.Rider.Name,
			Score:     c.Score,
			Excluded:  c.Excluded,
		})
	}
	return out
}

func toSuggestionsDTO(requestID string, outcome *allocator.RankOutcome) SuggestionsDTO {
	return SuggestionsDTO{
		RequestID: requestID,
		Needed:    outcome.Needed,
		Shortfall: outcome.Shortfall,
		Ranked:    toSuggestionDTOs(outcome.Ranked),
		Excluded:  toSuggestionDTOs(outcome.Excluded),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
