package db

import (
	"fmt"
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// RiderRow is a row of the riders table. The latest row for a Rider ID wins.
type RiderRow struct {
	ID        string `ssql_header:"Rider ID" ssql_type:"text"`
	Name      string `ssql_header:"Name" ssql_type:"text"`
	Email     string `ssql_header:"Email" ssql_type:"text"`
	Phone     string `ssql_header:"Phone" ssql_type:"text"`
	Status    string `ssql_header:"Status" ssql_type:"text"`
	UpdatedAt string `ssql_header:"Updated At" ssql_type:"timestamp"`
}

func (RiderRow) TableName() string { return "riders" }

// AvailabilityRow is a row of the availability table. One-off rows set Date; recurring rows set
// Start Date (and Weekday). The latest row for an Entry ID wins.
type AvailabilityRow struct {
	ID          string `ssql_header:"Entry ID" ssql_type:"uuid"`
	RiderID     string `ssql_header:"Rider ID" ssql_type:"text"`
	Date        string `ssql_header:"Date" ssql_type:"date"`
	Weekday     int    `ssql_header:"Weekday" ssql_type:"int"`
	StartDate   string `ssql_header:"Start Date" ssql_type:"date"`
	RepeatUntil string `ssql_header:"Repeat Until" ssql_type:"date"`
	Interval    int    `ssql_header:"Interval" ssql_type:"int"`
	StartTime   string `ssql_header:"Start Time" ssql_type:"time"`
	EndTime     string `ssql_header:"End Time" ssql_type:"time"`
	Kind        string `ssql_header:"Kind" ssql_type:"text"`
	Notes       string `ssql_header:"Notes" ssql_type:"text"`
	UpdatedAt   string `ssql_header:"Updated At" ssql_type:"timestamp"`
}

func (AvailabilityRow) TableName() string { return "availability" }

// RequestRow is a row of the requests table. Every write appends a new row with the next Version;
// the first row seen for a (Request ID, Version) pair is the committed one.
type RequestRow struct {
	ID             string `ssql_header:"Request ID" ssql_type:"text"`
	EventDate      string `ssql_header:"Event Date" ssql_type:"date"`
	StartTime      string `ssql_header:"Start Time" ssql_type:"time"`
	EndTime        string `ssql_header:"End Time" ssql_type:"time"`
	RidersNeeded   int    `ssql_header:"Riders Needed" ssql_type:"int"`
	Status         string `ssql_header:"Status" ssql_type:"text"`
	RidersAssigned string `ssql_header:"Riders Assigned" ssql_type:"text"`
	RequesterName  string `ssql_header:"Requester" ssql_type:"text"`
	Pickup         string `ssql_header:"Pickup" ssql_type:"text"`
	Dropoff        string `ssql_header:"Dropoff" ssql_type:"text"`
	Notes          string `ssql_header:"Notes" ssql_type:"text"`
	Version        int64  `ssql_header:"Version" ssql_type:"int"`
	ChangeID       string `ssql_header:"Change ID" ssql_type:"uuid"`
	UpdatedAt      string `ssql_header:"Updated At" ssql_type:"timestamp"`
}

func (RequestRow) TableName() string { return "requests" }

// AssignmentRow is a row of the assignments table. A row only counts once a request row with the
// same Change ID has been committed.
type AssignmentRow struct {
	ID          string `ssql_header:"Assignment ID" ssql_type:"text"`
	RequestID   string `ssql_header:"Request ID" ssql_type:"text"`
	RiderID     string `ssql_header:"Rider ID" ssql_type:"text"`
	RiderName   string `ssql_header:"Rider Name" ssql_type:"text"`
	EventDate   string `ssql_header:"Event Date" ssql_type:"date"`
	StartTime   string `ssql_header:"Start Time" ssql_type:"time"`
	EndTime     string `ssql_header:"End Time" ssql_type:"time"`
	Status      string `ssql_header:"Status" ssql_type:"text"`
	CreatedDate string `ssql_header:"Created Date" ssql_type:"date"`
	Notes       string `ssql_header:"Notes" ssql_type:"text"`
	ChangeID    string `ssql_header:"Change ID" ssql_type:"uuid"`
}

func (AssignmentRow) TableName() string { return "assignments" }

// Models lists the row types that make up the dispatch spreadsheet
func Models() []interface{} {
	return []interface{}{RiderRow{}, AvailabilityRow{}, RequestRow{}, AssignmentRow{}}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return model.ParseDate(s)
}

func RiderToRow(r model.Rider, now time.Time) RiderRow {
	return RiderRow{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Status:    string(r.Status),
		UpdatedAt: formatTimestamp(now),
	}
}

func (row RiderRow) ToModel() model.Rider {
	status := model.RiderStatus(row.Status)
	if status == "" {
		status = model.RiderActive
	}
	return model.Rider{ID: row.ID, Name: row.Name, Email: row.Email, Phone: row.Phone, Status: status}
}

func AvailabilityToRow(e model.AvailabilityEntry) AvailabilityRow {
	row := AvailabilityRow{
		ID:        e.ID,
		RiderID:   e.RiderID,
		Date:      model.FormatDate(e.Date),
		StartTime: e.Window.Start.String(),
		EndTime:   e.Window.End.String(),
		Kind:      string(e.Kind),
		Notes:     e.Notes,
		UpdatedAt: formatTimestamp(e.UpdatedAt),
	}
	if r := e.Recurrence; r != nil {
		row.Weekday = int(r.Weekday)
		row.StartDate = model.FormatDate(r.StartDate)
		row.RepeatUntil = model.FormatDate(r.RepeatUntil)
		row.Interval = r.Interval
	}
	return row
}

func (row AvailabilityRow) ToModel() (model.AvailabilityEntry, error) {
	window, err := model.NewWindow(row.StartTime, row.EndTime)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	kind, err := model.ParseAvailabilityKind(row.Kind)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	date, err := parseOptionalDate(row.Date)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}

	entry := model.AvailabilityEntry{
		ID:        row.ID,
		RiderID:   row.RiderID,
		Date:      date,
		Window:    window,
		Kind:      kind,
		Notes:     row.Notes,
		UpdatedAt: updatedAt,
	}

	if row.StartDate != "" {
		start, err := model.ParseDate(row.StartDate)
		if err != nil {
			return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
		}
		until, err := parseOptionalDate(row.RepeatUntil)
		if err != nil {
			return model.AvailabilityEntry{}, fmt.Errorf("entry %s: %w", row.ID, err)
		}
		entry.Recurrence = &model.Recurrence{
			Weekday:     time.Weekday(row.Weekday),
			StartDate:   start,
			RepeatUntil: until,
			Interval:    row.Interval,
		}
	}
	return entry, nil
}

func RequestToRow(r model.Request, changeID string) RequestRow {
	return RequestRow{
		ID:             r.ID,
		EventDate:      model.FormatDate(r.EventDate),
		StartTime:      r.Window.Start.String(),
		EndTime:        r.Window.End.String(),
		RidersNeeded:   r.RidersNeeded,
		Status:         string(r.Status),
		RidersAssigned: r.RidersAssigned,
		RequesterName:  r.RequesterName,
		Pickup:         r.Pickup,
		Dropoff:        r.Dropoff,
		Notes:          r.Notes,
		Version:        r.Version,
		ChangeID:       changeID,
		UpdatedAt:      formatTimestamp(r.UpdatedAt),
	}
}

func (row RequestRow) ToModel() (model.Request, error) {
	date, err := model.ParseDate(row.EventDate)
	if err != nil {
		return model.Request{}, fmt.Errorf("request %s: %w", row.ID, err)
	}
	window, err := model.NewWindow(row.StartTime, row.EndTime)
	if err != nil {
		return model.Request{}, fmt.Errorf("request %s: %w", row.ID, err)
	}
	status, err := model.ParseRequestStatus(row.Status)
	if err != nil {
		return model.Request{}, fmt.Errorf("request %s: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return model.Request{}, fmt.Errorf("request %s: %w", row.ID, err)
	}
	return model.Request{
		ID:             row.ID,
		EventDate:      date,
		Window:         window,
		RidersNeeded:   row.RidersNeeded,
		Status:         status,
		RidersAssigned: row.RidersAssigned,
		RequesterName:  row.RequesterName,
		Pickup:         row.Pickup,
		Dropoff:        row.Dropoff,
		Notes:          row.Notes,
		Version:        row.Version,
		UpdatedAt:      updatedAt,
	}, nil
}

func AssignmentToRow(a model.Assignment, changeID string) AssignmentRow {
	return AssignmentRow{
		ID:          a.ID,
		RequestID:   a.RequestID,
		RiderID:     a.RiderID,
		RiderName:   a.RiderName,
		EventDate:   model.FormatDate(a.EventDate),
		StartTime:   a.Window.Start.String(),
		EndTime:     a.Window.End.String(),
		Status:      string(a.Status),
		CreatedDate: model.FormatDate(a.CreatedDate),
		Notes:       a.Notes,
		ChangeID:    changeID,
	}
}

func (row AssignmentRow) ToModel() (model.Assignment, error) {
	date, err := model.ParseDate(row.EventDate)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", row.ID, err)
	}
	window, err := model.NewWindow(row.StartTime, row.EndTime)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", row.ID, err)
	}
	status, err := model.ParseAssignmentStatus(row.Status)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", row.ID, err)
	}
	created, err := parseOptionalDate(row.CreatedDate)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", row.ID, err)
	}
	return model.Assignment{
		ID:          row.ID,
		RequestID:   row.RequestID,
		RiderID:     row.RiderID,
		RiderName:   row.RiderName,
		EventDate:   date,
		Window:      window,
		Status:      status,
		CreatedDate: created,
		Notes:       row.Notes,
	}, nil
}
