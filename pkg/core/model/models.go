package model

import (
	"fmt"
	"time"
)

// Rider is a motorcycle escort rider. ID is the stable identity; Name is display only.
type Rider struct {
	ID     string `validate:"required"`
	Name   string `validate:"required"`
	Email  string `validate:"omitempty,email"`
	Phone  string
	Status RiderStatus
}

// Recurrence repeats an availability entry every Interval weeks on Weekday,
// from StartDate through RepeatUntil inclusive. A zero RepeatUntil is open-ended.
type Recurrence struct {
	Weekday     time.Weekday
	StartDate   time.Time
	RepeatUntil time.Time
	Interval    int `validate:"gte=0,lte=52"`
}

// EffectiveInterval treats an unset interval as weekly
func (r Recurrence) EffectiveInterval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// AvailabilityEntry is a declared window of availability or unavailability for one rider,
// either on a single Date or repeating per Recurrence (exactly one of the two is set).
type AvailabilityEntry struct {
	ID         string
	RiderID    string `validate:"required"`
	Date       time.Time
	Recurrence *Recurrence
	Window     Window
	Kind       AvailabilityKind
	Notes      string
	UpdatedAt  time.Time
}

// IsRecurring reports whether the entry expands from a weekly rule
func (e AvailabilityEntry) IsRecurring() bool {
	return e.Recurrence != nil
}

// Key is the natural last-write-wins key: rider, date or recurrence, and exact time range
func (e AvailabilityEntry) Key() string {
	if e.Recurrence != nil {
		return fmt.Sprintf("%s|weekly:%d:%s:%d|%s", e.RiderID, e.Recurrence.Weekday,
			FormatDate(e.Recurrence.StartDate), e.Recurrence.EffectiveInterval(), e.Window)
	}
	return fmt.Sprintf("%s|%s|%s", e.RiderID, FormatDate(e.Date), e.Window)
}

// Request is an escort request needing RidersNeeded riders on EventDate during Window
type Request struct {
	ID             string `validate:"required"`
	EventDate      time.Time
	Window         Window
	RidersNeeded   int `validate:"gte=0"`
	Status         RequestStatus
	RidersAssigned string
	RequesterName  string
	Pickup         string
	Dropoff        string
	Notes          string
	Version        int64
	UpdatedAt      time.Time
}

// Assignment links a rider to a request. EventDate and Window are copied from the request at creation.
type Assignment struct {
	ID          string `validate:"required"`
	RequestID   string `validate:"required"`
	RiderID     string `validate:"required"`
	RiderName   string
	EventDate   time.Time
	Window      Window
	Status      AssignmentStatus
	CreatedDate time.Time
	Notes       string
}

// IsActive reports whether the assignment counts for staffing and conflicts
func (a Assignment) IsActive() bool {
	return a.Status.IsActive()
}

// DesiredRider is one member of the rider set a caller wants on a request.
// Override skips the availability and conflict checks for this rider.
type DesiredRider struct {
	RiderID   string `json:"riderId"`
	RiderName string `json:"riderName"`
	Override  bool   `json:"override,omitempty"`
}

// AssignmentStatusChange moves one existing assignment to a new status
type AssignmentStatusChange struct {
	AssignmentID string
	Status       AssignmentStatus
}

// ChangeSet is everything one reconcile (or operator transition) writes. Stores apply it atomically
// and reject it with ErrConcurrentModification when the request version no longer matches.
type ChangeSet struct {
	RequestID       string
	ExpectedVersion int64
	Create          []Assignment
	Update          []AssignmentStatusChange
	Status          RequestStatus
	RidersAssigned  string
	UpdatedAt       time.Time
}

// IsEmpty reports whether applying the change set would only rewrite the request unchanged
func (c ChangeSet) IsEmpty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0
}
