package model

import (
	"fmt"
	"strings"
)

type RequestStatus string

const (
	RequestNew        RequestStatus = "New"
	RequestUnassigned RequestStatus = "Unassigned"
	RequestAssigned   RequestStatus = "Assigned"
	RequestInProgress RequestStatus = "In Progress"
	RequestCompleted  RequestStatus = "Completed"
	RequestCancelled  RequestStatus = "Cancelled"
)

var requestStatuses = []RequestStatus{
	RequestNew, RequestUnassigned, RequestAssigned, RequestInProgress, RequestCompleted, RequestCancelled,
}

func (s RequestStatus) IsValid() bool {
	for _, known := range requestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is sticky. The reconciler never overwrites a terminal request status.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// ParseRequestStatus accepts the stored spelling case-insensitively, with or without the space in "In Progress"
func ParseRequestStatus(s string) (RequestStatus, error) {
	normalized := normalizeStatus(s)
	for _, known := range requestStatuses {
		if normalizeStatus(string(known)) == normalized {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// DeriveRequestStatus is the only place a request status is computed from staffing.
// Terminal statuses are returned unchanged. A request is Assigned only when fully staffed
// with at least one rider; partial staffing stays Unassigned.
func DeriveRequestStatus(current RequestStatus, activeCount, ridersNeeded int) RequestStatus {
	if current.IsTerminal() {
		return current
	}
	if activeCount <= 0 {
		return RequestUnassigned
	}
	if activeCount < ridersNeeded {
		return RequestUnassigned
	}
	return RequestAssigned
}

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "Assigned"
	AssignmentConfirmed  AssignmentStatus = "Confirmed"
	AssignmentInProgress AssignmentStatus = "In Progress"
	AssignmentCompleted  AssignmentStatus = "Completed"
	AssignmentCancelled  AssignmentStatus = "Cancelled"
	AssignmentNoShow     AssignmentStatus = "No Show"
)

var assignmentStatuses = []AssignmentStatus{
	AssignmentAssigned, AssignmentConfirmed, AssignmentInProgress,
	AssignmentCompleted, AssignmentCancelled, AssignmentNoShow,
}

func (s AssignmentStatus) IsValid() bool {
	for _, known := range assignmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsActive reports whether the assignment still counts for staffing and conflicts
func (s AssignmentStatus) IsActive() bool {
	return s == AssignmentAssigned || s == AssignmentConfirmed || s == AssignmentInProgress
}

// IsTerminal is the complement of IsActive for known statuses
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentCompleted || s == AssignmentCancelled || s == AssignmentNoShow
}

// assignmentTransitions lists the operational moves allowed from each active status
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentAssigned:   {AssignmentConfirmed, AssignmentInProgress, AssignmentCompleted, AssignmentCancelled, AssignmentNoShow},
	AssignmentConfirmed:  {AssignmentInProgress, AssignmentCompleted, AssignmentCancelled, AssignmentNoShow},
	AssignmentInProgress: {AssignmentCompleted, AssignmentCancelled},
}

// CanTransition reports whether an assignment may move from s to next. Terminal statuses never move.
func (s AssignmentStatus) CanTransition(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	normalized := normalizeStatus(s)
	for _, known := range assignmentStatuses {
		if normalizeStatus(string(known)) == normalized {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown assignment status %q", s)
}

type AvailabilityKind string

const (
	KindAvailable   AvailabilityKind = "Available"
	KindUnavailable AvailabilityKind = "Unavailable"
)

func (k AvailabilityKind) IsValid() bool {
	return k == KindAvailable || k == KindUnavailable
}

func ParseAvailabilityKind(s string) (AvailabilityKind, error) {
	switch normalizeStatus(s) {
	case "available":
		return KindAvailable, nil
	case "unavailable":
		return KindUnavailable, nil
	}
	return "", fmt.Errorf("unknown availability kind %q", s)
}

type RiderStatus string

const (
	RiderActive   RiderStatus = "Active"
	RiderInactive RiderStatus = "Inactive"
)

// IsActive is case-insensitive because rider sheets are edited by hand
func (s RiderStatus) IsActive() bool {
	return strings.EqualFold(string(s), string(RiderActive))
}

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
