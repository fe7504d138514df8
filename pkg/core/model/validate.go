package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateAvailabilityEntry rejects malformed entries before they reach a store
func ValidateAvailabilityEntry(e AvailabilityEntry) error {
	if err := structError("availability entry", e.ID, e); err != nil {
		return err
	}
	if !e.Window.Valid() {
		return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "window",
			Reason: fmt.Sprintf("end must be after start, got %s", e.Window)}
	}
	if !e.Kind.IsValid() {
		return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "kind",
			Reason: fmt.Sprintf("unknown kind %q", e.Kind)}
	}

	hasDate := !e.Date.IsZero()
	switch {
	case hasDate && e.Recurrence != nil:
		return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "date",
			Reason: "an entry is either one-off or recurring, not both"}
	case !hasDate && e.Recurrence == nil:
		return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "date",
			Reason: "either a date or a recurrence is required"}
	}

	if r := e.Recurrence; r != nil {
		if r.Weekday < 0 || r.Weekday > 6 {
			return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "recurrence.weekday",
				Reason: fmt.Sprintf("weekday out of range: %d", r.Weekday)}
		}
		if r.StartDate.IsZero() {
			return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "recurrence.startDate",
				Reason: "start date is required"}
		}
		if !r.RepeatUntil.IsZero() && r.RepeatUntil.Before(r.StartDate) {
			return &ValidationError{Entity: "availability entry", ID: e.ID, Field: "recurrence.repeatUntil",
				Reason: "repeat-until is before the start date"}
		}
	}

	return nil
}

// ValidateRequest checks a request at intake
func ValidateRequest(r Request) error {
	if err := structError("request", r.ID, r); err != nil {
		return err
	}
	if r.EventDate.IsZero() {
		return &ValidationError{Entity: "request", ID: r.ID, Field: "eventDate", Reason: "event date is required"}
	}
	if !r.Window.Valid() {
		return &ValidationError{Entity: "request", ID: r.ID, Field: "window",
			Reason: fmt.Sprintf("end must be after start, got %s", r.Window)}
	}
	if !r.Status.IsValid() {
		return &ValidationError{Entity: "request", ID: r.ID, Field: "status",
			Reason: fmt.Sprintf("unknown status %q", r.Status)}
	}
	return nil
}

// ValidateRider checks a rider record
func ValidateRider(r Rider) error {
	return structError("rider", r.ID, r)
}

// structError runs the struct tags and converts the first failure into a ValidationError
func structError(entity, id string, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fmt.Sprintf("failed '%s' check", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed '%s=%s' check (got %v)", fe.Tag(), fe.Param(), fe.Value())
		}
		return &ValidationError{Entity: entity, ID: id, Field: fe.Namespace(), Reason: reason}
	}

	return &ValidationError{Entity: entity, ID: id, Reason: err.Error()}
}
