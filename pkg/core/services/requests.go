package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// RequestIDGenerator hands out request IDs (see ids.RequestIDs). Create runs insert while the ID
// namespace is still locked.
type RequestIDGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
	Create(ctx context.Context, now time.Time, insert func(ctx context.Context, id string) error) (string, error)
}

// RequestInserter is the write side of the request store used at intake
type RequestInserter interface {
	InsertRequest(ctx context.Context, request model.Request) error
}

// NewRequest is the intake form for an escort request
type NewRequest struct {
	EventDate     string `json:"eventDate"`
	Start         string `json:"start"`
	End           string `json:"end"`
	RidersNeeded  int    `json:"ridersNeeded"`
	RequesterName string `json:"requesterName"`
	Pickup        string `json:"pickup"`
	Dropoff       string `json:"dropoff"`
	Notes         string `json:"notes"`
}

// CreateRequest validates the intake form, assigns the next request ID and stores the request.
// New requests start Unassigned with no riders.
func CreateRequest(ctx context.Context, store RequestInserter, requestIDs RequestIDGenerator, logger *zap.Logger, input NewRequest, now time.Time) (model.Request, error) {
	eventDate, err := model.ParseDate(input.EventDate)
	if err != nil {
		return model.Request{}, &model.ValidationError{Entity: "request", Field: "eventDate", Reason: err.Error()}
	}
	window, err := model.NewWindow(input.Start, input.End)
	if err != nil {
		return model.Request{}, &model.ValidationError{Entity: "request", Field: "window", Reason: err.Error()}
	}

	request := model.Request{
		ID:            "pending",
		EventDate:     eventDate,
		Window:        window,
		RidersNeeded:  input.RidersNeeded,
		Status:        model.RequestUnassigned,
		RequesterName: input.RequesterName,
		Pickup:        input.Pickup,
		Dropoff:       input.Dropoff,
		Notes:         input.Notes,
		UpdatedAt:     now,
	}
	if err := model.ValidateRequest(request); err != nil {
		return model.Request{}, err
	}

	var insertErr error
	_, err = requestIDs.Create(ctx, now, func(ctx context.Context, id string) error {
		request.ID = id
		logger.Debug("Inserting request",
			zap.String("request_id", request.ID),
			zap.String("event_date", model.FormatDate(request.EventDate)),
			zap.String("window", request.Window.String()),
			zap.Int("riders_needed", request.RidersNeeded))

		if err := store.InsertRequest(ctx, request); err != nil {
			insertErr = fmt.Errorf("failed to insert request: %w", err)
			return insertErr
		}
		return nil
	})
	if insertErr != nil {
		return model.Request{}, insertErr
	}
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to generate request ID: %w", err)
	}

	logger.Info("Created request", zap.String("request_id", request.ID))
	return request, nil
}

// RequestDetail is a request together with its assignments
type RequestDetail struct {
	Request     model.Request      `json:"request"`
	Assignments []model.Assignment `json:"assignments"`
}

// RequestReader is the read side used to show one request
type RequestReader interface {
	GetRequest(ctx context.Context, requestID string) (model.Request, error)
	GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error)
}

// GetRequestDetail loads a request and every assignment on it, cancelled ones included
func GetRequestDetail(ctx context.Context, store RequestReader, requestID string) (*RequestDetail, error) {
	request, err := store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	assignments, err := store.GetAssignmentsForRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments for request %s: %w", requestID, err)
	}
	if assignments == nil {
		assignments = []model.Assignment{}
	}
	return &RequestDetail{Request: request, Assignments: assignments}, nil
}
