package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// SuggestionStore is the read side used to rank riders for a request
type SuggestionStore interface {
	GetRequest(ctx context.Context, requestID string) (model.Request, error)
	ListRiders(ctx context.Context) ([]model.Rider, error)
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
}

// SuggestRiders ranks every rider in the directory for the request. Riders failing the
// availability or overlap checks come back in Excluded with their reasons.
func SuggestRiders(ctx context.Context, store SuggestionStore, resolver *availability.Resolver, criteria []allocator.Criterion, logger *zap.Logger, requestID string, limit int) (model.Request, *allocator.RankOutcome, error) {
	request, err := store.GetRequest(ctx, requestID)
	if err != nil {
		return model.Request{}, nil, err
	}
	if request.Status.IsTerminal() {
		return request, nil, &model.ValidationError{
			Entity: "request", ID: request.ID, Field: "status",
			Reason: fmt.Sprintf("request is %s", request.Status),
		}
	}

	riders, err := store.ListRiders(ctx)
	if err != nil {
		return request, nil, fmt.Errorf("failed to list riders: %w", err)
	}
	assignments, err := store.ListAssignments(ctx)
	if err != nil {
		return request, nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	state := &allocator.RequestState{Request: request}
	history := make(map[string][]model.Assignment)
	for _, a := range assignments {
		if a.RequestID == request.ID {
			if a.IsActive() {
				state.Assigned = append(state.Assigned, a)
			}
			continue
		}
		history[a.RiderID] = append(history[a.RiderID], a)
	}

	for _, rider := range riders {
		available, reason := resolver.Check(ctx, rider.ID, request.EventDate, request.Window)
		state.Candidates = append(state.Candidates, &allocator.Candidate{
			Rider:       rider,
			Available:   available,
			Unavailable: reason,
			Conflicts:   conflicts.Overlapping(history[rider.ID], rider.ID, request.EventDate, request.Window, request.ID),
			History:     history[rider.ID],
		})
	}

	outcome, err := allocator.Rank(allocator.RankConfig{State: state, Criteria: criteria, Limit: limit})
	if err != nil {
		return request, nil, err
	}

	logger.Debug("Ranked riders",
		zap.String("request_id", request.ID),
		zap.Int("ranked", len(outcome.Ranked)),
		zap.Int("excluded", len(outcome.Excluded)),
		zap.Int("shortfall", outcome.Shortfall))
	return request, outcome, nil
}
