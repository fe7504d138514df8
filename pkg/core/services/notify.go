package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
)

// Message is a notification addressed to one rider
type Message struct {
	Subject string
	Body    string
}

// NotifyResult records the outcome of one notification
type NotifyResult struct {
	RiderID string
	Channel string
	Sent    bool
	Err     error
}

// Notifier delivers messages to riders. The reconciler never calls it; callers fan out after a
// change has been applied.
type Notifier interface {
	Notify(ctx context.Context, rider model.Rider, message Message) NotifyResult
}

// RiderLookup resolves rider contact details
type RiderLookup interface {
	GetRider(ctx context.Context, riderID string) (model.Rider, error)
}

// NotifyReconciliation tells every rider created or cancelled by result what changed.
// One failure does not stop the others; all failures are combined into the returned error.
func NotifyReconciliation(ctx context.Context, riders RiderLookup, notifier Notifier, logger *zap.Logger, request model.Request, result *reconciler.Result) ([]NotifyResult, error) {
	if result == nil || !result.Applied {
		return nil, nil
	}

	var (
		results []NotifyResult
		errs    error
	)

	send := func(a model.Assignment, message Message) {
		rider, err := riders.GetRider(ctx, a.RiderID)
		if err != nil {
			res := NotifyResult{RiderID: a.RiderID, Err: fmt.Errorf("failed to look up rider: %w", err)}
			results = append(results, res)
			errs = multierr.Append(errs, fmt.Errorf("rider %s: %w", a.RiderID, res.Err))
			return
		}

		res := notifier.Notify(ctx, rider, message)
		results = append(results, res)
		if res.Err != nil {
			logger.Warn("Failed to notify rider",
				zap.String("rider_id", a.RiderID),
				zap.String("assignment_id", a.ID),
				zap.String("channel", res.Channel),
				zap.Error(res.Err))
			errs = multierr.Append(errs, fmt.Errorf("rider %s: %w", a.RiderID, res.Err))
			return
		}
		logger.Debug("Notified rider",
			zap.String("rider_id", a.RiderID),
			zap.String("assignment_id", a.ID),
			zap.String("channel", res.Channel))
	}

	for _, a := range result.Created {
		send(a, AssignedMessage(request, a))
	}
	for _, a := range result.Cancelled {
		send(a, CancelledMessage(request, a))
	}

	logger.Info("Sent rider notifications",
		zap.String("request_id", result.RequestID),
		zap.Int("count", len(results)),
		zap.Int("failed", len(multierr.Errors(errs))))

	return results, errs
}

// AssignedMessage tells a rider they have been put on an escort
func AssignedMessage(request model.Request, a model.Assignment) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName(a.RiderName))
	fmt.Fprintf(&b, "You have been assigned to escort %s on %s, %s.\n",
		request.ID, a.EventDate.Format("Mon Jan 02 2006"), timeRange(a.Window))
	writeRoute(&b, request)
	fmt.Fprintf(&b, "\nAssignment reference: %s\n", a.ID)
	return Message{
		Subject: fmt.Sprintf("Escort %s on %s", request.ID, model.FormatDate(a.EventDate)),
		Body:    b.String(),
	}
}

// CancelledMessage tells a rider they are no longer needed on an escort
func CancelledMessage(request model.Request, a model.Assignment) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName(a.RiderName))
	fmt.Fprintf(&b, "You are no longer needed for escort %s on %s, %s.\n",
		request.ID, a.EventDate.Format("Mon Jan 02 2006"), timeRange(a.Window))
	fmt.Fprintf(&b, "\nAssignment reference: %s\n", a.ID)
	return Message{
		Subject: fmt.Sprintf("Cancelled: escort %s on %s", request.ID, model.FormatDate(a.EventDate)),
		Body:    b.String(),
	}
}

func writeRoute(b *strings.Builder, request model.Request) {
	if request.Pickup != "" {
		fmt.Fprintf(b, "Pickup: %s\n", request.Pickup)
	}
	if request.Dropoff != "" {
		fmt.Fprintf(b, "Dropoff: %s\n", request.Dropoff)
	}
	if request.Notes != "" {
		fmt.Fprintf(b, "Notes: %s\n", request.Notes)
	}
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}

func timeRange(w model.Window) string {
	return fmt.Sprintf("%s-%s", w.Start, w.End)
}
