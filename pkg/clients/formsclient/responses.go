package formsclient

import (
	"context"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/forms/v1"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Date formats accepted in answers: the form's checkbox labels and plain ISO dates
var answerDateLayouts = []string{"Mon Jan 2 2006", model.DateLayout}

// AvailabilityResponse is one rider's latest answer to the availability form
type AvailabilityResponse struct {
	ResponseID string
	Email      string
	Submitted  time.Time

	// UnavailableDates are the dates the rider ticked as unable to ride, sorted
	UnavailableDates []time.Time

	// Unparsed holds answers that were neither a date nor Yes/No
	Unparsed []string
}

// GetAvailabilityResponses fetches the form's responses submitted at or after since (zero means
// all of them) and keeps the latest submission per respondent email
func (c *Client) GetAvailabilityResponses(ctx context.Context, formID string, since time.Time) ([]AvailabilityResponse, error) {
	raw, err := c.list(ctx, formID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]AvailabilityResponse)
	for _, r := range raw {
		parsed, ok := parseResponse(r)
		if !ok {
			continue
		}
		if !since.IsZero() && parsed.Submitted.Before(since) {
			continue
		}
		key := strings.ToLower(parsed.Email)
		if prev, seen := latest[key]; seen && prev.Submitted.After(parsed.Submitted) {
			continue
		}
		latest[key] = parsed
	}

	out := make([]AvailabilityResponse, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Email) < strings.ToLower(out[j].Email) })
	return out, nil
}

// parseResponse reads a raw form response. Responses without a respondent email cannot be matched
// to a rider and are dropped.
func parseResponse(r *forms.FormResponse) (AvailabilityResponse, bool) {
	email := strings.TrimSpace(r.RespondentEmail)
	if email == "" {
		return AvailabilityResponse{}, false
	}

	submitted, err := time.Parse(time.RFC3339, r.LastSubmittedTime)
	if err != nil {
		submitted, _ = time.Parse(time.RFC3339, r.CreateTime)
	}

	out := AvailabilityResponse{ResponseID: r.ResponseId, Email: email, Submitted: submitted}
	seen := make(map[time.Time]bool)

	// Answers is a map keyed by question ID; sort keys so Unparsed is stable
	questionIDs := make([]string, 0, len(r.Answers))
	for id := range r.Answers {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	for _, id := range questionIDs {
		answer := r.Answers[id]
		if answer.TextAnswers == nil {
			continue
		}
		for _, text := range answer.TextAnswers.Answers {
			value := strings.TrimSpace(text.Value)
			if value == "" || strings.EqualFold(value, "yes") || strings.EqualFold(value, "no") {
				continue
			}
			date, ok := parseAnswerDate(value)
			if !ok {
				out.Unparsed = append(out.Unparsed, value)
				continue
			}
			if !seen[date] {
				seen[date] = true
				out.UnavailableDates = append(out.UnavailableDates, date)
			}
		}
	}

	sort.Slice(out.UnavailableDates, func(i, j int) bool { return out.UnavailableDates[i].Before(out.UnavailableDates[j]) })
	return out, true
}

func parseAnswerDate(value string) (time.Time, bool) {
	for _, layout := range answerDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return model.DateOf(t), true
		}
	}
	return time.Time{}, false
}
