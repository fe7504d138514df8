package formsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/forms/v1"
)

func response(id, email, submitted string, answers ...string) *forms.FormResponse {
	texts := make([]*forms.TextAnswer, 0, len(answers))
	for _, a := range answers {
		texts = append(texts, &forms.TextAnswer{Value: a})
	}
	return &forms.FormResponse{
		ResponseId:        id,
		RespondentEmail:   email,
		LastSubmittedTime: submitted,
		Answers: map[string]forms.Answer{
			"q1": {QuestionId: "q1", TextAnswers: &forms.TextAnswers{Answers: texts}},
		},
	}
}

func clientWith(responses ...*forms.FormResponse) *Client {
	return &Client{list: func(ctx context.Context, formID string) ([]*forms.FormResponse, error) {
		return responses, nil
	}}
}

func TestGetAvailabilityResponses_ParsesDates(t *testing.T) {
	c := clientWith(response("r1", "alice@example.com", "2024-01-05T10:00:00Z",
		"No", "Tue Jan 16 2024", "2024-01-15", "Tue Jan 16 2024", "sometime"))

	got, err := c.GetAvailabilityResponses(context.Background(), "form-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "r1", r.ResponseID)
	assert.Equal(t, "alice@example.com", r.Email)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
	}, r.UnavailableDates)
	assert.Equal(t, []string{"sometime"}, r.Unparsed)
}

func TestGetAvailabilityResponses_LatestPerEmail(t *testing.T) {
	c := clientWith(
		response("r2", "Bob@example.com", "2024-01-06T10:00:00Z", "2024-01-20"),
		response("r1", "bob@example.com", "2024-01-04T10:00:00Z", "2024-01-19"),
		response("r3", "alice@example.com", "2024-01-01T10:00:00Z", "Yes"),
		response("r4", "", "2024-01-06T10:00:00Z", "2024-01-21"),
	)

	got, err := c.GetAvailabilityResponses(context.Background(), "form-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice@example.com", got[0].Email)
	assert.Empty(t, got[0].UnavailableDates)
	assert.Equal(t, "r2", got[1].ResponseID)

	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	got, err = c.GetAvailabilityResponses(context.Background(), "form-1", since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ResponseID)
}

func TestGetAvailabilityResponses_ListError(t *testing.T) {
	c := &Client{list: func(ctx context.Context, formID string) ([]*forms.FormResponse, error) {
		return nil, errors.New("quota exceeded")
	}}
	_, err := c.GetAvailabilityResponses(context.Background(), "form-1", time.Time{})
	assert.ErrorContains(t, err, "quota exceeded")
}
