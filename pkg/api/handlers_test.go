package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
	"github.com/jakechorley/escort-dispatch/pkg/db/memstore"
	"github.com/jakechorley/escort-dispatch/pkg/metrics"
)

var apiNow = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

type stubNotifier struct {
	sent []string
}

func (n *stubNotifier) Notify(ctx context.Context, rider model.Rider, message services.Message) services.NotifyResult {
	n.sent = append(n.sent, rider.ID)
	return services.NotifyResult{RiderID: rider.ID, Channel: "stub", Sent: true}
}

type apiFixture struct {
	store    *memstore.Store
	notifier *stubNotifier
	router   http.Handler
}

func newAPIFixture(t *testing.T, policy reconciler.Policy) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.UpsertRiders(ctx, []model.Rider{
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Status: model.RiderActive},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Status: model.RiderActive},
	}))
	_, err := store.PutAvailabilityEntry(ctx, model.AvailabilityEntry{
		RiderID: "alice",
		Date:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Window:  model.MustWindow("08:00", "18:00"),
		Kind:    model.KindAvailable,
	})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	clock := func() time.Time { return apiNow }
	resolver := availability.NewResolver(store, zap.NewNop())
	detector := conflicts.NewDetector(store)
	rec := reconciler.New(store, resolver, detector, ids.NewAssignmentIDs(store), zap.NewNop(),
		reconciler.WithPolicy(policy),
		reconciler.WithRiderDirectory(store),
		reconciler.WithBackoff(time.Millisecond),
		reconciler.WithMetrics(metrics.NewDispatchMetrics(registry)),
		reconciler.WithClock(clock))

	notifier := &stubNotifier{}
	h := NewHandler(Deps{
		Store:      store,
		Reconciler: rec,
		Resolver:   resolver,
		Detector:   detector,
		RequestIDs: ids.NewRequestIDs(store, nil, nil),
		Notifier:   notifier,
		Gatherer:   registry,
		Logger:     zap.NewNop(),
		Now:        clock,
	})
	return &apiFixture{store: store, notifier: notifier, router: NewRouter(h, nil)}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) createRequest(t *testing.T) RequestDTO {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/requests", services.NewRequest{
		EventDate: "2024-01-15", Start: "09:00", End: "12:00", RidersNeeded: 1, Pickup: "Town Hall",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RequestDTO](t, rec)
}

func TestCreateAndGetRequest(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)

	created := f.createRequest(t)
	assert.Equal(t, "A-01-24", created.ID)
	assert.Equal(t, "Unassigned", created.Status)
	assert.Equal(t, "09:00", created.Start)

	rec := f.do(t, http.MethodGet, "/requests/A-01-24", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[RequestDetailDTO](t, rec)
	assert.Equal(t, "Town Hall", detail.Request.Pickup)
	assert.Empty(t, detail.Assignments)

	rec = f.do(t, http.MethodGet, "/requests/Z-01-24", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/requests", services.NewRequest{EventDate: "2024-01-15", Start: "12:00", End: "09:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileRiders(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)
	f.createRequest(t)

	rec := f.do(t, http.MethodPut, "/requests/A-01-24/riders", ReconcileRequest{
		Riders: []model.DesiredRider{{RiderID: "alice", RiderName: "Alice"}, {RiderID: "bob", RiderName: "Bob"}},
		Notify: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[ResultDTO](t, rec)
	assert.True(t, result.Applied)
	assert.Equal(t, "Assigned", result.Status)
	assert.Equal(t, "Alice", result.RidersAssigned)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "ASG-0001", result.Created[0].ID)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "bob", result.Rejected[0].RiderID)
	assert.Equal(t, []string{"alice"}, f.notifier.sent)

	// the same set again changes nothing
	rec = f.do(t, http.MethodPut, "/requests/A-01-24/riders", ReconcileRequest{
		Riders: []model.DesiredRider{{RiderID: "alice", RiderName: "Alice"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[ResultDTO](t, rec)
	assert.Empty(t, again.Created)
	assert.Empty(t, again.Cancelled)
	assert.Equal(t, []string{"alice"}, f.notifier.sent)
}

func TestReconcileRiders_StrictPolicyConflict(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyStrict)
	f.createRequest(t)

	rec := f.do(t, http.MethodPut, "/requests/A-01-24/riders", ReconcileRequest{
		Riders: []model.DesiredRider{{RiderID: "bob", RiderName: "Bob"}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "bob")
}

func TestTransitions(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)
	f.createRequest(t)
	rec := f.do(t, http.MethodPut, "/requests/A-01-24/riders", ReconcileRequest{
		Riders: []model.DesiredRider{{RiderID: "alice", RiderName: "Alice"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/assignments/ASG-0001/status", StatusRequest{Status: "Confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/requests/A-01-24/status", StatusRequest{Status: "Cancelled", Cascade: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ResultDTO](t, rec)
	assert.Equal(t, "Cancelled", result.Status)
	require.Len(t, result.Cancelled, 1)

	rec = f.do(t, http.MethodPost, "/requests/A-01-24/status", StatusRequest{Status: "Sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/assignments/ASG-9999/status", StatusRequest{Status: "Completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityAndConflicts(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)

	rec := f.do(t, http.MethodPost, "/availability", services.NewAvailability{
		RiderID: "bob", Weekday: "Monday", StartDate: "2024-01-01", Start: "10:00", End: "14:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[AvailabilityEntryDTO](t, rec)
	assert.Equal(t, "Monday", entry.Weekday)
	assert.Equal(t, 1, entry.Interval)

	rec = f.do(t, http.MethodGet, "/riders/bob/availability?date=2024-01-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[[]services.DayAvailability](t, rec)
	require.Len(t, days, 1)
	assert.Equal(t, []string{"[10:00,14:00)"}, days[0].Windows)

	rec = f.do(t, http.MethodGet, "/riders/bob/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/riders/bob/conflicts?date=2024-01-15&start=09:00&end=11:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conflict := decode[ConflictDTO](t, rec)
	assert.False(t, conflict.Available)
	assert.Empty(t, conflict.Conflicts)

	rec = f.do(t, http.MethodGet, "/riders/bob/conflicts?date=2024-01-15&start=11:00", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/availability", services.NewAvailability{
		RiderID: "nobody", Date: "2024-01-15", Start: "10:00", End: "14:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)
	f.createRequest(t)
	f.do(t, http.MethodPut, "/requests/A-01-24/riders", ReconcileRequest{
		Riders: []model.DesiredRider{{RiderID: "alice", RiderName: "Alice"}},
	})

	rec := f.do(t, http.MethodGet, "/report?from=2024-01-01&to=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.EqualValues(t, 1, report["requests"])

	rec = f.do(t, http.MethodGet, "/report?from=2024-02-01&to=2024-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dispatch_reconciles_total"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&model.NotFoundError{Entity: "request", ID: "x"}, http.StatusNotFound},
		{&model.ValidationError{Entity: "request", Reason: "bad"}, http.StatusBadRequest},
		{&model.ConflictError{RiderID: "bob"}, http.StatusConflict},
		{&model.ConcurrencyError{RequestID: "x", Attempts: 3}, http.StatusServiceUnavailable},
		{fmt.Errorf("failed to apply: %w", model.ErrConcurrentModification), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)
	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"eventDate":"2024-01-15","colour":"red"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSuggestions(t *testing.T) {
	f := newAPIFixture(t, reconciler.PolicyBlock)
	f.createRequest(t)

	rec := f.do(t, http.MethodGet, "/requests/A-01-24/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[SuggestionsDTO](t, rec)

	assert.Equal(t, "A-01-24", out.RequestID)
	assert.Equal(t, 1, out.Needed)
	assert.Equal(t, 0, out.Shortfall)
	require.Len(t, out.Ranked, 1)
	assert.Equal(t, "alice", out.Ranked[0].RiderID)
	require.Len(t, out.Excluded, 1)
	assert.Equal(t, "bob", out.Excluded[0].RiderID)
	assert.NotEmpty(t, out.Excluded[0].Excluded)

	rec = f.do(t, http.MethodGet, "/requests/A-01-24/suggestions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/requests/Z-01-24/suggestions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
