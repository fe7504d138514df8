package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/allocator/criteria"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/core/reporting"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
	"github.com/jakechorley/escort-dispatch/pkg/db"
)

// Deps are the components the handlers delegate to. Notifier and Gatherer are optional.
type Deps struct {
	Store      db.Database
	Reconciler *reconciler.Reconciler
	Resolver   *availability.Resolver
	Detector   *conflicts.Detector
	Criteria   []allocator.Criterion
	RequestIDs services.RequestIDGenerator
	Notifier   services.Notifier
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Handler serves the admin API
type Handler struct {
	store      db.Database
	reconciler *reconciler.Reconciler
	resolver   *availability.Resolver
	detector   *conflicts.Detector
	criteria   []allocator.Criterion
	requestIDs services.RequestIDGenerator
	notifier   services.Notifier
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	now        func() time.Time
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:      d.Store,
		reconciler: d.Reconciler,
		resolver:   d.Resolver,
		detector:   d.Detector,
		criteria:   d.Criteria,
		requestIDs: d.RequestIDs,
		notifier:   d.Notifier,
		gatherer:   d.Gatherer,
		logger:     d.Logger,
		now:        d.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.criteria == nil {
		h.criteria = criteria.Default()
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateRequest handles POST /requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var input services.NewRequest
	if !decodeBody(w, r, &input) {
		return
	}

	request, err := services.CreateRequest(r.Context(), h.store, h.requestIDs, h.logger, input, h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(request))
}

// GetRequest handles GET /requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	detail, err := services.GetRequestDetail(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestDetailDTO{
		Request:     toRequestDTO(detail.Request),
		Assignments: toAssignmentDTOs(detail.Assignments),
	})
}

// ReconcileRiders handles PUT /requests/{id}/riders: the body is the full desired rider set
func (h *Handler) ReconcileRiders(w http.ResponseWriter, r *http.Request) {
	var body ReconcileRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Riders == nil {
		body.Riders = []model.DesiredRider{}
	}

	requestID := chi.URLParam(r, "id")
	result, err := h.reconciler.Reconcile(r.Context(), requestID, body.Riders)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var notified []services.NotifyResult
	if body.Notify && h.notifier != nil && result.Applied {
		notified = h.notify(r, result)
	}
	writeJSON(w, http.StatusOK, toResultDTO(result, notified))
}

// notify runs after the change is committed; failures are reported in the body, not as an error status
func (h *Handler) notify(r *http.Request, result *reconciler.Result) []services.NotifyResult {
	request, err := h.store.GetRequest(r.Context(), result.RequestID)
	if err != nil {
		h.logger.Warn("Failed to load request for notifications", zap.String("request_id", result.RequestID), zap.Error(err))
		return nil
	}
	notified, err := services.NotifyReconciliation(r.Context(), h.store, h.notifier, h.logger, request, result)
	if err != nil {
		h.logger.Warn("Some notifications failed", zap.String("request_id", result.RequestID), zap.Error(err))
	}
	return notified
}

// TransitionRequest handles POST /requests/{id}/status
func (h *Handler) TransitionRequest(w http.ResponseWriter, r *http.Request) {
	var body StatusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	status, err := model.ParseRequestStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status", err)
		return
	}

	result, err := h.reconciler.TransitionRequest(r.Context(), chi.URLParam(r, "id"), status, body.Cascade)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(result, nil))
}

// TransitionAssignment handles POST /assignments/{id}/status
func (h *Handler) TransitionAssignment(w http.ResponseWriter, r *http.Request) {
	var body StatusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	status, err := model.ParseAssignmentStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status", err)
		return
	}

	result, err := h.reconciler.TransitionAssignment(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(result, nil))
}

// AddAvailability handles POST /availability
func (h *Handler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	var input services.NewAvailability
	if !decodeBody(w, r, &input) {
		return
	}

	entry, err := services.AddAvailability(r.Context(), h.store, h.logger, input, h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// GetAvailability handles GET /riders/{id}/availability?date= or ?from=&to=
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStr, toStr := q.Get("from"), q.Get("to")
	if date := q.Get("date"); date != "" {
		fromStr, toStr = date, date
	}

	from, err := model.ParseDate(fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date or from is required (YYYY-MM-DD)", err)
		return
	}
	to := from
	if toStr != "" {
		if to, err = model.ParseDate(toStr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date", err)
			return
		}
	}

	days, err := services.ShowAvailability(r.Context(), h.resolver, chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// GetConflicts handles GET /riders/{id}/conflicts?date=&start=&end=
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)", err)
		return
	}
	window, err := model.NewWindow(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start and end are required (HH:MM)", err)
		return
	}

	report, err := services.CheckRider(r.Context(), h.resolver, h.detector, chi.URLParam(r, "id"), date, window)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConflictDTO(report, window))
}

// GetSuggestions handles GET /requests/{id}/suggestions?limit=
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	_, outcome, err := services.SuggestRiders(r.Context(), h.store, h.resolver, h.criteria, h.logger, chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionsDTO(chi.URLParam(r, "id"), outcome))
}

// GetReport handles GET /report?from=&to=. Either bound may be omitted.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = model.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = model.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date", err)
			return
		}
	}

	report, err := reporting.Build(r.Context(), h.store, from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, status, "internal error", err)
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, http.StatusText(status), err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", fmt.Errorf("failed to decode body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
