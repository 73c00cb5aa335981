package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
)

// Queue is the engine surface the HTTP API drives. *queue.Engine satisfies it.
type Queue interface {
	IssueTicket(ctx context.Context, serviceID string) (models.Ticket, error)
	CallTicket(ctx context.Context, ticketID, stationID string) (models.Ticket, error)
	StartService(ctx context.Context, ticketID string) (models.Ticket, error)
	FinishService(ctx context.Context, ticketID string) (models.Ticket, error)
	MarkAbsent(ctx context.Context, ticketID string) (models.Ticket, error)
	Recall(ctx context.Context, ticketID string) (models.Ticket, error)
	CallNext(ctx context.Context, stationID string) (models.Ticket, error)
	NextEligibleTicket(ctx context.Context, stationID string) (models.Ticket, bool, error)
	Tickets(ctx context.Context) ([]models.Ticket, error)
	RecentCalls(ctx context.Context, n int) ([]models.Ticket, error)
	DailyStats(ctx context.Context, date time.Time) (models.DailyStats, error)
	ResetDay(ctx context.Context) error
}

type Handler struct {
	queue Queue
	now   func() time.Time
}

type issueTicketRequest struct {
	ServiceID string `json:"service_id"`
}

type ticketActionRequest struct {
	StationID string `json:"station_id"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	// Now supplies the default date for stats. Defaults to time.Now.
	Now func() time.Time
}

func NewHandler(queue Queue, options Options) *Handler {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{queue: queue, now: now}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/tickets", h.handleIssueTicket)
		r.Get("/tickets", h.handleListTickets)
		r.Get("/tickets/recent", h.handleRecentCalls)
		r.Post("/tickets/{id}/actions/{action}", h.handleTicketAction)
		r.Post("/stations/{id}/call-next", h.handleCallNext)
		r.Get("/stations/{id}/next", h.handleNextTicket)
		r.Get("/stats", h.handleStats)
		r.Post("/day/reset", h.handleResetDay)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	var req issueTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	ticket, err := h.queue.IssueTicket(r.Context(), req.ServiceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validStatus(status) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown status filter")
		return
	}

	tickets, err := h.queue.Tickets(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	if status != "" {
		filtered := make([]models.Ticket, 0, len(tickets))
		for _, t := range tickets {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}
	writeJSON(w, http.StatusOK, tickets)
}

func validStatus(status string) bool {
	switch status {
	case models.StatusWaiting, models.StatusCalling, models.StatusServing, models.StatusDone, models.StatusAbsent:
		return true
	}
	return false
}

func (h *Handler) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = value
	}

	tickets, err := h.queue.RecentCalls(r.Context(), limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())
	ticketID := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	var req ticketActionRequest
	if r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	req.StationID = strings.TrimSpace(req.StationID)

	var (
		ticket models.Ticket
		err    error
	)
	ctx := r.Context()
	switch action {
	case store.ActionCall:
		if req.StationID == "" {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "station_id is required")
			return
		}
		ticket, err = h.queue.CallTicket(ctx, ticketID, req.StationID)
	case store.ActionStart:
		ticket, err = h.queue.StartService(ctx, ticketID)
	case store.ActionFinish:
		ticket, err = h.queue.FinishService(ctx, ticketID)
	case store.ActionAbsent:
		ticket, err = h.queue.MarkAbsent(ctx, ticketID)
	case store.ActionRecall:
		ticket, err = h.queue.Recall(ctx, ticketID)
	default:
		writeError(w, requestID, http.StatusNotFound, "unknown_action", "unknown ticket action")
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	ticket, err := h.queue.CallNext(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleNextTicket(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	ticket, ok, err := h.queue.NextEligibleTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	date := h.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(store.DayLayout, raw, date.Location())
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	stats, err := h.queue.DailyStats(r.Context(), date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleResetDay(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	if err := h.queue.ResetDay(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrServiceInactive):
		return http.StatusConflict, "service_inactive", "service is not active"
	case errors.Is(err, store.ErrStationNotFound):
		return http.StatusNotFound, "station_not_found", "station not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrStandardBlocked):
		return http.StatusConflict, "standard_blocked", "a preferential ticket has waited too long"
	case errors.Is(err, store.ErrQueueEmpty):
		return http.StatusConflict, "queue_empty", "no tickets available"
	case errors.Is(err, store.ErrStoreBusy):
		return http.StatusServiceUnavailable, "store_busy", "ticket store is busy, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
