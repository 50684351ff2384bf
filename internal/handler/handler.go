// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/repository"
	"github.com/ganaxdar/autorifa/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RaffleHandler holds the public HTTP handlers for the raffle API.
type RaffleHandler struct {
	svc *service.RaffleService
	log *zap.Logger
}

// NewRaffleHandler constructs a RaffleHandler.
func NewRaffleHandler(svc *service.RaffleService, log *zap.Logger) *RaffleHandler {
	return &RaffleHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps service and repository errors to HTTP statuses:
// 400 validation/state, 401 credentials, 404 missing, 409 conflict,
// 500 everything else. Conflict and state messages pass through
// verbatim because the UI branches on them (they enumerate the
// offending ticket numbers).
func (h *RaffleHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *service.ValidationError
	var conflict *repository.TicketConflictError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrAlreadyResolved),
		errors.Is(err, repository.ErrWinnerAlreadyAssigned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrRaffleNotActive),
		errors.Is(err, repository.ErrRaffleEnded),
		errors.Is(err, repository.ErrNumberOutOfRange),
		errors.Is(err, repository.ErrTicketNotConfirmed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error("internal error",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func intURLParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

// ─── Public handlers ──────────────────────────────────────────────────────────

// Purchase handles POST /raffles/purchase
// Performs the concurrency-safe multi-number ticket purchase.
func (h *RaffleHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.Purchase(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"ticketIds":   res.TicketIDs,
		"totalAmount": res.TotalAmount,
	})
}

// ListActive handles GET /raffles/active
// Returns raffles that are active and still open for sale.
func (h *RaffleHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	raffles, err := h.svc.ListActiveRaffles(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if raffles == nil {
		raffles = []model.Raffle{}
	}
	writeJSON(w, http.StatusOK, raffles)
}

// GetRaffle handles GET /raffles/{id}
// Returns the raffle and its currently taken numbers.
func (h *RaffleHandler) GetRaffle(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid raffle id")
		return
	}

	detail, err := h.svc.GetRaffleDetail(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
