package handler

import (
	"net/http"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/service"
	"go.uber.org/zap"
)

// AdminHandler holds the back-office HTTP handlers: payment resolution,
// raffle management, and winner assignment. All routes behind it
// require an admin token (see AdminOnly middleware).
type AdminHandler struct {
	*RaffleHandler
	auth *service.AuthService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(svc *service.RaffleService, auth *service.AuthService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		RaffleHandler: NewRaffleHandler(svc, log),
		auth:          auth,
	}
}

// Login handles POST /auth/login
// Verifies admin credentials and issues a bearer token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{Token: token})
}

// GetTicket handles GET /admin/tickets/{ticketID}
// Returns a single ticket so the admin can review a payment before
// resolving it.
func (h *AdminHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "ticketID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	ticket, err := h.svc.GetTicket(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// ConfirmPayment handles PUT /admin/tickets/{ticketID}/confirm
// Transitions a pending ticket to confirmed and refreshes the raffle's
// sold-ticket counter.
func (h *AdminHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "ticketID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	ticket, err := h.svc.ConfirmPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ticket": ticket})
}

// RejectPayment handles PUT /admin/tickets/{ticketID}/reject
// Transitions a pending ticket to failed, freeing its number.
func (h *AdminHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "ticketID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	ticket, err := h.svc.RejectPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ticket": ticket})
}

// CreateRaffle handles POST /admin/raffles
func (h *AdminHandler) CreateRaffle(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRaffleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	raffle, err := h.svc.CreateRaffle(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, raffle)
}

// UpdateRaffleStatus handles PUT /admin/raffles/{id}/status
func (h *AdminHandler) UpdateRaffleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid raffle id")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.UpdateRaffleStatus(r.Context(), id, req.Status); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListRaffleTickets handles GET /admin/raffles/{id}/tickets
// Returns every ticket of the raffle for payment review.
func (h *AdminHandler) ListRaffleTickets(w http.ResponseWriter, r *http.Request) {
	id, err := intURLParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid raffle id")
		return
	}

	tickets, err := h.svc.ListRaffleTickets(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// AssignWinner handles POST /admin/winners
func (h *AdminHandler) AssignWinner(w http.ResponseWriter, r *http.Request) {
	var req model.AssignWinnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	winner, err := h.svc.AssignWinner(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, winner)
}
