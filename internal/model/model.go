// Package model defines the core domain types for the raffle ticket-sales
// system.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Raffle lifecycle states.
const (
	RaffleActive = "active"
	RaffleClosed = "closed"
	RaffleDrawn  = "drawn"
)

// Ticket payment states. A ticket is created pending and transitions
// exactly once to confirmed or failed.
const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentFailed    = "failed"
)

// paymentMethods are the manual payment channels buyers can report.
var paymentMethods = map[string]struct{}{
	"zelle":      {},
	"paypal":     {},
	"binance":    {},
	"pago-movil": {},
	"stripe":     {},
}

// ValidPaymentMethod reports whether m is a known payment channel.
func ValidPaymentMethod(m string) bool {
	_, ok := paymentMethods[m]
	return ok
}

// Raffle represents a time-bounded sale of a fixed pool of numbered
// tickets. SoldTickets is denormalized: it always equals the count of
// this raffle's confirmed tickets and is only rewritten inside the
// transaction that resolves a ticket.
type Raffle struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ImageURL     string     `json:"image_url"`
	TicketPrice  float64    `json:"ticket_price"`
	Currency     string     `json:"currency"`
	TotalTickets int        `json:"total_tickets"`
	SoldTickets  int        `json:"sold_tickets"`
	Status       string     `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	DrawDate     *time.Time `json:"draw_date,omitempty"`
	WinnerName   *string    `json:"winner_name,omitempty"`
	WinnerNumber *int       `json:"winner_number,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Ended reports whether the raffle's sale window has closed at t.
func (r *Raffle) Ended(t time.Time) bool {
	return t.After(r.EndDate)
}

// Buyer identifies a purchaser. Guests are allowed: only the email is
// mandatory.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Ticket is a claim on one number within a raffle, tied to a buyer and
// a payment attempt. AmountPaid carries the per-ticket price, so that
// summing amount_paid over confirmed tickets yields raffle revenue.
type Ticket struct {
	ID               int        `json:"id"`
	RaffleID         int        `json:"raffle_id"`
	TicketNumber     int        `json:"ticket_number"`
	BuyerName        string     `json:"buyer_name"`
	BuyerEmail       string     `json:"buyer_email"`
	BuyerPhone       string     `json:"buyer_phone"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentReference string     `json:"payment_reference"`
	PaymentProof     string     `json:"payment_proof"`
	PaymentComment   string     `json:"payment_comment,omitempty"`
	AmountPaid       float64    `json:"amount_paid"`
	PurchasedAt      time.Time  `json:"purchased_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
}

// Winner records the single designated ticket selected after a raffle
// closes. At most one row exists per raffle.
type Winner struct {
	ID           int       `json:"id"`
	RaffleID     int       `json:"raffle_id"`
	TicketNumber int       `json:"ticket_number"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	AwardedAt    time.Time `json:"awarded_at"`
}

// AdminUser is a back-office operator allowed to resolve payments and
// manage raffles.
type AdminUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseRequest is the payload for buying one or more ticket numbers.
type PurchaseRequest struct {
	RaffleID         int    `json:"raffleId"`
	TicketNumbers    []int  `json:"ticketNumbers"`
	Buyer            Buyer  `json:"buyer"`
	PaymentMethod    string `json:"paymentMethod"`
	PaymentReference string `json:"paymentReference"`
	PaymentProof     string `json:"paymentProof,omitempty"`
	PaymentComment   string `json:"paymentComment,omitempty"`
}

// PurchaseResult summarises a committed purchase.
type PurchaseResult struct {
	TicketIDs   []int   `json:"ticketIds"`
	TotalAmount float64 `json:"totalAmount"`
}

// CreateRaffleRequest is the admin payload for creating a raffle.
type CreateRaffleRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image_url"`
	TicketPrice  float64   `json:"ticket_price"`
	Currency     string    `json:"currency"`
	TotalTickets int       `json:"total_tickets"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// AssignWinnerRequest is the admin payload for drawing a raffle. The
// contact fields are optional; when empty they are filled from the
// winning ticket's buyer.
type AssignWinnerRequest struct {
	RaffleID     int    `json:"raffleId"`
	TicketNumber int    `json:"ticketNumber"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// LoginRequest is the admin credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// RaffleDetail is the public view of a raffle together with the numbers
// that are currently unavailable (pending or confirmed tickets).
type RaffleDetail struct {
	Raffle       Raffle `json:"raffle"`
	TakenNumbers []int  `json:"taken_numbers"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
