// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/notify"
	"github.com/ganaxdar/autorifa/internal/repository"
	"go.uber.org/zap"
)

// RaffleStore is the persistence surface the service needs for raffles.
type RaffleStore interface {
	Create(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error)
	GetByID(ctx context.Context, id int) (*model.Raffle, error)
	ListActive(ctx context.Context, now time.Time) ([]model.Raffle, error)
	UpdateStatus(ctx context.Context, id int, status string) error
}

// TicketStore is the persistence surface for tickets. Purchase and
// Resolve must be atomic: implementations guarantee that concurrent
// purchases of the same number yield exactly one winner, and that a
// ticket leaves the pending state exactly once.
type TicketStore interface {
	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error)
	Resolve(ctx context.Context, ticketID int, target string) (*model.Ticket, error)
	GetByID(ctx context.Context, id int) (*model.Ticket, error)
	ListByRaffle(ctx context.Context, raffleID int) ([]model.Ticket, error)
	TakenNumbers(ctx context.Context, raffleID int) ([]int, error)
}

// WinnerStore is the persistence surface for winner assignment.
type WinnerStore interface {
	Assign(ctx context.Context, req model.AssignWinnerRequest) (*model.Winner, error)
}

// RaffleService orchestrates the purchase, payment-resolution, and
// winner flows.
type RaffleService struct {
	raffles RaffleStore
	tickets TicketStore
	winners WinnerStore
	notify  *notify.Dispatcher
	log     *zap.Logger
}

// NewRaffleService constructs a RaffleService with its dependencies.
func NewRaffleService(
	raffles RaffleStore,
	tickets TicketStore,
	winners WinnerStore,
	dispatcher *notify.Dispatcher,
	log *zap.Logger,
) *RaffleService {
	return &RaffleService{
		raffles: raffles,
		tickets: tickets,
		winners: winners,
		notify:  dispatcher,
		log:     log,
	}
}

// ValidationError marks user-correctable input problems (HTTP 400).
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Purchase validates the request and runs the atomic ticket allocation.
// On success it fires the pending-purchase notifications; those are
// best-effort and cannot fail the committed purchase.
func (s *RaffleService) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	req.Buyer.Name = strings.TrimSpace(req.Buyer.Name)
	req.Buyer.Email = strings.TrimSpace(strings.ToLower(req.Buyer.Email))
	req.Buyer.Phone = strings.TrimSpace(req.Buyer.Phone)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)

	if len(req.TicketNumbers) == 0 {
		return nil, validationf("at least one ticket number is required")
	}
	seen := make(map[int]struct{}, len(req.TicketNumbers))
	for _, n := range req.TicketNumbers {
		if _, dup := seen[n]; dup {
			return nil, validationf("duplicate ticket number %d in request", n)
		}
		seen[n] = struct{}{}
	}
	if req.Buyer.Email == "" {
		return nil, validationf("buyer email is required")
	}
	if !isValidEmail(req.Buyer.Email) {
		return nil, validationf("buyer email is not a valid email address")
	}
	if !model.ValidPaymentMethod(req.PaymentMethod) {
		return nil, validationf("unknown payment method %q", req.PaymentMethod)
	}
	if req.PaymentReference == "" {
		return nil, validationf("payment reference is required")
	}

	res, err := s.tickets.Purchase(ctx, req)
	if err != nil {
		// Surface domain errors directly so handlers can set correct
		// HTTP status.
		var conflict *repository.TicketConflictError
		if errors.Is(err, repository.ErrNotFound) ||
			errors.Is(err, repository.ErrRaffleNotActive) ||
			errors.Is(err, repository.ErrRaffleEnded) ||
			errors.Is(err, repository.ErrNumberOutOfRange) ||
			errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("purchase tickets: %w", err)
	}

	s.log.Info("purchase committed",
		zap.Int("raffle_id", req.RaffleID),
		zap.Ints("numbers", req.TicketNumbers),
		zap.String("buyer", req.Buyer.Email),
		zap.Float64("total", res.TotalAmount),
	)

	if raffle, lookupErr := s.raffles.GetByID(ctx, req.RaffleID); lookupErr == nil {
		s.notify.PurchasePending(raffle, req, res)
	} else {
		s.log.Warn("skipping purchase notification", zap.Error(lookupErr))
	}

	return res, nil
}

// ConfirmPayment transitions a pending ticket to confirmed.
func (s *RaffleService) ConfirmPayment(ctx context.Context, ticketID int) (*model.Ticket, error) {
	return s.resolvePayment(ctx, ticketID, model.PaymentConfirmed)
}

// RejectPayment transitions a pending ticket to failed, releasing its
// number for re-purchase.
func (s *RaffleService) RejectPayment(ctx context.Context, ticketID int) (*model.Ticket, error) {
	return s.resolvePayment(ctx, ticketID, model.PaymentFailed)
}

func (s *RaffleService) resolvePayment(ctx context.Context, ticketID int, target string) (*model.Ticket, error) {
	ticket, err := s.tickets.Resolve(ctx, ticketID, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) ||
			errors.Is(err, repository.ErrAlreadyResolved) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve payment: %w", err)
	}

	s.log.Info("payment resolved",
		zap.Int("ticket_id", ticket.ID),
		zap.Int("raffle_id", ticket.RaffleID),
		zap.Int("number", ticket.TicketNumber),
		zap.String("status", ticket.PaymentStatus),
	)

	if raffle, lookupErr := s.raffles.GetByID(ctx, ticket.RaffleID); lookupErr == nil {
		if target == model.PaymentConfirmed {
			s.notify.PaymentConfirmed(raffle, ticket)
		} else {
			s.notify.PaymentRejected(raffle, ticket)
		}
	} else {
		s.log.Warn("skipping resolution notification", zap.Error(lookupErr))
	}

	return ticket, nil
}

// AssignWinner draws the raffle for the given confirmed ticket number.
func (s *RaffleService) AssignWinner(ctx context.Context, req model.AssignWinnerRequest) (*model.Winner, error) {
	if req.TicketNumber < 0 {
		return nil, validationf("ticket number must not be negative")
	}
	winner, err := s.winners.Assign(ctx, req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) ||
			errors.Is(err, repository.ErrWinnerAlreadyAssigned) ||
			errors.Is(err, repository.ErrTicketNotConfirmed) {
			return nil, err
		}
		return nil, fmt.Errorf("assign winner: %w", err)
	}

	s.log.Info("winner assigned",
		zap.Int("raffle_id", winner.RaffleID),
		zap.Int("number", winner.TicketNumber),
	)

	if raffle, lookupErr := s.raffles.GetByID(ctx, winner.RaffleID); lookupErr == nil {
		s.notify.WinnerAssigned(raffle, winner)
	} else {
		s.log.Warn("skipping winner notification", zap.Error(lookupErr))
	}

	return winner, nil
}

// CreateRaffle validates the admin request and creates an active raffle.
func (s *RaffleService) CreateRaffle(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, validationf("raffle title is required")
	}
	if req.TicketPrice <= 0 {
		return nil, validationf("ticket price must be positive")
	}
	if req.TotalTickets <= 0 {
		return nil, validationf("total tickets must be a positive integer")
	}
	if req.TotalTickets > 100_000 {
		return nil, validationf("total tickets cannot exceed 100,000")
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now().UTC()
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, validationf("end date must be after start date")
	}
	return s.raffles.Create(ctx, req)
}

// ListActiveRaffles returns raffles open for sale right now.
func (s *RaffleService) ListActiveRaffles(ctx context.Context) ([]model.Raffle, error) {
	return s.raffles.ListActive(ctx, time.Now())
}

// GetRaffleDetail returns a raffle together with its taken numbers.
func (s *RaffleService) GetRaffleDetail(ctx context.Context, id int) (*model.RaffleDetail, error) {
	raffle, err := s.raffles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get raffle: %w", err)
	}
	taken, err := s.tickets.TakenNumbers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get taken numbers: %w", err)
	}
	if taken == nil {
		taken = []int{}
	}
	return &model.RaffleDetail{Raffle: *raffle, TakenNumbers: taken}, nil
}

// GetTicket returns a single ticket for admin review.
func (s *RaffleService) GetTicket(ctx context.Context, ticketID int) (*model.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// ListRaffleTickets returns every ticket of a raffle for admin review.
func (s *RaffleService) ListRaffleTickets(ctx context.Context, raffleID int) ([]model.Ticket, error) {
	if _, err := s.raffles.GetByID(ctx, raffleID); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.tickets.ListByRaffle(ctx, raffleID)
}

// UpdateRaffleStatus moves a raffle between active and closed. Drawn is
// reserved for winner assignment.
func (s *RaffleService) UpdateRaffleStatus(ctx context.Context, id int, status string) error {
	if status != model.RaffleActive && status != model.RaffleClosed {
		return validationf("status must be %q or %q", model.RaffleActive, model.RaffleClosed)
	}
	err := s.raffles.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("update raffle status: %w", err)
	}
	return nil
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
