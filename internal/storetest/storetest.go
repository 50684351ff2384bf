// Package storetest provides an in-memory implementation of the service
// store interfaces for tests. It mirrors the PostgreSQL repository's
// semantics: purchases and resolutions are atomic (serialised by a
// mutex), failed tickets free their numbers, resolution is
// exactly-once, and sold_tickets is always recomputed as the confirmed
// count. Tests exercise the concurrency properties against it without a
// database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/repository"
	"github.com/google/uuid"
)

// MemStore holds the shared in-memory state. The Raffles, Tickets,
// Winners, and Admins views expose it under the service's store
// interfaces; all views share one mutex, which plays the role of the
// database's row locks.
type MemStore struct {
	mu           sync.Mutex
	raffles      map[int]*model.Raffle
	tickets      map[int]*model.Ticket
	winners      map[int]*model.Winner // keyed by raffle id
	admins       map[string]*model.AdminUser
	nextRaffleID int
	nextTicketID int
	nextWinnerID int

	// Now is the clock used for end-date checks and timestamps.
	// Defaults to time.Now; tests may freeze it.
	Now func() time.Time
}

// New constructs an empty MemStore.
func New() *MemStore {
	return &MemStore{
		raffles:      make(map[int]*model.Raffle),
		tickets:      make(map[int]*model.Ticket),
		winners:      make(map[int]*model.Winner),
		admins:       make(map[string]*model.AdminUser),
		nextRaffleID: 1,
		nextTicketID: 1,
		nextWinnerID: 1,
		Now:          time.Now,
	}
}

// Raffles returns the store's RaffleStore view.
func (s *MemStore) Raffles() *RaffleView { return &RaffleView{s} }

// Tickets returns the store's TicketStore view.
func (s *MemStore) Tickets() *TicketView { return &TicketView{s} }

// Winners returns the store's WinnerStore view.
func (s *MemStore) Winners() *WinnerView { return &WinnerView{s} }

// Admins returns the store's AdminStore view.
func (s *MemStore) Admins() *AdminView { return &AdminView{s} }

// ─── RaffleStore view ─────────────────────────────────────────────────────────

// RaffleView implements service.RaffleStore.
type RaffleView struct{ s *MemStore }

// Create inserts a new active raffle.
func (v *RaffleView) Create(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &model.Raffle{
		ID:           s.nextRaffleID,
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		TicketPrice:  req.TicketPrice,
		Currency:     req.Currency,
		TotalTickets: req.TotalTickets,
		Status:       model.RaffleActive,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		CreatedAt:    s.Now(),
	}
	s.nextRaffleID++
	s.raffles[r.ID] = r
	out := *r
	return &out, nil
}

// GetByID returns a copy of the raffle or repository.ErrNotFound.
func (v *RaffleView) GetByID(ctx context.Context, id int) (*model.Raffle, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *r
	return &out, nil
}

// ListActive returns active raffles whose end date is after now.
func (v *RaffleView) ListActive(ctx context.Context, now time.Time) ([]model.Raffle, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Raffle
	for _, r := range s.raffles {
		if r.Status == model.RaffleActive && r.EndDate.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// UpdateStatus sets a raffle's status.
func (v *RaffleView) UpdateStatus(ctx context.Context, id int, status string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	return nil
}

// ─── TicketStore view ─────────────────────────────────────────────────────────

// TicketView implements service.TicketStore.
type TicketView struct{ s *MemStore }

// Purchase allocates the requested numbers atomically, mirroring the
// repository's locked check-then-insert.
func (v *TicketView) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	raffle, ok := s.raffles[req.RaffleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if raffle.Status != model.RaffleActive {
		return nil, repository.ErrRaffleNotActive
	}
	if raffle.Ended(s.Now()) {
		return nil, repository.ErrRaffleEnded
	}
	for _, n := range req.TicketNumbers {
		if n < 0 || n >= raffle.TotalTickets {
			return nil, fmt.Errorf("%w: %d (raffle has %d tickets)",
				repository.ErrNumberOutOfRange, n, raffle.TotalTickets)
		}
	}

	var owned, taken []int
	for _, n := range req.TicketNumbers {
		for _, t := range s.tickets {
			if t.RaffleID != req.RaffleID || t.TicketNumber != n {
				continue
			}
			if t.PaymentStatus == model.PaymentFailed {
				continue // failed tickets free the number
			}
			if t.BuyerEmail == req.Buyer.Email {
				owned = append(owned, n)
			} else {
				taken = append(taken, n)
			}
		}
	}
	sort.Ints(owned)
	sort.Ints(taken)
	if len(owned) > 0 {
		return nil, &repository.TicketConflictError{Numbers: owned, Owned: true}
	}
	if len(taken) > 0 {
		return nil, &repository.TicketConflictError{Numbers: taken, Owned: false}
	}

	totalAmount := raffle.TicketPrice * float64(len(req.TicketNumbers))
	ids := make([]int, 0, len(req.TicketNumbers))
	for _, n := range req.TicketNumbers {
		t := &model.Ticket{
			ID:               s.nextTicketID,
			RaffleID:         req.RaffleID,
			TicketNumber:     n,
			BuyerName:        req.Buyer.Name,
			BuyerEmail:       req.Buyer.Email,
			BuyerPhone:       req.Buyer.Phone,
			PaymentMethod:    req.PaymentMethod,
			PaymentStatus:    model.PaymentPending,
			PaymentReference: req.PaymentReference,
			PaymentProof:     req.PaymentProof,
			PaymentComment:   req.PaymentComment,
			AmountPaid:       raffle.TicketPrice,
			PurchasedAt:      s.Now(),
		}
		s.nextTicketID++
		s.tickets[t.ID] = t
		ids = append(ids, t.ID)
	}
	return &model.PurchaseResult{TicketIDs: ids, TotalAmount: totalAmount}, nil
}

// Resolve transitions a pending ticket to the target terminal state and
// recomputes the raffle's confirmed count.
func (v *TicketView) Resolve(ctx context.Context, ticketID int, target string) (*model.Ticket, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.PaymentStatus != model.PaymentPending {
		return nil, fmt.Errorf("%w: ticket %d is %s",
			repository.ErrAlreadyResolved, ticketID, t.PaymentStatus)
	}

	t.PaymentStatus = target
	if target == model.PaymentConfirmed {
		now := s.Now()
		t.ConfirmedAt = &now
	}

	confirmed := 0
	for _, other := range s.tickets {
		if other.RaffleID == t.RaffleID && other.PaymentStatus == model.PaymentConfirmed {
			confirmed++
		}
	}
	s.raffles[t.RaffleID].SoldTickets = confirmed

	out := *t
	return &out, nil
}

// GetByID returns a copy of the ticket or repository.ErrNotFound.
func (v *TicketView) GetByID(ctx context.Context, id int) (*model.Ticket, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

// ListByRaffle returns all tickets for a raffle ordered by id.
func (v *TicketView) ListByRaffle(ctx context.Context, raffleID int) ([]model.Ticket, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Ticket
	for _, t := range s.tickets {
		if t.RaffleID == raffleID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TakenNumbers returns the numbers held by non-failed tickets.
func (v *TicketView) TakenNumbers(ctx context.Context, raffleID int) ([]int, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int
	for _, t := range s.tickets {
		if t.RaffleID == raffleID && t.PaymentStatus != model.PaymentFailed {
			out = append(out, t.TicketNumber)
		}
	}
	sort.Ints(out)
	return out, nil
}

// ─── WinnerStore view ─────────────────────────────────────────────────────────

// WinnerView implements service.WinnerStore.
type WinnerView struct{ s *MemStore }

// Assign records the raffle winner with the repository's invariants.
func (v *WinnerView) Assign(ctx context.Context, req model.AssignWinnerRequest) (*model.Winner, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	raffle, ok := s.raffles[req.RaffleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, exists := s.winners[req.RaffleID]; exists {
		return nil, repository.ErrWinnerAlreadyAssigned
	}

	var winning *model.Ticket
	for _, t := range s.tickets {
		if t.RaffleID == req.RaffleID && t.TicketNumber == req.TicketNumber &&
			t.PaymentStatus == model.PaymentConfirmed {
			winning = t
			break
		}
	}
	if winning == nil {
		return nil, fmt.Errorf("%w: number %d",
			repository.ErrTicketNotConfirmed, req.TicketNumber)
	}

	w := &model.Winner{
		ID:           s.nextWinnerID,
		RaffleID:     req.RaffleID,
		TicketNumber: req.TicketNumber,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		AwardedAt:    s.Now(),
	}
	if w.Name == "" {
		w.Name = winning.BuyerName
	}
	if w.Email == "" {
		w.Email = winning.BuyerEmail
	}
	if w.Phone == "" {
		w.Phone = winning.BuyerPhone
	}
	s.nextWinnerID++
	s.winners[req.RaffleID] = w

	raffle.Status = model.RaffleDrawn
	now := s.Now()
	raffle.DrawDate = &now
	name := w.Name
	number := w.TicketNumber
	raffle.WinnerName = &name
	raffle.WinnerNumber = &number

	out := *w
	return &out, nil
}

// ─── AdminStore view ──────────────────────────────────────────────────────────

// AdminView implements service.AdminStore.
type AdminView struct{ s *MemStore }

// GetByEmail returns the admin user or repository.ErrNotFound.
func (v *AdminView) GetByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.admins[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

// Create inserts a new admin user.
func (v *AdminView) Create(ctx context.Context, email, passwordHash, role string) (*model.AdminUser, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.admins[email]; exists {
		return nil, fmt.Errorf("admin %s already exists", email)
	}
	u := &model.AdminUser{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    s.Now(),
	}
	s.admins[email] = u
	out := *u
	return &out, nil
}
