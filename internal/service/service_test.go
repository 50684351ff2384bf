package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/notify"
	"github.com/ganaxdar/autorifa/internal/repository"
	"github.com/ganaxdar/autorifa/internal/service"
	"github.com/ganaxdar/autorifa/internal/storetest"
	"go.uber.org/zap"
)

type nopMailer struct{}

func (nopMailer) Send(ctx context.Context, to []string, subject, body string) error {
	return nil
}

func newTestService(t *testing.T) (*service.RaffleService, *storetest.MemStore) {
	t.Helper()
	store := storetest.New()
	log := zap.NewNop()
	dispatcher := notify.NewDispatcher(nopMailer{}, []string{"admin@example.com"}, log)
	svc := service.NewRaffleService(store.Raffles(), store.Tickets(), store.Winners(), dispatcher, log)
	return svc, store
}

func createRaffle(t *testing.T, svc *service.RaffleService, price float64, total int) *model.Raffle {
	t.Helper()
	raffle, err := svc.CreateRaffle(context.Background(), model.CreateRaffleRequest{
		Title:        "Gran Rifa",
		TicketPrice:  price,
		TotalTickets: total,
		EndDate:      time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create raffle: %v", err)
	}
	return raffle
}

func purchaseReq(raffleID int, numbers []int, email string) model.PurchaseRequest {
	return model.PurchaseRequest{
		RaffleID:         raffleID,
		TicketNumbers:    numbers,
		Buyer:            model.Buyer{Name: "Test Buyer", Email: email, Phone: "+58 412 0000000"},
		PaymentMethod:    "zelle",
		PaymentReference: "REF-001",
		PaymentProof:     "https://uploads.example.com/proof.jpg",
	}
}

func TestPurchaseValidation(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 25, 100)

	cases := []struct {
		name   string
		mutate func(*model.PurchaseRequest)
	}{
		{"empty numbers", func(r *model.PurchaseRequest) { r.TicketNumbers = nil }},
		{"duplicate numbers", func(r *model.PurchaseRequest) { r.TicketNumbers = []int{5, 5} }},
		{"missing email", func(r *model.PurchaseRequest) { r.Buyer.Email = "" }},
		{"malformed email", func(r *model.PurchaseRequest) { r.Buyer.Email = "not-an-email" }},
		{"unknown payment method", func(r *model.PurchaseRequest) { r.PaymentMethod = "cash" }},
		{"missing reference", func(r *model.PurchaseRequest) { r.PaymentReference = "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := purchaseReq(raffle.ID, []int{1, 2}, "buyer@example.com")
			tc.mutate(&req)
			_, err := svc.Purchase(context.Background(), req)
			var verr *service.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}

	// No rows may exist after any validation failure.
	taken, err := svc.GetRaffleDetail(context.Background(), raffle.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if len(taken.TakenNumbers) != 0 {
		t.Fatalf("validation failures must not create tickets, got %v", taken.TakenNumbers)
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 25, 10000)

	res, err := svc.Purchase(context.Background(), purchaseReq(raffle.ID, []int{12, 34}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.TotalAmount != 50 {
		t.Errorf("total amount = %v, want 50", res.TotalAmount)
	}
	if len(res.TicketIDs) != 2 {
		t.Fatalf("got %d ticket ids, want 2", len(res.TicketIDs))
	}

	tickets, err := store.Tickets().ListByRaffle(context.Background(), raffle.ID)
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2", len(tickets))
	}
	for _, ticket := range tickets {
		if ticket.PaymentStatus != model.PaymentPending {
			t.Errorf("ticket %d status = %s, want pending", ticket.ID, ticket.PaymentStatus)
		}
		if ticket.AmountPaid != 25 {
			t.Errorf("ticket %d amount_paid = %v, want per-ticket price 25", ticket.ID, ticket.AmountPaid)
		}
		if ticket.ConfirmedAt != nil {
			t.Errorf("ticket %d has confirmed_at before confirmation", ticket.ID)
		}
	}
}

func TestPurchaseStateErrors(t *testing.T) {
	svc, store := newTestService(t)

	t.Run("raffle not found", func(t *testing.T) {
		_, err := svc.Purchase(context.Background(), purchaseReq(999, []int{1}, "a@example.com"))
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("raffle not active", func(t *testing.T) {
		raffle := createRaffle(t, svc, 10, 100)
		if err := svc.UpdateRaffleStatus(context.Background(), raffle.ID, model.RaffleClosed); err != nil {
			t.Fatalf("close raffle: %v", err)
		}
		_, err := svc.Purchase(context.Background(), purchaseReq(raffle.ID, []int{1}, "a@example.com"))
		if !errors.Is(err, repository.ErrRaffleNotActive) {
			t.Fatalf("want ErrRaffleNotActive, got %v", err)
		}
	})

	t.Run("raffle ended", func(t *testing.T) {
		raffle := createRaffle(t, svc, 10, 100)
		store.Now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		defer func() { store.Now = time.Now }()
		_, err := svc.Purchase(context.Background(), purchaseReq(raffle.ID, []int{1}, "a@example.com"))
		if !errors.Is(err, repository.ErrRaffleEnded) {
			t.Fatalf("want ErrRaffleEnded, got %v", err)
		}
	})

	t.Run("number out of range", func(t *testing.T) {
		raffle := createRaffle(t, svc, 10, 100)
		_, err := svc.Purchase(context.Background(), purchaseReq(raffle.ID, []int{100}, "a@example.com"))
		if !errors.Is(err, repository.ErrNumberOutOfRange) {
			t.Fatalf("want ErrNumberOutOfRange, got %v", err)
		}
	})
}

func TestPurchaseConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 25, 10000)
	ctx := context.Background()

	if _, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{12, 34}, "alice@example.com")); err != nil {
		t.Fatalf("alice purchase: %v", err)
	}

	t.Run("taken by another buyer", func(t *testing.T) {
		_, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{34, 99}, "bob@example.com"))
		var conflict *repository.TicketConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("want TicketConflictError, got %v", err)
		}
		if conflict.Owned {
			t.Error("conflict should not be flagged as owned")
		}
		if len(conflict.Numbers) != 1 || conflict.Numbers[0] != 34 {
			t.Errorf("conflict numbers = %v, want [34]", conflict.Numbers)
		}

		// All-or-nothing: 99 must not have been created.
		detail, err := svc.GetRaffleDetail(ctx, raffle.ID)
		if err != nil {
			t.Fatalf("get detail: %v", err)
		}
		for _, n := range detail.TakenNumbers {
			if n == 99 {
				t.Error("ticket 99 was created despite the conflict on 34")
			}
		}
	})

	t.Run("already owned by same buyer", func(t *testing.T) {
		_, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{12}, "alice@example.com"))
		var conflict *repository.TicketConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("want TicketConflictError, got %v", err)
		}
		if !conflict.Owned {
			t.Error("conflict with the same buyer must be flagged as owned")
		}
		if len(conflict.Numbers) != 1 || conflict.Numbers[0] != 12 {
			t.Errorf("conflict numbers = %v, want [12]", conflict.Numbers)
		}
	})
}

// TestConcurrentPurchase verifies the no-double-allocation property:
// many buyers racing for the same number produce exactly one live
// ticket, with every loser told which number it lost.
func TestConcurrentPurchase(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 25, 10000)
	ctx := context.Background()

	const contenders = 50
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("buyer%d@example.com", i)
			_, errs[i] = svc.Purchase(ctx, purchaseReq(raffle.ID, []int{7}, email))
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *repository.TicketConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("contender %d: want TicketConflictError, got %v", i, err)
		}
		if len(conflict.Numbers) != 1 || conflict.Numbers[0] != 7 {
			t.Errorf("contender %d: conflict numbers = %v, want [7]", i, conflict.Numbers)
		}
	}
	if successes != 1 {
		t.Fatalf("%d purchases of number 7 succeeded, want exactly 1", successes)
	}

	tickets, err := store.Tickets().ListByRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("%d ticket rows exist for number 7, want 1", len(tickets))
	}
}

func TestResolutionIdempotency(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 25, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{1}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	id := res.TicketIDs[0]

	ticket, err := svc.ConfirmPayment(ctx, id)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if ticket.PaymentStatus != model.PaymentConfirmed {
		t.Fatalf("status = %s, want confirmed", ticket.PaymentStatus)
	}
	if ticket.ConfirmedAt == nil {
		t.Fatal("confirmed_at not set on confirm")
	}

	if _, err := svc.ConfirmPayment(ctx, id); !errors.Is(err, repository.ErrAlreadyResolved) {
		t.Fatalf("second confirm: want ErrAlreadyResolved, got %v", err)
	}
	// Rejecting a confirmed ticket is also refused: terminal is terminal.
	if _, err := svc.RejectPayment(ctx, id); !errors.Is(err, repository.ErrAlreadyResolved) {
		t.Fatalf("reject after confirm: want ErrAlreadyResolved, got %v", err)
	}
}

// TestConcurrentResolution verifies that racing resolutions of one
// ticket produce exactly one transition.
func TestConcurrentResolution(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 25, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{3}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	id := res.TicketIDs[0]

	const racers = 20
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = svc.ConfirmPayment(ctx, id)
			} else {
				_, errs[i] = svc.RejectPayment(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, repository.ErrAlreadyResolved) {
			t.Fatalf("racer %d: want ErrAlreadyResolved, got %v", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d resolutions succeeded, want exactly 1", successes)
	}
}

// TestConcurrentResolutionAcrossTickets resolves many different tickets
// of one raffle in parallel and checks that sold_tickets lands on the
// exact confirmed count. Resolutions of distinct tickets never contend
// on their own rows, so the counter rewrite has to serialise on the
// raffle itself or a stale count wins.
func TestConcurrentResolutionAcrossTickets(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 10, 100)
	ctx := context.Background()

	numbers := make([]int, 20)
	for i := range numbers {
		numbers[i] = i
	}
	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, numbers, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	var wg sync.WaitGroup
	for i, id := range res.TicketIDs {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = svc.ConfirmPayment(ctx, id)
			} else {
				_, _ = svc.RejectPayment(ctx, id)
			}
		}(i, id)
	}
	wg.Wait()

	confirmed := 0
	tickets, err := store.Tickets().ListByRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	for _, ticket := range tickets {
		if ticket.PaymentStatus == model.PaymentConfirmed {
			confirmed++
		}
	}
	if confirmed != 10 {
		t.Fatalf("%d tickets confirmed, want 10", confirmed)
	}

	r, err := store.Raffles().GetByID(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("get raffle: %v", err)
	}
	if r.SoldTickets != confirmed {
		t.Fatalf("sold_tickets = %d, want confirmed count %d", r.SoldTickets, confirmed)
	}
}

// TestCounterConsistency verifies sold_tickets always equals the count
// of confirmed tickets, on the confirm path and the reject path alike.
func TestCounterConsistency(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 10, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{1, 2, 3, 4}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	assertSold := func(want int) {
		t.Helper()
		r, err := store.Raffles().GetByID(ctx, raffle.ID)
		if err != nil {
			t.Fatalf("get raffle: %v", err)
		}
		if r.SoldTickets != want {
			t.Fatalf("sold_tickets = %d, want %d", r.SoldTickets, want)
		}
	}

	assertSold(0) // pending tickets do not count

	if _, err := svc.ConfirmPayment(ctx, res.TicketIDs[0]); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	assertSold(1)
	if _, err := svc.ConfirmPayment(ctx, res.TicketIDs[1]); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	assertSold(2)

	// Rejecting must not disturb the confirmed count.
	if _, err := svc.RejectPayment(ctx, res.TicketIDs[2]); err != nil {
		t.Fatalf("reject: %v", err)
	}
	assertSold(2)
	if _, err := svc.RejectPayment(ctx, res.TicketIDs[3]); err != nil {
		t.Fatalf("reject: %v", err)
	}
	assertSold(2)
}

// TestFreedNumberRepurchase verifies that a rejected (failed) ticket
// releases its number for anyone to buy again.
func TestFreedNumberRepurchase(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 10, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{42}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.RejectPayment(ctx, res.TicketIDs[0]); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// A different buyer can take the number.
	if _, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{42}, "bob@example.com")); err != nil {
		t.Fatalf("repurchase by another buyer: %v", err)
	}

	res2, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{43}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase 43: %v", err)
	}
	if _, err := svc.RejectPayment(ctx, res2.TicketIDs[0]); err != nil {
		t.Fatalf("reject 43: %v", err)
	}
	// The same buyer can also retry their own freed number.
	if _, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{43}, "alice@example.com")); err != nil {
		t.Fatalf("repurchase by same buyer: %v", err)
	}
}

// TestEndToEndScenario walks the full purchase/confirm flow:
// two overlapping buyers, then admin confirmation driving the counter.
func TestEndToEndScenario(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 25, 10000)
	ctx := context.Background()

	resA, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{12, 34}, "alice@example.com"))
	if err != nil {
		t.Fatalf("alice purchase: %v", err)
	}
	if resA.TotalAmount != 50 {
		t.Errorf("alice total = %v, want 50", resA.TotalAmount)
	}

	_, err = svc.Purchase(ctx, purchaseReq(raffle.ID, []int{34, 99}, "bob@example.com"))
	var conflict *repository.TicketConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("bob purchase: want TicketConflictError, got %v", err)
	}
	if len(conflict.Numbers) != 1 || conflict.Numbers[0] != 34 {
		t.Errorf("bob conflict numbers = %v, want [34]", conflict.Numbers)
	}

	// ids come back in request order: [0] is number 12, [1] is 34.
	if _, err := svc.ConfirmPayment(ctx, resA.TicketIDs[0]); err != nil {
		t.Fatalf("confirm 12: %v", err)
	}
	r, _ := store.Raffles().GetByID(ctx, raffle.ID)
	if r.SoldTickets != 1 {
		t.Fatalf("sold_tickets = %d after first confirm, want 1", r.SoldTickets)
	}

	if _, err := svc.ConfirmPayment(ctx, resA.TicketIDs[1]); err != nil {
		t.Fatalf("confirm 34: %v", err)
	}
	r, _ = store.Raffles().GetByID(ctx, raffle.ID)
	if r.SoldTickets != 2 {
		t.Fatalf("sold_tickets = %d after second confirm, want 2", r.SoldTickets)
	}
}

func TestAssignWinner(t *testing.T) {
	svc, store := newTestService(t)
	raffle := createRaffle(t, svc, 25, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{77}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// A pending ticket cannot win.
	_, err = svc.AssignWinner(ctx, model.AssignWinnerRequest{RaffleID: raffle.ID, TicketNumber: 77})
	if !errors.Is(err, repository.ErrTicketNotConfirmed) {
		t.Fatalf("want ErrTicketNotConfirmed for pending ticket, got %v", err)
	}

	if _, err := svc.ConfirmPayment(ctx, res.TicketIDs[0]); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	winner, err := svc.AssignWinner(ctx, model.AssignWinnerRequest{RaffleID: raffle.ID, TicketNumber: 77})
	if err != nil {
		t.Fatalf("assign winner: %v", err)
	}
	if winner.Email != "alice@example.com" {
		t.Errorf("winner email = %s, want buyer's email", winner.Email)
	}

	r, _ := store.Raffles().GetByID(ctx, raffle.ID)
	if r.Status != model.RaffleDrawn {
		t.Errorf("raffle status = %s, want drawn", r.Status)
	}
	if r.WinnerNumber == nil || *r.WinnerNumber != 77 {
		t.Errorf("raffle winner_number = %v, want 77", r.WinnerNumber)
	}

	// At most one winner per raffle.
	_, err = svc.AssignWinner(ctx, model.AssignWinnerRequest{RaffleID: raffle.ID, TicketNumber: 77})
	if !errors.Is(err, repository.ErrWinnerAlreadyAssigned) {
		t.Fatalf("second assignment: want ErrWinnerAlreadyAssigned, got %v", err)
	}
}

func TestGetTicket(t *testing.T) {
	svc, _ := newTestService(t)
	raffle := createRaffle(t, svc, 25, 100)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, purchaseReq(raffle.ID, []int{8}, "alice@example.com"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	ticket, err := svc.GetTicket(ctx, res.TicketIDs[0])
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.TicketNumber != 8 || ticket.PaymentStatus != model.PaymentPending {
		t.Fatalf("ticket = %+v, want pending ticket for number 8", ticket)
	}

	if _, err := svc.GetTicket(ctx, 9999); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want ErrNotFound for missing ticket, got %v", err)
	}
}

func TestCreateRaffleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.CreateRaffleRequest
	}{
		{"missing title", model.CreateRaffleRequest{TicketPrice: 1, TotalTickets: 10, EndDate: time.Now().Add(time.Hour)}},
		{"zero price", model.CreateRaffleRequest{Title: "t", TotalTickets: 10, EndDate: time.Now().Add(time.Hour)}},
		{"zero tickets", model.CreateRaffleRequest{Title: "t", TicketPrice: 1, EndDate: time.Now().Add(time.Hour)}},
		{"too many tickets", model.CreateRaffleRequest{Title: "t", TicketPrice: 1, TotalTickets: 1_000_000, EndDate: time.Now().Add(time.Hour)}},
		{"end before start", model.CreateRaffleRequest{Title: "t", TicketPrice: 1, TotalTickets: 10, EndDate: time.Now().Add(-time.Hour)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRaffle(ctx, tc.req)
			var verr *service.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
}

func TestListActiveRaffles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	active := createRaffle(t, svc, 5, 10)
	closed := createRaffle(t, svc, 5, 10)
	if err := svc.UpdateRaffleStatus(ctx, closed.ID, model.RaffleClosed); err != nil {
		t.Fatalf("close raffle: %v", err)
	}

	raffles, err := svc.ListActiveRaffles(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(raffles) != 1 || raffles[0].ID != active.ID {
		t.Fatalf("active raffles = %v, want just raffle %d", raffles, active.ID)
	}
}
