package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id, raffle_id, ticket_number, buyer_name, buyer_email,
	buyer_phone, payment_method, payment_status, payment_reference,
	payment_proof, payment_comment, amount_paid, purchased_at, confirmed_at`

// uniqueViolation is the PostgreSQL error code raised when the partial
// unique index on (raffle_id, ticket_number) rejects an insert.
const uniqueViolation = "23505"

// TicketRepository handles persistence for tickets, including the
// concurrency-safe purchase and resolution transactions.
type TicketRepository struct {
	db *pgxpool.Pool
}

// NewTicketRepository constructs a TicketRepository.
func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID, &t.RaffleID, &t.TicketNumber, &t.BuyerName, &t.BuyerEmail,
		&t.BuyerPhone, &t.PaymentMethod, &t.PaymentStatus,
		&t.PaymentReference, &t.PaymentProof, &t.PaymentComment,
		&t.AmountPaid, &t.PurchasedAt, &t.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Purchase atomically allocates the requested ticket numbers for one
// buyer, creating one pending ticket row per number.
//
// Concurrency: SELECT … FOR UPDATE on the raffle row acquires an
// exclusive row-level lock, so concurrent purchases against the same
// raffle are serialised. The availability scan and the inserts run
// under that lock, which makes check-then-insert atomic: of two callers
// racing for the same number, exactly one commits and the other
// observes the conflict and fails with TicketConflictError. The partial
// unique index on (raffle_id, ticket_number) WHERE status <> 'failed'
// backstops the same invariant at the storage level.
//
// A failed ticket does not occupy its number: the availability scan
// ignores failed rows, so rejected payments free the number for
// re-purchase.
func (r *TicketRepository) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Step 1: lock the raffle row and validate its state under the lock.
	var (
		status       string
		endDate      time.Time
		totalTickets int
		price        float64
	)
	err = tx.QueryRow(ctx,
		`SELECT status, end_date, total_tickets, ticket_price
		 FROM raffles
		 WHERE id = $1
		 FOR UPDATE`,
		req.RaffleID,
	).Scan(&status, &endDate, &totalTickets, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock raffle row: %w", err)
	}
	if status != model.RaffleActive {
		return nil, ErrRaffleNotActive
	}
	if time.Now().After(endDate) {
		return nil, ErrRaffleEnded
	}
	for _, n := range req.TicketNumbers {
		if n < 0 || n >= totalTickets {
			err = fmt.Errorf("%w: %d (raffle has %d tickets)", ErrNumberOutOfRange, n, totalTickets)
			return nil, err
		}
	}

	// Step 2: scan for live tickets on the requested numbers. Failed
	// tickets are intentionally excluded; they free the number.
	rows, err := tx.Query(ctx,
		`SELECT ticket_number, buyer_email
		 FROM tickets
		 WHERE raffle_id = $1
		   AND ticket_number = ANY($2)
		   AND payment_status <> $3
		 ORDER BY ticket_number`,
		req.RaffleID, req.TicketNumbers, model.PaymentFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	var owned, taken []int
	for rows.Next() {
		var number int
		var email string
		if err = rows.Scan(&number, &email); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		if email == req.Buyer.Email {
			owned = append(owned, number)
		} else {
			taken = append(taken, number)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if len(owned) > 0 {
		err = &TicketConflictError{Numbers: owned, Owned: true}
		return nil, err
	}
	if len(taken) > 0 {
		err = &TicketConflictError{Numbers: taken, Owned: false}
		return nil, err
	}

	// Step 3: insert one pending row per number. amount_paid is the
	// per-ticket price so amounts stay summable across tickets.
	totalAmount := price * float64(len(req.TicketNumbers))
	ticketIDs := make([]int, 0, len(req.TicketNumbers))
	for _, n := range req.TicketNumbers {
		var id int
		err = tx.QueryRow(ctx,
			`INSERT INTO tickets
				(raffle_id, ticket_number, buyer_name, buyer_email,
				 buyer_phone, payment_method, payment_status,
				 payment_reference, payment_proof, payment_comment,
				 amount_paid)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			req.RaffleID, n, req.Buyer.Name, req.Buyer.Email,
			req.Buyer.Phone, req.PaymentMethod, model.PaymentPending,
			req.PaymentReference, req.PaymentProof, req.PaymentComment,
			price,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				err = &TicketConflictError{Numbers: []int{n}}
				return nil, err
			}
			return nil, fmt.Errorf("insert ticket %d: %w", n, err)
		}
		ticketIDs = append(ticketIDs, id)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &model.PurchaseResult{TicketIDs: ticketIDs, TotalAmount: totalAmount}, nil
}

// Resolve transitions a pending ticket to the target terminal status
// (confirmed or failed) and recomputes the owning raffle's sold_tickets
// counter in the same transaction.
//
// The counter is always rewritten from a fresh COUNT of confirmed
// tickets, on both the confirm and reject paths, never incremented in
// place, and the raffle row lock is taken before the count runs.
// Resolutions of different tickets in the same raffle therefore
// serialise on the raffle row: the second transaction blocks until
// the first commits, and its COUNT (a new statement, new snapshot
// under read committed) sees the committed status change. Counting
// before the lock would let two resolutions bind the same stale count
// and the later commit would overwrite the counter with it.
func (r *TicketRepository) Resolve(ctx context.Context, ticketID int, target string) (*model.Ticket, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the ticket row so two concurrent resolutions serialise; the
	// loser then sees a non-pending status and fails cleanly.
	var raffleID int
	var currentStatus string
	err = tx.QueryRow(ctx,
		`SELECT raffle_id, payment_status FROM tickets WHERE id = $1 FOR UPDATE`,
		ticketID,
	).Scan(&raffleID, &currentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock ticket row: %w", err)
	}
	if currentStatus != model.PaymentPending {
		err = fmt.Errorf("%w: ticket %d is %s", ErrAlreadyResolved, ticketID, currentStatus)
		return nil, err
	}

	var confirmedAt *time.Time
	if target == model.PaymentConfirmed {
		now := time.Now().UTC()
		confirmedAt = &now
	}
	ticket, err := scanTicket(tx.QueryRow(ctx,
		`UPDATE tickets
		 SET payment_status = $1, confirmed_at = $2
		 WHERE id = $3
		 RETURNING `+ticketColumns,
		target, confirmedAt, ticketID,
	))
	if err != nil {
		return nil, fmt.Errorf("update ticket status: %w", err)
	}

	// Lock the raffle row before counting. Ticket row locks alone do
	// not order resolutions of different tickets in the same raffle.
	var lockedID int
	err = tx.QueryRow(ctx,
		`SELECT id FROM raffles WHERE id = $1 FOR UPDATE`, raffleID,
	).Scan(&lockedID)
	if err != nil {
		return nil, fmt.Errorf("lock raffle row: %w", err)
	}

	var confirmedCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE raffle_id = $1 AND payment_status = $2`,
		raffleID, model.PaymentConfirmed,
	).Scan(&confirmedCount)
	if err != nil {
		return nil, fmt.Errorf("recount confirmed tickets: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE raffles SET sold_tickets = $1 WHERE id = $2`,
		confirmedCount, raffleID,
	)
	if err != nil {
		return nil, fmt.Errorf("update sold_tickets: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return ticket, nil
}

// GetByID returns a single ticket or ErrNotFound.
func (r *TicketRepository) GetByID(ctx context.Context, id int) (*model.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// ListByRaffle returns all tickets for a raffle in purchase order.
func (r *TicketRepository) ListByRaffle(ctx context.Context, raffleID int) ([]model.Ticket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE raffle_id = $1
		 ORDER BY purchased_at ASC, id ASC`,
		raffleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

// TakenNumbers returns the numbers currently held by pending or
// confirmed tickets, sorted ascending.
func (r *TicketRepository) TakenNumbers(ctx context.Context, raffleID int) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT ticket_number
		 FROM tickets
		 WHERE raffle_id = $1 AND payment_status <> $2
		 ORDER BY ticket_number ASC`,
		raffleID, model.PaymentFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("list taken numbers: %w", err)
	}
	defer rows.Close()

	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan taken number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}
