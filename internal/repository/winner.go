package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WinnerRepository handles persistence for winner assignment.
type WinnerRepository struct {
	db *pgxpool.Pool
}

// NewWinnerRepository constructs a WinnerRepository.
func NewWinnerRepository(db *pgxpool.Pool) *WinnerRepository {
	return &WinnerRepository{db: db}
}

// Assign atomically records the raffle's winner: it locks the raffle
// row, enforces at most one winner per raffle, requires the chosen
// number to belong to a confirmed ticket, then inserts the winner row
// and flips the raffle to drawn with the winner fields denormalized
// onto it. The UNIQUE constraint on winners.raffle_id backstops the
// existence check.
func (r *WinnerRepository) Assign(ctx context.Context, req model.AssignWinnerRequest) (*model.Winner, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var raffleStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM raffles WHERE id = $1 FOR UPDATE`,
		req.RaffleID,
	).Scan(&raffleStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock raffle row: %w", err)
	}

	var existing int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM winners WHERE raffle_id = $1`,
		req.RaffleID,
	).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check existing winner: %w", err)
	}
	if existing > 0 {
		err = ErrWinnerAlreadyAssigned
		return nil, err
	}

	var buyerName, buyerEmail, buyerPhone string
	err = tx.QueryRow(ctx,
		`SELECT buyer_name, buyer_email, buyer_phone
		 FROM tickets
		 WHERE raffle_id = $1 AND ticket_number = $2 AND payment_status = $3`,
		req.RaffleID, req.TicketNumber, model.PaymentConfirmed,
	).Scan(&buyerName, &buyerEmail, &buyerPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("%w: number %d", ErrTicketNotConfirmed, req.TicketNumber)
			return nil, err
		}
		return nil, fmt.Errorf("load winning ticket: %w", err)
	}

	winner := &model.Winner{
		RaffleID:     req.RaffleID,
		TicketNumber: req.TicketNumber,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
	}
	if winner.Name == "" {
		winner.Name = buyerName
	}
	if winner.Email == "" {
		winner.Email = buyerEmail
	}
	if winner.Phone == "" {
		winner.Phone = buyerPhone
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO winners (raffle_id, ticket_number, name, email, phone)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, awarded_at`,
		winner.RaffleID, winner.TicketNumber, winner.Name, winner.Email, winner.Phone,
	).Scan(&winner.ID, &winner.AwardedAt)
	if err != nil {
		return nil, fmt.Errorf("insert winner: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE raffles
		 SET status = $1, draw_date = $2, winner_name = $3, winner_number = $4
		 WHERE id = $5`,
		model.RaffleDrawn, time.Now().UTC(), winner.Name, winner.TicketNumber,
		req.RaffleID,
	)
	if err != nil {
		return nil, fmt.Errorf("update raffle winner fields: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return winner, nil
}
