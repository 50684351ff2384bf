// Package repository implements all database queries for the raffle
// ticket-sales system. It uses pgx directly (no ORM): the purchase and
// resolution flows need explicit transaction and row-locking control.
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

const raffleColumns = `id, title, description, image_url, ticket_price, currency,
	total_tickets, sold_tickets, status, start_date, end_date, draw_date,
	winner_name, winner_number, created_at`

// RaffleRepository handles persistence for raffles.
type RaffleRepository struct {
	db *pgxpool.Pool
}

// NewRaffleRepository constructs a RaffleRepository.
func NewRaffleRepository(db *pgxpool.Pool) *RaffleRepository {
	return &RaffleRepository{db: db}
}

func scanRaffle(row pgx.Row) (*model.Raffle, error) {
	var r model.Raffle
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.ImageURL, &r.TicketPrice,
		&r.Currency, &r.TotalTickets, &r.SoldTickets, &r.Status,
		&r.StartDate, &r.EndDate, &r.DrawDate, &r.WinnerName,
		&r.WinnerNumber, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new raffle in active state.
func (r *RaffleRepository) Create(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO raffles
			(title, description, image_url, ticket_price, currency,
			 total_tickets, status, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+raffleColumns,
		req.Title, req.Description, req.ImageURL, req.TicketPrice,
		req.Currency, req.TotalTickets, model.RaffleActive,
		req.StartDate, req.EndDate,
	)
	raffle, err := scanRaffle(row)
	if err != nil {
		return nil, fmt.Errorf("insert raffle: %w", err)
	}
	return raffle, nil
}

// GetByID returns a single raffle or ErrNotFound.
func (r *RaffleRepository) GetByID(ctx context.Context, id int) (*model.Raffle, error) {
	raffle, err := scanRaffle(r.db.QueryRow(ctx,
		`SELECT `+raffleColumns+` FROM raffles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raffle: %w", err)
	}
	return raffle, nil
}

// ListActive returns raffles that are active and still open for sale at
// the given instant, newest first.
func (r *RaffleRepository) ListActive(ctx context.Context, now time.Time) ([]model.Raffle, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+raffleColumns+`
		 FROM raffles
		 WHERE status = $1 AND end_date > $2
		 ORDER BY created_at DESC`,
		model.RaffleActive, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list active raffles: %w", err)
	}
	defer rows.Close()

	var raffles []model.Raffle
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raffle: %w", err)
		}
		raffles = append(raffles, *raffle)
	}
	return raffles, rows.Err()
}

// UpdateStatus sets a raffle's lifecycle status (active or closed).
// Drawn raffles are only produced by winner assignment.
func (r *RaffleRepository) UpdateStatus(ctx context.Context, id int, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE raffles SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update raffle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
