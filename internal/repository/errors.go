package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrRaffleNotActive is returned when purchasing from a closed or drawn
// raffle.
var ErrRaffleNotActive = errors.New("raffle is not active")

// ErrRaffleEnded is returned when purchasing after the raffle's end date.
var ErrRaffleEnded = errors.New("raffle has ended")

// ErrNumberOutOfRange is returned when a requested ticket number falls
// outside the raffle's 0..total_tickets-1 range.
var ErrNumberOutOfRange = errors.New("ticket number out of range")

// ErrAlreadyResolved is returned when confirming or rejecting a ticket
// that has already left the pending state. Terminal states are final.
var ErrAlreadyResolved = errors.New("ticket already resolved")

// ErrWinnerAlreadyAssigned is returned when a raffle already has a
// winner row.
var ErrWinnerAlreadyAssigned = errors.New("raffle already has a winner")

// ErrTicketNotConfirmed is returned when assigning a winner to a number
// that has no confirmed ticket.
var ErrTicketNotConfirmed = errors.New("ticket is not confirmed")

// TicketConflictError reports the specific ticket numbers a purchase
// lost to. Owned distinguishes "the same buyer already holds these"
// from "another buyer got there first"; the UI branches on that.
type TicketConflictError struct {
	Numbers []int
	Owned   bool
}

func (e *TicketConflictError) Error() string {
	if e.Owned {
		return fmt.Sprintf("you already own tickets %s in this raffle", joinNumbers(e.Numbers))
	}
	return fmt.Sprintf("tickets %s are no longer available", joinNumbers(e.Numbers))
}

func joinNumbers(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
