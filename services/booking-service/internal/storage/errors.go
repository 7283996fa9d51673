package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSlotTaken means another non-cancelled appointment already holds the slot.
	ErrSlotTaken = errors.New("slot already booked")
	// ErrSlotUnavailable means the slot is blocked for the staff member.
	ErrSlotUnavailable = errors.New("slot not available")
	ErrAlreadyBlocked  = errors.New("slot already blocked")
	ErrNotFound        = errors.New("not found")
)

const (
	slotUniqueConstraint    = "appointments_slot_unique"
	blockedUniqueConstraint = "blocked_slots_unique"
)

// classify maps driver errors to the package sentinels. Unknown errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "22P02", pgErr.Code == "23503":
		// malformed uuid or dangling reference
		return ErrNotFound
	case pgErr.Code == "23P01":
		return ErrSlotTaken
	case pgErr.Code == "23505" && pgErr.ConstraintName == slotUniqueConstraint:
		return ErrSlotTaken
	case pgErr.Code == "23505" && pgErr.ConstraintName == blockedUniqueConstraint:
		return ErrAlreadyBlocked
	}
	return err
}

func IsSlotTaken(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
