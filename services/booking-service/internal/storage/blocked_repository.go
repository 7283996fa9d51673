package storage

import (
	"context"
	"time"

	"github.com/barberbook/barberbook/libs/db"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
)

type BlockedSlotRepository struct {
	pool *db.Pool
}

func NewBlockedSlotRepository(pool *db.Pool) *BlockedSlotRepository {
	return &BlockedSlotRepository{pool: pool}
}

// Create blocks a slot. It fails with ErrSlotTaken when a non-cancelled appointment
// holds the same staff, date and time, keeping booked and blocked sets disjoint.
func (r *BlockedSlotRepository) Create(ctx context.Context, slot model.BlockedSlot) (model.BlockedSlot, error) {
	day := slot.Date.Format(dateLayout)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.BlockedSlot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes against concurrent bookings of the same staff member.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM staff WHERE id = $1 FOR UPDATE`, slot.StaffID); err != nil {
		return model.BlockedSlot{}, classify(err)
	}

	var booked bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE staff_id = $1
				AND appointment_date = $2::date
				AND appointment_time = $3::time
				AND status <> 'cancelled'
		)
	`, slot.StaffID, day, slot.Time).Scan(&booked); err != nil {
		return model.BlockedSlot{}, classify(err)
	}
	if booked {
		return model.BlockedSlot{}, ErrSlotTaken
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO blocked_slots (staff_id, slot_date, slot_time, reason)
		VALUES ($1, $2::date, $3::time, NULLIF($4, ''))
		RETURNING id::text, created_at
	`, slot.StaffID, day, slot.Time, slot.Reason).Scan(&slot.ID, &slot.CreatedAt)
	if err != nil {
		return model.BlockedSlot{}, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.BlockedSlot{}, err
	}
	return slot, nil
}

func (r *BlockedSlotRepository) List(ctx context.Context, staffID string, from, to time.Time) ([]model.BlockedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, slot_date, to_char(slot_time, 'HH24:MI'), COALESCE(reason, ''), created_at
		FROM blocked_slots
		WHERE staff_id = $1 AND slot_date BETWEEN $2::date AND $3::date
		ORDER BY slot_date, slot_time
	`, staffID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.BlockedSlot
	for rows.Next() {
		var s model.BlockedSlot
		if err := rows.Scan(&s.ID, &s.StaffID, &s.Date, &s.Time, &s.Reason, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *BlockedSlotRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blocked_slots WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
