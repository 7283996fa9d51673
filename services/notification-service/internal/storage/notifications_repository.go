package storage

import (
	"context"

	"github.com/barberbook/barberbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one delivery attempt. AppointmentID is empty for ad-hoc emails.
type Notification struct {
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Subject       string
	Provider      string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, channel, recipient, subject, provider, status, error)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Subject, n.Provider, n.Status, n.Error)
	return err
}
