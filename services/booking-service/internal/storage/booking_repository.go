package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/barberbook/barberbook/libs/db"
	"github.com/barberbook/barberbook/services/booking-service/internal/availability"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const dateLayout = "2006-01-02"

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	Scope           string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// ConfirmRequest carries everything needed to write one appointment.
// An empty ServiceID selects the default service of the location.
type ConfirmRequest struct {
	LocationID  string
	StaffID     string
	ServiceID   string
	Date        time.Time
	Time        availability.Clock
	ClientName  string
	ClientPhone string
	ClientEmail string
	Source      string
}

type ListFilter struct {
	LocationID string
	StaffID    string
	Date       string
	Status     string
	Limit      int
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, scope, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, scope, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, scope, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key, appointmentID, statusCode, response)
	return err
}

// Confirm finds or creates the client and inserts a confirmed appointment inside tx.
// Callers commit tx; on any error nothing written here survives the rollback.
func (r *BookingRepository) Confirm(ctx context.Context, tx pgx.Tx, req ConfirmRequest) (model.Appointment, error) {
	appt := model.Appointment{
		LocationID: req.LocationID,
		StaffID:    req.StaffID,
		Date:       req.Date,
		Time:       req.Time.String(),
		Status:     model.StatusConfirmed,
		Source:     req.Source,
		ClientName: strings.TrimSpace(req.ClientName),
	}
	day := req.Date.Format(dateLayout)

	err := tx.QueryRow(ctx, `
		SELECT s.name, l.name
		FROM staff s
		JOIN locations l ON l.id = s.location_id
		WHERE s.id = $1 AND s.location_id = $2 AND s.is_active
		FOR SHARE OF s
	`, req.StaffID, req.LocationID).Scan(&appt.StaffName, &appt.LocationName)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("staff: %w", classify(err))
	}

	if err := r.loadService(ctx, tx, req.LocationID, req.ServiceID, &appt); err != nil {
		return model.Appointment{}, fmt.Errorf("service: %w", err)
	}

	var blocked bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_slots
			WHERE staff_id = $1 AND slot_date = $2::date AND slot_time = $3::time
		)
	`, req.StaffID, day, appt.Time).Scan(&blocked); err != nil {
		return model.Appointment{}, err
	}
	if blocked {
		return model.Appointment{}, ErrSlotUnavailable
	}

	client, err := r.upsertClient(ctx, tx, appt.ClientName, req.ClientPhone, req.ClientEmail)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("client: %w", err)
	}
	appt.ClientID = client.ID
	appt.ClientPhone = client.Phone
	appt.ClientEmail = client.Email

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(location_id, staff_id, service_id, client_id, appointment_date, appointment_time, price, status, source)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7::numeric, $8, $9)
		RETURNING id::text, created_at
	`, appt.LocationID, appt.StaffID, appt.ServiceID, appt.ClientID, day, appt.Time, appt.Price, appt.Status, appt.Source).
		Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return appt, nil
}

func (r *BookingRepository) loadService(ctx context.Context, tx pgx.Tx, locationID, serviceID string, appt *model.Appointment) error {
	var row pgx.Row
	if serviceID == "" {
		row = tx.QueryRow(ctx, `
			SELECT id::text, name, price::text
			FROM services
			WHERE is_default AND (location_id = $1 OR location_id IS NULL)
			ORDER BY location_id NULLS LAST
			LIMIT 1
		`, locationID)
	} else {
		row = tx.QueryRow(ctx, `
			SELECT id::text, name, price::text
			FROM services
			WHERE id = $1 AND (location_id = $2 OR location_id IS NULL)
		`, serviceID, locationID)
	}
	return classify(row.Scan(&appt.ServiceID, &appt.ServiceName, &appt.Price))
}

// upsertClient dedupes by normalized phone. A real email replaces a placeholder one,
// never the other way around. Clients without a phone are matched by email.
func (r *BookingRepository) upsertClient(ctx context.Context, tx pgx.Tx, name, phone, email string) (model.Client, error) {
	client := model.Client{Name: name, Phone: model.NormalizePhone(phone), Email: strings.TrimSpace(email)}
	if client.Email == "" && client.Phone != "" {
		client.Email = model.PlaceholderEmail(client.Phone)
	}
	if client.Phone == "" && client.Email == "" {
		return model.Client{}, errors.New("phone or email required")
	}

	if client.Phone != "" {
		err := tx.QueryRow(ctx, `
			INSERT INTO clients (name, phone, email)
			VALUES ($1, $2, $3)
			ON CONFLICT (phone) DO UPDATE
			SET name = EXCLUDED.name,
				email = CASE
					WHEN EXCLUDED.email LIKE ('%@' || $4) THEN clients.email
					ELSE EXCLUDED.email
				END
			RETURNING id::text, email
		`, client.Name, client.Phone, client.Email, model.PlaceholderEmailDomain).Scan(&client.ID, &client.Email)
		return client, err
	}

	err := tx.QueryRow(ctx, `
		SELECT id::text, COALESCE(phone, '')
		FROM clients
		WHERE lower(email) = lower($1)
		ORDER BY created_at
		LIMIT 1
	`, client.Email).Scan(&client.ID, &client.Phone)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Client{}, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO clients (name, email)
		VALUES ($1, $2)
		RETURNING id::text
	`, client.Name, client.Email).Scan(&client.ID)
	return client, err
}

// BookedTimes lists the times held by non-cancelled appointments.
func (r *BookingRepository) BookedTimes(ctx context.Context, locationID, staffID string, date time.Time) ([]availability.Clock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE location_id = $1
			AND staff_id = $2
			AND appointment_date = $3::date
			AND status <> 'cancelled'
	`, locationID, staffID, date.Format(dateLayout))
	if err != nil {
		return nil, classify(err)
	}
	return scanClocks(rows)
}

func (r *BookingRepository) BlockedTimes(ctx context.Context, staffID string, date time.Time) ([]availability.Clock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(slot_time, 'HH24:MI')
		FROM blocked_slots
		WHERE staff_id = $1 AND slot_date = $2::date
	`, staffID, date.Format(dateLayout))
	if err != nil {
		return nil, classify(err)
	}
	return scanClocks(rows)
}

func scanClocks(rows pgx.Rows) ([]availability.Clock, error) {
	defer rows.Close()
	var out []availability.Clock
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		c, err := availability.ParseClock(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const appointmentColumns = `
	a.id::text, a.location_id::text, l.name, a.staff_id::text, s.name, a.service_id::text, sv.name,
	a.client_id::text, c.name, COALESCE(c.phone, ''), COALESCE(c.email, ''),
	a.appointment_date, to_char(a.appointment_time, 'HH24:MI'), a.price::text,
	a.status, a.source, a.cancelled_at, COALESCE(a.cancellation_reason, ''), a.created_at`

const appointmentJoins = `
	FROM appointments a
	JOIN locations l ON l.id = a.location_id
	JOIN staff s ON s.id = a.staff_id
	JOIN services sv ON sv.id = a.service_id
	JOIN clients c ON c.id = a.client_id`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.LocationID,
		&appt.LocationName,
		&appt.StaffID,
		&appt.StaffName,
		&appt.ServiceID,
		&appt.ServiceName,
		&appt.ClientID,
		&appt.ClientName,
		&appt.ClientPhone,
		&appt.ClientEmail,
		&appt.Date,
		&appt.Time,
		&appt.Price,
		&appt.Status,
		&appt.Source,
		&appt.CancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	return appt, err
}

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+appointmentJoins+`
		WHERE a.id = $1
		FOR UPDATE OF a
	`, appointmentID))
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return appt, nil
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($2, '')
		WHERE id = $1
		RETURNING cancelled_at
	`, appointmentID, reason).Scan(&cancelledAt)
	return cancelledAt, classify(err)
}

func (r *BookingRepository) CompleteAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed'
		WHERE id = $1 AND status = 'confirmed'
	`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookingRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.LocationID != "" {
		add("a.location_id = $%d", f.LocationID)
	}
	if f.StaffID != "" {
		add("a.staff_id = $%d", f.StaffID)
	}
	if f.Date != "" {
		add("a.appointment_date = $%d::date", f.Date)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}

	query := `SELECT ` + appointmentColumns + appointmentJoins
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf("\n\tORDER BY a.appointment_date DESC, a.appointment_time ASC\n\tLIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, scope, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT scope,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
		FOR UPDATE
	`, scope, key).Scan(
		&rec.Scope,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

var _ availability.Source = (*BookingRepository)(nil)
