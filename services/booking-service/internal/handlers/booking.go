package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/booking-service/internal/availability"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
	"github.com/barberbook/barberbook/services/booking-service/internal/notify"
	"github.com/barberbook/barberbook/services/booking-service/internal/outbox"
	"github.com/barberbook/barberbook/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

const emailWarning = "confirmation email could not be sent"

// BookingStore is the appointment persistence behind BookingHandler.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, scope, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, scope, key, appointmentID string, statusCode int, response []byte) error
	Confirm(ctx context.Context, tx pgx.Tx, req storage.ConfirmRequest) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string) (time.Time, error)
	CompleteAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) error
	List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
}

type StaffLister interface {
	ListStaff(ctx context.Context, locationID string) ([]model.Staff, error)
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingHandler struct {
	repo       BookingStore
	catalog    StaffLister
	outboxRepo EventWriter
	resolver   *availability.Resolver
	mailer     notify.Sender
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(repo BookingStore, catalog StaffLister, outboxRepo EventWriter, resolver *availability.Resolver, mailer notify.Sender, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		catalog:    catalog,
		outboxRepo: outboxRepo,
		resolver:   resolver,
		mailer:     mailer,
		logger:     logger,
		now:        time.Now,
	}
}

type createBookingRequest struct {
	LocationID    string `json:"location_id" validate:"required"`
	StaffID       string `json:"staff_id" validate:"required"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,datetime=15:04"`
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string `json:"customer_phone" validate:"required_without=CustomerEmail,max=32"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email,max=254"`
	Source        string `json:"source" validate:"omitempty,oneof=web whatsapp admin"`
}

type createBookingResponse struct {
	AppointmentID string   `json:"appointment_id"`
	ClientID      string   `json:"client_id"`
	StaffID       string   `json:"staff_id"`
	StaffName     string   `json:"staff_name"`
	ServiceName   string   `json:"service_name"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	Status        string   `json:"status"`
	Price         string   `json:"price"`
	Warnings      []string `json:"warnings"`
}

type appointmentRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

type appointmentStatusResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

type listAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	LocationID    string `json:"location_id"`
	StaffID       string `json:"staff_id"`
	StaffName     string `json:"staff_name"`
	ServiceName   string `json:"service_name"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Price         string `json:"price"`
	Status        string `json:"status"`
	Source        string `json:"source"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type slotsResponse struct {
	LocationID string   `json:"location_id"`
	StaffID    string   `json:"staff_id"`
	Date       string   `json:"date"`
	Times      []string `json:"times"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if fields := validationErrors(req); fields != nil {
		writeValidationError(w, fields)
		return
	}
	if req.Source == "" {
		req.Source = model.SourceWeb
	}

	day, err := availability.ParseDate(req.Date, h.resolver.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	clock, err := availability.ParseClock(req.Time)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid time")
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, req.LocationID, idempotencyKey)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "failed to lock idempotency key")
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	if !h.resolver.Bookable(day, clock) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "requested time is not bookable")
		return
	}
	if strings.EqualFold(req.StaffID, availability.AnyStaff) {
		staffID, err := h.pickStaff(ctx, req.LocationID, day, clock)
		if err != nil {
			if errors.Is(err, storage.ErrSlotTaken) {
				httpx.WriteError(w, http.StatusConflict, "time slot already booked")
				return
			}
			h.logger.Error("staff resolution failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to resolve staff")
			return
		}
		req.StaffID = staffID
	}

	appt, err := h.repo.Confirm(ctx, tx, storage.ConfirmRequest{
		LocationID:  req.LocationID,
		StaffID:     req.StaffID,
		ServiceID:   req.ServiceID,
		Date:        day,
		Time:        clock,
		ClientName:  req.CustomerName,
		ClientPhone: req.CustomerPhone,
		ClientEmail: req.CustomerEmail,
		Source:      req.Source,
	})
	if err != nil {
		h.writeConfirmError(w, err)
		return
	}

	evt, err := outbox.AppointmentEvent(kafkax.TopicAppointmentConfirmed, appt, h.now())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}

	resp := createBookingResponse{
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		StaffID:       appt.StaffID,
		StaffName:     appt.StaffName,
		ServiceName:   appt.ServiceName,
		Date:          req.Date,
		Time:          appt.Time,
		Status:        appt.Status,
		Price:         appt.Price,
		Warnings:      []string{},
	}
	if idempotencyKey != "" {
		body, err := json.Marshal(resp)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "failed to build response")
			return
		}
		if err := h.repo.FinalizeIdempotency(ctx, tx, req.LocationID, idempotencyKey, appt.ID, http.StatusCreated, body); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "failed to finalize idempotency key")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsSlotTaken(err) {
			httpx.WriteError(w, http.StatusConflict, "time slot already booked")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	h.logger.Info("appointment confirmed",
		"appointment_id", appt.ID,
		"source", appt.Source,
		"phone", runtime.MaskPhone(appt.ClientPhone),
	)

	if err := h.sendConfirmation(ctx, appt); err != nil {
		h.logger.Warn("confirmation email failed", "err", err, "appointment_id", appt.ID)
		resp.Warnings = append(resp.Warnings, emailWarning)
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) writeConfirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, "time slot already booked")
	case errors.Is(err, storage.ErrSlotUnavailable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "requested time is blocked")
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "unknown location, staff or service")
	default:
		h.logger.Error("confirm booking failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create appointment")
	}
}

// pickStaff resolves "any" to the first active staff member free at clock.
func (h *BookingHandler) pickStaff(ctx context.Context, locationID string, day time.Time, clock availability.Clock) (string, error) {
	staff, err := h.catalog.ListStaff(ctx, locationID)
	if err != nil {
		return "", err
	}
	for _, s := range staff {
		free, err := h.resolver.Available(ctx, locationID, s.ID, day)
		if err != nil {
			return "", err
		}
		for _, c := range free {
			if c == clock {
				return s.ID, nil
			}
		}
	}
	return "", storage.ErrSlotTaken
}

// staffWorksAt reports whether staffID is an active member of locationID.
func (h *BookingHandler) staffWorksAt(ctx context.Context, locationID, staffID string) (bool, error) {
	staff, err := h.catalog.ListStaff(ctx, locationID)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, s := range staff {
		if s.ID == staffID {
			return true, nil
		}
	}
	return false, nil
}

// sendConfirmation emails the client unless there is no mailer or the address is a placeholder.
// It runs after commit and outlives a cancelled request.
func (h *BookingHandler) sendConfirmation(ctx context.Context, appt model.Appointment) error {
	if h.mailer == nil || appt.ClientEmail == "" || model.IsPlaceholderEmail(appt.ClientEmail) {
		return nil
	}
	subject, html, err := notify.ConfirmationEmail(appt)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return h.mailer.Send(sendCtx, appt.ClientEmail, subject, html)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeAppointmentRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "appointment not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	switch appt.Status {
	case model.StatusCancelled:
		resp := appointmentStatusResponse{AppointmentID: appt.ID, Status: appt.Status}
		if appt.CancelledAt != nil {
			resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	case model.StatusCompleted:
		httpx.WriteError(w, http.StatusConflict, "appointment already completed")
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, appt.ID, req.Reason)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to cancel appointment")
		return
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = req.Reason

	evt, err := outbox.AppointmentEvent(kafkax.TopicAppointmentCancelled, appt, cancelledAt)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to build cancellation event")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	h.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	httpx.WriteJSON(w, http.StatusOK, appointmentStatusResponse{
		AppointmentID: appt.ID,
		Status:        model.StatusCancelled,
		CancelledAt:   cancelledAt.UTC().Format(time.RFC3339),
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeAppointmentRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "appointment not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	switch appt.Status {
	case model.StatusCompleted:
		httpx.WriteJSON(w, http.StatusOK, appointmentStatusResponse{AppointmentID: appt.ID, Status: appt.Status})
		return
	case model.StatusCancelled:
		httpx.WriteError(w, http.StatusConflict, "appointment is cancelled")
		return
	}

	if err := h.repo.CompleteAppointment(ctx, tx, appt.ID); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to complete appointment")
		return
	}
	appt.Status = model.StatusCompleted
	evt, err := outbox.AppointmentEvent(kafkax.TopicAppointmentCompleted, appt, h.now())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentStatusResponse{AppointmentID: appt.ID, Status: appt.Status})
}

func decodeAppointmentRequest(w http.ResponseWriter, r *http.Request) (appointmentRequest, bool) {
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return req, false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if fields := validationErrors(req); fields != nil {
		writeValidationError(w, fields)
		return req, false
	}
	return req, true
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := storage.ListFilter{
		LocationID: strings.TrimSpace(q.Get("location_id")),
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
		Date:       strings.TrimSpace(q.Get("date")),
		Status:     strings.TrimSpace(q.Get("status")),
		Limit:      50,
	}
	if filter.Date != "" {
		if _, err := time.Parse("2006-01-02", filter.Date); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	switch filter.Status {
	case "", model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted:
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.repo.List(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID: appt.ID,
			LocationID:    appt.LocationID,
			StaffID:       appt.StaffID,
			StaffName:     appt.StaffName,
			ServiceName:   appt.ServiceName,
			ClientName:    appt.ClientName,
			ClientPhone:   appt.ClientPhone,
			Date:          appt.Date.Format("2006-01-02"),
			Time:          appt.Time,
			Price:         appt.Price,
			Status:        appt.Status,
			Source:        appt.Source,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	locationID := strings.TrimSpace(q.Get("location_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if locationID == "" || staffID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "location_id, staff_id and date are required")
		return
	}
	day, err := availability.ParseDate(dateStr, h.resolver.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if strings.EqualFold(staffID, availability.AnyStaff) {
		httpx.WriteError(w, http.StatusBadRequest, "staff_id must name a staff member")
		return
	}

	ctx := r.Context()
	known, err := h.staffWorksAt(ctx, locationID, staffID)
	if err != nil {
		h.logger.Error("staff lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load staff")
		return
	}
	if !known {
		httpx.WriteError(w, http.StatusNotFound, "unknown location or staff")
		return
	}

	free, err := h.resolver.Available(ctx, locationID, staffID, day)
	if err != nil {
		h.logger.Error("availability lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	times := make([]string, 0, len(free))
	for _, c := range free {
		times = append(times, c.String())
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		LocationID: locationID,
		StaffID:    staffID,
		Date:       dateStr,
		Times:      times,
	})
}
