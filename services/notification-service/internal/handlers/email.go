package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/services/notification-service/internal/email"
	"github.com/barberbook/barberbook/services/notification-service/internal/storage"
	"github.com/go-playground/validator/v10"
)

// Recorder persists delivery attempts.
type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type EmailHandler struct {
	sender   email.Sender
	recorder Recorder
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEmailHandler(sender email.Sender, recorder Recorder, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{sender: sender, recorder: recorder, validate: validator.New(), logger: logger}
}

type sendEmailRequest struct {
	To            string `json:"to" validate:"required,email,max=254"`
	Subject       string `json:"subject" validate:"required,max=200"`
	HTML          string `json:"html" validate:"required"`
	AppointmentID string `json:"appointment_id" validate:"omitempty,uuid"`
	Kind          string `json:"kind" validate:"omitempty,max=64"`
}

func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sendEmailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.To = strings.TrimSpace(req.To)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid field: "+strings.ToLower(verrs[0].Field()))
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if email.IsPlaceholder(req.To) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "recipient has no real email address")
		return
	}
	if req.Kind == "" {
		req.Kind = "adhoc"
	}

	n := storage.Notification{
		AppointmentID: req.AppointmentID,
		Kind:          req.Kind,
		Channel:       "email",
		Recipient:     req.To,
		Subject:       req.Subject,
		Provider:      h.sender.ProviderID(),
		Status:        storage.StatusSent,
	}
	sendErr := h.sender.Send(r.Context(), email.Message{To: req.To, Subject: req.Subject, HTML: req.HTML})
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
		h.logger.Error("email send failed", "err", sendErr, "kind", req.Kind)
	}
	if err := h.recorder.Insert(r.Context(), n); err != nil {
		h.logger.Error("failed to persist notification", "err", err)
	}

	if sendErr != nil {
		httpx.WriteError(w, http.StatusBadGateway, "email delivery failed")
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": storage.StatusSent})
}
