// Package cancellations emails clients when booking-service cancels an appointment.
package cancellations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/services/notification-service/internal/email"
	"github.com/barberbook/barberbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

// Handler returns the consumer callback for booking.appointment.cancelled.v1. Send failures are
// recorded as failed notifications and not retried.
func Handler(sender email.Sender, recorder Recorder, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt kafkax.AppointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid cancellation payload", "err", err)
			return nil
		}
		if evt.AppointmentID == "" || evt.ClientEmail == "" || email.IsPlaceholder(evt.ClientEmail) {
			return nil
		}

		subject, html, err := email.CancellationEmail(evt)
		if err != nil {
			return fmt.Errorf("render cancellation email: %w", err)
		}

		n := storage.Notification{
			AppointmentID: evt.AppointmentID,
			Kind:          "cancellation",
			Channel:       "email",
			Recipient:     evt.ClientEmail,
			Subject:       subject,
			Provider:      sender.ProviderID(),
			Status:        storage.StatusSent,
		}
		if err := sender.Send(ctx, email.Message{To: evt.ClientEmail, Subject: subject, HTML: html}); err != nil {
			n.Status = storage.StatusFailed
			n.Error = err.Error()
			logger.Error("cancellation email failed", "err", err, "appointment_id", evt.AppointmentID)
		}
		if err := recorder.Insert(ctx, n); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}

		logger.Info("cancellation processed", "appointment_id", evt.AppointmentID, "status", n.Status)
		return nil
	}
}
