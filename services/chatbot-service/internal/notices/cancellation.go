// Package notices tells chat clients about changes made to their appointments elsewhere.
package notices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/segmentio/kafka-go"
)

// CancellationHandler messages the client of a cancelled appointment that was booked over chat.
func CancellationHandler(sender chat.Sender, source string, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt kafkax.AppointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode cancellation event: %w", err)
		}
		if evt.Source != source || evt.ClientPhone == "" {
			return nil
		}
		if err := sender.Send(ctx, evt.ClientPhone, CancellationText(evt)); err != nil {
			return fmt.Errorf("send cancellation notice: %w", err)
		}
		logger.Info("cancellation notice sent",
			"appointment_id", evt.AppointmentID,
			"sender", runtime.MaskPhone(evt.ClientPhone),
		)
		return nil
	}
}

func CancellationText(evt kafkax.AppointmentEvent) string {
	date := evt.Date
	if d, err := time.Parse("2006-01-02", evt.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	text := fmt.Sprintf("Hola %s, tu turno del %s a las %s", evt.ClientName, date, evt.Time)
	if evt.StaffName != "" {
		text += " con " + evt.StaffName
	}
	if evt.LocationName != "" {
		text += " en " + evt.LocationName
	}
	text += " fue cancelado."
	if evt.Reason != "" {
		text += " Motivo: " + evt.Reason + "."
	}
	return text + " Escribí *turno* para reservar uno nuevo."
}
