package outbox

import (
	"encoding/json"
	"time"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEvent snapshots appt into an event of the given type.
func AppointmentEvent(eventType string, appt model.Appointment, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload(appt, occurredAt))
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

func AppointmentPayload(appt model.Appointment, occurredAt time.Time) kafkax.AppointmentEvent {
	return kafkax.AppointmentEvent{
		AppointmentID: appt.ID,
		LocationID:    appt.LocationID,
		LocationName:  appt.LocationName,
		StaffID:       appt.StaffID,
		StaffName:     appt.StaffName,
		ServiceName:   appt.ServiceName,
		ClientName:    appt.ClientName,
		ClientPhone:   appt.ClientPhone,
		ClientEmail:   appt.ClientEmail,
		Date:          appt.Date.Format("2006-01-02"),
		Time:          appt.Time,
		Price:         appt.Price,
		Status:        appt.Status,
		Source:        appt.Source,
		Reason:        appt.CancelReason,
		OccurredAt:    occurredAt.UTC(),
	}
}
