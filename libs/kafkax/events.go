package kafkax

import "time"

// AppointmentEvent is the JSON payload of every booking.appointment.* event.
type AppointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	LocationID    string    `json:"location_id"`
	LocationName  string    `json:"location_name"`
	StaffID       string    `json:"staff_id"`
	StaffName     string    `json:"staff_name"`
	ServiceName   string    `json:"service_name"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	ClientEmail   string    `json:"client_email,omitempty"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Price         string    `json:"price"`
	Status        string    `json:"status"`
	Source        string    `json:"source"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
