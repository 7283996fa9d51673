// Package dialogue drives the booking conversation one inbound message at a time.
package dialogue

import (
	"context"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/bookingapi"
)

type Directory interface {
	Locations(ctx context.Context) ([]bookingapi.Location, error)
	Staff(ctx context.Context, locationID string) ([]bookingapi.Staff, error)
}

// Availability answers free HH:MM times for a concrete staff member.
type Availability interface {
	FreeTimes(ctx context.Context, locationID, staffID, date string) ([]string, error)
}

// Booker confirms an appointment. It returns bookingapi.ErrSlotTaken when the slot was
// taken since it was offered and bookingapi.ErrSlotUnavailable when it is no longer bookable.
type Booker interface {
	Book(ctx context.Context, req bookingapi.BookRequest) (bookingapi.Booking, error)
}

type Backend interface {
	Directory
	Availability
	Booker
}

var _ Backend = (*bookingapi.Client)(nil)
