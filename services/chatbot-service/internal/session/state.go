// Package session keeps per-sender conversation state between inbound messages.
package session

import (
	"context"
	"errors"
	"time"
)

type Step string

const (
	StepGreeting     Step = "greeting"
	StepLocation     Step = "location"
	StepBarber       Step = "barber"
	StepDate         Step = "date"
	StepTime         Step = "time"
	StepConfirmation Step = "confirmation"
	StepCompleted    Step = "completed"
)

var order = []Step{StepGreeting, StepLocation, StepBarber, StepDate, StepTime, StepConfirmation, StepCompleted}

// Index is the position of s in the booking flow, or -1 for an unknown step.
func (s Step) Index() int {
	for i, step := range order {
		if step == s {
			return i
		}
	}
	return -1
}

type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is what the dialogue has collected so far for one sender.
type State struct {
	ConversationID string    `json:"conversation_id"`
	Step           Step      `json:"step"`
	LocationID     string    `json:"location_id,omitempty"`
	LocationName   string    `json:"location_name,omitempty"`
	StaffID        string    `json:"staff_id,omitempty"`
	StaffName      string    `json:"staff_name,omitempty"`
	AnyStaff       bool      `json:"any_staff,omitempty"`
	StaffOptions   []Option  `json:"staff_options,omitempty"`
	Date           string    `json:"date,omitempty"`
	Time           string    `json:"time,omitempty"`
	AvailableTimes []string  `json:"available_times,omitempty"`
	Name           string    `json:"name,omitempty"`
	AppointmentID  string    `json:"appointment_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var ErrLocked = errors.New("conversation is locked")

// Store is addressed by sender id. Lock serializes handling of one sender's messages,
// across processes for shared implementations.
type Store interface {
	Get(ctx context.Context, sender string) (State, bool, error)
	Put(ctx context.Context, sender string, st State, ttl time.Duration) error
	Delete(ctx context.Context, sender string) error
	Lock(ctx context.Context, sender string) (func(), error)
}
