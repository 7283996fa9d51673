package model

import (
	"strings"
	"time"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	SourceWeb      = "web"
	SourceWhatsApp = "whatsapp"
	SourceAdmin    = "admin"
)

// PlaceholderEmailDomain marks client emails synthesized for chat bookings.
const PlaceholderEmailDomain = "whatsapp.placeholder"

type Appointment struct {
	ID           string
	LocationID   string
	LocationName string
	StaffID      string
	StaffName    string
	ServiceID    string
	ServiceName  string
	ClientID     string
	ClientName   string
	ClientPhone  string
	ClientEmail  string
	Date         time.Time
	Time         string
	Price        string
	Status       string
	Source       string
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}

type Client struct {
	ID    string
	Name  string
	Phone string
	Email string
}

type BlockedSlot struct {
	ID        string
	StaffID   string
	Date      time.Time
	Time      string
	Reason    string
	CreatedAt time.Time
}

// NormalizePhone keeps digits only, so "+54 9 11 2233-4455" and the chat sender
// id "5491122334455" dedupe to the same client.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func PlaceholderEmail(phone string) string {
	return NormalizePhone(phone) + "@" + PlaceholderEmailDomain
}

func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+PlaceholderEmailDomain)
}
