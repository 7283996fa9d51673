// Package chat holds the provider-neutral message types shared by transports and the dialogue engine.
package chat

import (
	"context"
	"time"
)

type Kind string

const (
	KindText Kind = "text"
	// KindUnsupported covers media, locations, reactions and anything else without plain text.
	KindUnsupported Kind = "unsupported"
)

// Message is one inbound chat message after provider envelope translation.
type Message struct {
	ID        string
	Sender    string
	Text      string
	Kind      Kind
	Timestamp time.Time
}

// Translator turns a provider webhook body into messages, in payload order.
type Translator interface {
	Translate(body []byte) ([]Message, error)
}

// Sender delivers one outbound text to a sender address.
type Sender interface {
	Send(ctx context.Context, to string, text string) error
	ProviderID() string
}
