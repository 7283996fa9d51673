package whatsapp

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
)

// envelope mirrors the parts of the Cloud API webhook payload we read.
type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Messages         []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Translator parses WhatsApp Cloud API webhook bodies.
type Translator struct{}

func NewTranslator() Translator {
	return Translator{}
}

// Translate returns inbound messages in payload order. Status callbacks carry no
// messages and yield an empty slice.
func (Translator) Translate(body []byte) ([]chat.Message, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var out []chat.Message
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg := chat.Message{
					ID:        m.ID,
					Sender:    m.From,
					Kind:      chat.KindUnsupported,
					Timestamp: parseUnix(m.Timestamp),
				}
				if m.Type == "text" && m.Text != nil {
					msg.Kind = chat.KindText
					msg.Text = strings.TrimSpace(m.Text.Body)
				}
				if msg.Sender == "" {
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

var _ chat.Translator = Translator{}
