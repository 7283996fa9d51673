package kafkax

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type memInbox struct {
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, eventID string, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func TestConsumerProcessDeduplicates(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := &Consumer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbox:  inbox,
		handler: func(context.Context, kafka.Message) error {
			calls++
			return nil
		},
	}

	msg := kafka.Message{Topic: TopicAppointmentCancelled, Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}}}
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)
	assert.Equal(t, 1, calls)

	inbox.err = errors.New("redis down")
	msg.Headers[0].Value = []byte("evt-2")
	c.process(context.Background(), msg)
	assert.Equal(t, 1, calls)
}
