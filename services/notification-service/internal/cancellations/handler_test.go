package cancellations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/services/notification-service/internal/email"
	"github.com/barberbook/barberbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got []email.Message
	err error
}

func (s *fakeSender) ProviderID() string { return "fake" }

func (s *fakeSender) Send(_ context.Context, msg email.Message) error {
	s.got = append(s.got, msg)
	return s.err
}

type fakeRecorder struct {
	rows []storage.Notification
}

func (r *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	r.rows = append(r.rows, n)
	return nil
}

func event(t *testing.T, clientEmail string) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(kafkax.AppointmentEvent{
		AppointmentID: "0b8f1c7e-8d7f-4a59-9a3e-5f0f2f0d6b11",
		ClientName:    "Juan",
		ClientEmail:   clientEmail,
		Date:          "2025-12-25",
		Time:          "09:00",
		Status:        "cancelled",
	})
	require.NoError(t, err)
	return kafka.Message{Topic: kafkax.TopicAppointmentCancelled, Value: raw}
}

func TestCancellationEmailSent(t *testing.T) {
	sender, recorder := &fakeSender{}, &fakeRecorder{}
	h := Handler(sender, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, h(context.Background(), event(t, "juan@example.com")))
	require.Len(t, sender.got, 1)
	assert.Equal(t, "juan@example.com", sender.got[0].To)
	assert.Contains(t, sender.got[0].Subject, "25/12/2025")
	require.Len(t, recorder.rows, 1)
	assert.Equal(t, "cancellation", recorder.rows[0].Kind)
	assert.Equal(t, storage.StatusSent, recorder.rows[0].Status)
}

func TestCancellationSkipsPlaceholderAndEmpty(t *testing.T) {
	sender, recorder := &fakeSender{}, &fakeRecorder{}
	h := Handler(sender, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, h(context.Background(), event(t, "5491155550001@whatsapp.placeholder")))
	require.NoError(t, h(context.Background(), event(t, "")))
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte("{")}))
	assert.Empty(t, sender.got)
	assert.Empty(t, recorder.rows)
}

func TestCancellationSendFailureRecorded(t *testing.T) {
	sender, recorder := &fakeSender{err: errors.New("smtp down")}, &fakeRecorder{}
	h := Handler(sender, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, h(context.Background(), event(t, "juan@example.com")))
	require.Len(t, recorder.rows, 1)
	assert.Equal(t, storage.StatusFailed, recorder.rows[0].Status)
	assert.Equal(t, "smtp down", recorder.rows[0].Error)
}
