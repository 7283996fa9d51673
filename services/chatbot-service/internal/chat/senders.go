package chat

import (
	"context"
	"log/slog"

	"github.com/barberbook/barberbook/libs/runtime"
)

type NoopSender struct{}

func (NoopSender) ProviderID() string {
	return "noop"
}

func (NoopSender) Send(context.Context, string, string) error {
	return nil
}

// LogSender writes outbound messages to the log instead of a provider. Useful locally.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) ProviderID() string {
	return "log"
}

func (s *LogSender) Send(_ context.Context, to string, text string) error {
	s.logger.Info("outbound chat message", "to", runtime.MaskPhone(to), "text", text)
	return nil
}
