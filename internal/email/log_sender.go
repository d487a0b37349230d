package email

import (
	"context"
	"log/slog"
)

// LogSender writes emails to a logger. It is the default driver for local
// development, where the verification codes can be read from the logs.
// It logs addresses and complete bodies, never use it in production.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{
		logger: logger.With("email_driver", "log"),
	}
}

func (s *LogSender) Send(ctx context.Context, from, recipient Address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "send email",
		"from", from,
		"recipient", recipient,
		"subject", subject,
		"body", body,
	)
	return nil
}
