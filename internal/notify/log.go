package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes confirmations to the log instead of delivering them.
// Useful in development where no SMTP server or broker is available.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) Send(_ context.Context, c Confirmation) Result {
	n.log.Info("confirmation",
		zap.String("event_id", c.EventID),
		zap.String("registration_id", c.RegistrationID),
		zap.String("recipient", c.Recipient),
		zap.String("token", c.Token),
		zap.String("code_url", c.CodeURL),
	)
	return Result{Sent: true}
}
