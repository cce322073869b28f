package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log instead of delivering them.
// It is the default for development, where no mailer is wired.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notify: signee notification",
		"event", msg.Event,
		"sid", msg.SID,
		"recipient", msg.RecipientEmail,
		"signing_url", msg.SigningURL,
		"organization", msg.Organization,
	)
	return nil
}
