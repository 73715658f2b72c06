package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes each message to the log instead of delivering it. Used
// in dev and as the fallback when no email provider is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, to Contact, msg Message) error {
	n.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("to", to.Email).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("notification (log only)")
	return nil
}
