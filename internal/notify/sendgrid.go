package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridNotifier delivers messages as email via the SendGrid API.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    zerolog.Logger
}

func NewSendGridNotifier(apiKey, fromEmail, fromName string, logger zerolog.Logger) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

func (n *SendGridNotifier) Send(ctx context.Context, to Contact, msg Message) error {
	if to.Email == "" {
		return fmt.Errorf("notify: no email address for %q", to.Name)
	}

	from := mail.NewEmail(n.fromName, n.fromEmail)
	rcpt := mail.NewEmail(to.Name, to.Email)
	message := mail.NewSingleEmail(from, msg.Subject, rcpt, msg.Body, msg.Body)

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		n.logger.Error().
			Int("status", resp.StatusCode).
			Str("to", to.Email).
			Msg("sendgrid rejected message")
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("to", to.Email).
		Msg("notification sent")
	return nil
}
