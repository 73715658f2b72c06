package notify

import "context"

// Kind distinguishes patient-facing message templates.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder7d   Kind = "reminder_7d"
	KindReminder24h  Kind = "reminder_24h"
	KindReminder2h   Kind = "reminder_2h"
)

// Contact is the delivery address the patient supplied at intake.
type Contact struct {
	Name  string
	Email string
	Phone string
}

type Message struct {
	Kind    Kind
	Subject string
	Body    string
}

// Notifier delivers a composed message. Delivery failures are retried by the
// dispatch sweep; they never block the booking transaction.
type Notifier interface {
	Send(ctx context.Context, to Contact, msg Message) error
}
