package adapter

import "context"

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers email through an external provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
