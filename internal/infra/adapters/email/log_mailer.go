package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"edu-checkout/internal/config"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/infra/logging"
)

var _ adapter.Mailer = (*LogMailer)(nil)

// LogMailer writes messages to the log instead of sending them. Used in
// development and when no SMTP relay is configured.
type LogMailer struct {
	log *zerolog.Logger
	dev bool
}

func NewLogMailer(logger *zerolog.Logger, dev bool) *LogMailer {
	return &LogMailer{log: logger, dev: dev}
}

func (m *LogMailer) Send(ctx context.Context, msg adapter.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := m.log.Info().
		Str("to", logging.Redact(msg.To, m.dev)).
		Str("subject", msg.Subject)
	if m.dev {
		ev = ev.Str("body", msg.TextBody)
	}
	ev.Msg("[log-mailer] email")
	return nil
}

// New picks the mailer for cfg.Driver.
func New(cfg config.MailConfig, logger *zerolog.Logger, dev bool) (adapter.Mailer, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPMailer(cfg, logger)
	case "", "log":
		return NewLogMailer(logger, dev), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
