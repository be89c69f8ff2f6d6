package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edu-checkout/internal/config"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/infra/logging"
)

var _ adapter.Mailer = (*SMTPMailer)(nil)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers plain-text (optionally multipart) mail over SMTP with
// STARTTLS when the server offers it.
type SMTPMailer struct {
	addr string
	host string
	from string
	auth smtp.Auth
	log  *zerolog.Logger
	send sendFunc
	now  func() time.Time
}

func NewSMTPMailer(cfg config.MailConfig, logger *zerolog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp mailer: host and from are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	m := &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		host: cfg.Host,
		from: cfg.From,
		log:  logger,
		send: smtp.SendMail,
		now:  time.Now,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

// Send blocks until the server accepts the message. net/smtp has no context
// support, so cancellation only abandons the wait.
func (m *SMTPMailer) Send(ctx context.Context, msg adapter.Message) error {
	if msg.To == "" {
		return errors.New("smtp mailer: empty recipient")
	}
	body := m.build(msg)

	done := make(chan error, 1)
	go func() { done <- m.send(m.addr, m.auth, m.from, []string{msg.To}, body) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.log.Debug().Str("to", logging.Redact(msg.To, false)).Msg("email delivered")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) build(msg adapter.Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("From", m.from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), m.host))
	header("MIME-Version", "1.0")

	if msg.HTMLBody == "" {
		header("Content-Type", `text/plain; charset="utf-8"`)
		header("Content-Transfer-Encoding", "8bit")
		b.WriteString("\r\n")
		b.WriteString(crlf(msg.TextBody))
		return b.Bytes()
	}

	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	header("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, boundary))
	b.WriteString("\r\n")
	for _, part := range []struct{ ctype, body string }{
		{"text/plain", msg.TextBody},
		{"text/html", msg.HTMLBody},
	} {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\nContent-Transfer-Encoding: 8bit\r\n\r\n", part.ctype)
		b.WriteString(crlf(part.body))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
