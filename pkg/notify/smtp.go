package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"
)

type mailDialer interface {
	Dial() (gomail.SendCloser, error)
}

// SMTPSender delivers envelopes as multipart email through gomail.
type SMTPSender struct {
	dialer mailDialer
	from   string
}

// NewSMTPSender builds a sender with a gomail dialer for the given server.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send builds a plain-text message with an HTML alternative and optional attachment.
// Malformed addresses and permanent per-recipient refusals are reported as
// ErrInvalidRecipient and ErrRecipientRejected.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(env.Recipient))
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, env.Recipient, err)
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", addr.Address)
	m.SetHeader("Subject", env.Subject)
	m.SetBody("text/plain", env.Text)
	if env.HTML != "" {
		m.AddAlternative("text/html", env.HTML)
	}
	if att := env.Attachment; att != nil {
		content := att.Content
		m.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}),
		)
	}

	conn, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial for %s: %w", addr.Address, err)
	}
	defer conn.Close()

	if err := conn.Send(s.from, []string{addr.Address}, m); err != nil {
		if rejectsRecipient(err) {
			return fmt.Errorf("%w: %s: %v", ErrRecipientRejected, addr.Address, err)
		}
		return fmt.Errorf("smtp send to %s: %w", addr.Address, err)
	}
	return nil
}

// rejectsRecipient matches the permanent mailbox replies (RFC 5321 550-553)
// and a syntax error on the address argument (501).
func rejectsRecipient(err error) bool {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return false
	}
	switch reply.Code {
	case 501, 550, 551, 552, 553:
		return true
	}
	return false
}
