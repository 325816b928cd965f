// Package notify holds the outbound transports used to reach report recipients.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNoRoute is returned when no transport accepts the recipient.
	ErrNoRoute = errors.New("no transport for recipient")
	// ErrInvalidRecipient marks an address the transport cannot parse.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrRecipientRejected marks a permanent refusal of one recipient by the remote server.
	ErrRecipientRejected = errors.New("recipient rejected")
)

// IsRecipientError reports whether err concerns only the addressed recipient
// and says nothing about the health of the transport.
func IsRecipientError(err error) bool {
	return errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrRecipientRejected)
}

// Attachment is an optional file carried with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Envelope is one message addressed to one recipient.
type Envelope struct {
	Recipient  string
	Subject    string
	HTML       string
	Text       string
	Attachment *Attachment
}

// Sender delivers a single envelope.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, env Envelope) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Route pairs a recipient prefix (e.g. "slack:") with the sender that handles it.
type Route struct {
	Prefix string
	Sender Sender
}

// RoutingSender picks a transport by recipient prefix and falls back to Default.
type RoutingSender struct {
	Routes  []Route
	Default Sender
}

// Send dispatches env to the first matching route.
func (r *RoutingSender) Send(ctx context.Context, env Envelope) error {
	for _, route := range r.Routes {
		if strings.HasPrefix(env.Recipient, route.Prefix) {
			return route.Sender.Send(ctx, env)
		}
	}
	if r.Default == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, env.Recipient)
	}
	return r.Default.Send(ctx, env)
}

// LogSender writes envelopes to the log instead of a real transport. Used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the envelope metadata.
func (s *LogSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := []interface{}{"recipient", env.Recipient, "subject", env.Subject, "text_bytes", len(env.Text)}
	if env.Attachment != nil {
		fields = append(fields, "attachment", env.Attachment.Filename, "attachment_bytes", len(env.Attachment.Content))
	}
	s.logger.Sugar().Infow("notification sent to log sink", fields...)
	return nil
}
