// Package notify sends out-of-band notices to consumers.
package notify

import (
	"context"
	"fmt"
	"strings"

	"ecotrace-api/internal/model"
	"ecotrace-api/pkg/logger"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// sender abstracts gomail's dialer so delivery can be faked in tests.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends rejection emails over SMTP.
type SMTPNotifier struct {
	dialer sender
	from   string
	log    zerolog.Logger
}

// NewSMTPNotifier creates an SMTP notifier. From defaults to User.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   from,
		log:    logger.Component("SMTPNotifier"),
	}
}

// SendRejectionEmail delivers the notice. gomail has no context support, so
// the send runs in the background and ctx only bounds how long we wait.
func (n *SMTPNotifier) SendRejectionEmail(ctx context.Context, notice model.RejectionNotice) error {
	if strings.TrimSpace(notice.Recipient) == "" {
		return fmt.Errorf("rejection email has no recipient")
	}

	m := BuildRejectionMessage(n.from, notice)

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send rejection email: %w", err)
		}
		n.log.Info().Str("recipient", notice.Recipient).Msg("rejection email sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send rejection email: %w", ctx.Err())
	}
}

// BuildRejectionMessage renders the rejection email.
func BuildRejectionMessage(from string, notice model.RejectionNotice) *gomail.Message {
	product := notice.ProductName
	if product == "" {
		product = "your product"
	}
	reason := notice.Reason
	if reason == "" {
		reason = "No reason was given."
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", notice.Recipient)
	m.SetHeader("Subject", fmt.Sprintf("Your recycling request for %s was declined", product))
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello,\n\nThe recycler could not accept your request for %s.\n\nReason: %s\n\nYou can open a new request with another recycler at any time.\n",
		product, reason))
	return m
}

// LogNotifier only logs notices. It is used when SMTP is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier that logs instead of sending.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Component("LogNotifier")}
}

// SendRejectionEmail logs the notice and reports success.
func (n *LogNotifier) SendRejectionEmail(ctx context.Context, notice model.RejectionNotice) error {
	n.log.Warn().Str("recipient", notice.Recipient).Str("product", notice.ProductName).
		Msg("SMTP not configured, rejection email skipped")
	return nil
}
