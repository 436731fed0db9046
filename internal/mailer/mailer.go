// Package mailer sends transactional email (address verification and
// password reset links). Postmark is used when a server token is configured;
// otherwise messages are written to the log so local development can follow
// emailed links without an email provider.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/mealbuddy/mealbuddy/internal/config"
)

// ErrNoRecipients is returned when SendMail is called without addresses.
var ErrNoRecipients = errors.New("mailer: no recipients")

// MailService sends plain HTML mail. Consumers depend on this interface so
// tests can swap in a fake.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// New picks the Postmark sender when credentials are present and the log
// sender otherwise.
func New(cfg config.MailConfig) (MailService, error) {
	if cfg.PostmarkServerToken == "" {
		slog.Info("postmark not configured, mail will be logged")
		return NewLogSender(slog.Default()), nil
	}
	return NewPostmarkSender(cfg)
}

// PostmarkSender delivers mail through the Postmark transactional API.
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender validates the sender address and builds a client.
func NewPostmarkSender(cfg config.MailConfig) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, errors.New("mailer: POSTMARK_SERVER_TOKEN is required")
	}
	if _, err := mail.ParseAddress(cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("mailer: invalid EMAILS_FROM_EMAIL %q: %w", cfg.FromEmail, err)
	}

	return &PostmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.FromEmail,
	}, nil
}

// SendMail implements MailService.
func (s *PostmarkSender) SendMail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       strings.Join(to, ","),
		Subject:  subject,
		HTMLBody: body,
		Tag:      "auth",
	})
	if err != nil {
		return fmt.Errorf("sending via postmark: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// LogSender writes messages to a structured logger instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a sender that logs at info level.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendMail implements MailService.
func (s *LogSender) SendMail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	s.logger.InfoContext(ctx, "mail not sent (no provider)",
		slog.Any("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
