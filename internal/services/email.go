package services

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

// EmailConfig is the SMTP relay used for receipts and parent OTP mails
type EmailConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type EmailService struct {
	config EmailConfig
	auth   smtp.Auth
}

func NewEmailService(config EmailConfig) *EmailService {
	s := &EmailService{config: config}
	if config.User != "" && config.Password != "" {
		s.auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return s
}

// Configured reports whether an SMTP host and sender are set
func (s *EmailService) Configured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail delivers a plain text message. The context bounds how long the caller waits.
func (s *EmailService) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if !s.Configured() {
		return fmt.Errorf("SMTP credentials not fully configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
	}

	message := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n"+
		"\r\n"+
		"%s\r\n", s.config.From, strings.Join(to, ", "), subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, s.auth, s.config.From, to, message)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}
}
