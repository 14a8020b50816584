// Package mailer is the email-delivery collaborator. The core treats it as
// fire-and-forget: a delivery failure is logged, never propagated, since the
// code stays valid and resending is always available.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a one-time code to a destination address.
type Sender interface {
	SendOneTimeCode(ctx context.Context, destination, code, displayName string) error
}

// SMTPSender sends plain-text mail over authenticated SMTP.
type SMTPSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Logger   *zap.Logger
}

func (s *SMTPSender) SendOneTimeCode(ctx context.Context, destination, code, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	greeting := "Hi"
	if displayName != "" {
		greeting = "Hi " + displayName
	}
	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your verification code\r\nDate: %s\r\n\r\n%s,\r\n\r\nYour verification code is %s. It expires in 5 minutes.\r\n\r\nIf you did not request this code, you can ignore this email.\r\n",
		s.From,
		destination,
		time.Now().Format(time.RFC1123Z),
		greeting,
		code,
	)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := s.Host + ":" + s.Port
	if err := smtp.SendMail(addr, auth, s.From, []string{destination}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.Logger.Info("one-time code dispatched", zap.String("destination", destination))
	return nil
}

// DisabledSender stands in when no SMTP host is configured. It records that
// a send was requested without ever logging the code itself.
type DisabledSender struct {
	Logger *zap.Logger
}

func (s *DisabledSender) SendOneTimeCode(ctx context.Context, destination, code, displayName string) error {
	s.Logger.Warn("mail delivery disabled, one-time code not sent", zap.String("destination", destination))
	return nil
}
