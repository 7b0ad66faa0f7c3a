package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/medassist/booking-api/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// dialer is the part of gomail.Dialer the service needs.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer dialer
	from   string
}

// NewService returns an SMTP sender, or a sender that only logs when no
// host is configured.
func NewService(cfg Config, log *logger.Logger) Service {
	if cfg.Host == "" {
		return &logService{logger: log}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type logService struct {
	logger *logger.Logger
}

func (s *logService) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("email delivery disabled, message dropped", "to", to, "subject", subject)
	return nil
}
