package email

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/pkg/circuitbreaker"
)

type Service interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer  sender
	from    string
	breaker *circuitbreaker.CircuitBreaker
}

// NewSMTPService sends plain-text mail through the configured SMTP relay.
func NewSMTPService(cfg config.SMTPConfig) Service {
	return newSMTPService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func newSMTPService(d sender, from string) *smtpService {
	return &smtpService{
		dialer: d,
		from:   from,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:             "smtp",
			MaxRequests:      1,
			Timeout:          30 * time.Second,
			FailureThreshold: 3,
		}),
	}
}

func (s *smtpService) Send(ctx context.Context, to string, subject string, body string) error {
	if to == "" {
		return fmt.Errorf("recipient address is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.breaker.Execute(func() error { return s.dialer.DialAndSend(m) }); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// Nop drops every message. Used when SMTP is disabled.
type Nop struct{}

func (Nop) Send(context.Context, string, string, string) error { return nil }
