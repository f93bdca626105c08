// Package email sends transactional mail over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/telecarehq/telecare_backend/config"
)

var ErrDisabled = errors.New("email delivery is disabled")

// ErrInvalidMessage reports a message that cannot be built.
type ErrInvalidMessage struct{ Reason string }

func (e ErrInvalidMessage) Error() string { return "invalid email message: " + e.Reason }

// ErrSend wraps a transport-level delivery failure.
type ErrSend struct{ Err error }

func (e ErrSend) Error() string { return fmt.Sprintf("smtp send failed: %v", e.Err) }
func (e ErrSend) Unwrap() error { return e.Err }

// Message is a single outbound mail. At least one body form must be set.
type Message struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Client delivers mail through a configured SMTP relay.
type Client struct {
	cfg config.EmailConfig
}

func NewFromCentral(cfg config.EmailConfig) (*Client, error) {
	return &Client{cfg: cfg}, nil
}

// Send delivers a single message, respecting the context deadline if it is
// sooner than the configured SMTP timeout.
func (c *Client) Send(ctx context.Context, m Message) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}

	msg, err := c.build(m)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- c.dialer().DialAndSend(msg)
	}()

	wait := c.timeout()
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return ErrSend{Err: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

func (c *Client) timeout() time.Duration {
	if c.cfg.SMTP.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.cfg.SMTP.TimeoutSeconds) * time.Second
}

func (c *Client) dialer() *gomail.Dialer {
	s := c.cfg.SMTP
	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	d.SSL = s.UseTLS
	if s.UseTLS {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return d
}

func (c *Client) build(m Message) (*gomail.Message, error) {
	from := strings.TrimSpace(c.cfg.From)
	if from == "" {
		return nil, ErrInvalidMessage{Reason: "from is required"}
	}

	to := make([]string, 0, len(m.To))
	for _, addr := range m.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, ErrInvalidMessage{Reason: "at least one recipient is required"}
	}

	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		return nil, ErrInvalidMessage{Reason: "subject is required"}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)

	hasText := strings.TrimSpace(m.TextBody) != ""
	hasHTML := strings.TrimSpace(m.HTMLBody) != ""
	switch {
	case hasText && hasHTML:
		msg.SetBody("text/plain", m.TextBody)
		msg.AddAlternative("text/html", m.HTMLBody)
	case hasHTML:
		msg.SetBody("text/html", m.HTMLBody)
	case hasText:
		msg.SetBody("text/plain", m.TextBody)
	default:
		return nil, ErrInvalidMessage{Reason: "either TextBody or HTMLBody is required"}
	}

	return msg, nil
}
