package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"
)

// EmailOptions parameterise the SMTP channel.
type EmailOptions struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// EmailNotifier delivers notifications over authenticated SMTP. Port 465
// uses implicit TLS; any other port goes through STARTTLS via smtp.SendMail.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailNotifier constructs the SMTP channel.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify submits one message to every configured recipient.
func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if e.opts.From == "" || len(e.opts.Recipients) == 0 {
		return &DispatchError{
			Kind:    KindInvalidRecipient,
			Channel: "email",
			Err:     errors.New("sender and at least one recipient required"),
		}
	}

	msg := e.buildMessage(n)
	addr := fmt.Sprintf("%s:%d", e.opts.Host, e.opts.Port)

	var auth smtp.Auth
	if e.opts.Username != "" && e.opts.Password != "" {
		auth = smtp.PlainAuth("", e.opts.Username, e.opts.Password, e.opts.Host)
	}

	var err error
	if e.opts.Port == 465 {
		err = e.sendWithTLS(addr, auth, msg)
	} else {
		err = smtp.SendMail(addr, auth, e.opts.From, e.opts.Recipients, msg)
	}
	if err != nil {
		return classifySMTPError(err)
	}

	e.logger.Info().
		Str("action", n.Action.String()).
		Int("recipients", len(e.opts.Recipients)).
		Msg("email notification sent")
	return nil
}

func (e *EmailNotifier) buildMessage(n Notification) []byte {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n",
		e.opts.From,
		strings.Join(e.opts.Recipients, ", "),
		n.Subject(),
	)
	return []byte(headers + n.Body())
}

// sendWithTLS submits over an implicit TLS connection (port 465).
func (e *EmailNotifier) sendWithTLS(addr string, auth smtp.Auth, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.opts.Host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.opts.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(e.opts.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, rcpt := range e.opts.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}

// classifySMTPError maps SMTP reply codes onto the dispatch taxonomy:
// 530/534/535 auth, 550/551/553 recipient, everything else transport.
func classifySMTPError(err error) *DispatchError {
	kind := KindTransportFailure

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case 530, 534, 535:
			kind = KindAuthFailure
		case 550, 551, 553:
			kind = KindInvalidRecipient
		}
	}

	return &DispatchError{Kind: kind, Channel: "email", Err: err}
}

var _ Notifier = (*EmailNotifier)(nil)
