package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	gosmtp "net/smtp"
	"time"

	"pics-backend/internal/config"
	"pics-backend/internal/util"
)

// SMTPNotifier sends mail over STARTTLS (port 587 typical). Dial and
// send share a 10 second budget per message.
type SMTPNotifier struct {
	config config.SMTPConfig
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{config: cfg}
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	return n.send(ctx, to, otpMessage(n.config.From, to, code, ttl))
}

func (n *SMTPNotifier) SendJailerCredentials(ctx context.Context, to, name, email, password string) error {
	return n.send(ctx, to, credentialsMessage(n.config.From, to, name, email, password))
}

func (n *SMTPNotifier) send(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, n.config.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: n.config.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}

	if n.config.Username != "" {
		auth := gosmtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(n.config.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	util.Debug("mail sent", util.String("to", to))
	return nil
}
