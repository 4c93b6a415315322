// Package mailer delivers the out-of-band messages the auth flows
// depend on: OTP codes and the initial credentials for a freshly
// provisioned jailer account.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notifier is the delivery contract the auth service calls. Failures to
// deliver an OTP abort the flow; failures to deliver credentials are
// reported but must not roll back the account that was just created.
type Notifier interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
	SendJailerCredentials(ctx context.Context, to, name, email, password string) error
}

func otpMessage(from, to, code string, ttl time.Duration) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString("Subject: Your verification code\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("Your verification code is %s. It expires in %d minutes.\r\n", code, int(ttl.Minutes())))
	msg.WriteString("If you did not request this code, you can ignore this message.\r\n")
	return msg.String()
}

func credentialsMessage(from, to, name, email, password string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString("Subject: Your monitoring console account\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("Hello %s,\r\n\r\n", name))
	msg.WriteString("An operator account has been created for you.\r\n\r\n")
	msg.WriteString(fmt.Sprintf("Email: %s\r\nTemporary password: %s\r\n\r\n", email, password))
	msg.WriteString("Sign in and change this password as soon as possible.\r\n")
	return msg.String()
}
