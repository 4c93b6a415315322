package mailer

import (
	"context"
	"time"

	"pics-backend/internal/util"
)

// LogNotifier writes messages to the application log instead of sending
// them. Used in development when SMTP_HOST is unset. It logs the OTP in
// clear text, which is the point: the developer needs the code.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	util.Info("otp (log delivery)",
		util.String("to", to),
		util.String("code", code),
		util.Duration("ttl", ttl))
	return nil
}

func (LogNotifier) SendJailerCredentials(ctx context.Context, to, name, email, password string) error {
	util.Info("jailer credentials (log delivery)",
		util.String("to", to),
		util.String("email", email),
		util.String("password", password))
	return nil
}
