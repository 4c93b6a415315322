package models

import "time"

// Security event types emitted by the auth flows.
const (
	EventLoginFailed       = "login_failed"
	EventLoginSucceeded    = "login_succeeded"
	EventOTPIssued         = "otp_issued"
	EventOTPRejected       = "otp_rejected"
	EventLockoutEngaged    = "lockout_engaged"
	EventTokenRefreshed    = "token_refreshed"
	EventRefreshRejected   = "refresh_rejected"
	EventJailerCreated     = "jailer_created"
	EventPasswordResetDone = "password_reset"
)

// SecurityEvent is the audit record published to Kafka for every notable
// authentication outcome. Email may be empty when the event is not tied
// to a known identity.
type SecurityEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Details   string    `json:"details,omitempty"`
}
