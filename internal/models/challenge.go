package models

import "time"

// ChallengePayload is the opaque association data carried by a challenge
// from the step that issued it to the step that consumes it. Only the
// fields relevant to the issuing flow are populated.
type ChallengePayload struct {
	Role        string `json:"role,omitempty"`
	JailerName  string `json:"jailer_name,omitempty"`
	JailerEmail string `json:"jailer_email,omitempty"`
}

// Challenge is a transient single-use secret scoped to a key and a TTL.
// At most one live challenge exists per key; issuing a new one overwrites
// the previous entry.
type Challenge struct {
	Key       string           `json:"key"`
	Secret    string           `json:"secret"`
	Payload   ChallengePayload `json:"payload"`
	IssuedAt  time.Time        `json:"issued_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Expired reports whether the challenge TTL has elapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptRecord tracks verification failures for one challenge key.
// FailureCount resets to zero when the lockout engages and when the
// corresponding challenge is consumed successfully.
type AttemptRecord struct {
	Key          string    `json:"key"`
	FailureCount int       `json:"failure_count"`
	LockedUntil  time.Time `json:"locked_until"`
}
