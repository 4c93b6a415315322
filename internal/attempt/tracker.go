// Package attempt guards the OTP verification endpoints against brute
// force: a per-key failure counter with an absolute lockout window.
// Attempts are keyed by the same namespaced key as the challenge they
// protect, not by source IP, so the lockout follows the identity under
// attack. A transport-level IP limiter runs in front of this.
package attempt

import "context"

// Result reports whether a verification attempt may proceed and how many
// attempts remain before the lockout engages.
type Result struct {
	Allowed   bool
	Remaining int
}

// Tracker is the per-key failure counter contract. Consume is called
// before every verification; the attempt it records is uncounted again
// by Clear when the verification succeeds or the challenge turns out to
// be expired.
type Tracker interface {
	// Consume records an attempt for key. While the lockout window is
	// open it returns {false, 0} without incrementing. The attempt that
	// reaches the threshold engages the lockout, resets the counter, and
	// is itself rejected.
	Consume(ctx context.Context, key string) (Result, error)

	// Clear removes the record for key entirely.
	Clear(ctx context.Context, key string) error
}
