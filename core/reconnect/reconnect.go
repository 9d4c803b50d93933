package reconnect

import "time"

// DefaultDelay is the fixed wait between reconnect attempts.
const DefaultDelay = 5 * time.Second

// Policy returns the delay to wait before the given (zero-based) attempt.
// Policies never give up; callers retry until their context ends.
type Policy func(attempt int) time.Duration

// Fixed returns a policy that always waits d. Non-positive d selects DefaultDelay.
func Fixed(d time.Duration) Policy {
	if d <= 0 {
		d = DefaultDelay
	}
	return func(int) time.Duration { return d }
}

// Schedule defines the backoff durations for successive reconnect attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Backoff returns a stepped policy following Schedule.
// Attempts beyond the length of the schedule wait 30 seconds.
func Backoff() Policy {
	return func(attempt int) time.Duration {
		if attempt >= 0 && attempt < len(Schedule) {
			return Schedule[attempt]
		}
		return 30 * time.Second
	}
}
