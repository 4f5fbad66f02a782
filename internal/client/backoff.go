package client

import "time"

// ReconnectPolicy computes reconnection delays: exponential growth from
// BaseDelay, capped at MaxDelay. The attempt counter resets after a
// successful connect, so a later drop starts back at the base delay.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 means unlimited
}

// DefaultReconnectPolicy mirrors the gateway's recommended client settings.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given attempt (1-based):
// min(base * 2^(attempt-1), cap). Non-decreasing in attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// Exhausted reports whether the attempt count has passed the cap.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
