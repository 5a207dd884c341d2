package service

import (
	"time"

	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

// RetryPolicy maps a disconnect reason class to a reconnect delay. The
// supervisor consults it after every closure; the state machine never
// reconstructs itself.
type RetryPolicy struct {
	// Restart applies when the transport closed right after successful
	// pairing and wants the socket renegotiated immediately.
	Restart time.Duration
	// Transient applies to every other recoverable closure.
	Transient time.Duration
}

// Delay returns the reconnect delay for the given close class. retry is
// false for terminal closures: no reconnect may be scheduled.
func (p RetryPolicy) Delay(class transport.CloseClass) (delay time.Duration, retry bool) {
	switch class {
	case transport.CloseRestartRequired:
		return p.Restart, true
	case transport.CloseLoggedOut:
		return 0, false
	default:
		return p.Transient, true
	}
}
