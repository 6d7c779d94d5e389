// Package platform holds the small seams between the feed engine and the
// outside world so engine behavior stays testable without sockets or timers.
package platform

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads for components that gate on time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Conn is a live stream connection. ReadMessage blocks until a frame
// arrives, the connection drops, or the peer closes.
type Conn interface {
	ReadMessage() ([]byte, error)
	// Close sends a close frame with the given status code and reason,
	// then tears the connection down.
	Close(code int, reason string) error
}

// Dialer opens stream connections. Implementations must honor ctx
// cancellation while the dial is in flight.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
