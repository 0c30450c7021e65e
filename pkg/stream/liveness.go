package stream

import "sync/atomic"

// Liveness counts consecutive keepalives received without a data frame in
// between. Some nodes ping an idle subscription forever; the monitor lets a
// reader give up instead of blocking indefinitely.
type Liveness struct {
	threshold int
	count     atomic.Int64
}

// LivenessDisabled switches the monitor off
const LivenessDisabled = -1

// NewLiveness creates a monitor that trips once more than threshold
// consecutive keepalives arrive, so a threshold of 0 trips on the first one.
// Any negative threshold disables the monitor.
func NewLiveness(threshold int) *Liveness {
	if threshold < 0 {
		threshold = LivenessDisabled
	}
	return &Liveness{threshold: threshold}
}

// Keepalive records one ping and returns ErrLivenessTimeout when the count
// exceeds the threshold
func (l *Liveness) Keepalive() error {
	n := l.count.Add(1)
	if l.threshold >= 0 && n > int64(l.threshold) {
		return ErrLivenessTimeout
	}
	return nil
}

// Reset is called for every response or error frame
func (l *Liveness) Reset() {
	l.count.Store(0)
}

// Count returns the current number of consecutive keepalives
func (l *Liveness) Count() int {
	return int(l.count.Load())
}

// Threshold returns the configured threshold, LivenessDisabled when off
func (l *Liveness) Threshold() int {
	return l.threshold
}

// Enabled reports whether keepalives can terminate the channel
func (l *Liveness) Enabled() bool {
	return l.threshold >= 0
}
