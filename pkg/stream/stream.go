// Package stream implements a duplex streaming channel to an LND node.
//
// A channel owns one authenticated WebSocket connection. Outbound requests of
// a single type S are written as text frames; inbound text frames are
// classified against a single response type R:
//
//	{"result": <R>}                           -> KindResponse
//	{"error": {"code": 5, "message": "..."}}  -> KindError, then the channel closes
//	ping control frame                        -> KindKeepalive, fed to the liveness monitor
//	anything else                             -> KindUnrecognized, dropped (or fatal in strict mode)
//
// Two realizations share the same contract. Channel runs a reader and a
// writer goroutine that own the socket (actor model); SplitChannel guards the
// read and write halves with mutexes and runs nothing in the background.
//
// Basic usage:
//
//	ch, err := stream.Dial[string, lnd.InvoiceState](ctx, ep, mac, stream.Options{LivenessThreshold: 3})
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//
//	for {
//	    ev, err := ch.Next(ctx)
//	    if err != nil {
//	        return err // terminal cause
//	    }
//	    fmt.Println(ev.Result.State)
//	}
//
// A terminated channel is never reopened. Retry policy belongs to the caller,
// which dials a new channel.
package stream

import "context"

// Stream is the contract both realizations implement
type Stream[S, R any] interface {
	// Send writes req as one frame
	Send(ctx context.Context, req S) error

	// Next returns the next event, or the terminal cause once terminated
	Next(ctx context.Context) (Event[R], error)

	// Close terminates the channel; idempotent
	Close() error

	// State returns the lifecycle state
	State() State

	// Err returns the terminal cause, nil while open
	Err() error

	// Done is closed on termination
	Done() <-chan struct{}

	// ID identifies the channel in logs
	ID() string
}

var (
	_ Stream[string, struct{}] = (*Channel[string, struct{}])(nil)
	_ Stream[string, struct{}] = (*SplitChannel[string, struct{}])(nil)
)
