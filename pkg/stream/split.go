package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

// SplitChannel is the split-halves realization of a duplex stream.
//
// No background goroutine exists. The write half is guarded by its own
// mutex, held for exactly one frame per Send; the read half is guarded by
// another and consumed on demand by Next. Any number of goroutines may call
// Send concurrently with a goroutine pulling events.
type SplitChannel[S, R any] struct {
	*link[R]

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// DialSplit opens a split-halves channel. Like Dial, cancelling ctx closes it.
func DialSplit[S, R any](ctx context.Context, ep Endpoint, mac macaroon.Macaroon, opts Options) (*SplitChannel[S, R], error) {
	l, err := openLink[R](ctx, ep, mac, opts)
	if err != nil {
		return nil, err
	}
	return &SplitChannel[S, R]{link: l}, nil
}

// Send encodes req and writes it as exactly one frame while holding the
// write half.
func (c *SplitChannel[S, R]) Send(ctx context.Context, req S) error {
	if c.closed() {
		return ErrConnectionClosed
	}

	data, err := encode(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.write(ctx, data); err != nil {
		c.terminate(err)
		return err
	}
	return nil
}

// Next reads frames while holding the read half until one is delivered or
// the channel terminates. Dropped frames are skipped.
//
// Cancelling ctx while a read is blocked interrupts it, and that terminates
// the channel: a connection cannot be read from again after a failed read.
func (c *SplitChannel[S, R]) Next(ctx context.Context) (Event[R], error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.closed() {
			return Event[R]{}, c.Err()
		}
		if err := ctx.Err(); err != nil {
			return Event[R]{}, err
		}

		stop := context.AfterFunc(ctx, func() {
			c.ws.SetReadDeadline(time.Now())
		})
		frame, err := c.receive()
		stop()

		if err != nil {
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", ErrConnectionClosed, ctx.Err())
			}
			c.terminate(err)
			return Event[R]{}, c.Err()
		}

		deliver, cause := c.inspect(frame)
		if cause != nil {
			c.terminate(cause)
		}
		if deliver {
			return frame.event(), nil
		}
		if cause != nil {
			return Event[R]{}, c.Err()
		}
	}
}

// Close terminates the channel; a blocked Next returns. Safe to call more
// than once.
func (c *SplitChannel[S, R]) Close() error {
	c.terminate(ErrConnectionClosed)
	return nil
}
