package stream

import (
	"context"
	"sync"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

// Channel is the actor realization of a duplex stream.
//
// Two goroutines own the connection: the reader is the only one calling
// ReadMessage and the writer is the only one calling WriteMessage. Callers
// hand requests to the writer through a queue and drain classified events
// from a bounded queue filled by the reader, so no caller touches the socket.
type Channel[S, R any] struct {
	*link[R]

	events   chan Event[R]
	outbound chan outboundFrame
	wg       sync.WaitGroup
}

type outboundFrame struct {
	ctx    context.Context
	data   []byte
	result chan error
}

// Dial opens a channel sending S requests and receiving R responses.
//
// ctx bounds the lifetime of the channel, not only the handshake: cancelling
// it closes the channel. The handshake itself is bounded by
// Options.HandshakeTimeout.
func Dial[S, R any](ctx context.Context, ep Endpoint, mac macaroon.Macaroon, opts Options) (*Channel[S, R], error) {
	l, err := openLink[R](ctx, ep, mac, opts)
	if err != nil {
		return nil, err
	}

	c := &Channel[S, R]{
		link:     l,
		events:   make(chan Event[R], l.opts.EventBuffer),
		outbound: make(chan outboundFrame, l.opts.OutboundBuffer),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

// Send encodes req and writes it as exactly one frame. It returns once the
// frame has been written, so sequential sends reach the wire in order.
func (c *Channel[S, R]) Send(ctx context.Context, req S) error {
	if c.closed() {
		return ErrConnectionClosed
	}

	data, err := encode(req)
	if err != nil {
		return err
	}

	frame := outboundFrame{ctx: ctx, data: data, result: make(chan error, 1)}

	select {
	case c.outbound <- frame:
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-frame.result:
		return err
	case <-c.done:
		// The writer may have finished this frame just before termination
		select {
		case err := <-frame.result:
			return err
		default:
			return ErrConnectionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until the next event arrives or the channel terminates. After
// termination it returns the terminal cause: ErrLivenessTimeout,
// *PeerClosedError, *TransportError, *ApplicationError, *SerializationError
// or ErrConnectionClosed. Events already queued are delivered first.
func (c *Channel[S, R]) Next(ctx context.Context) (Event[R], error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event[R]{}, c.Err()
		}
		return ev, nil
	case <-ctx.Done():
		return Event[R]{}, ctx.Err()
	}
}

// Events exposes the event queue for range loops. The channel is closed when
// the stream terminates; Err then reports why.
func (c *Channel[S, R]) Events() <-chan Event[R] {
	return c.events
}

// Close terminates the channel and waits for its goroutines. It is safe to
// call more than once.
func (c *Channel[S, R]) Close() error {
	c.terminate(ErrConnectionClosed)
	c.wg.Wait()
	return nil
}

func (c *Channel[S, R]) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		frame, err := c.receive()
		if err != nil {
			c.terminate(err)
			return
		}

		deliver, cause := c.inspect(frame)
		if deliver && !c.deliver(frame.event()) {
			return
		}
		if cause != nil {
			c.terminate(cause)
			return
		}
	}
}

// deliver queues ev for the caller, blocking while the queue is full
func (c *Channel[S, R]) deliver(ev Event[R]) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Channel[S, R]) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			if c.closed() {
				frame.result <- ErrConnectionClosed
				return
			}
			if err := frame.ctx.Err(); err != nil {
				frame.result <- err
				continue
			}

			err := c.write(frame.ctx, frame.data)
			frame.result <- err
			if err != nil {
				c.terminate(err)
				return
			}
		}
	}
}
