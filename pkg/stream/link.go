package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

const (
	controlWriteWait = time.Second
	maxLoggedFrame   = 256
)

// State is the lifecycle state of a channel
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// link is the connection state shared by both channel realizations: the
// socket, the classifier, the liveness monitor and the one-shot termination.
type link[R any] struct {
	id         string
	endpoint   string
	ws         *websocket.Conn
	classifier Classifier[R]
	liveness   *Liveness
	opts       Options
	log        zerolog.Logger

	state atomic.Int32
	once  sync.Once
	done  chan struct{}

	mu  sync.Mutex
	err error

	stopCtx func() bool
}

// openLink performs the handshake and returns an open link
func openLink[R any](ctx context.Context, ep Endpoint, mac macaroon.Macaroon, opts Options) (*link[R], error) {
	opts = opts.withDefaults()
	id := uuid.NewString()
	logger := opts.logger().With().
		Str("channel_id", id).
		Str("endpoint", ep.Host+ep.path()).
		Logger()

	l := &link[R]{
		id:       id,
		endpoint: ep.Host + ep.path(),
		liveness: NewLiveness(opts.LivenessThreshold),
		opts:     opts,
		log:      logger,
		done:     make(chan struct{}),
	}
	l.state.Store(int32(StateConnecting))

	hs, err := BuildHandshake(ep, mac)
	if err != nil {
		return nil, err
	}

	logger.Debug().Object("handshake", hs).Msg("Opening streaming channel")

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  opts.tlsConfig(),
	}

	ws, resp, err := dialer.DialContext(ctx, hs.URL, hs.DialHeader())
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				resp.Body.Close()
			}
			logger.Error().
				Int("status", resp.StatusCode).
				Msg("Node refused WebSocket upgrade")
			return nil, &ConnectionRefusedError{URL: hs.URL, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
		}
		logger.Error().Err(err).Msg("Failed to dial node")
		return nil, &TransportError{Op: "dial", Err: err}
	}

	l.ws = ws
	ws.SetPingHandler(l.handlePing)
	l.state.Store(int32(StateOpen))
	l.stopCtx = context.AfterFunc(ctx, func() {
		l.terminate(fmt.Errorf("%w: %w", ErrConnectionClosed, context.Cause(ctx)))
	})

	opts.Observer.ChannelOpened()
	logger.Info().
		Int("liveness_threshold", opts.LivenessThreshold).
		Bool("strict_decoding", opts.StrictDecoding).
		Msg("Streaming channel opened")

	return l, nil
}

// ID returns the channel identifier used in logs
func (l *link[R]) ID() string {
	return l.id
}

// State returns the current lifecycle state
func (l *link[R]) State() State {
	return State(l.state.Load())
}

// Err returns the terminal cause, or nil while the channel is open
func (l *link[R]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed once the channel has terminated
func (l *link[R]) Done() <-chan struct{} {
	return l.done
}

func (l *link[R]) closed() bool {
	return l.State() == StateClosed
}

// terminate records cause as the terminal error, closes the socket from both
// directions and wakes every blocked caller. Only the first call has effect.
func (l *link[R]) terminate(cause error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = cause
		l.mu.Unlock()

		l.state.Store(int32(StateClosed))
		close(l.done)

		if l.stopCtx != nil {
			l.stopCtx()
		}

		reason := terminationReason(cause)
		event := l.log.Info()
		if reason != "closed" {
			event = l.log.Warn().Err(cause)
		}
		event.Str("reason", reason).Msg("Streaming channel terminated")

		l.closeSocket()
		l.opts.Observer.ChannelClosed(reason)
	})
}

// closeSocket sends a normal close frame and closes the connection.
// WriteControl and Close are safe to call concurrently with the writer.
func (l *link[R]) closeSocket() {
	if l.ws == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		l.log.Debug().Err(err).Msg("Failed to send close frame")
	}
	l.ws.Close()
}

// handlePing runs on the reader goroutine from inside ReadMessage. Returning
// an error aborts the read, which is how the liveness timeout surfaces.
func (l *link[R]) handlePing(appData string) error {
	l.opts.Observer.FrameReceived(KindKeepalive)

	if err := l.liveness.Keepalive(); err != nil {
		l.log.Warn().
			Int("keepalives", l.liveness.Count()).
			Int("threshold", l.liveness.Threshold()).
			Msg("Peer keeps pinging without data")
		return err
	}

	l.log.Trace().Int("keepalives", l.liveness.Count()).Msg("Keepalive received")

	err := l.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// receive reads and classifies the next data frame
func (l *link[R]) receive() (Frame[R], error) {
	messageType, data, err := l.ws.ReadMessage()
	if err != nil {
		return Frame[R]{}, l.readError(err)
	}

	var frame Frame[R]
	if messageType == websocket.TextMessage {
		frame = l.classifier.Classify(data)
	} else {
		frame = Frame[R]{Kind: KindUnrecognized, Raw: data}
	}
	l.opts.Observer.FrameReceived(frame.Kind)
	return frame, nil
}

// inspect applies the channel policy to a classified frame. It reports
// whether the frame is delivered to the caller, and the terminal cause the
// frame triggers, if any.
func (l *link[R]) inspect(frame Frame[R]) (bool, error) {
	switch frame.Kind {
	case KindResponse:
		l.liveness.Reset()
		l.log.Debug().Msg("Response frame received")
		return true, nil

	case KindError:
		l.liveness.Reset()
		l.log.Error().
			Int("code", frame.Error.Code).
			Str("message", frame.Error.Message).
			Msg("Node sent error envelope")
		return true, frame.Error

	default:
		if l.opts.StrictDecoding {
			return false, &SerializationError{
				Direction: Inbound,
				Err:       fmt.Errorf("frame matches neither envelope: %q", truncate(frame.Raw)),
			}
		}
		l.log.Debug().
			Str("frame", truncate(frame.Raw)).
			Msg("Dropping unrecognized frame")
		return false, nil
	}
}

// readError maps a failed read to the channel's error taxonomy
func (l *link[R]) readError(err error) error {
	if errors.Is(err, ErrLivenessTimeout) {
		return ErrLivenessTimeout
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return &PeerClosedError{Code: closeErr.Code, Text: closeErr.Text}
	}

	if l.closed() {
		return ErrConnectionClosed
	}
	return &TransportError{Op: "read", Err: err}
}

// write sends one text frame. Callers serialize access to it.
func (l *link[R]) write(ctx context.Context, data []byte) error {
	var deadline time.Time
	if l.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(l.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := l.ws.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	l.opts.Observer.FrameSent()
	l.log.Debug().Int("bytes", len(data)).Msg("Frame sent")
	return nil
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedFrame {
		return string(b)
	}
	return string(b[:maxLoggedFrame]) + "..."
}
