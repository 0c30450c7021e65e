package stream

import (
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default channel settings
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultEventBuffer      = 64
	DefaultOutboundBuffer   = 16
)

// Observer receives channel lifecycle notifications. internal/metrics
// implements it with prometheus collectors.
type Observer interface {
	ChannelOpened()
	FrameReceived(kind FrameKind)
	FrameSent()
	ChannelClosed(reason string)
}

// Options configure a channel at construction time.
//
// Retry and reconnection belong to the caller: a terminated channel is never
// reopened, a new one has to be dialed.
type Options struct {
	// LivenessThreshold is the number of consecutive keepalives tolerated
	// before the channel terminates with ErrLivenessTimeout. 0 tolerates
	// none; LivenessDisabled (any negative value) turns the monitor off.
	LivenessThreshold int

	// HandshakeTimeout bounds the upgrade handshake
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write (0 means no deadline)
	WriteTimeout time.Duration

	// InsecureSkipVerify accepts self-signed node certificates. LND generates
	// its own certificate by default, so operators commonly enable this.
	InsecureSkipVerify bool

	// TLSConfig overrides the TLS settings entirely when set
	TLSConfig *tls.Config

	// EventBuffer bounds the queue between the reader and the caller (actor
	// model only). A full queue stops the reader, pushing back on the peer.
	EventBuffer int

	// OutboundBuffer bounds queued sends waiting for the writer (actor model only)
	OutboundBuffer int

	// StrictDecoding terminates the channel on a frame matching neither
	// envelope instead of dropping it
	StrictDecoding bool

	// Logger is the parent logger; defaults to the global zerolog logger
	Logger *zerolog.Logger

	// Observer is notified of lifecycle events; may be nil
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = DefaultOutboundBuffer
	}
	if o.LivenessThreshold < 0 {
		o.LivenessThreshold = LivenessDisabled
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return log.Logger
}

func (o Options) tlsConfig() *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	return &tls.Config{
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}

type nopObserver struct{}

func (nopObserver) ChannelOpened()          {}
func (nopObserver) FrameReceived(FrameKind) {}
func (nopObserver) FrameSent()              {}
func (nopObserver) ChannelClosed(string)    {}
