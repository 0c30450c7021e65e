package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/illuminodes/bright-lightning/pkg/stream"
)

// StreamObserver records channel lifecycle events under a fixed route label.
// Routes are static names such as "invoice_subscription", never raw paths,
// which carry payment hashes.
type StreamObserver struct {
	route string
}

var _ stream.Observer = (*StreamObserver)(nil)

// NewStreamObserver creates an observer for the given route
func NewStreamObserver(route string) *StreamObserver {
	return &StreamObserver{route: route}
}

// ChannelOpened counts an opened channel
func (o *StreamObserver) ChannelOpened() {
	StreamChannelsOpenedTotal.WithLabelValues(o.route).Inc()
	StreamChannelsActive.WithLabelValues(o.route).Inc()
}

// FrameReceived counts an inbound frame by kind
func (o *StreamObserver) FrameReceived(kind stream.FrameKind) {
	StreamFramesTotal.WithLabelValues(o.route, kind.String()).Inc()
}

// FrameSent counts an outbound frame
func (o *StreamObserver) FrameSent() {
	StreamFramesSentTotal.WithLabelValues(o.route).Inc()
}

// ChannelClosed counts a termination by reason
func (o *StreamObserver) ChannelClosed(reason string) {
	StreamChannelsActive.WithLabelValues(o.route).Dec()
	StreamTerminationsTotal.WithLabelValues(o.route, reason).Inc()
}

// Recorder records node client activity in the package collectors. It
// satisfies lnd.Observer.
type Recorder struct{}

// RequestDone counts one REST call and its latency
func (Recorder) RequestDone(operation, status string, elapsed time.Duration) {
	RESTRequestsTotal.WithLabelValues(operation, status).Inc()
	RESTRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Stream returns the observer of a channel on route
func (Recorder) Stream(route string) stream.Observer {
	return NewStreamObserver(route)
}

// Transport wraps next so that every request sent through it is counted
// under operation, the way node REST calls are
func Transport(operation string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)

		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		Recorder{}.RequestDone(operation, status, time.Since(start))
		return resp, err
	})
}
