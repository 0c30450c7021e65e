package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illuminodes/bright-lightning/pkg/stream"
)

func TestStreamObserver(t *testing.T) {
	obs := NewStreamObserver("test_route")

	obs.ChannelOpened()
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamChannelsActive.WithLabelValues("test_route")))

	obs.FrameReceived(stream.KindKeepalive)
	obs.FrameReceived(stream.KindResponse)
	obs.FrameReceived(stream.KindResponse)
	obs.FrameSent()
	obs.ChannelClosed("liveness_timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(StreamChannelsOpenedTotal.WithLabelValues("test_route")))
	assert.Equal(t, 0.0, testutil.ToFloat64(StreamChannelsActive.WithLabelValues("test_route")))
	assert.Equal(t, 2.0, testutil.ToFloat64(StreamFramesTotal.WithLabelValues("test_route", "response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamFramesTotal.WithLabelValues("test_route", "keepalive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamFramesSentTotal.WithLabelValues("test_route")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamTerminationsTotal.WithLabelValues("test_route", "liveness_timeout")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RESTRequestsTotal.WithLabelValues("getinfo", "200").Inc()

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bright_rest_requests_total{operation="getinfo",status="200"}`)
}

func TestRecorderRequestDone(t *testing.T) {
	before := testutil.ToFloat64(RESTRequestsTotal.WithLabelValues("recorder test", "200"))

	Recorder{}.RequestDone("recorder test", "200", 20*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(RESTRequestsTotal.WithLabelValues("recorder test", "200")))
	assert.IsType(t, &StreamObserver{}, Recorder{}.Stream("payment"))
}

func TestTransportCountsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	client := &http.Client{Transport: Transport("transport test", nil)}
	before := testutil.ToFloat64(RESTRequestsTotal.WithLabelValues("transport test", "418"))

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, before+1, testutil.ToFloat64(RESTRequestsTotal.WithLabelValues("transport test", "418")))

	_, err = client.Get("http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(RESTRequestsTotal.WithLabelValues("transport test", "error")))
}
