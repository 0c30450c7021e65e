package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitNextDeadlineTerminates(t *testing.T) {
	peer := newMockPeer(t, drain)

	ch, err := DialSplit[payRequest, invoiceState](context.Background(), peer.endpoint("/sub"), testMacaroon, Options{})
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, StateClosed, ch.State())
}

func TestSplitNextCancelledBeforeRead(t *testing.T) {
	peer := newMockPeer(t, drain)

	ch, err := DialSplit[payRequest, invoiceState](context.Background(), peer.endpoint("/sub"), testMacaroon, Options{})
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateOpen, ch.State())
}

func TestSplitSendWhileReading(t *testing.T) {
	peer := newMockPeer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sendText(conn, fmt.Sprintf(`{"result":{"state":%q}}`, string(data)))
		drain(conn)
	})

	ch, err := DialSplit[string, invoiceState](context.Background(), peer.endpoint("/send"), testMacaroon, Options{})
	require.NoError(t, err)
	defer ch.Close()

	ctx := testContext(t)
	result := make(chan Event[invoiceState], 1)
	go func() {
		ev, err := ch.Next(ctx)
		if assert.NoError(t, err) {
			result <- ev
		}
	}()

	// The reader holds the read half; the write half is still free
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Send(ctx, "ping-state"))

	select {
	case ev := <-result:
		assert.Equal(t, "ping-state", ev.Result.State)
	case <-ctx.Done():
		t.Fatal("no response to the request")
	}
}

func TestActorNextDeadlineKeepsChannelOpen(t *testing.T) {
	peer := newMockPeer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
		sendText(conn, `{"result":{"state":"OPEN"}}`)
		drain(conn)
	})

	ch, err := Dial[payRequest, invoiceState](context.Background(), peer.endpoint("/sub"), testMacaroon, Options{})
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, ch.State())

	ev, err := ch.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "OPEN", ev.Result.State)
}

func TestActorEventsRange(t *testing.T) {
	peer := newMockPeer(t, func(conn *websocket.Conn) {
		for _, s := range []string{"OPEN", "ACCEPTED", "SETTLED"} {
			sendText(conn, fmt.Sprintf(`{"result":{"state":%q}}`, s))
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		drain(conn)
	})

	ch, err := Dial[payRequest, invoiceState](context.Background(), peer.endpoint("/sub"), testMacaroon, Options{})
	require.NoError(t, err)
	defer ch.Close()

	var states []string
	for ev := range ch.Events() {
		states = append(states, ev.Result.State)
	}

	assert.Equal(t, []string{"OPEN", "ACCEPTED", "SETTLED"}, states)
	assert.True(t, IsPeerClosed(ch.Err()))
}
