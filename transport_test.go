package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func wsUrl(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestChannelDiscardsMalformed(t *testing.T) {
	received := make(chan *Envelope, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// the join announcement arrives first
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		conn.WriteMessage(websocket.TextMessage, []byte("{this is not json"))
		update, _ := json.Marshal(&Envelope{
			Type:   MessageTypeCodeUpdate,
			Origin: NewId(),
			Code:   "after the garbage",
		})
		conn.WriteMessage(websocket.TextMessage, update)

		// hold the connection until the client closes it
		conn.ReadMessage()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := &SessionAuth{
		Username: "alice",
	}
	channel, err := openSessionChannel(ctx, wsUrl(server), "test", auth, func(envelope *Envelope) {
		received <- envelope
	}, DefaultTransportSettings())
	assert.Equal(t, err, nil)
	defer channel.Close()

	// the malformed message is discarded; the one behind it still applies
	select {
	case envelope := <-received:
		assert.Equal(t, envelope.Type, MessageTypeCodeUpdate)
		assert.Equal(t, envelope.Code, "after the garbage")
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the envelope behind the malformed message")
	}
	assert.Equal(t, channel.State(), ChannelOpen)
}

func TestChannelEchoSuppression(t *testing.T) {
	received := make(chan *Envelope, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, joinBytes, err := conn.ReadMessage()
		if err != nil {
			return
		}
		join := &Envelope{}
		if err := json.Unmarshal(joinBytes, join); err != nil {
			return
		}

		// first an echo of the client's own origin, then a real update
		echo, _ := json.Marshal(&Envelope{
			Type:   MessageTypeCodeUpdate,
			Origin: join.Origin,
			Code:   "own echo",
		})
		conn.WriteMessage(websocket.TextMessage, echo)
		update, _ := json.Marshal(&Envelope{
			Type:   MessageTypeCodeUpdate,
			Origin: NewId(),
			Code:   "from someone else",
		})
		conn.WriteMessage(websocket.TextMessage, update)

		conn.ReadMessage()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := &SessionAuth{
		Username: "alice",
	}
	channel, err := openSessionChannel(ctx, wsUrl(server), "test", auth, func(envelope *Envelope) {
		received <- envelope
	}, DefaultTransportSettings())
	assert.Equal(t, err, nil)
	defer channel.Close()

	// messages arrive in order, so the first dispatched envelope proves
	// the echo before it was dropped
	select {
	case envelope := <-received:
		assert.Equal(t, envelope.Code, "from someone else")
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the non-echo envelope")
	}
}

func TestChannelSendAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := &SessionAuth{
		Username: "alice",
	}
	channel, err := openSessionChannel(ctx, wsUrl(server), "test", auth, func(*Envelope) {}, DefaultTransportSettings())
	assert.Equal(t, err, nil)
	assert.Equal(t, channel.State(), ChannelOpen)

	channel.Close()
	<-channel.Done()

	end := time.Now().Add(5 * time.Second)
	for channel.State() != ChannelClosed && time.Now().Before(end) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, channel.State(), ChannelClosed)

	// a send on a channel that is not open is a silent drop
	channel.Send(&Envelope{
		Type: MessageTypeCodeChange,
		Code: "dropped",
	})
}

func TestTransportSendWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// nothing listens here, so the transport never gets a channel
	auth := &SessionAuth{
		Username: "alice",
	}
	transport := NewSessionTransportWithDefaults(ctx, "ws://127.0.0.1:1", "test", auth, func(*Envelope) {})
	defer transport.Close()

	// a send while disconnected is a silent drop, not a panic or an error
	transport.Send(&Envelope{
		Type: MessageTypeCodeChange,
		Code: "dropped",
	})
	assert.Equal(t, transport.State(), ChannelClosed)
	assert.Equal(t, transport.ConnectionId().IsZero(), true)
}
