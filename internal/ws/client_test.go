package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

type fakeAuth struct{}

func (fakeAuth) Login(context.Context) error                      { return nil }
func (fakeAuth) AuthToken() string                                { return "token-123" }
func (fakeAuth) UserID() string                                   { return "999" }
func (fakeAuth) GetAuthHeaders() map[string]string                { return nil }
func (fakeAuth) FetchIntegrityToken(context.Context) (string, error) { return "", nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

// reachableProbe points the Internet probe at a local listener so staleness
// checks do not depend on the network.
func reachableProbe(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	prev := utils.InternetProbeAddr
	utils.InternetProbeAddr = ln.Addr().String()
	t.Cleanup(func() {
		utils.InternetProbeAddr = prev
		ln.Close()
	})
}

func TestDecodeServerMessage(t *testing.T) {
	parse := func(t *testing.T, raw string) *serverMessage {
		t.Helper()
		var v any
		require.NoError(t, json.Unmarshal([]byte(raw), &v))
		msg, err := decodeServerMessage(v)
		require.NoError(t, err)
		return msg
	}

	t.Run("welcome with numeric keepalive", func(t *testing.T) {
		msg := parse(t, `{"id":"1","type":"welcome","welcome":{"keepaliveSec":10,"sessionId":"abc"}}`)
		assert.Equal(t, TypeWelcome, msg.Type)
		assert.Equal(t, 10, msg.KeepaliveSec)
		assert.Equal(t, "abc", msg.SessionID)
	})

	t.Run("welcome with stringified keepalive", func(t *testing.T) {
		msg := parse(t, `{"type":"welcome","welcome":{"keepaliveSec":"30"}}`)
		assert.Equal(t, 30, msg.KeepaliveSec)
	})

	t.Run("subscribeResponse carries subscription id", func(t *testing.T) {
		msg := parse(t, `{"type":"subscribeResponse","subscribeResponse":{"result":"ok","subscription":{"id":"sub-1"}}}`)
		assert.Equal(t, resultOK, msg.Result)
		assert.Equal(t, "sub-1", msg.SubscriptionID)
	})

	t.Run("notification carries the stringified envelope", func(t *testing.T) {
		msg := parse(t, `{"type":"notification","notification":{"subscription":{"id":"sub-1"},"type":"pubsub","pubsub":"{\"topic\":\"raid.1\",\"message\":\"{}\"}"}}`)
		assert.Equal(t, "sub-1", msg.SubscriptionID)
		assert.Contains(t, msg.PubSub, `"topic":"raid.1"`)
	})

	t.Run("welcome without keepalive fails with a path", func(t *testing.T) {
		var v any
		require.NoError(t, json.Unmarshal([]byte(`{"type":"welcome","welcome":{}}`), &v))
		_, err := decodeServerMessage(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "keepaliveSec")
	})
}

// protocolServer implements just enough of the event socket to welcome,
// authenticate and acknowledge subscriptions, then push one notification.
func protocolServer(t *testing.T, gotToken chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		err = wsjson.Write(ctx, conn, map[string]any{
			"id": "srv-1", "type": TypeWelcome,
			"welcome": map[string]any{"keepaliveSec": 10, "sessionId": "session-1"},
		})
		if err != nil {
			return
		}

		var authReq map[string]any
		if err := wsjson.Read(ctx, conn, &authReq); err != nil {
			return
		}
		if body, ok := authReq["authenticate"].(map[string]any); ok {
			if token, ok := body["token"].(string); ok {
				gotToken <- token
			}
		}
		err = wsjson.Write(ctx, conn, map[string]any{
			"id": "srv-2", "type": TypeAuthenticateResponse,
			"authenticateResponse": map[string]any{"result": "ok"},
		})
		if err != nil {
			return
		}

		var subReq map[string]any
		if err := wsjson.Read(ctx, conn, &subReq); err != nil {
			return
		}
		subID, _ := subReq["subscribe"].(map[string]any)["id"].(string)
		err = wsjson.Write(ctx, conn, map[string]any{
			"id": "srv-3", "type": TypeSubscribeResponse,
			"subscribeResponse": map[string]any{
				"result":       "ok",
				"subscription": map[string]any{"id": subID},
			},
		})
		if err != nil {
			return
		}

		envelope, _ := json.Marshal(map[string]any{
			"topic":   "video-playback-by-id.42",
			"message": `{"type":"viewcount","server_time":1715635527,"viewers":123}`,
		})
		err = wsjson.Write(ctx, conn, map[string]any{
			"id": "srv-4", "type": TypeNotification,
			"notification": map[string]any{
				"subscription": map[string]any{"id": subID},
				"type":         "pubsub",
				"pubsub":       string(envelope),
			},
		})
		if err != nil {
			return
		}

		<-ctx.Done()
	}))
}

func TestClientHandshakeAndNotification(t *testing.T) {
	gotToken := make(chan string, 1)
	srv := protocolServer(t, gotToken)
	defer srv.Close()

	client := NewClient(0, fakeAuth{}, testLogger(t))
	client.url = strings.Replace(srv.URL, "http://", "ws://", 1)
	client.Submit(model.NewUserTopic(model.PubSubTopicVideoPlayback, "42"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go client.Run(ctx)

	select {
	case token := <-gotToken:
		assert.Equal(t, "token-123", token)
	case <-ctx.Done():
		t.Fatal("authenticate frame never arrived")
	}

	select {
	case msg := <-client.Messages():
		assert.Equal(t, "video-playback-by-id", msg.Topic)
		assert.Equal(t, model.MsgTypeViewCount, msg.Type)
		assert.Equal(t, "42", msg.ChannelID)
	case <-ctx.Done():
		t.Fatal("notification never routed")
	}

	assert.Equal(t, StateOpen, client.State())
	assert.Equal(t, 1, client.TopicCount())
}

func TestClientRejectedSubscribeRequeues(t *testing.T) {
	client := NewClient(0, fakeAuth{}, testLogger(t))
	topic := model.NewUserTopic(model.PubSubTopicRaid, "42")
	client.topics[topic.String()] = topic
	client.inflight = []inflightSub{{requestID: "req-1", topic: topic}}

	client.handleSubscribeResponse(&serverMessage{Type: TypeSubscribeResponse, Result: "error"})

	require.Len(t, client.pending, 1)
	assert.Equal(t, topic, client.pending[0])
	assert.Empty(t, client.inflight)
	assert.Empty(t, client.subs)
}

func TestClientStaleness(t *testing.T) {
	reachableProbe(t)
	log := testLogger(t)

	t.Run("closed is stale", func(t *testing.T) {
		c := NewClient(0, fakeAuth{}, log)
		c.Close()
		assert.True(t, c.Stale())
	})

	t.Run("fresh unopened is not stale", func(t *testing.T) {
		c := NewClient(0, fakeAuth{}, log)
		assert.False(t, c.Stale())
	})

	t.Run("unopened past the creation window is stale", func(t *testing.T) {
		c := NewClient(0, fakeAuth{}, log)
		c.createdAt = time.Now().Add(-constants.SocketCreatedTimeout - time.Minute)
		assert.True(t, c.Stale())
	})

	t.Run("silent open client is stale after the keepalive deadline", func(t *testing.T) {
		c := NewClient(0, fakeAuth{}, log)
		c.state = StateOpen
		c.lastMessageAt = time.Now().Add(-time.Minute)
		c.messageTimeout = 15 * time.Second
		assert.True(t, c.Stale())

		c.lastMessageAt = time.Now()
		assert.False(t, c.Stale())
	})
}

func TestClientCloseDoesNotRaceNotificationForwarding(t *testing.T) {
	client := NewClient(0, fakeAuth{}, testLogger(t))
	client.subs["sub-1"] = model.NewUserTopic(model.PubSubTopicVideoPlayback, "42")

	// Fill the buffer so the next forward blocks, the way a slow consumer
	// would during a reconnect.
	for i := 0; i < cap(client.messages); i++ {
		client.messages <- &model.Message{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.handleNotification(ctx, &serverMessage{
			Type:           TypeNotification,
			SubscriptionID: "sub-1",
			PubSub:         `{"topic":"video-playback-by-id.42","message":"{\"type\":\"viewcount\",\"server_time\":1715635527,\"viewers\":1}"}`,
		})
	}()

	// A close racing the blocked forward must not tear the channel down
	// under the sender.
	client.Close()
	assert.Equal(t, StateClosed, client.State())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification forward never returned")
	}
}

func TestClientRunClosesMessageChannel(t *testing.T) {
	client := NewClient(0, fakeAuth{}, testLogger(t))
	client.url = "ws://127.0.0.1:1" // nothing listens here

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Run(ctx)
	require.Error(t, err)

	_, open := <-client.Messages()
	assert.False(t, open, "Run owns the channel and closes it on exit")
}

func TestClientAuthFailureIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		wsjson.Write(ctx, conn, map[string]any{
			"type": TypeWelcome, "welcome": map[string]any{"keepaliveSec": 10},
		})
		var authReq map[string]any
		if err := wsjson.Read(ctx, conn, &authReq); err != nil {
			return
		}
		wsjson.Write(ctx, conn, map[string]any{
			"type":                 TypeAuthenticateResponse,
			"authenticateResponse": map[string]any{"result": "unauthenticated"},
		})
		<-ctx.Done()
	}))
	defer srv.Close()

	client := NewClient(0, fakeAuth{}, testLogger(t))
	client.url = strings.Replace(srv.URL, "http://", "ws://", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Run(ctx)

	require.Error(t, err)
	assert.True(t, client.AuthFailed())
	assert.Equal(t, StateClosed, client.State())
}
