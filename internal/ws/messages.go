// Package ws implements the unified Twitch event WebSocket. A client walks
// the welcome / authenticate / subscribe handshake and then multiplexes
// legacy PubSub topic payloads as "notification" frames; a pool spreads
// topics across clients (at most 50 each) and replaces stale ones.
package ws

import (
	"strconv"
	"time"

	"github.com/veikko/twitch-harvester/internal/decode"
)

// Message types exchanged with the event socket.
const (
	TypeWelcome               = "welcome"
	TypeKeepalive             = "keepalive"
	TypeAuthenticate          = "authenticate"
	TypeAuthenticateResponse  = "authenticateResponse"
	TypeSubscribe             = "subscribe"
	TypeSubscribeResponse     = "subscribeResponse"
	TypeUnsubscribe           = "unsubscribe"
	TypeUnsubscribeResponse   = "unsubscribeResponse"
	TypeNotification          = "notification"
	TypeReconnect             = "reconnect"
)

// resultOK is the success value of authenticateResponse and subscribeResponse.
const resultOK = "ok"

// requestIDLength matches the id length the Twitch web client generates.
const requestIDLength = 21

// request is a client-to-server frame. The payload field named after Type
// carries the type-specific body; the others stay nil.
type request struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Timestamp    string            `json:"timestamp"`
	Authenticate *authenticateBody `json:"authenticate,omitempty"`
	Subscribe    *subscriptionBody `json:"subscribe,omitempty"`
	Unsubscribe  *subscriptionBody `json:"unsubscribe,omitempty"`
}

type authenticateBody struct {
	Token string `json:"token"`
}

type subscriptionBody struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	PubSub topicRef `json:"pubsub"`
}

type topicRef struct {
	Topic string `json:"topic"`
}

// wireTimestamp renders an instant the way the event socket expects:
// ISO-8601 with millisecond precision and a Z suffix.
func wireTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// serverMessage is the decoded form of a server-to-client frame. Only the
// fields relevant to the frame's Type are populated.
type serverMessage struct {
	ID   string
	Type string

	// welcome
	KeepaliveSec int
	SessionID    string

	// authenticateResponse / subscribeResponse
	Result         string
	SubscriptionID string

	// notification: the stringified legacy PubSub envelope.
	PubSub string
}

// keepaliveSeconds tolerates both schema variants Twitch has shipped: a
// number and a stringified number.
var keepaliveSeconds = decode.Union("keepalive seconds",
	decode.Int,
	func(v any) (int, error) {
		s, err := decode.String(v)
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, &decode.InvalidValueError{Value: v}
		}
		return n, nil
	},
)

// decodeServerMessage validates one inbound frame. Unknown types decode to
// just their envelope so the caller can log and skip them.
func decodeServerMessage(v any) (*serverMessage, error) {
	var msg serverMessage
	var err error
	if msg.Type, err = decode.Property(v, "type", decode.String); err != nil {
		return nil, err
	}
	id, err := decode.OptionalProperty(v, "id", decode.String)
	if err != nil {
		return nil, err
	}
	msg.ID = id.Value()

	switch msg.Type {
	case TypeWelcome:
		body, err := decode.Property(v, "welcome", decode.Any)
		if err != nil {
			return nil, err
		}
		if msg.KeepaliveSec, err = decode.Property(body, "keepaliveSec", keepaliveSeconds); err != nil {
			return nil, decode.Chain(err, "welcome")
		}
		sessionID, err := decode.OptionalProperty(body, "sessionId", decode.String)
		if err != nil {
			return nil, decode.Chain(err, "welcome")
		}
		msg.SessionID = sessionID.Value()

	case TypeAuthenticateResponse:
		body, err := decode.Property(v, "authenticateResponse", decode.Any)
		if err != nil {
			return nil, err
		}
		if msg.Result, err = decode.Property(body, "result", decode.String); err != nil {
			return nil, decode.Chain(err, "authenticateResponse")
		}

	case TypeSubscribeResponse, TypeUnsubscribeResponse:
		key := "subscribeResponse"
		if msg.Type == TypeUnsubscribeResponse {
			key = "unsubscribeResponse"
		}
		body, err := decode.Property(v, key, decode.Any)
		if err != nil {
			return nil, err
		}
		if msg.Result, err = decode.Property(body, "result", decode.String); err != nil {
			return nil, decode.Chain(err, key)
		}
		sub, err := decode.OptionalProperty(body, "subscription", decode.Any)
		if err != nil {
			return nil, decode.Chain(err, key)
		}
		if sub.Defined() {
			if msg.SubscriptionID, err = decode.Property(sub.Value(), "id", decode.String); err != nil {
				return nil, decode.Chain(decode.Chain(err, "subscription"), key)
			}
		}

	case TypeNotification:
		body, err := decode.Property(v, "notification", decode.Any)
		if err != nil {
			return nil, err
		}
		sub, err := decode.Property(body, "subscription", decode.Any)
		if err != nil {
			return nil, decode.Chain(err, "notification")
		}
		if msg.SubscriptionID, err = decode.Property(sub, "id", decode.String); err != nil {
			return nil, decode.Chain(decode.Chain(err, "subscription"), "notification")
		}
		if msg.PubSub, err = decode.Property(body, "pubsub", decode.String); err != nil {
			return nil, decode.Chain(err, "notification")
		}
	}

	return &msg, nil
}

// decodePubSubEnvelope splits the stringified inner envelope of a
// notification frame into its full topic string and inner message JSON.
func decodePubSubEnvelope(v any) (topic string, message string, err error) {
	if topic, err = decode.Property(v, "topic", decode.String); err != nil {
		return "", "", err
	}
	if message, err = decode.Property(v, "message", decode.String); err != nil {
		return "", "", err
	}
	return topic, message, nil
}
