package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/veikko/twitch-harvester/internal/auth"
	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// State tracks where a client is in the socket handshake.
type State int32

const (
	// StateUnopened means the client exists but has not dialed yet.
	StateUnopened State = iota
	// StateUnwelcomed means the socket is open, awaiting the welcome frame.
	StateUnwelcomed
	// StateUnauthenticated means welcome arrived and authenticate was sent.
	StateUnauthenticated
	// StateOpen means the server accepted our token; subscriptions flow.
	StateOpen
	// StateClosed is terminal. A new client must be created to reconnect.
	StateClosed
)

// String returns the state name for log lines.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateUnwelcomed:
		return "unwelcomed"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// inflightSub is a subscribe request awaiting its acknowledgement. The
// server acknowledges in send order, so a FIFO is enough to match them.
type inflightSub struct {
	requestID string
	topic     *model.PubSubTopic
}

// Client is one connection to the unified event socket. It is single-use:
// once Closed it never reopens, the pool replaces it with a fresh instance.
type Client struct {
	// ID distinguishes this instance from its replacement at the same pool
	// index, making reconnect requests idempotent.
	ID uuid.UUID

	// OnReconnect is invoked when the server sends a reconnect directive.
	// The pool sets it before Run.
	OnReconnect func()

	index int
	url   string

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	createdAt     time.Time
	lastMessageAt time.Time
	// messageTimeout starts at a conservative default and is replaced by
	// keepaliveSec+grace once the welcome frame advertises the real cadence.
	messageTimeout time.Duration
	sessionID      string
	authFailed     bool

	topics   map[string]*model.PubSubTopic // every topic assigned to this client
	pending  []*model.PubSubTopic          // queued until the client is Open
	inflight []inflightSub                 // subscribe requests awaiting ack
	subs     map[string]*model.PubSubTopic // subscription id -> topic

	messages  chan *model.Message
	writeCh   chan []byte
	closeOnce sync.Once

	auth auth.Provider
	log  *logger.Logger
}

// NewClient creates an event socket client. It does not dial; Run does.
func NewClient(index int, authProvider auth.Provider, log *logger.Logger) *Client {
	return &Client{
		ID:             uuid.New(),
		index:          index,
		url:            constants.EventSocketURL,
		state:          StateUnopened,
		createdAt:      time.Now(),
		messageTimeout: constants.DefaultMessageTimeout,
		topics:         make(map[string]*model.PubSubTopic),
		subs:           make(map[string]*model.PubSubTopic),
		messages:       make(chan *model.Message, 32),
		writeCh:        make(chan []byte, 64),
		auth:           authProvider,
		log:            log,
	}
}

// Submit assigns a topic to this client. Before the client is Open the
// topic waits in the pending queue; afterwards the subscribe frame goes out
// immediately.
func (c *Client) Submit(topic *model.PubSubTopic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topicStr := topic.String()
	if _, ok := c.topics[topicStr]; ok {
		return
	}
	c.topics[topicStr] = topic
	c.pending = append(c.pending, topic)

	if c.state == StateOpen {
		c.flushPendingLocked()
	}
}

// Unsubscribe removes a topic from this client. If the topic is already
// acknowledged an unsubscribe frame goes out; a still-pending topic is just
// dropped from the queue.
func (c *Client) Unsubscribe(topic *model.PubSubTopic) {
	c.mu.Lock()
	topicStr := topic.String()
	if _, ok := c.topics[topicStr]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.topics, topicStr)
	for i, t := range c.pending {
		if t.String() == topicStr {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	var subscriptionID string
	for id, t := range c.subs {
		if t.String() == topicStr {
			subscriptionID = id
			delete(c.subs, id)
			break
		}
	}
	open := c.state == StateOpen
	c.mu.Unlock()

	if open && subscriptionID != "" {
		c.enqueue(request{
			ID:        utils.RandomID(requestIDLength),
			Type:      TypeUnsubscribe,
			Timestamp: wireTimestamp(time.Now()),
			Unsubscribe: &subscriptionBody{
				ID:     subscriptionID,
				Type:   "pubsub",
				PubSub: topicRef{Topic: topicStr},
			},
		})
	}
}

// Run dials the socket and processes frames until the connection drops or
// the context is cancelled. The client is Closed when Run returns. Run owns
// the messages channel: it is the only sender, so it closes the channel on
// exit; Close must not, it can race a read loop still forwarding.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.messages)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{})
	if err != nil {
		c.Close()
		return fmt.Errorf("dialing event socket: %w", err)
	}
	conn.SetReadLimit(128 << 10) // 128 KB

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return nil
	}
	c.conn = conn
	c.state = StateUnwelcomed
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	go c.writeLoop(ctx)

	err = c.readLoop(ctx)
	c.Close()
	return err
}

// Close moves the client to its terminal state and closes the socket.
// Safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "closing")
		}
	})
}

// Messages returns the channel on which parsed topic messages are delivered.
// The channel is closed when Run returns; a client that never ran leaves it
// open and its consumer exits on context cancellation instead.
func (c *Client) Messages() <-chan *model.Message {
	return c.messages
}

// State returns the client's current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Index returns the client's slot in the pool.
func (c *Client) Index() int { return c.index }

// AuthFailed reports whether the server rejected our token. Such a client
// must not be replaced automatically; the operator has to refresh credentials.
func (c *Client) AuthFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authFailed
}

// HasTopic reports whether the topic is assigned to this client, whether
// still pending or already subscribed.
func (c *Client) HasTopic(topicStr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topicStr]
	return ok
}

// TopicCount returns how many topics are assigned to this client.
func (c *Client) TopicCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics)
}

// AllTopics returns every assigned topic, for handoff to a replacement
// client on reconnect.
func (c *Client) AllTopics() []*model.PubSubTopic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.PubSubTopic, 0, len(c.topics))
	for _, t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Stale reports whether the client should be replaced: it is Closed, or it
// never opened within the creation window, or it has gone silent past the
// keepalive deadline. The Internet probe keeps a local outage from burning
// through replacement clients that cannot connect anyway.
func (c *Client) Stale() bool {
	c.mu.Lock()
	state := c.state
	created := c.createdAt
	last := c.lastMessageAt
	timeout := c.messageTimeout
	c.mu.Unlock()

	switch {
	case state == StateClosed:
		return true
	case state == StateUnopened:
		return time.Since(created) > constants.SocketCreatedTimeout && utils.InternetAvailable()
	default:
		return time.Since(last) > timeout && utils.InternetAvailable()
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error on socket #%d: %w", c.index, err)
		}

		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			c.log.Error("Event socket frame is not JSON", "socket", c.index, "error", err)
			continue
		}
		msg, err := decodeServerMessage(raw)
		if err != nil {
			c.log.Error("Failed to decode event socket frame", "socket", c.index, "error", err)
			continue
		}

		if err := c.handleFrame(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, msg *serverMessage) error {
	c.mu.Lock()
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	switch msg.Type {
	case TypeWelcome:
		c.mu.Lock()
		c.messageTimeout = time.Duration(msg.KeepaliveSec)*time.Second + constants.KeepaliveGrace
		c.sessionID = msg.SessionID
		c.state = StateUnauthenticated
		c.mu.Unlock()
		c.log.Debug("Event socket welcomed",
			"socket", c.index, "keepalive_sec", msg.KeepaliveSec)
		c.sendAuthenticate()

	case TypeAuthenticateResponse:
		if msg.Result == resultOK {
			c.mu.Lock()
			c.state = StateOpen
			c.flushPendingLocked()
			c.mu.Unlock()
			c.log.Debug("Event socket authenticated", "socket", c.index)
			return nil
		}
		c.mu.Lock()
		c.authFailed = true
		c.mu.Unlock()
		c.log.Error("Event socket rejected the auth token, refresh your credentials",
			"socket", c.index, "result", msg.Result)
		return fmt.Errorf("authenticate failed on socket #%d: %s", c.index, msg.Result)

	case TypeSubscribeResponse:
		c.handleSubscribeResponse(msg)

	case TypeUnsubscribeResponse:
		c.log.Debug("Unsubscribe acknowledged", "socket", c.index, "result", msg.Result)

	case TypeKeepalive:
		// Nothing beyond the lastMessageAt refresh above.

	case TypeNotification:
		c.handleNotification(ctx, msg)

	case TypeReconnect:
		c.log.Info("Reconnect requested by server", "socket", c.index)
		if c.OnReconnect != nil {
			go c.OnReconnect()
		}

	default:
		c.log.Debug("Ignoring event socket frame", "socket", c.index, "type", msg.Type)
	}
	return nil
}

func (c *Client) handleSubscribeResponse(msg *serverMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.inflight) == 0 {
		c.log.Warn("Subscribe acknowledgement with nothing in flight",
			"socket", c.index, "result", msg.Result)
		return
	}
	sub := c.inflight[0]
	c.inflight = c.inflight[1:]

	if msg.Result != resultOK {
		// Back to the head of the queue so the retry preserves order.
		c.pending = append([]*model.PubSubTopic{sub.topic}, c.pending...)
		c.log.Error("Subscribe rejected",
			"socket", c.index, "topic", sub.topic, "result", msg.Result)
		return
	}

	subscriptionID := msg.SubscriptionID
	if subscriptionID == "" {
		subscriptionID = sub.requestID
	}
	c.subs[subscriptionID] = sub.topic
	c.log.Debug("Subscribed to topic", "socket", c.index, "topic", sub.topic)
}

func (c *Client) handleNotification(ctx context.Context, msg *serverMessage) {
	c.mu.Lock()
	topic := c.subs[msg.SubscriptionID]
	c.mu.Unlock()
	if topic == nil {
		c.log.Warn("Notification for unknown subscription",
			"socket", c.index, "subscription_id", msg.SubscriptionID)
		return
	}

	var envelope any
	if err := json.Unmarshal([]byte(msg.PubSub), &envelope); err != nil {
		c.log.Error("Notification envelope is not JSON", "socket", c.index, "error", err)
		return
	}
	topicFull, inner, err := decodePubSubEnvelope(envelope)
	if err != nil {
		c.log.Error("Failed to decode notification envelope",
			"socket", c.index, "error", err)
		return
	}

	parsed, err := model.ParseMessage(topicFull, []byte(inner))
	if err != nil {
		c.log.Error("Failed to parse topic message",
			"socket", c.index, "topic", topicFull, "error", err)
		return
	}

	select {
	case c.messages <- parsed:
	case <-ctx.Done():
	}
}

func (c *Client) sendAuthenticate() {
	req := request{
		ID:           utils.RandomID(requestIDLength),
		Type:         TypeAuthenticate,
		Timestamp:    wireTimestamp(time.Now()),
		Authenticate: &authenticateBody{Token: c.auth.AuthToken()},
	}
	c.enqueue(req)
}

// flushPendingLocked sends subscribe frames for every queued topic, in
// order. A frame that cannot be enqueued puts its topic back at the head so
// nothing is lost. Caller holds c.mu.
func (c *Client) flushPendingLocked() {
	for len(c.pending) > 0 {
		topic := c.pending[0]
		c.pending = c.pending[1:]

		requestID := utils.RandomID(requestIDLength)
		req := request{
			ID:        utils.RandomID(requestIDLength),
			Type:      TypeSubscribe,
			Timestamp: wireTimestamp(time.Now()),
			Subscribe: &subscriptionBody{
				ID:     requestID,
				Type:   "pubsub",
				PubSub: topicRef{Topic: topic.String()},
			},
		}
		if !c.enqueue(req) {
			c.pending = append([]*model.PubSubTopic{topic}, c.pending...)
			return
		}
		c.inflight = append(c.inflight, inflightSub{requestID: requestID, topic: topic})
	}
}

func (c *Client) enqueue(req request) bool {
	data, err := json.Marshal(req)
	if err != nil {
		c.log.Error("Failed to marshal event socket frame",
			"socket", c.index, "type", req.Type, "error", err)
		return false
	}
	select {
	case c.writeCh <- data:
		return true
	default:
		c.log.Warn("Write channel full, dropping frame", "socket", c.index, "type", req.Type)
		return false
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
				if ctx.Err() == nil {
					c.log.Error("Event socket write error", "socket", c.index, "error", err)
				}
				return
			}
		}
	}
}
