package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veikko/twitch-harvester/internal/auth"
	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// MessageHandler processes parsed topic messages routed from the pool.
type MessageHandler interface {
	HandleTopicMessage(ctx context.Context, msg *model.Message)
}

// Pool keeps enough event socket clients alive to cover every submitted
// topic, at most MaxTopicsPerClient per client. Stale clients are replaced
// in place; their topics ride over to the replacement.
type Pool struct {
	mu      sync.Mutex
	clients []*Client
	runCtx  context.Context

	auth    auth.Provider
	log     *logger.Logger
	handler MessageHandler

	merged     chan *model.Message
	forceClose atomic.Bool

	// Dedup state for the last routed notification. The same event can
	// arrive over two clients during a reconnect window, so the pair is
	// kept here rather than per client. Only routeMessages touches it.
	lastMsgTimestamp  time.Time
	lastMsgIdentifier string
}

// NewPool creates an event socket pool.
func NewPool(a auth.Provider, log *logger.Logger, handler MessageHandler) *Pool {
	return &Pool{
		auth:    a,
		log:     log,
		handler: handler,
		merged:  make(chan *model.Message, 256),
	}
}

// Submit routes one topic onto a client. If an existing non-Closed client
// already holds the topic this is a no-op; otherwise the lowest-indexed
// client with spare capacity takes it, creating a new client when none has.
func (p *Pool) Submit(topic *model.PubSubTopic) {
	p.mu.Lock()
	defer p.mu.Unlock()

	topicStr := topic.String()
	for _, c := range p.clients {
		if c.State() != StateClosed && c.HasTopic(topicStr) {
			return
		}
	}

	for _, c := range p.clients {
		if c.State() != StateClosed && c.TopicCount() < constants.MaxTopicsPerClient {
			c.Submit(topic)
			return
		}
	}

	client := NewClient(len(p.clients), p.auth, p.log)
	client.Submit(topic)
	p.clients = append(p.clients, client)
	p.log.Info("Created event socket client",
		"socket", client.Index(), "total_clients", len(p.clients))

	if p.runCtx != nil {
		p.startClient(p.runCtx, client)
	}
}

// SubmitAll submits every topic, skipping streamer topics whose channel id
// never resolved.
func (p *Pool) SubmitAll(topics []*model.PubSubTopic) {
	for _, topic := range topics {
		if !topic.IsUserTopic() && topic.Streamer != nil && topic.Streamer.ChannelID == "" {
			p.log.Warn("Skipping subscription for topic with empty channel_id",
				"topic", topic.TopicType.String(),
				"streamer", topic.Streamer.Username,
			)
			continue
		}
		p.Submit(topic)
	}
}

// UnsubscribeStreamer removes every topic scoped to the streamer's channel
// from whichever clients hold them.
func (p *Pool) UnsubscribeStreamer(streamer *model.Streamer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, c := range p.clients {
		for _, topic := range c.AllTopics() {
			if !topic.IsUserTopic() && topic.Streamer != nil &&
				topic.Streamer.ChannelID == streamer.ChannelID {
				c.Unsubscribe(topic)
				removed++
			}
		}
	}
	if removed == 0 {
		p.log.Warn("No topics found", "streamer", streamer.Username)
		return
	}
	p.log.Debug("Unsubscribed streamer topics",
		"streamer", streamer.Username, "count", removed)
}

// Run starts every client and the health sweeper, routing messages to the
// handler until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	p.mu.Lock()
	p.runCtx = ctx
	for _, client := range p.clients {
		p.startClient(ctx, client)
	}
	p.mu.Unlock()

	g.Go(func() error {
		return p.routeMessages(ctx)
	})
	g.Go(func() error {
		return p.healthLoop(ctx)
	})

	return g.Wait()
}

// Shutdown closes every client. Replacements queued behind the reconnect
// delay observe force_close and never open.
func (p *Pool) Shutdown() {
	p.forceClose.Store(true)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Close()
	}
	p.log.Info("Event socket pool closed", "clients", len(p.clients))
	p.clients = nil
}

// ClientCount returns the number of clients in the pool.
func (p *Pool) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// TotalTopicCount returns the number of topics across all clients.
func (p *Pool) TotalTopicCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, c := range p.clients {
		total += c.TopicCount()
	}
	return total
}

// startClient wires the reconnect callback and forwarder, then runs the
// client in its own goroutine. Caller holds p.mu.
func (p *Pool) startClient(ctx context.Context, client *Client) {
	client.OnReconnect = func() {
		p.reconnect(ctx, client)
	}
	p.startForwarder(ctx, client)

	go func() {
		err := client.Run(ctx)
		if ctx.Err() != nil || p.forceClose.Load() {
			return
		}
		if client.AuthFailed() {
			p.log.Error("Event socket client closed after auth failure, not reopening",
				"socket", client.Index())
			return
		}
		if err != nil {
			p.log.Warn("Event socket client lost",
				"socket", client.Index(), "error", err)
		}
		p.reconnect(ctx, client)
	}()
}

// reconnect replaces a client with a fresh one at the same index. The old
// client's reconnect directive and its read-loop exit can both land here;
// the ID check makes the second call a no-op. The replacement inherits the
// full topic list but only opens after a settling delay and once the
// Internet is reachable again.
func (p *Pool) reconnect(ctx context.Context, old *Client) {
	p.mu.Lock()
	if old.Index() >= len(p.clients) || p.clients[old.Index()] == nil ||
		p.clients[old.Index()].ID != old.ID {
		p.mu.Unlock()
		return
	}

	topics := old.AllTopics()
	old.Close()

	replacement := NewClient(old.Index(), p.auth, p.log)
	for _, topic := range topics {
		replacement.Submit(topic)
	}
	p.clients[old.Index()] = replacement
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-time.After(constants.SocketReconnectDelay):
	}

	for !utils.InternetAvailable() {
		p.log.Warn("No Internet connection, delaying socket reconnect",
			"socket", replacement.Index())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}

	if p.forceClose.Load() || ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	p.startClient(ctx, replacement)
	p.mu.Unlock()
	p.log.Info("Event socket client replaced",
		"socket", replacement.Index(), "topics", len(topics))
}

// startForwarder drains one client's messages into the pool's fan-in
// channel. It exits when the client closes its channel.
func (p *Pool) startForwarder(ctx context.Context, client *Client) {
	go func() {
		for {
			select {
			case msg, ok := <-client.Messages():
				if !ok {
					return
				}
				select {
				case p.merged <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pool) routeMessages(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-p.merged:
			if !ok {
				return nil
			}
			if msg.Identifier == p.lastMsgIdentifier && msg.Timestamp.Equal(p.lastMsgTimestamp) {
				continue
			}
			p.lastMsgTimestamp = msg.Timestamp
			p.lastMsgIdentifier = msg.Identifier

			if p.handler != nil {
				p.handler.HandleTopicMessage(ctx, msg)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(constants.SocketHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			stale := make([]*Client, 0)
			for _, c := range p.clients {
				if c.AuthFailed() {
					continue
				}
				if c.Stale() {
					stale = append(stale, c)
				}
			}
			p.mu.Unlock()

			for _, c := range stale {
				p.log.Warn("Replacing stale event socket client",
					"socket", c.Index(), "state", c.State().String())
				go p.reconnect(ctx, c)
			}
		}
	}
}
