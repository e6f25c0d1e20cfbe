package ws

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/model"
)

func TestPoolSubmitDedup(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)
	topic := model.NewUserTopic(model.PubSubTopicVideoPlayback, "42")

	pool.Submit(topic)
	pool.Submit(topic)

	assert.Equal(t, 1, pool.ClientCount())
	assert.Equal(t, 1, pool.TotalTopicCount())
}

func TestPoolSpillsOverAtCapacity(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)

	for i := 0; i < constants.MaxTopicsPerClient+1; i++ {
		pool.Submit(model.NewUserTopic(model.PubSubTopicVideoPlayback, fmt.Sprintf("%d", i)))
	}

	require.Equal(t, 2, pool.ClientCount())
	assert.Equal(t, constants.MaxTopicsPerClient+1, pool.TotalTopicCount())

	pool.mu.Lock()
	defer pool.mu.Unlock()
	assert.Equal(t, constants.MaxTopicsPerClient, pool.clients[0].TopicCount())
	assert.Equal(t, 1, pool.clients[1].TopicCount())
}

func TestPoolTopicHeldByExactlyOneClient(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)

	topics := make([]*model.PubSubTopic, 0, 120)
	for i := 0; i < 120; i++ {
		topics = append(topics, model.NewUserTopic(model.PubSubTopicPredictions, fmt.Sprintf("%d", i)))
	}
	// Submit everything twice; the second pass must not move or duplicate.
	for _, topic := range topics {
		pool.Submit(topic)
	}
	for _, topic := range topics {
		pool.Submit(topic)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	for _, topic := range topics {
		holders := 0
		for _, c := range pool.clients {
			if c.HasTopic(topic.String()) {
				holders++
			}
		}
		assert.Equal(t, 1, holders, topic.String())
	}
	for _, c := range pool.clients {
		assert.LessOrEqual(t, c.TopicCount(), constants.MaxTopicsPerClient)
	}
}

func TestPoolSkipsTopicsWithEmptyChannelID(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)

	streamer := model.NewStreamer("ghost")
	pool.SubmitAll([]*model.PubSubTopic{
		model.NewStreamerTopic(model.PubSubTopicRaid, streamer),
	})

	assert.Equal(t, 0, pool.ClientCount())
}

func TestPoolReconnectIsIdempotent(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)
	topic := model.NewUserTopic(model.PubSubTopicVideoPlayback, "42")
	pool.Submit(topic)

	pool.mu.Lock()
	old := pool.clients[0]
	replacement := NewClient(0, fakeAuth{}, testLogger(t))
	replacement.Submit(topic)
	pool.clients[0] = replacement
	pool.mu.Unlock()

	// The stale client was already swapped out; a late reconnect request
	// for it must leave the replacement in place.
	pool.reconnect(t.Context(), old)

	pool.mu.Lock()
	defer pool.mu.Unlock()
	assert.Same(t, replacement, pool.clients[0])
	assert.Equal(t, 1, replacement.TopicCount())
}

func TestPoolShutdownClosesClients(t *testing.T) {
	pool := NewPool(fakeAuth{}, testLogger(t), nil)
	pool.Submit(model.NewUserTopic(model.PubSubTopicVideoPlayback, "1"))
	pool.Submit(model.NewUserTopic(model.PubSubTopicVideoPlayback, "2"))

	pool.mu.Lock()
	clients := append([]*Client(nil), pool.clients...)
	pool.mu.Unlock()

	pool.Shutdown()

	assert.Equal(t, 0, pool.ClientCount())
	for _, c := range clients {
		assert.Equal(t, StateClosed, c.State())
	}
}
