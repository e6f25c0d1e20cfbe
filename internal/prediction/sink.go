// Package prediction owns the lifecycle of channel prediction events: the
// bookkeeping of outcomes and the user's wager, and the timing of automatic
// bets. Event notifications fan out to small capability sinks, each
// responsible for one concern.
package prediction

import (
	"context"
	"time"

	"github.com/veikko/twitch-harvester/internal/model"
)

// Sink observes prediction event lifecycle notifications. Implementations
// must tolerate events they have never seen; the dispatcher feeds them raw
// socket traffic.
type Sink interface {
	// New is called for an event seen for the first time, in ACTIVE status.
	New(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction)
	// Update is called with a freshly decoded event carrying the latest
	// outcome statistics.
	Update(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction)
	// PredictionUpdated is called when the user's own wager on the event is
	// created or grows.
	PredictionUpdated(ctx context.Context, streamer *model.Streamer, eventID string, prediction model.Prediction)
	// Result is called when the event resolves.
	Result(ctx context.Context, streamer *model.Streamer, eventID string, result *model.PredictionResult, timestamp time.Time)
}

// Multi fans every notification out to each sink, in order.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a composite over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// New implements Sink.
func (m *Multi) New(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
	for _, s := range m.sinks {
		s.New(ctx, streamer, event)
	}
}

// Update implements Sink.
func (m *Multi) Update(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
	for _, s := range m.sinks {
		s.Update(ctx, streamer, event)
	}
}

// PredictionUpdated implements Sink.
func (m *Multi) PredictionUpdated(ctx context.Context, streamer *model.Streamer, eventID string, prediction model.Prediction) {
	for _, s := range m.sinks {
		s.PredictionUpdated(ctx, streamer, eventID, prediction)
	}
}

// Result implements Sink.
func (m *Multi) Result(ctx context.Context, streamer *model.Streamer, eventID string, result *model.PredictionResult, timestamp time.Time) {
	for _, s := range m.sinks {
		s.Result(ctx, streamer, eventID, result, timestamp)
	}
}
