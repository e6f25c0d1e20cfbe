package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/model"
)

func trackedStreamer(t *testing.T) (*Tracker, *model.Streamer) {
	t.Helper()
	s := model.NewStreamer("caster")
	s.ChannelID = "42"
	s.ChannelPoints = 5000
	s.Settings = model.DefaultStreamerSettings()
	return NewTracker(testLogger(t)), s
}

func TestTrackerNewNeverOverwrites(t *testing.T) {
	tracker, streamer := trackedStreamer(t)
	ctx := context.Background()

	first := model.NewEventPrediction("ev", "first", time.Now(), 60, "ACTIVE", []*model.Outcome{{ID: "a"}})
	second := model.NewEventPrediction("ev", "second", time.Now(), 60, "ACTIVE", []*model.Outcome{{ID: "a"}})

	tracker.New(ctx, streamer, first)
	tracker.New(ctx, streamer, second)

	assert.Equal(t, "first", streamer.EventPredictions["ev"].Title)
}

func TestTrackerUpdateCarriesWagerOver(t *testing.T) {
	tracker, streamer := trackedStreamer(t)
	ctx := context.Background()

	original := model.NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE",
		[]*model.Outcome{{ID: "a", TotalUsers: 1, TotalPoints: 100}})
	tracker.New(ctx, streamer, original)
	tracker.PredictionUpdated(ctx, streamer, "ev", model.Prediction{OutcomeID: "a", Points: 500})

	refreshed := model.NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE",
		[]*model.Outcome{{ID: "a", TotalUsers: 9, TotalPoints: 4000}})
	tracker.Update(ctx, streamer, refreshed)

	stored := streamer.EventPredictions["ev"]
	assert.Same(t, refreshed, stored, "the fresh record replaces the stale one")
	require.NotNil(t, stored.Prediction)
	assert.Equal(t, 500, stored.Prediction.Points)
	assert.Equal(t, 9, stored.TotalUsers, "outcome statistics refreshed")
}

func TestTrackerResultHistory(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Tracker, *model.Streamer, *model.EventPrediction) {
		tracker, streamer := trackedStreamer(t)
		event := model.NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE", []*model.Outcome{{ID: "a"}})
		tracker.New(ctx, streamer, event)
		tracker.PredictionUpdated(ctx, streamer, "ev", model.Prediction{OutcomeID: "a", Points: 100})
		return tracker, streamer, event
	}

	t.Run("win records the net gain and a corrective row", func(t *testing.T) {
		tracker, streamer, _ := setup(t)
		won := 500
		tracker.Result(ctx, streamer, "ev", &model.PredictionResult{Type: model.ResultWin, PointsWon: &won}, time.Now())

		entry := streamer.History["PREDICTION"]
		require.NotNil(t, entry)
		// +400 net gain, then -500 correcting the community-points credit.
		assert.Equal(t, -100, entry.Amount)
		assert.Equal(t, 0, entry.Counter)
	})

	t.Run("lose records the loss", func(t *testing.T) {
		tracker, streamer, _ := setup(t)
		tracker.Result(ctx, streamer, "ev", &model.PredictionResult{Type: model.ResultLose}, time.Now())

		entry := streamer.History["PREDICTION"]
		require.NotNil(t, entry)
		assert.Equal(t, -100, entry.Amount)
		assert.Equal(t, 1, entry.Counter)
	})

	t.Run("refund nets to zero with a corrective refund row", func(t *testing.T) {
		tracker, streamer, _ := setup(t)
		tracker.Result(ctx, streamer, "ev", &model.PredictionResult{Type: model.ResultRefund}, time.Now())

		assert.Equal(t, 0, streamer.History["PREDICTION"].Amount)
		refund := streamer.History["REFUND"]
		require.NotNil(t, refund)
		assert.Equal(t, -100, refund.Amount)
		assert.Equal(t, -1, refund.Counter)
	})

	t.Run("applying the same result twice does not double count", func(t *testing.T) {
		tracker, streamer, _ := setup(t)
		won := 500
		result := &model.PredictionResult{Type: model.ResultWin, PointsWon: &won}

		tracker.Result(ctx, streamer, "ev", result, time.Now())
		before := *streamer.History["PREDICTION"]

		tracker.Result(ctx, streamer, "ev", result, time.Now())
		assert.Equal(t, before, *streamer.History["PREDICTION"])
	})
}

func TestMultiFansOut(t *testing.T) {
	tracker, streamer := trackedStreamer(t)
	bettor := NewBettor(&recordingPlacer{}, testLogger(t))
	defer bettor.Shutdown()
	multi := NewMulti(tracker, bettor)

	event := model.NewEventPrediction("ev", "t", time.Now(), 600, "ACTIVE", []*model.Outcome{{ID: "a"}})
	multi.New(context.Background(), streamer, event)

	assert.NotNil(t, streamer.EventPredictions["ev"], "tracker saw the event")
	assert.Equal(t, 1, bettor.TimerCount(), "bettor scheduled its timer")
}
