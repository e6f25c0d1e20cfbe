package prediction

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
)

type recordingPlacer struct {
	mu    sync.Mutex
	calls []placedBet
}

type placedBet struct {
	eventID   string
	outcomeID string
	points    int
}

func (r *recordingPlacer) MakePrediction(ctx context.Context, eventID, outcomeID string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, placedBet{eventID: eventID, outcomeID: outcomeID, points: points})
	return nil
}

func (r *recordingPlacer) placed() []placedBet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]placedBet(nil), r.calls...)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

func eventWithOutcomes(outcomes []*model.Outcome, window float64, createdAt time.Time) *model.EventPrediction {
	return model.NewEventPrediction("event-1", "Who wins?", createdAt, window, "ACTIVE", outcomes)
}

func bettingStreamer(points int, bet *model.BetSettings) *model.Streamer {
	s := model.NewStreamer("caster")
	s.ChannelID = "42"
	s.ChannelPoints = points
	settings := model.DefaultStreamerSettings()
	settings.Bet = bet
	s.Settings = settings
	return s
}

func TestChooseOutcomeSmartCloseSplit(t *testing.T) {
	// A near-even user split falls back to the odds comparison.
	event := eventWithOutcomes([]*model.Outcome{
		{ID: "blue", TotalUsers: 10},
		{ID: "pink", TotalUsers: 11},
	}, 60, time.Now())
	settings := &model.BetSettings{
		Strategy:      model.StrategySmart,
		PercentageGap: 5,
		Percentage:    10,
		MaxPoints:     10000,
	}

	chosen := ChooseOutcome(event, settings)
	assert.Equal(t, "blue", chosen, "equal odds tie goes to the first outcome")

	amount := BetAmount(1000, settings, event.OutcomesByID[chosen])
	assert.Equal(t, 100, amount)
}

func TestChooseOutcomeSmartWideSplit(t *testing.T) {
	event := eventWithOutcomes([]*model.Outcome{
		{ID: "blue", TotalUsers: 10, TotalPoints: 100},
		{ID: "pink", TotalUsers: 50, TotalPoints: 50},
	}, 60, time.Now())
	settings := &model.BetSettings{
		Strategy:      model.StrategySmart,
		PercentageGap: 5,
	}

	assert.Equal(t, "pink", ChooseOutcome(event, settings), "wide split follows the crowd")
}

func TestChooseOutcomeFixedNumber(t *testing.T) {
	event := eventWithOutcomes([]*model.Outcome{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}, 60, time.Now())

	assert.Equal(t, "b", ChooseOutcome(event, &model.BetSettings{Strategy: model.StrategyNumber2}))
	// Out-of-range indexes fall back to the first outcome.
	assert.Equal(t, "a", ChooseOutcome(event, &model.BetSettings{Strategy: model.StrategyNumber9}))
}

func TestBetAmountStealthCapping(t *testing.T) {
	settings := &model.BetSettings{Percentage: 100, MaxPoints: 10000, StealthMode: true}
	outcome := &model.Outcome{TopPoints: 250}

	assert.Equal(t, 250, BetAmount(1000, settings, outcome))

	settings.StealthMode = false
	assert.Equal(t, 1000, BetAmount(1000, settings, outcome))
}

func TestFilterSkips(t *testing.T) {
	event := eventWithOutcomes([]*model.Outcome{
		{ID: "blue", TotalUsers: 30, TotalPoints: 900},
		{ID: "pink", TotalUsers: 70, TotalPoints: 2100},
	}, 60, time.Now())
	outcome := event.OutcomesByID["pink"]

	t.Run("nil filter never skips", func(t *testing.T) {
		assert.False(t, FilterSkips(event, outcome, nil))
	})

	t.Run("event totals for TOTAL_USERS", func(t *testing.T) {
		holds := &model.FilterCondition{By: model.OutcomeKeyTotalUsers, Where: model.ConditionGT, Value: 50}
		assert.False(t, FilterSkips(event, outcome, holds), "100 users > 50 holds")

		fails := &model.FilterCondition{By: model.OutcomeKeyTotalUsers, Where: model.ConditionGT, Value: 500}
		assert.True(t, FilterSkips(event, outcome, fails))
	})

	t.Run("decision keys read the chosen outcome", func(t *testing.T) {
		holds := &model.FilterCondition{By: model.OutcomeKeyDecisionUsers, Where: model.ConditionGTE, Value: 70}
		assert.False(t, FilterSkips(event, outcome, holds))

		fails := &model.FilterCondition{By: model.OutcomeKeyDecisionUsers, Where: model.ConditionLT, Value: 70}
		assert.True(t, FilterSkips(event, outcome, fails))
	})
}

func TestBettorSchedulesExactlyOneTimer(t *testing.T) {
	placer := &recordingPlacer{}
	bettor := NewBettor(placer, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	settings.DelayMode = model.DelayModeFromEnd
	settings.Delay = 5
	streamer := bettingStreamer(5000, settings)

	event := eventWithOutcomes([]*model.Outcome{{ID: "a"}, {ID: "b"}}, 60, time.Now())
	ctx := context.Background()

	bettor.New(ctx, streamer, event)
	assert.Equal(t, 1, bettor.TimerCount())

	// A duplicate New for the same event does not stack a second timer.
	bettor.New(ctx, streamer, event)
	assert.Equal(t, 1, bettor.TimerCount())
}

func TestBettorSkipsWhenWindowPassed(t *testing.T) {
	bettor := NewBettor(&recordingPlacer{}, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	streamer := bettingStreamer(5000, settings)
	stale := eventWithOutcomes([]*model.Outcome{{ID: "a"}}, 60, time.Now().Add(-2*time.Minute))

	bettor.New(context.Background(), streamer, stale)
	assert.Equal(t, 0, bettor.TimerCount())
}

func TestBettorSkipsBelowMinimumPoints(t *testing.T) {
	bettor := NewBettor(&recordingPlacer{}, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	settings.MinimumPoints = 10000
	streamer := bettingStreamer(500, settings)
	event := eventWithOutcomes([]*model.Outcome{{ID: "a"}}, 60, time.Now())

	bettor.New(context.Background(), streamer, event)
	assert.Equal(t, 0, bettor.TimerCount())
}

func TestBettorResultCancelsPendingTimer(t *testing.T) {
	bettor := NewBettor(&recordingPlacer{}, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	streamer := bettingStreamer(5000, settings)
	event := eventWithOutcomes([]*model.Outcome{{ID: "a"}}, 600, time.Now())

	ctx := context.Background()
	bettor.New(ctx, streamer, event)
	require.Equal(t, 1, bettor.TimerCount())

	won := 100
	bettor.Result(ctx, streamer, event.EventID, &model.PredictionResult{Type: model.ResultWin, PointsWon: &won}, time.Now())
	assert.Equal(t, 0, bettor.TimerCount())
}

func TestPlaceBetFlow(t *testing.T) {
	track := func(streamer *model.Streamer, event *model.EventPrediction) {
		streamer.EventPredictions[event.EventID] = event
	}

	t.Run("places the computed wager", func(t *testing.T) {
		placer := &recordingPlacer{}
		bettor := NewBettor(placer, testLogger(t))

		settings := model.DefaultBetSettings()
		settings.Strategy = model.StrategyMostVoted
		settings.Percentage = 10
		streamer := bettingStreamer(1000, settings)
		event := eventWithOutcomes([]*model.Outcome{
			{ID: "blue", TotalUsers: 5, TotalPoints: 100},
			{ID: "pink", TotalUsers: 20, TotalPoints: 300},
		}, 60, time.Now())
		track(streamer, event)

		bettor.placeBet(context.Background(), streamer, event.EventID)

		calls := placer.placed()
		require.Len(t, calls, 1)
		assert.Equal(t, placedBet{eventID: "event-1", outcomeID: "pink", points: 100}, calls[0])
	})

	t.Run("abandons wagers under the Twitch minimum", func(t *testing.T) {
		placer := &recordingPlacer{}
		bettor := NewBettor(placer, testLogger(t))

		settings := model.DefaultBetSettings()
		settings.Percentage = 1
		streamer := bettingStreamer(100, settings) // 1% of 100 = 1 point
		event := eventWithOutcomes([]*model.Outcome{{ID: "a", TotalUsers: 1}}, 60, time.Now())
		track(streamer, event)

		bettor.placeBet(context.Background(), streamer, event.EventID)
		assert.Empty(t, placer.placed())
	})

	t.Run("does not bet on locked events", func(t *testing.T) {
		placer := &recordingPlacer{}
		bettor := NewBettor(placer, testLogger(t))

		streamer := bettingStreamer(5000, model.DefaultBetSettings())
		event := eventWithOutcomes([]*model.Outcome{{ID: "a", TotalUsers: 1}}, 60, time.Now())
		event.Status = "LOCKED"
		track(streamer, event)

		bettor.placeBet(context.Background(), streamer, event.EventID)
		assert.Empty(t, placer.placed())
	})

	t.Run("reads the stored record, not the one the timer was armed with", func(t *testing.T) {
		placer := &recordingPlacer{}
		bettor := NewBettor(placer, testLogger(t))

		settings := model.DefaultBetSettings()
		settings.Strategy = model.StrategyMostVoted
		settings.Percentage = 10
		streamer := bettingStreamer(1000, settings)

		refreshed := eventWithOutcomes([]*model.Outcome{
			{ID: "a", TotalUsers: 10}, {ID: "b", TotalUsers: 500},
		}, 600, time.Now())
		track(streamer, refreshed)

		bettor.placeBet(context.Background(), streamer, "event-1")

		calls := placer.placed()
		require.Len(t, calls, 1)
		assert.Equal(t, "b", calls[0].outcomeID)
	})

	t.Run("untracked event places nothing", func(t *testing.T) {
		placer := &recordingPlacer{}
		bettor := NewBettor(placer, testLogger(t))

		streamer := bettingStreamer(5000, model.DefaultBetSettings())
		bettor.placeBet(context.Background(), streamer, "gone")
		assert.Empty(t, placer.placed())
	})
}

func TestBetTimerDecidesFromLiveStats(t *testing.T) {
	placer := &recordingPlacer{}
	bettor := NewBettor(placer, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	settings.Strategy = model.StrategyMostVoted
	settings.Percentage = 10
	settings.DelayMode = model.DelayModeFromStart
	settings.Delay = 0.2
	streamer := bettingStreamer(1000, settings)

	// Zero stats at creation; every strategy would fall back to the first
	// outcome if the timer decided from this snapshot.
	created := eventWithOutcomes([]*model.Outcome{
		{ID: "a"}, {ID: "b"},
	}, 600, time.Now())
	streamer.EventPredictions[created.EventID] = created

	ctx := context.Background()
	bettor.New(ctx, streamer, created)
	require.Equal(t, 1, bettor.TimerCount())

	// An event-updated lands before the timer fires and swaps the record,
	// the way the tracker does.
	refreshed := eventWithOutcomes([]*model.Outcome{
		{ID: "a", TotalUsers: 10, TotalPoints: 100},
		{ID: "b", TotalUsers: 500, TotalPoints: 9000},
	}, 600, created.CreatedAt)
	streamer.Mu.Lock()
	streamer.EventPredictions[created.EventID] = refreshed
	streamer.Mu.Unlock()

	require.Eventually(t, func() bool {
		return len(placer.placed()) == 1
	}, 2*time.Second, 10*time.Millisecond, "timer never placed the bet")
	assert.Equal(t, "b", placer.placed()[0].outcomeID)
}

func TestBetTimerSkipsEventLockedBeforeFiring(t *testing.T) {
	placer := &recordingPlacer{}
	bettor := NewBettor(placer, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	settings.DelayMode = model.DelayModeFromStart
	settings.Delay = 0.2
	streamer := bettingStreamer(1000, settings)

	created := eventWithOutcomes([]*model.Outcome{{ID: "a", TotalUsers: 1}}, 600, time.Now())
	streamer.EventPredictions[created.EventID] = created

	bettor.New(context.Background(), streamer, created)
	require.Equal(t, 1, bettor.TimerCount())

	locked := eventWithOutcomes([]*model.Outcome{{ID: "a", TotalUsers: 1}}, 600, created.CreatedAt)
	locked.Status = "LOCKED"
	streamer.Mu.Lock()
	streamer.EventPredictions[created.EventID] = locked
	streamer.Mu.Unlock()

	require.Eventually(t, func() bool {
		return bettor.TimerCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "timer never fired")
	assert.Empty(t, placer.placed(), "no bet on an event locked before the timer fired")
}

func TestBettorSkipsAtExactlyMinimumPoints(t *testing.T) {
	bettor := NewBettor(&recordingPlacer{}, testLogger(t))
	defer bettor.Shutdown()

	settings := model.DefaultBetSettings()
	settings.MinimumPoints = 500
	streamer := bettingStreamer(500, settings)
	event := eventWithOutcomes([]*model.Outcome{{ID: "a"}}, 60, time.Now())

	bettor.New(context.Background(), streamer, event)
	assert.Equal(t, 0, bettor.TimerCount(), "the balance must exceed the minimum, not just meet it")
}
