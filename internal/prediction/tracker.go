package prediction

import (
	"context"
	"time"

	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// historyPrediction is the reason code under which prediction outcomes land
// in a streamer's history.
const historyPrediction = "PREDICTION"

// historyRefund is the reason code the points system uses when it credits a
// refunded wager back.
const historyRefund = "REFUND"

// Tracker maintains streamer.EventPredictions and reconciles results into
// the points history.
type Tracker struct {
	log *logger.Logger
}

// NewTracker creates a Tracker.
func NewTracker(log *logger.Logger) *Tracker {
	return &Tracker{log: log}
}

// New stores the event if it is not tracked yet. An already-tracked event
// is never overwritten; event-created and event-updated can race across
// sockets and the first writer wins.
func (t *Tracker) New(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
	streamer.Mu.Lock()
	defer streamer.Mu.Unlock()

	if _, ok := streamer.EventPredictions[event.EventID]; ok {
		return
	}
	streamer.EventPredictions[event.EventID] = event
	t.log.Debug("Tracking prediction event",
		"streamer", streamer.Username, "event_id", event.EventID, "title", event.Title)
}

// Update replaces the stored record with the freshly decoded one, carrying
// the user's wager over so live outcome statistics refresh without losing
// the bet.
func (t *Tracker) Update(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
	streamer.Mu.Lock()
	defer streamer.Mu.Unlock()

	if stored, ok := streamer.EventPredictions[event.EventID]; ok {
		stored.Mu.Lock()
		event.Prediction = stored.Prediction
		stored.Mu.Unlock()
	}
	streamer.EventPredictions[event.EventID] = event
}

// PredictionUpdated attaches the user's wager to its event.
func (t *Tracker) PredictionUpdated(ctx context.Context, streamer *model.Streamer, eventID string, prediction model.Prediction) {
	streamer.Mu.RLock()
	event := streamer.EventPredictions[eventID]
	streamer.Mu.RUnlock()
	if event == nil {
		t.log.Debug("Wager update for untracked event", "event_id", eventID)
		return
	}

	event.Mu.Lock()
	event.Prediction = &prediction
	event.Mu.Unlock()
}

// Result sets the result on the event's prediction and adjusts the history.
// The net gain lands under PREDICTION; a win or refund additionally emits a
// corrective counter=-1 row, because the points system already credited the
// winnings (or the returned wager) through a community-points message.
// Applying the same result twice is a no-op.
func (t *Tracker) Result(ctx context.Context, streamer *model.Streamer, eventID string, result *model.PredictionResult, timestamp time.Time) {
	streamer.Mu.Lock()
	event := streamer.EventPredictions[eventID]
	streamer.Mu.Unlock()
	if event == nil {
		t.log.Debug("Result for untracked event", "event_id", eventID)
		return
	}

	event.Mu.Lock()
	if event.Prediction == nil || event.Prediction.Result != nil {
		event.Mu.Unlock()
		return
	}
	event.Prediction.Result = result
	placed := event.Prediction.Points
	gained := event.Prediction.PointsGained()
	recap := event.Recap()
	event.Mu.Unlock()

	streamer.Mu.Lock()
	streamer.UpdateHistory(historyPrediction, gained, 1)
	switch result.Type {
	case model.ResultWin:
		if result.PointsWon != nil {
			streamer.UpdateHistory(historyPrediction, -*result.PointsWon, -1)
		}
	case model.ResultRefund:
		streamer.UpdateHistory(historyRefund, -placed, -1)
	}
	streamer.Mu.Unlock()

	t.log.Event(ctx, resultEvent(result.Type),
		"Prediction resolved",
		"streamer", streamer.Username,
		"result", string(result.Type),
		"gained", utils.Millify(gained, 2),
		"recap", recap,
	)
}

func resultEvent(rt model.ResultType) model.Event {
	switch rt {
	case model.ResultWin:
		return model.EventBetWin
	case model.ResultRefund:
		return model.EventBetRefund
	default:
		return model.EventBetLose
	}
}
