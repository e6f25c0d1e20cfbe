package prediction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// minimumBet is the smallest wager Twitch accepts.
const minimumBet = 10

// BetPlacer places a wager through the GQL endpoint.
type BetPlacer interface {
	MakePrediction(ctx context.Context, eventID, outcomeID string, points int) error
}

// Bettor schedules one deferred bet per new event. The timer sleeps until
// the configured point in the prediction window, then picks an outcome and
// an amount and places the wager. Timers are independent per event and are
// cancelled on shutdown or when the event resolves early.
type Bettor struct {
	gql BetPlacer
	log *logger.Logger

	mu     sync.Mutex
	timers map[string]chan struct{} // event id -> cancel signal
}

// NewBettor creates a Bettor.
func NewBettor(gql BetPlacer, log *logger.Logger) *Bettor {
	return &Bettor{
		gql:    gql,
		log:    log,
		timers: make(map[string]chan struct{}),
	}
}

// New schedules a bet timer for the event when betting is enabled, the fire
// instant is still in the future, and the balance is strictly above the
// configured minimum. Anything else schedules nothing.
func (b *Bettor) New(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
	streamer.Mu.RLock()
	settings := streamer.Settings
	points := streamer.ChannelPoints
	streamer.Mu.RUnlock()

	if settings == nil || !settings.MakePredictions || settings.Bet == nil {
		return
	}
	bet := settings.Bet

	delay := model.BetDelaySeconds(bet, event.PredictionWindowSeconds)
	fireAt := event.CreatedAt.Add(time.Duration(delay * float64(time.Second)))
	wait := time.Until(fireAt)
	if wait <= 0 {
		b.log.Event(ctx, model.EventBetGeneral,
			"Bet window already passed, skipping",
			"streamer", streamer.Username, "title", event.Title)
		return
	}
	if points <= bet.MinimumPoints {
		b.log.Event(ctx, model.EventBetFilters,
			"Not enough points to bet",
			"streamer", streamer.Username,
			"points", utils.Millify(points, 2),
			"minimum", utils.Millify(bet.MinimumPoints, 2))
		return
	}

	b.mu.Lock()
	if _, ok := b.timers[event.EventID]; ok {
		b.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	b.timers[event.EventID] = cancel
	b.mu.Unlock()

	b.log.Event(ctx, model.EventBetStart,
		"Bet scheduled",
		"streamer", streamer.Username,
		"title", event.Title,
		"in", wait.Round(time.Second).String())

	go func() {
		defer b.forget(event.EventID)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			// Only the id survives the wait; the tracker swaps the stored
			// record on every event-updated, so the decision must read the
			// live one.
			b.placeBet(ctx, streamer, event.EventID)
		case <-cancel:
		case <-ctx.Done():
		}
	}()
}

// Update implements Sink; the bettor decides from the event state at fire
// time, so interim updates need no action.
func (b *Bettor) Update(ctx context.Context, streamer *model.Streamer, event *model.EventPrediction) {
}

// PredictionUpdated implements Sink.
func (b *Bettor) PredictionUpdated(ctx context.Context, streamer *model.Streamer, eventID string, prediction model.Prediction) {
}

// Result cancels a still-pending timer; the event resolved before we bet.
func (b *Bettor) Result(ctx context.Context, streamer *model.Streamer, eventID string, result *model.PredictionResult, timestamp time.Time) {
	b.cancel(eventID)
}

// Shutdown cancels every pending timer.
func (b *Bettor) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.timers {
		close(cancel)
		delete(b.timers, id)
	}
}

// TimerCount returns the number of pending bet timers.
func (b *Bettor) TimerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *Bettor) cancel(eventID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.timers[eventID]; ok {
		close(cancel)
		delete(b.timers, eventID)
	}
}

func (b *Bettor) forget(eventID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.timers, eventID)
}

// placeBet runs in the timer goroutine. It looks the event up by id at fire
// time so the outcome and amount come from the latest stats, not the ones
// the event carried when the timer was armed. Any failure is logged and
// absorbed; a throwing timer must not take its host down.
func (b *Bettor) placeBet(ctx context.Context, streamer *model.Streamer, eventID string) {
	streamer.Mu.RLock()
	balance := streamer.ChannelPoints
	bet := streamer.Settings.Bet
	event := streamer.EventPredictions[eventID]
	streamer.Mu.RUnlock()

	if event == nil {
		b.log.Debug("Bet timer fired for an untracked event",
			"streamer", streamer.Username, "event_id", eventID)
		return
	}

	event.Mu.Lock()
	defer event.Mu.Unlock()

	if event.Status != "ACTIVE" {
		b.log.Event(ctx, model.EventBetGeneral,
			"Event no longer active, not betting",
			"streamer", streamer.Username, "title", event.Title, "status", event.Status)
		return
	}
	if event.Prediction != nil {
		return
	}
	if len(event.Outcomes) == 0 {
		return
	}

	outcomeID := ChooseOutcome(event, bet)
	outcome := event.OutcomesByID[outcomeID]
	amount := BetAmount(balance, bet, outcome)
	if amount < minimumBet {
		b.log.Event(ctx, model.EventBetGeneral,
			"Computed amount below the Twitch minimum, abandoning bet",
			"streamer", streamer.Username, "title", event.Title, "amount", amount)
		return
	}
	if FilterSkips(event, outcome, bet.FilterCondition) {
		b.log.Event(ctx, model.EventBetFilters,
			"Filter condition does not hold, skipping bet",
			"streamer", streamer.Username,
			"title", event.Title,
			"filter", bet.FilterCondition.String())
		return
	}

	b.log.Event(ctx, model.EventBetGeneral,
		"Placing bet",
		"streamer", streamer.Username,
		"title", event.Title,
		"outcome", outcome.Title,
		"amount", utils.Millify(amount, 2))

	if err := b.gql.MakePrediction(ctx, event.EventID, outcomeID, amount); err != nil {
		b.log.Event(ctx, model.EventBetFailed,
			"Failed to place bet",
			"streamer", streamer.Username, "title", event.Title, "error", err)
	}
}

// ChooseOutcome returns the id of the outcome the strategy selects. Ties go
// to the earliest outcome.
func ChooseOutcome(event *model.EventPrediction, settings *model.BetSettings) string {
	if index, ok := settings.Strategy.NumberChoice(); ok {
		return event.OutcomeSafe(index)
	}
	switch settings.Strategy {
	case model.StrategyMostVoted:
		return event.LargestMatchingChoiceID(model.OutcomeKeyTotalUsers)
	case model.StrategyHighOdds:
		return event.LargestMatchingChoiceID(model.OutcomeKeyOdds)
	case model.StrategyPercentage:
		return event.LargestMatchingChoiceID(model.OutcomeKeyOddsPercentage)
	case model.StrategySmartMoney:
		return event.LargestMatchingChoiceID(model.OutcomeKeyTopPoints)
	default: // SMART
		if len(event.Outcomes) < 2 {
			return event.OutcomeSafe(0)
		}
		gap := math.Abs(event.Outcomes[0].PercentageUsers - event.Outcomes[1].PercentageUsers)
		if gap < float64(settings.PercentageGap) {
			return event.LargestMatchingChoiceID(model.OutcomeKeyOdds)
		}
		return event.LargestMatchingChoiceID(model.OutcomeKeyTotalUsers)
	}
}

// BetAmount computes the wager: a percentage of the balance capped by
// max_points, and in stealth mode additionally by the outcome's largest
// individual wager so the bet never tops the leaderboard.
func BetAmount(balance int, settings *model.BetSettings, outcome *model.Outcome) int {
	amount := int(float64(balance) * float64(settings.Percentage) / 100)
	amount = min(amount, settings.MaxPoints)
	if settings.StealthMode && outcome != nil {
		amount = min(amount, outcome.TopPoints)
	}
	return amount
}

// FilterSkips reports whether the filter condition vetoes the bet: the
// condition is a precondition and the bet is skipped exactly when it does
// not hold. TOTAL_USERS and TOTAL_POINTS compare against the event totals;
// every other key reads the chosen outcome.
func FilterSkips(event *model.EventPrediction, outcome *model.Outcome, filter *model.FilterCondition) bool {
	if filter == nil {
		return false
	}
	var compared float64
	switch filter.By {
	case model.OutcomeKeyTotalUsers:
		compared = float64(event.TotalUsers)
	case model.OutcomeKeyTotalPoints:
		compared = float64(event.TotalPoints)
	default:
		compared = outcome.Value(filter.By)
	}
	return !filter.Where.Holds(compared, filter.Value)
}
