package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/veikko/twitch-harvester/internal/decode"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// Strategy defines the prediction betting strategy.
type Strategy int

const (
	// StrategyMostVoted bets on the outcome with the most voters.
	StrategyMostVoted Strategy = iota
	// StrategyHighOdds bets on the outcome with the highest odds.
	StrategyHighOdds
	// StrategyPercentage bets on the outcome with the highest odds percentage.
	StrategyPercentage
	// StrategySmartMoney bets on the outcome with the highest single wager.
	StrategySmartMoney
	// StrategySmart bets on high odds when the user split is close, most voted otherwise.
	StrategySmart
	// StrategyNumber1 always bets on outcome index 0.
	StrategyNumber1
	// StrategyNumber2 always bets on outcome index 1.
	StrategyNumber2
	// StrategyNumber3 always bets on outcome index 2.
	StrategyNumber3
	// StrategyNumber4 always bets on outcome index 3.
	StrategyNumber4
	// StrategyNumber5 always bets on outcome index 4.
	StrategyNumber5
	// StrategyNumber6 always bets on outcome index 5.
	StrategyNumber6
	// StrategyNumber7 always bets on outcome index 6.
	StrategyNumber7
	// StrategyNumber8 always bets on outcome index 7.
	StrategyNumber8
	// StrategyNumber9 always bets on outcome index 8.
	StrategyNumber9
	// StrategyNumber10 always bets on outcome index 9.
	StrategyNumber10
)

// String returns the string representation of a Strategy.
func (s Strategy) String() string {
	names := [...]string{
		"MOST_VOTED", "HIGH_ODDS", "PERCENTAGE", "SMART_MONEY", "SMART",
		"NUMBER_1", "NUMBER_2", "NUMBER_3", "NUMBER_4", "NUMBER_5",
		"NUMBER_6", "NUMBER_7", "NUMBER_8", "NUMBER_9", "NUMBER_10",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "SMART"
}

// NumberChoice returns the fixed outcome index for NUMBER_k strategies and
// whether the strategy is one of them.
func (s Strategy) NumberChoice() (int, bool) {
	if s >= StrategyNumber1 && s <= StrategyNumber10 {
		return int(s - StrategyNumber1), true
	}
	return 0, false
}

// ParseStrategy converts a string to a Strategy value.
func ParseStrategy(s string) Strategy {
	switch s {
	case "MOST_VOTED":
		return StrategyMostVoted
	case "HIGH_ODDS":
		return StrategyHighOdds
	case "PERCENTAGE":
		return StrategyPercentage
	case "SMART_MONEY":
		return StrategySmartMoney
	case "SMART":
		return StrategySmart
	case "NUMBER_1":
		return StrategyNumber1
	case "NUMBER_2":
		return StrategyNumber2
	case "NUMBER_3":
		return StrategyNumber3
	case "NUMBER_4":
		return StrategyNumber4
	case "NUMBER_5":
		return StrategyNumber5
	case "NUMBER_6":
		return StrategyNumber6
	case "NUMBER_7":
		return StrategyNumber7
	case "NUMBER_8":
		return StrategyNumber8
	case "NUMBER_9":
		return StrategyNumber9
	case "NUMBER_10":
		return StrategyNumber10
	default:
		return StrategySmart
	}
}

// Condition defines a comparison operator for filter conditions.
type Condition int

const (
	// ConditionGT is the greater-than operator.
	ConditionGT Condition = iota
	// ConditionLT is the less-than operator.
	ConditionLT
	// ConditionGTE is the greater-than-or-equal operator.
	ConditionGTE
	// ConditionLTE is the less-than-or-equal operator.
	ConditionLTE
)

// String returns the string representation of a Condition.
func (c Condition) String() string {
	switch c {
	case ConditionGT:
		return "GT"
	case ConditionLT:
		return "LT"
	case ConditionGTE:
		return "GTE"
	case ConditionLTE:
		return "LTE"
	default:
		return "GT"
	}
}

// Holds reports whether "compared where value" is satisfied, e.g. for GT
// whether compared > value.
func (c Condition) Holds(compared, value float64) bool {
	switch c {
	case ConditionGT:
		return compared > value
	case ConditionLT:
		return compared < value
	case ConditionGTE:
		return compared >= value
	case ConditionLTE:
		return compared <= value
	default:
		return false
	}
}

// ParseCondition converts a string to a Condition value.
func ParseCondition(s string) Condition {
	switch s {
	case "GT":
		return ConditionGT
	case "LT":
		return ConditionLT
	case "GTE":
		return ConditionGTE
	case "LTE":
		return ConditionLTE
	default:
		return ConditionGT
	}
}

// OutcomeKey defines the keys used to access outcome statistics.
type OutcomeKey string

const (
	// OutcomeKeyPercentageUsers is the percentage of users who voted for this outcome.
	OutcomeKeyPercentageUsers OutcomeKey = "percentage_users"
	// OutcomeKeyOddsPercentage is the odds expressed as a percentage.
	OutcomeKeyOddsPercentage OutcomeKey = "odds_percentage"
	// OutcomeKeyOdds is the raw odds multiplier.
	OutcomeKeyOdds OutcomeKey = "odds"
	// OutcomeKeyTopPoints is the highest individual wager on this outcome.
	OutcomeKeyTopPoints OutcomeKey = "top_points"
	// OutcomeKeyTotalUsers is the total number of users who bet on this outcome.
	OutcomeKeyTotalUsers OutcomeKey = "total_users"
	// OutcomeKeyTotalPoints is the total points bet on this outcome.
	OutcomeKeyTotalPoints OutcomeKey = "total_points"
	// OutcomeKeyDecisionUsers resolves to the chosen outcome's total users in filters.
	OutcomeKeyDecisionUsers OutcomeKey = "decision_users"
	// OutcomeKeyDecisionPoints resolves to the chosen outcome's total points in filters.
	OutcomeKeyDecisionPoints OutcomeKey = "decision_points"
)

// DelayMode defines how the bet placement time is derived from the
// prediction window.
type DelayMode int

const (
	// DelayModeFromStart places the bet a fixed delay after the window opens.
	DelayModeFromStart DelayMode = iota
	// DelayModeFromEnd places the bet a fixed delay before the window closes.
	DelayModeFromEnd
	// DelayModePercentage places the bet a fraction of the way into the window.
	DelayModePercentage
)

// String returns the string representation of a DelayMode.
func (d DelayMode) String() string {
	switch d {
	case DelayModeFromStart:
		return "FROM_START"
	case DelayModeFromEnd:
		return "FROM_END"
	case DelayModePercentage:
		return "PERCENTAGE"
	default:
		return "FROM_END"
	}
}

// ParseDelayMode converts a string to a DelayMode value.
func ParseDelayMode(s string) DelayMode {
	switch s {
	case "FROM_START":
		return DelayModeFromStart
	case "FROM_END":
		return DelayModeFromEnd
	case "PERCENTAGE":
		return DelayModePercentage
	default:
		return DelayModeFromEnd
	}
}

// FilterCondition defines a condition that must hold for a bet to be placed.
type FilterCondition struct {
	By OutcomeKey `json:"by" yaml:"by"`
	Where Condition `json:"where" yaml:"where"`
	Value float64 `json:"value" yaml:"value"`
}

// String returns a human-readable representation of the filter condition.
func (fc *FilterCondition) String() string {
	return fmt.Sprintf("FilterCondition(by=%s, where=%s, value=%.2f)", fc.By, fc.Where, fc.Value)
}

// BetSettings holds configuration for automatic prediction betting.
type BetSettings struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Percentage int `json:"percentage" yaml:"percentage"`
	PercentageGap int `json:"percentage_gap" yaml:"percentage_gap"`
	MaxPoints int `json:"max_points" yaml:"max_points"`
	MinimumPoints int `json:"minimum_points" yaml:"minimum_points"`
	StealthMode bool `json:"stealth_mode" yaml:"stealth_mode"`
	FilterCondition *FilterCondition `json:"filter_condition,omitempty" yaml:"filter_condition"`
	Delay float64 `json:"delay" yaml:"delay"`
	DelayMode DelayMode `json:"delay_mode" yaml:"delay_mode"`
}

// DefaultBetSettings returns BetSettings with default values.
func DefaultBetSettings() *BetSettings {
	return &BetSettings{
		Strategy:      StrategySmart,
		Percentage:    5,
		PercentageGap: 20,
		MaxPoints:     50000,
		MinimumPoints: 0,
		StealthMode:   false,
		Delay:         6,
		DelayMode:     DelayModeFromEnd,
	}
}

// String returns a human-readable representation of the bet settings.
func (bs *BetSettings) String() string {
	return fmt.Sprintf("BetSettings(strategy=%s, percentage=%d, percentage_gap=%d, max_points=%d, minimum_points=%d, stealth_mode=%t)",
		bs.Strategy, bs.Percentage, bs.PercentageGap, bs.MaxPoints, bs.MinimumPoints, bs.StealthMode)
}

// BetDelaySeconds returns how many seconds after the window opens the bet
// should be placed, for the given settings.
func BetDelaySeconds(settings *BetSettings, predictionWindowSeconds float64) float64 {
	switch settings.DelayMode {
	case DelayModeFromStart:
		return min(settings.Delay, predictionWindowSeconds)
	case DelayModeFromEnd:
		return max(predictionWindowSeconds-settings.Delay, 0)
	case DelayModePercentage:
		return predictionWindowSeconds * settings.Delay
	default:
		return predictionWindowSeconds
	}
}

// ResultType is the verdict Twitch assigns to a resolved prediction.
type ResultType string

const (
	// ResultWin marks a prediction that won.
	ResultWin ResultType = "WIN"
	// ResultLose marks a prediction that lost.
	ResultLose ResultType = "LOSE"
	// ResultRefund marks a prediction whose points were returned.
	ResultRefund ResultType = "REFUND"
)

// Action maps the result type to a past-tense verb for log lines.
func (rt ResultType) Action() string {
	switch rt {
	case ResultLose:
		return "Lost"
	case ResultRefund:
		return "Refunded"
	default:
		return "Gained"
	}
}

// PredictionResult is the outcome Twitch reports for a resolved prediction.
// PointsWon is nil for LOSE and REFUND results.
type PredictionResult struct {
	Type ResultType `json:"type"`
	PointsWon *int `json:"points_won"`
}

// String returns a human-readable representation of the result.
func (r *PredictionResult) String() string {
	if r.PointsWon != nil {
		return fmt.Sprintf("Result(type=%s, points_won=%d)", r.Type, *r.PointsWon)
	}
	return fmt.Sprintf("Result(type=%s)", r.Type)
}

// Prediction is the wager the authenticated user holds on an event. It is
// created by the first Bet and can grow when further points are added.
type Prediction struct {
	OutcomeID string `json:"outcome_id"`
	Points int `json:"points"`
	Result *PredictionResult `json:"result,omitempty"`
}

// PointsGained returns the net effect of this prediction on the balance.
// Zero until resulted, zero for refunds, negative for losses.
func (p *Prediction) PointsGained() int {
	if p.Result == nil {
		return 0
	}
	switch p.Result.Type {
	case ResultRefund:
		return 0
	case ResultLose:
		return -p.Points
	default:
		if p.Result.PointsWon == nil {
			return 0
		}
		return *p.Result.PointsWon - p.Points
	}
}

// DescribeResult renders "WIN, Gained: +5K" style recaps, or an empty string
// until the prediction has been resulted.
func (p *Prediction) DescribeResult() string {
	if p.Result == nil {
		return ""
	}
	won := 0
	if p.Result.PointsWon != nil {
		won = *p.Result.PointsWon
	}
	gained := 0
	if p.Result.Type != ResultRefund {
		gained = won - p.Points
	}
	prefix := ""
	if gained >= 0 {
		prefix = "+"
	}
	return fmt.Sprintf("%s, %s: %s%s", p.Result.Type, p.Result.Type.Action(), prefix, utils.Millify(gained, 2))
}

// String returns a human-readable representation of the prediction.
func (p *Prediction) String() string {
	if p.Result != nil {
		return fmt.Sprintf("Prediction(outcome_id=%s, points=%d, result=%s)", p.OutcomeID, p.Points, p.Result)
	}
	return fmt.Sprintf("Prediction(outcome_id=%s, points=%d)", p.OutcomeID, p.Points)
}

// Outcome is one side of a prediction event, with values derived from the
// event totals on every update.
type Outcome struct {
	ID string `json:"id"`
	Color string `json:"color"`
	Title string `json:"title"`
	TotalPoints int `json:"total_points"`
	TotalUsers int `json:"total_users"`
	TopPredictors []Prediction `json:"top_predictors,omitempty"`
	PercentageUsers float64 `json:"percentage_users"`
	Odds float64 `json:"odds"`
	OddsPercentage float64 `json:"odds_percentage"`
	TopPoints int `json:"top_points"`
}

// Update recomputes the derived values from the event-level totals.
func (o *Outcome) Update(eventTotalUsers, eventTotalPoints int) {
	if eventTotalUsers != 0 {
		o.PercentageUsers = utils.FloatRound(100*(float64(o.TotalUsers)/float64(eventTotalUsers)), 2)
	} else {
		o.PercentageUsers = 0
	}
	if o.TotalPoints != 0 {
		o.Odds = utils.FloatRound(float64(eventTotalPoints)/float64(o.TotalPoints), 2)
	} else {
		o.Odds = 0
	}
	if o.Odds != 0 {
		o.OddsPercentage = utils.FloatRound(100/o.Odds, 2)
	} else {
		o.OddsPercentage = 0
	}
	o.TopPoints = 0
	for _, p := range o.TopPredictors {
		if p.Points > o.TopPoints {
			o.TopPoints = p.Points
		}
	}
}

// Value returns the outcome's value for the given key. Decision keys are
// equivalent to the plain totals at the outcome level.
func (o *Outcome) Value(key OutcomeKey) float64 {
	switch key {
	case OutcomeKeyTotalUsers, OutcomeKeyDecisionUsers:
		return float64(o.TotalUsers)
	case OutcomeKeyTotalPoints, OutcomeKeyDecisionPoints:
		return float64(o.TotalPoints)
	case OutcomeKeyPercentageUsers:
		return o.PercentageUsers
	case OutcomeKeyOdds:
		return o.Odds
	case OutcomeKeyOddsPercentage:
		return o.OddsPercentage
	case OutcomeKeyTopPoints:
		return float64(o.TopPoints)
	default:
		return 0
	}
}

// String returns a human-readable representation of the outcome.
func (o *Outcome) String() string {
	return fmt.Sprintf("Outcome(id=%s, title=%s, total_users=%d, total_points=%d, odds=%.2f)",
		o.ID, o.Title, o.TotalUsers, o.TotalPoints, o.Odds)
}

// Bet is a wager to place on an event outcome.
type Bet struct {
	OutcomeID string `json:"outcome_id"`
	Points int `json:"points"`
}

// String returns a human-readable representation of the bet.
func (b *Bet) String() string {
	return fmt.Sprintf("Bet(outcome_id=%s, points=%d)", b.OutcomeID, b.Points)
}

// EventPrediction represents an active prediction event on a channel.
// Fields that may be touched from both the event socket dispatcher and a
// bet timer are protected by Mu.
type EventPrediction struct {
	Mu sync.Mutex `json:"-"`

	ChannelID string `json:"channel_id"`
	EventID string `json:"event_id"`
	Title string `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	PredictionWindowSeconds float64 `json:"prediction_window_seconds"`
	Status string `json:"status"`

	Outcomes []*Outcome `json:"outcomes"`
	OutcomesByID map[string]*Outcome `json:"-"`
	TotalUsers int `json:"total_users"`
	TotalPoints int `json:"total_points"`

	Prediction *Prediction `json:"prediction,omitempty"`
}

// NewEventPrediction creates an EventPrediction and computes the derived
// outcome values.
func NewEventPrediction(eventID, title string, createdAt time.Time, predictionWindowSeconds float64, status string, outcomes []*Outcome) *EventPrediction {
	ev := &EventPrediction{
		EventID:                 eventID,
		Title:                   title,
		CreatedAt:               createdAt,
		PredictionWindowSeconds: predictionWindowSeconds,
		Status:                  status,
	}
	ev.Update(outcomes)
	return ev
}

// Update replaces the outcomes when a non-nil slice is given, then recomputes
// the event totals and every outcome's derived values.
func (ep *EventPrediction) Update(outcomes []*Outcome) {
	if outcomes != nil {
		ep.Outcomes = outcomes
		ep.OutcomesByID = make(map[string]*Outcome, len(outcomes))
		for _, o := range outcomes {
			ep.OutcomesByID[o.ID] = o
		}
	}

	ep.TotalPoints = 0
	ep.TotalUsers = 0
	for _, o := range ep.Outcomes {
		ep.TotalPoints += o.TotalPoints
		ep.TotalUsers += o.TotalUsers
	}
	for _, o := range ep.Outcomes {
		o.Update(ep.TotalUsers, ep.TotalPoints)
	}
}

// LargestMatchingChoiceID returns the id of the outcome with the largest
// value for the given key. Ties go to the earliest outcome.
func (ep *EventPrediction) LargestMatchingChoiceID(key OutcomeKey) string {
	largest := 0
	for i := range ep.Outcomes {
		if ep.Outcomes[i].Value(key) > ep.Outcomes[largest].Value(key) {
			largest = i
		}
	}
	return ep.Outcomes[largest].ID
}

// OutcomeSafe returns the id of the outcome at the given index, or the first
// outcome when the index is out of range.
func (ep *EventPrediction) OutcomeSafe(index int) string {
	if index < 0 || index >= len(ep.Outcomes) {
		index = 0
	}
	return ep.Outcomes[index].ID
}

// Elapsed returns the seconds between the event's creation and timestamp.
func (ep *EventPrediction) Elapsed(timestamp time.Time) float64 {
	return utils.FloatRound(timestamp.Sub(ep.CreatedAt).Seconds(), 2)
}

// ClosingBetAfter returns the seconds remaining until the window closes.
func (ep *EventPrediction) ClosingBetAfter(timestamp time.Time) float64 {
	return utils.FloatRound(ep.PredictionWindowSeconds-ep.Elapsed(timestamp), 2)
}

// Recap renders the event together with its prediction and result.
func (ep *EventPrediction) Recap() string {
	if ep.Prediction == nil {
		return ep.String()
	}
	described := ep.Prediction.DescribeResult()
	if described != "" {
		described = "\n\t\tResult: " + described
	}
	return fmt.Sprintf("%s\n\t\t%s%s", ep, ep.Prediction, described)
}

// String returns a human-readable representation of the event prediction.
func (ep *EventPrediction) String() string {
	return fmt.Sprintf("EventPrediction(event_id=%s, title=%s, status=%s)",
		ep.EventID, ep.Title, ep.Status)
}

var nullableInt = decode.Union("int or null",
	func(v any) (*int, error) {
		n, err := decode.Int(v)
		if err != nil {
			return nil, err
		}
		return &n, nil
	},
	func(v any) (*int, error) {
		if _, err := decode.Null(v); err != nil {
			return nil, err
		}
		return nil, nil
	},
)

func decodeResultType(v any) (ResultType, error) {
	s, err := decode.String(v)
	if err != nil {
		return "", err
	}
	switch rt := ResultType(s); rt {
	case ResultWin, ResultLose, ResultRefund:
		return rt, nil
	default:
		return "", &decode.InvalidValueError{Value: v}
	}
}

// DecodeResult decodes a prediction result payload, e.g.
// {"type": "WIN", "points_won": 5000, "is_acknowledged": false}.
func DecodeResult(v any) (*PredictionResult, error) {
	var r PredictionResult
	var err error
	if r.Type, err = decode.Property(v, "type", decodeResultType); err != nil {
		return nil, err
	}
	if r.PointsWon, err = decode.Property(v, "points_won", nullableInt); err != nil {
		return nil, err
	}
	return &r, nil
}

var nullableResult = decode.Union("result or null",
	DecodeResult,
	func(v any) (*PredictionResult, error) {
		if _, err := decode.Null(v); err != nil {
			return nil, err
		}
		return nil, nil
	},
)

// DecodePrediction decodes the user's wager from a predictions-user-v1
// payload. The result property may be null until the event resolves.
func DecodePrediction(v any) (Prediction, error) {
	var p Prediction
	var err error
	if p.OutcomeID, err = decode.Property(v, "outcome_id", decode.String); err != nil {
		return p, err
	}
	if p.Points, err = decode.Property(v, "points", decode.Int); err != nil {
		return p, err
	}
	result, err := decode.OptionalProperty(v, "result", nullableResult)
	if err != nil {
		return p, err
	}
	p.Result = result.Or(nil)
	return p, nil
}

func decodeOutcome(v any) (*Outcome, error) {
	var o Outcome
	var err error
	if o.ID, err = decode.Property(v, "id", decode.String); err != nil {
		return nil, err
	}
	if o.Color, err = decode.Property(v, "color", decode.String); err != nil {
		return nil, err
	}
	if o.Title, err = decode.Property(v, "title", decode.String); err != nil {
		return nil, err
	}
	if o.TotalPoints, err = decode.Property(v, "total_points", decode.Int); err != nil {
		return nil, err
	}
	if o.TotalUsers, err = decode.Property(v, "total_users", decode.Int); err != nil {
		return nil, err
	}
	if o.TopPredictors, err = decode.Property(v, "top_predictors", decode.List(DecodePrediction)); err != nil {
		return nil, err
	}
	return &o, nil
}

// DecodeEventPrediction decodes the "event" object of event-created and
// event-updated payloads, computing the derived outcome values.
func DecodeEventPrediction(v any) (*EventPrediction, error) {
	eventID, err := decode.Property(v, "id", decode.String)
	if err != nil {
		return nil, err
	}
	title, err := decode.Property(v, "title", decode.String)
	if err != nil {
		return nil, err
	}
	createdAt, err := decode.Property(v, "created_at", decode.Time)
	if err != nil {
		return nil, err
	}
	window, err := decode.Property(v, "prediction_window_seconds", decode.Float)
	if err != nil {
		return nil, err
	}
	status, err := decode.Property(v, "status", decode.String)
	if err != nil {
		return nil, err
	}
	outcomes, err := decode.Property(v, "outcomes", decode.List(decodeOutcome))
	if err != nil {
		return nil, err
	}
	ev := NewEventPrediction(eventID, title, createdAt, window, status, outcomes)
	if channelID, err := decode.OptionalProperty(v, "channel_id", decode.String); err == nil && channelID.Defined() {
		ev.ChannelID = channelID.Value()
	}
	return ev, nil
}
