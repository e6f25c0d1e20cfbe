package model

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPredictionTotalsMatchOutcomeSums(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 100; i++ {
		n := 2 + rng.IntN(8)
		outcomes := make([]*Outcome, 0, n)
		for j := 0; j < n; j++ {
			outcomes = append(outcomes, &Outcome{
				ID:          fmt.Sprintf("out-%d", j),
				TotalUsers:  rng.IntN(500),
				TotalPoints: rng.IntN(100000),
				TopPredictors: []Prediction{
					{OutcomeID: fmt.Sprintf("out-%d", j), Points: rng.IntN(5000)},
				},
			})
		}

		ev := NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE", outcomes)

		wantPoints, wantUsers := 0, 0
		for _, o := range outcomes {
			wantPoints += o.TotalPoints
			wantUsers += o.TotalUsers
		}
		assert.Equal(t, wantPoints, ev.TotalPoints)
		assert.Equal(t, wantUsers, ev.TotalUsers)

		for _, o := range ev.Outcomes {
			assert.GreaterOrEqual(t, o.PercentageUsers, 0.0)
			assert.LessOrEqual(t, o.PercentageUsers, 100.0)
			assert.GreaterOrEqual(t, o.Odds, 0.0)
			assert.GreaterOrEqual(t, o.OddsPercentage, 0.0)
			assert.LessOrEqual(t, o.OddsPercentage, 100.01, "rounding may land a hair above 100")
			assert.LessOrEqual(t, o.TopPoints, o.TotalPoints+5000,
				"top predictor points bounded by the bets placed")
		}
	}
}

func TestOutcomeUpdateZeroDivisors(t *testing.T) {
	o := &Outcome{ID: "a"}
	o.Update(0, 0)

	assert.Zero(t, o.PercentageUsers)
	assert.Zero(t, o.Odds)
	assert.Zero(t, o.OddsPercentage)
}

func TestLargestMatchingChoiceTieBreaksOnFirst(t *testing.T) {
	ev := NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE", []*Outcome{
		{ID: "a", TotalUsers: 10},
		{ID: "b", TotalUsers: 10},
		{ID: "c", TotalUsers: 5},
	})

	assert.Equal(t, "a", ev.LargestMatchingChoiceID(OutcomeKeyTotalUsers))
}

func TestTrackedEventUpdateRefreshesDerivedValues(t *testing.T) {
	ev := NewEventPrediction("ev", "t", time.Now(), 60, "ACTIVE", []*Outcome{
		{ID: "a", TotalUsers: 1, TotalPoints: 100},
		{ID: "b", TotalUsers: 3, TotalPoints: 300},
	})

	ev.Update([]*Outcome{
		{ID: "a", TotalUsers: 5, TotalPoints: 2000},
		{ID: "b", TotalUsers: 5, TotalPoints: 2000},
	})

	require.Len(t, ev.Outcomes, 2)
	assert.Equal(t, 4000, ev.TotalPoints)
	assert.Equal(t, 10, ev.TotalUsers)
	assert.InDelta(t, 50.0, ev.Outcomes[0].PercentageUsers, 0.01)
	assert.InDelta(t, 2.0, ev.Outcomes[0].Odds, 0.01)
}
