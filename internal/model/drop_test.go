package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDrop(minutesRequired int) *Drop {
	return NewDrop("drop-1", "Helm", []string{"Shiny helm"}, minutesRequired,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
}

func TestDropFirstMinuteIsPrintable(t *testing.T) {
	d := testDrop(10)

	d.Update(true, 1, "", false)

	assert.Equal(t, 10, d.PercentageProgress)
	assert.True(t, d.IsPrintable, "the first watched minute announces the drop")
	assert.False(t, d.IsClaimable)
}

func TestDropClaimableNeedsInstanceAndNotClaimed(t *testing.T) {
	d := testDrop(10)

	d.Update(true, 10, "inst-1", false)
	assert.True(t, d.IsClaimable)

	d.Update(true, 10, "inst-1", true)
	assert.False(t, d.IsClaimable, "a claimed drop is never claimable again")

	d.Update(true, 10, "", false)
	assert.False(t, d.IsClaimable, "no instance id means nothing to claim")
}

func TestDropProgressNeverExceedsRequirement(t *testing.T) {
	d := testDrop(60)

	for minutes := 0; minutes <= 60; minutes += 5 {
		d.Update(true, minutes, "", false)
		assert.LessOrEqual(t, d.CurrentMinutesWatched, d.MinutesRequired)
		assert.LessOrEqual(t, d.PercentageProgress, 100)
	}
}

func TestDropQuarterProgressIsPrintable(t *testing.T) {
	d := testDrop(100)

	d.Update(true, 10, "", false)
	d.Update(true, 25, "", false)
	assert.True(t, d.IsPrintable, "quarter boundaries are announced")

	d.Update(true, 26, "", false)
	assert.False(t, d.IsPrintable)
}
