package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCampaignClearDrops(t *testing.T) {
	campaign := NewCampaign("c1", "Launch", "ACTIVE", nil,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour), nil)

	active := NewDrop("d1", "Helm", nil, 60,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	claimed := NewDrop("d2", "Cape", nil, 60,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	claimed.Update(true, 60, "inst-2", true)

	expired := NewDrop("d3", "Sword", nil, 60,
		time.Now().Add(-3*time.Hour), time.Now().Add(-2*time.Hour))

	campaign.Drops = []*Drop{active, claimed, expired}
	campaign.ClearDrops()

	assert.Len(t, campaign.Drops, 1, "claimed and out-of-window drops are cleared")
	assert.Equal(t, "d1", campaign.Drops[0].ID)
}

func TestCampaignEqualComparesIDs(t *testing.T) {
	a := NewCampaign("c1", "Launch", "ACTIVE", nil, time.Now(), time.Now(), nil)
	b := NewCampaign("c1", "Renamed", "EXPIRED", nil, time.Now(), time.Now(), nil)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
