package twitch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veikko/twitch-harvester/internal/model"
)

func onlineStreamer(username string) *model.Streamer {
	s := model.NewStreamer(username)
	s.IsOnline = true
	s.OnlineAt = time.Now().Add(-5 * time.Minute)
	s.Settings = model.DefaultStreamerSettings()
	return s
}

func watchedNames(streamers []*model.Streamer) []string {
	names := make([]string, 0, len(streamers))
	for _, s := range streamers {
		names = append(names, s.Username)
	}
	return names
}

func TestSelectStreamersOrderPriority(t *testing.T) {
	streamers := []*model.Streamer{
		onlineStreamer("first"),
		onlineStreamer("second"),
		onlineStreamer("third"),
	}

	toWatch := SelectStreamersToWatch(streamers, []model.Priority{model.PriorityOrder}, 2, nil)

	assert.Equal(t, []string{"first", "second"}, watchedNames(toWatch))
}

func TestSelectStreamersSkipsOffline(t *testing.T) {
	offline := model.NewStreamer("offline")
	offline.Settings = model.DefaultStreamerSettings()
	streamers := []*model.Streamer{offline, onlineStreamer("live")}

	toWatch := SelectStreamersToWatch(streamers, []model.Priority{model.PriorityOrder}, 2, nil)

	assert.Equal(t, []string{"live"}, watchedNames(toWatch))
}

func TestSelectStreamersSkipsFreshlyOnline(t *testing.T) {
	// A streamer that just flipped online has no playlist yet; the selector
	// waits out the grace period before watching.
	fresh := onlineStreamer("fresh")
	fresh.OnlineAt = time.Now()

	toWatch := SelectStreamersToWatch([]*model.Streamer{fresh}, []model.Priority{model.PriorityOrder}, 2, nil)

	assert.Empty(t, toWatch)
}

func TestSelectStreamersStreakPriority(t *testing.T) {
	streak := onlineStreamer("chaser")
	streak.Settings.WatchStreak = true
	streak.Stream.WatchStreakMissing = true
	streak.Stream.MinuteWatched = 2

	filler := onlineStreamer("filler")

	streamers := []*model.Streamer{filler, streak}
	toWatch := SelectStreamersToWatch(streamers,
		[]model.Priority{model.PriorityStreak, model.PriorityOrder}, 2, nil)

	assert.Equal(t, []string{"filler", "chaser"}, watchedNames(toWatch))
}

func TestSelectStreamersStreakSkipsRecentlyClaimed(t *testing.T) {
	streak := onlineStreamer("chaser")
	streak.Settings.WatchStreak = true
	streak.Stream.WatchStreakMissing = true

	recentStreak := func(username string) bool { return username == "chaser" }

	toWatch := SelectStreamersToWatch([]*model.Streamer{streak},
		[]model.Priority{model.PriorityStreak}, 2, recentStreak)

	assert.Empty(t, toWatch, "a streak paid out within the TTL should not hold a watch slot")
}

func TestSelectStreamersDropsPriority(t *testing.T) {
	drops := onlineStreamer("farmer")
	drops.Settings.ClaimDrops = true
	drops.Stream.CampaignIDs = []string{"campaign-1"}

	plain := onlineStreamer("plain")

	toWatch := SelectStreamersToWatch([]*model.Streamer{plain, drops},
		[]model.Priority{model.PriorityDrops}, 1, nil)

	assert.Equal(t, []string{"farmer"}, watchedNames(toWatch))
}

func TestSelectStreamersCombinedPriorities(t *testing.T) {
	// A holds a missing streak and a sub multiplier; B and C are plain
	// channels with more points. STREAK seats A, POINTS_ASCENDING fills the
	// second slot with the poorest remaining channel.
	a := onlineStreamer("a")
	a.ChannelPoints = 10
	a.Settings.WatchStreak = true
	a.Stream.WatchStreakMissing = true
	a.ActiveMultipliers = []model.PointsMultiplier{{Factor: 1.0}}

	b := onlineStreamer("b")
	b.ChannelPoints = 100

	c := onlineStreamer("c")
	c.ChannelPoints = 200

	toWatch := SelectStreamersToWatch([]*model.Streamer{a, b, c},
		[]model.Priority{model.PriorityStreak, model.PrioritySubscribed, model.PriorityPointsAscending},
		2, nil)

	assert.Equal(t, []string{"a", "b"}, watchedNames(toWatch))
}

func TestSelectStreamersRespectsMaxWatch(t *testing.T) {
	streamers := []*model.Streamer{
		onlineStreamer("a"),
		onlineStreamer("b"),
		onlineStreamer("c"),
	}

	toWatch := SelectStreamersToWatch(streamers, []model.Priority{model.PriorityOrder}, 2, nil)

	assert.Len(t, toWatch, 2)
}
