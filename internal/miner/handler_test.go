package miner

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/auth"
	"github.com/veikko/twitch-harvester/internal/config"
	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/gql"
	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/prediction"
	"github.com/veikko/twitch-harvester/internal/streak"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

// fakeAPI records the twitch calls the handlers make.
type fakeAPI struct {
	mu           sync.Mutex
	joinedRaids  []string
	claimed      chan string
	contextLoads int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{claimed: make(chan string, 4)}
}

func (f *fakeAPI) Login(context.Context) error                            { return nil }
func (f *fakeAPI) CheckStreamerOnline(context.Context, *model.Streamer) error { return nil }
func (f *fakeAPI) SendMinuteWatchedEvents(context.Context, []*model.Streamer) error {
	return nil
}
func (f *fakeAPI) ClaimMoment(context.Context, string) error                  { return nil }
func (f *fakeAPI) SyncCampaigns(context.Context, []*model.Streamer) error     { return nil }
func (f *fakeAPI) ClaimAllDropsFromInventory(context.Context) error           { return nil }
func (f *fakeAPI) GetChannelID(context.Context, string) (string, error)       { return "", nil }
func (f *fakeAPI) GetFollowers(context.Context, int, string) ([]string, error) { return nil, nil }
func (f *fakeAPI) CheckViewerIsMod(context.Context, *model.Streamer)          {}
func (f *fakeAPI) RefreshSpadeURL(context.Context, *model.Streamer) error     { return nil }
func (f *fakeAPI) GQLClient() *gql.Client                                     { return nil }
func (f *fakeAPI) AuthProvider() auth.Provider                                { return nil }

func (f *fakeAPI) LoadChannelPointsContext(context.Context, *model.Streamer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contextLoads++
	return nil
}

func (f *fakeAPI) JoinRaid(_ context.Context, raidID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinedRaids = append(f.joinedRaids, raidID)
	return nil
}

func (f *fakeAPI) ClaimChannelPoints(_ context.Context, _ *model.Streamer, claimID string) error {
	f.claimed <- claimID
	return nil
}

func (f *fakeAPI) raids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joinedRaids...)
}

func (f *fakeAPI) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contextLoads
}

func testMiner(t *testing.T) (*Miner, *fakeAPI, *model.Streamer) {
	t.Helper()
	log := testLogger(t)
	api := newFakeAPI()

	s := model.NewStreamer("caster")
	s.ChannelID = "42"
	s.Settings = model.DefaultStreamerSettings()
	s.Settings.CommunityGoalsEnabled = true

	m := &Miner{
		cfg:          &config.AccountConfig{Username: "viewer"},
		log:          log,
		twitch:       api,
		streaks:      streak.Load(filepath.Join(t.TempDir(), "streaks.json"), log),
		predictions:  prediction.NewMulti(prediction.NewTracker(log)),
		streamers:    []*model.Streamer{s},
		lastWatching: make(map[string]bool),
	}
	return m, api, s
}

func pointsMessage(msgType model.MessageType, balance, earned int, reason string) *model.Message {
	data := map[string]any{
		"balance": map[string]any{"balance": float64(balance)},
	}
	if msgType == model.MsgTypePointsEarned {
		data["point_gain"] = map[string]any{
			"total_points": float64(earned),
			"reason_code":  reason,
		}
	}
	return &model.Message{
		Topic:     constants.TopicCommunityPoints,
		Type:      msgType,
		Data:      data,
		ChannelID: "42",
	}
}

func TestPointsEarnedUpdatesBalanceAndHistory(t *testing.T) {
	m, _, s := testMiner(t)

	m.handleMessage(context.Background(), pointsMessage(model.MsgTypePointsEarned, 1500, 450, "WATCH"))

	assert.Equal(t, 1500, s.ChannelPoints)
	require.Contains(t, s.History, "WATCH")
	assert.Equal(t, 450, s.History["WATCH"].Amount)
}

func TestPointsEarnedWatchStreakMarksCache(t *testing.T) {
	m, _, s := testMiner(t)
	s.Stream.WatchStreakMissing = true

	m.handleMessage(context.Background(), pointsMessage(model.MsgTypePointsEarned, 800, 300, "WATCH_STREAK"))

	assert.True(t, m.streaks.ClaimedWithin("caster", constants.WatchStreakTTL))
	assert.False(t, s.Stream.WatchStreakMissing)
}

func TestPointsSpentUpdatesBalanceOnly(t *testing.T) {
	m, _, s := testMiner(t)

	m.handleMessage(context.Background(), pointsMessage(model.MsgTypePointsSpent, 120, 0, ""))

	assert.Equal(t, 120, s.ChannelPoints)
	assert.Empty(t, s.History)
	assert.False(t, m.streaks.ClaimedWithin("caster", constants.WatchStreakTTL))
}

func TestClaimAvailableClaimsBonus(t *testing.T) {
	m, api, _ := testMiner(t)

	msg := &model.Message{
		Topic:     constants.TopicCommunityPoints,
		Type:      model.MsgTypeClaimAvailable,
		Data:      map[string]any{"claim": map[string]any{"id": "claim-7"}},
		ChannelID: "42",
	}
	m.handleMessage(context.Background(), msg)

	select {
	case claimID := <-api.claimed:
		assert.Equal(t, "claim-7", claimID)
	case <-time.After(2 * time.Second):
		t.Fatal("bonus was never claimed")
	}
}

func raidMessage(raidID string) *model.Message {
	return &model.Message{
		Topic: constants.TopicRaid,
		Type:  model.MsgTypeRaidUpdate,
		RawMessage: map[string]any{
			"raid": map[string]any{"id": raidID, "target_login": "target"},
		},
		ChannelID: "42",
	}
}

func TestRaidJoinedOncePerRaidID(t *testing.T) {
	m, api, s := testMiner(t)
	ctx := context.Background()

	m.handleMessage(ctx, raidMessage("raid-1"))
	m.handleMessage(ctx, raidMessage("raid-1"))
	assert.Equal(t, []string{"raid-1"}, api.raids(), "repeated updates for one raid join once")

	m.handleMessage(ctx, raidMessage("raid-2"))
	assert.Equal(t, []string{"raid-1", "raid-2"}, api.raids())
	assert.Equal(t, "raid-2", s.Raid.RaidID)
}

func TestRaidIgnoredWhenDisabled(t *testing.T) {
	m, api, s := testMiner(t)
	s.Settings.FollowRaid = false

	m.handleMessage(context.Background(), raidMessage("raid-1"))

	assert.Empty(t, api.raids())
}

func goalMessage(msgType model.MessageType, goal map[string]any) *model.Message {
	return &model.Message{
		Topic:     constants.TopicCommunityGoals,
		Type:      msgType,
		Data:      map[string]any{"community_goal": goal},
		ChannelID: "42",
	}
}

func TestCommunityGoalLifecycle(t *testing.T) {
	m, api, s := testMiner(t)
	ctx := context.Background()

	payload := map[string]any{
		"id":                                   "goal-1",
		"title":                                "New emote",
		"is_in_stock":                          true,
		"points_contributed":                   float64(500),
		"goal_amount":                          float64(10000),
		"per_stream_maximum_user_contribution": float64(2000),
		"status":                               "STARTED",
	}

	m.handleMessage(ctx, goalMessage(model.MsgTypeGoalCreated, payload))

	require.Contains(t, s.CommunityGoals, "goal-1")
	assert.Equal(t, 10000, s.CommunityGoals["goal-1"].AmountNeeded)
	assert.Equal(t, 1, api.loads(), "goal updates refresh the points context")

	m.handleMessage(ctx, goalMessage(model.MsgTypeGoalDeleted, map[string]any{"id": "goal-1"}))

	assert.NotContains(t, s.CommunityGoals, "goal-1")
}

func predictionEventMessage(msgType model.MessageType, eventID, status string) *model.Message {
	return &model.Message{
		Topic: constants.TopicPredictions,
		Type:  msgType,
		Data: map[string]any{
			"event": map[string]any{
				"id":                        eventID,
				"title":                     "Will it work?",
				"created_at":                time.Now().UTC().Format(time.RFC3339Nano),
				"prediction_window_seconds": float64(120),
				"status":                    status,
				"outcomes": []any{
					map[string]any{
						"id": "out-a", "title": "Yes", "color": "BLUE",
						"total_points": float64(100), "total_users": float64(3),
						"top_predictors": []any{},
					},
					map[string]any{
						"id": "out-b", "title": "No", "color": "PINK",
						"total_points": float64(50), "total_users": float64(1),
						"top_predictors": []any{},
					},
				},
			},
		},
		ChannelID: "42",
	}
}

func TestPredictionEventTracked(t *testing.T) {
	m, _, s := testMiner(t)

	m.handleMessage(context.Background(), predictionEventMessage(model.MsgTypePredictionEvent, "ev-1", "ACTIVE"))

	assert.Contains(t, s.EventPredictions, "ev-1")
}

func TestPredictionEventNotActiveIgnored(t *testing.T) {
	m, _, s := testMiner(t)

	m.handleMessage(context.Background(), predictionEventMessage(model.MsgTypePredictionEvent, "ev-1", "LOCKED"))

	assert.Empty(t, s.EventPredictions)
}

func TestUserWagerRecordedOnEvent(t *testing.T) {
	m, _, s := testMiner(t)

	m.handleMessage(context.Background(), predictionEventMessage(model.MsgTypePredictionEvent, "ev-1", "ACTIVE"))

	wager := &model.Message{
		Topic: constants.TopicPredictionsUser,
		Type:  model.MsgTypeWagerMade,
		Data: map[string]any{
			"prediction": map[string]any{
				"event_id":   "ev-1",
				"channel_id": "42",
				"outcome_id": "out-a",
				"points":     float64(777),
			},
		},
		ChannelID: "42",
	}
	m.handleMessage(context.Background(), wager)

	require.Contains(t, s.EventPredictions, "ev-1")
	require.NotNil(t, s.EventPredictions["ev-1"].Prediction)
	assert.Equal(t, 777, s.EventPredictions["ev-1"].Prediction.Points)
}
