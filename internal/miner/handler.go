package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/decode"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/utils"
)

// handleMessage routes a topic message to the appropriate handler.
func (m *Miner) handleMessage(ctx context.Context, msg *model.Message) {
	if msg == nil {
		return
	}

	streamer := m.getStreamerByChannelID(msg.ChannelID)

	switch msg.Topic {
	case constants.TopicCommunityPoints:
		m.handleCommunityPoints(ctx, msg, streamer)
	case constants.TopicVideoPlayback:
		m.handleVideoPlayback(ctx, msg, streamer)
	case constants.TopicPredictions:
		m.handlePredictionsChannel(ctx, msg, streamer)
	case constants.TopicPredictionsUser:
		m.handlePredictionsUser(ctx, msg, streamer)
	case constants.TopicRaid:
		m.handleRaid(ctx, msg, streamer)
	case constants.TopicCommunityMoments:
		m.handleCommunityMoments(ctx, msg, streamer)
	case constants.TopicCommunityGoals:
		m.handleCommunityGoals(ctx, msg, streamer)
	default:
		m.log.Debug("Unhandled topic", "topic", msg.Topic, "type", string(msg.Type))
	}

	// Allow GC to collect the raw JSON map now that all data has been extracted.
	msg.RawMessage = nil
}

func (m *Miner) handleCommunityPoints(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if msg.Data == nil {
		return
	}

	switch msg.Type {
	case model.MsgTypePointsEarned, model.MsgTypePointsSpent:
		m.handlePointsEarnedOrSpent(ctx, msg, streamer)
	case model.MsgTypeClaimAvailable:
		m.handleClaimAvailable(ctx, msg, streamer)
	default:
		m.log.Debug("Unhandled community-points message type", "type", string(msg.Type))
	}
}

func (m *Miner) handlePointsEarnedOrSpent(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	balanceObj, err := decode.Property(msg.Data, "balance", decode.Object)
	if err != nil {
		m.log.Debug("Malformed points message", "error", err)
		return
	}
	balance, err := decode.Property(balanceObj, "balance", decode.Int)
	if err != nil {
		m.log.Debug("Malformed points balance", "error", err)
		return
	}

	if streamer != nil {
		streamer.Mu.Lock()
		streamer.ChannelPoints = balance
		streamer.Mu.Unlock()
	}

	if msg.Type != model.MsgTypePointsEarned {
		if streamer != nil {
			streamer.Mu.RLock()
			username := streamer.Username
			streamer.Mu.RUnlock()
			m.recordPoints(ctx, username, balance, "SPENT")
		}
		return
	}

	pointGain, err := decode.Property(msg.Data, "point_gain", decode.Object)
	if err != nil {
		return
	}
	earned, err := decode.Property(pointGain, "total_points", decode.Int)
	if err != nil {
		return
	}
	reasonCode, _ := decode.Property(pointGain, "reason_code", decode.String)

	if streamer == nil {
		return
	}

	streamer.Mu.Lock()
	streamer.UpdateHistory(reasonCode, earned, 1)
	streamer.Mu.Unlock()

	streamer.Mu.RLock()
	username := streamer.Username
	streamer.Mu.RUnlock()

	if reasonCode == "WATCH_STREAK" {
		m.streaks.Mark(username)
		if err := m.streaks.Save(); err != nil {
			m.log.Warn("Failed to save streak cache", "error", err)
		}
	}

	event := mapReasonToEvent(reasonCode)
	m.log.Event(ctx, event,
		fmt.Sprintf("+%s points", utils.Millify(earned, 2)),
		"streamer", username,
		"reason", reasonCode,
		"balance", balance)

	m.recordPoints(ctx, username, balance, reasonCode)
}

func (m *Miner) handleClaimAvailable(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil {
		return
	}

	claim, err := decode.Property(msg.Data, "claim", decode.Object)
	if err != nil {
		return
	}
	claimID, err := decode.Property(claim, "id", decode.String)
	if err != nil || claimID == "" {
		return
	}

	streamer.Mu.RLock()
	username := streamer.Username
	streamer.Mu.RUnlock()

	m.log.Event(ctx, model.EventBonusClaim,
		"Claiming bonus",
		"streamer", username,
		"claim_id", claimID)

	// Claiming calls GQL; don't block the socket read loop on it.
	go func() {
		if err := m.twitch.ClaimChannelPoints(ctx, streamer, claimID); err != nil {
			m.log.Warn("Failed to claim bonus",
				"streamer", username, "error", err)
		}
	}()
}

func (m *Miner) handleVideoPlayback(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil {
		return
	}

	switch msg.Type {
	case model.MsgTypeStreamUp:
		m.handleStreamUp(ctx, streamer)
	case model.MsgTypeStreamDown:
		m.handleStreamDown(ctx, streamer)
	case model.MsgTypeViewCount:
		m.handleViewCount(ctx, msg, streamer)
	}
}

func (m *Miner) handleStreamUp(ctx context.Context, streamer *model.Streamer) {
	streamer.Mu.Lock()
	streamer.StreamUpAt = time.Now()
	username := streamer.Username
	category := streamer.ResolveCategory()
	streamer.Mu.Unlock()

	m.log.Event(ctx, model.EventStreamerOnline,
		"Stream online",
		"streamer", username,
		"category", category)

	m.updateChatPresence(streamer, true)
}

func (m *Miner) handleStreamDown(ctx context.Context, streamer *model.Streamer) {
	streamer.Mu.Lock()
	wasOnline := streamer.IsOnline
	streamer.SetOffline()
	username := streamer.Username
	streamer.Mu.Unlock()

	if wasOnline {
		m.log.Event(ctx, model.EventStreamerOffline,
			"Stream went offline",
			"streamer", username)
	}

	m.updateChatPresence(streamer, false)
}

func (m *Miner) handleViewCount(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if viewers, err := decode.Property(msg.RawMessage, "viewers", decode.Int); err == nil {
		streamer.Mu.Lock()
		if streamer.Stream != nil {
			streamer.Stream.ViewersCount = viewers
		}
		streamer.Mu.Unlock()
	}

	streamer.Mu.RLock()
	elapsed := streamer.StreamUpElapsed()
	streamer.Mu.RUnlock()

	if elapsed {
		if err := m.twitch.CheckStreamerOnline(ctx, streamer); err != nil {
			m.log.Debug("Failed to check online status on viewcount",
				"streamer", streamer.Username, "error", err)
		}
	}
}

func (m *Miner) handleRaid(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil {
		return
	}

	if msg.Type != model.MsgTypeRaidUpdate {
		return
	}

	streamer.Mu.RLock()
	followRaid := streamer.Settings != nil && streamer.Settings.FollowRaid
	username := streamer.Username
	streamer.Mu.RUnlock()

	if !followRaid {
		return
	}

	raidData, err := decode.Property(msg.RawMessage, "raid", decode.Object)
	if err != nil {
		return
	}
	raidID, err := decode.Property(raidData, "id", decode.String)
	if err != nil || raidID == "" {
		return
	}
	targetLogin, _ := decode.Property(raidData, "target_login", decode.String)

	raid := model.NewRaid(raidID, targetLogin)

	// raid_update_v2 repeats while the raid countdown runs. Join only the
	// first time we see a given raid id for this channel.
	streamer.Mu.Lock()
	if raid.Equal(streamer.Raid) {
		streamer.Mu.Unlock()
		return
	}
	streamer.Raid = raid
	streamer.Mu.Unlock()

	m.log.Event(ctx, model.EventJoinRaid,
		"Joining raid",
		"streamer", username,
		"target", targetLogin)

	if err := m.twitch.JoinRaid(ctx, raidID); err != nil {
		m.log.Warn("Failed to join raid",
			"streamer", username, "raid_id", raidID, "error", err)
	}
}

func (m *Miner) handleCommunityMoments(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil || msg.Data == nil {
		return
	}

	if msg.Type != model.MsgTypeMomentAvailable {
		return
	}

	streamer.Mu.RLock()
	claimMoments := streamer.Settings != nil && streamer.Settings.ClaimMoments
	username := streamer.Username
	streamer.Mu.RUnlock()

	if !claimMoments {
		return
	}

	momentID, err := decode.Property(msg.Data, "moment_id", decode.String)
	if err != nil || momentID == "" {
		return
	}

	m.log.Event(ctx, model.EventMomentClaim,
		"Claiming moment",
		"streamer", username,
		"moment_id", momentID)

	if err := m.twitch.ClaimMoment(ctx, momentID); err != nil {
		m.log.Warn("Failed to claim moment",
			"streamer", username, "moment_id", momentID, "error", err)
	}
}

func (m *Miner) handleCommunityGoals(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil || msg.Data == nil {
		return
	}

	streamer.Mu.RLock()
	goalsEnabled := streamer.Settings != nil && streamer.Settings.CommunityGoalsEnabled
	streamer.Mu.RUnlock()

	if !goalsEnabled {
		return
	}

	switch msg.Type {
	case model.MsgTypeGoalCreated, model.MsgTypeGoalUpdated:
		goal, err := decode.Property(msg.Data, "community_goal", model.DecodeCommunityGoalEvent)
		if err != nil {
			m.log.Debug("Malformed community goal", "error", err)
			return
		}

		streamer.Mu.Lock()
		streamer.UpdateCommunityGoal(goal)
		streamer.Mu.Unlock()

		// Contribution amounts depend on the current balance, so refresh the
		// points context before the next contribution pass picks up the goal.
		if err := m.twitch.LoadChannelPointsContext(ctx, streamer); err != nil {
			m.log.Debug("Failed to refresh context after goal update",
				"streamer", streamer.Username, "error", err)
		}

	case model.MsgTypeGoalDeleted:
		goalData, err := decode.Property(msg.Data, "community_goal", decode.Object)
		if err != nil {
			return
		}
		goalID, err := decode.Property(goalData, "id", decode.String)
		if err != nil || goalID == "" {
			return
		}
		streamer.Mu.Lock()
		streamer.DeleteCommunityGoal(goalID)
		streamer.Mu.Unlock()
	}
}

func (m *Miner) handlePredictionsChannel(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if streamer == nil || msg.Data == nil {
		return
	}

	streamer.Mu.RLock()
	makePredictions := streamer.Settings != nil && streamer.Settings.MakePredictions
	streamer.Mu.RUnlock()

	if !makePredictions {
		return
	}

	event, err := decode.Property(msg.Data, "event", model.DecodeEventPrediction)
	if err != nil {
		m.log.Debug("Malformed prediction event", "error", err)
		return
	}

	switch msg.Type {
	case model.MsgTypePredictionEvent:
		if event.Status != "ACTIVE" {
			return
		}
		m.predictions.New(ctx, streamer, event)
	case model.MsgTypePredictionUpdate, model.MsgTypePredictionLocked:
		m.predictions.Update(ctx, streamer, event)
	}
}

func (m *Miner) handlePredictionsUser(ctx context.Context, msg *model.Message, streamer *model.Streamer) {
	if msg.Data == nil {
		return
	}

	pred, err := decode.Property(msg.Data, "prediction", decode.Object)
	if err != nil {
		return
	}
	eventID, err := decode.Property(pred, "event_id", decode.String)
	if err != nil || eventID == "" {
		return
	}

	if streamer == nil {
		streamer = m.getStreamerByChannelID(msg.ChannelID)
	}
	if streamer == nil {
		return
	}

	streamer.Mu.RLock()
	username := streamer.Username
	streamer.Mu.RUnlock()

	switch msg.Type {
	case model.MsgTypeWagerMade, model.MsgTypeWagerUpdate:
		wager, err := model.DecodePrediction(pred)
		if err != nil {
			m.log.Debug("Malformed user prediction", "error", err)
			return
		}
		m.predictions.PredictionUpdated(ctx, streamer, eventID, wager)
		m.annotate(ctx, username, "prediction",
			fmt.Sprintf("Bet %s points", utils.Millify(wager.Points, 2)), "#9147FF")

	case model.MsgTypeWagerResult:
		result, err := decode.Property(pred, "result", model.DecodeResult)
		if err != nil {
			m.log.Debug("Malformed prediction result", "error", err)
			return
		}
		m.predictions.Result(ctx, streamer, eventID, result, msg.Timestamp)
	}
}

func (m *Miner) updateChatPresence(streamer *model.Streamer, isOnline bool) {
	streamer.Mu.RLock()
	chatPresence := model.ChatNever
	if streamer.Settings != nil {
		chatPresence = streamer.Settings.Chat
	}
	username := streamer.Username
	streamer.Mu.RUnlock()

	if model.ShouldJoinChat(chatPresence, isOnline) {
		if err := m.chat.Join(username); err != nil {
			m.log.Debug("Failed to join chat", "streamer", username, "error", err)
		}
	} else {
		if m.chat.IsJoined(username) {
			if err := m.chat.Leave(username); err != nil {
				m.log.Debug("Failed to leave chat", "streamer", username, "error", err)
			}
		}
	}
}

// recordPoints writes a balance sample to the analytics store, if one is attached.
func (m *Miner) recordPoints(ctx context.Context, username string, balance int, event string) {
	if m.store == nil {
		return
	}
	if err := m.store.RecordPoints(ctx, username, balance, event); err != nil {
		m.log.Debug("Failed to record points sample", "streamer", username, "error", err)
	}
}

// annotate writes a marker to the analytics store, if one is attached.
func (m *Miner) annotate(ctx context.Context, username, event, text, color string) {
	if m.store == nil {
		return
	}
	if err := m.store.Annotate(ctx, username, event, text, color); err != nil {
		m.log.Debug("Failed to record annotation", "streamer", username, "error", err)
	}
}

func mapReasonToEvent(reasonCode string) model.Event {
	switch reasonCode {
	case "WATCH", "WATCH_CONSECUTIVE_GAMES":
		return model.EventGainForWatch
	case "CLAIM":
		return model.EventGainForClaim
	case "RAID":
		return model.EventGainForRaid
	case "WATCH_STREAK":
		return model.EventGainForWatchStreak
	default:
		return model.EventGainForWatch
	}
}
