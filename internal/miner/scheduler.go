package miner

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/twitch"
)

func (m *Miner) runMinuteWatcher(ctx context.Context) error {
	ticker := time.NewTicker(constants.DefaultMinuteWatchedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			streamers := m.getStreamers()
			toWatch := twitch.SelectStreamersToWatch(streamers, m.priorities, constants.MaxWatchStreams, m.recentStreak)

			m.logWatchingChanges(toWatch)

			if len(toWatch) > 0 {
				if err := m.twitch.SendMinuteWatchedEvents(ctx, toWatch); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m.log.Debug("Minute watched error", "error", err)
				}
			}
		}
	}
}

// logWatchingChanges compares the current set of watched streamers with the
func (m *Miner) logWatchingChanges(toWatch []*model.Streamer) {
	currentSet := make(map[string]bool, len(toWatch))
	for _, s := range toWatch {
		s.Mu.RLock()
		currentSet[s.Username] = true
		s.Mu.RUnlock()
	}

	m.lastWatchingMu.Lock()
	defer m.lastWatchingMu.Unlock()

	for username := range currentSet {
		if !m.lastWatching[username] {
			m.log.Info("👀 Watching", "streamer", username)
		}
	}

	for username := range m.lastWatching {
		if !currentSet[username] {
			m.log.Info("💤 Stopped watching", "streamer", username)
		}
	}

	m.lastWatching = currentSet
}

func (m *Miner) runCampaignSync(ctx context.Context) error {
	hasDrops := false
	for _, s := range m.getStreamers() {
		s.Mu.RLock()
		if s.Settings != nil && s.Settings.ClaimDrops {
			hasDrops = true
		}
		s.Mu.RUnlock()
		if hasDrops {
			break
		}
	}
	if !hasDrops {
		<-ctx.Done()
		return ctx.Err()
	}

	streamers := m.getStreamers()
	if err := m.twitch.SyncCampaigns(ctx, streamers); err != nil {
		m.log.Warn("Initial campaign sync failed", "error", err)
	}
	// Hint GC to reclaim transient campaign sync allocations
	runtime.GC()
	lastSync := time.Now()

	// Wake every minute so an eligible streamer is picked up promptly, but
	// run the expensive pass only on the sync cadence.
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Since(lastSync) < constants.CampaignSyncInterval {
				continue
			}
			streamers := m.getStreamers()
			if !anyDropsEligible(streamers) {
				// Nobody is live in a drops-enabled category; the inventory
				// cannot have moved, so skip this pass.
				continue
			}
			if err := m.twitch.SyncCampaigns(ctx, streamers); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Warn("Campaign sync failed", "error", err)
			}
			lastSync = time.Now()
			// Hint GC to reclaim transient campaign sync allocations
			runtime.GC()
		}
	}
}

// anyDropsEligible reports whether any streamer is currently in a state where
// drop progress can accrue.
func anyDropsEligible(streamers []*model.Streamer) bool {
	for _, s := range streamers {
		s.Mu.RLock()
		eligible := s.DropsCondition()
		s.Mu.RUnlock()
		if eligible {
			return true
		}
	}
	return false
}

// recentStreak reports whether the streamer's watch streak was already paid
// out within the streak TTL.
func (m *Miner) recentStreak(username string) bool {
	return m.streaks.ClaimedWithin(username, constants.WatchStreakTTL)
}

func (m *Miner) runContextRefresh(ctx context.Context) error {
	ticker := time.NewTicker(constants.CampaignSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			streamers := m.getStreamers()
			for _, s := range streamers {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.Mu.RLock()
				isOnline := s.IsOnline
				s.Mu.RUnlock()

				if isOnline {
					if err := m.twitch.LoadChannelPointsContext(ctx, s); err != nil {
						m.log.Debug("Context refresh failed",
							"streamer", s.Username, "error", err)
					}
				}
			}
		}
	}
}

func (m *Miner) runMonitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(20+rand.IntN(40)) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ticker.Reset(time.Duration(20+rand.IntN(40)) * time.Second)

			streamers := m.getStreamers()
			for _, s := range streamers {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.Mu.RLock()
				isOnline := s.IsOnline
				s.Mu.RUnlock()
				// Online streamers are refreshed by viewcount messages; this
				// loop exists to catch missed stream-up messages.
				if isOnline {
					continue
				}
				if err := m.twitch.CheckStreamerOnline(ctx, s); err != nil {
					m.log.Debug("Online check failed",
						"streamer", s.Username, "error", err)
				}
			}
		}
	}
}
