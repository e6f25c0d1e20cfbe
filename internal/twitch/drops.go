package twitch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/veikko/twitch-harvester/internal/decode"
	"github.com/veikko/twitch-harvester/internal/model"
)

// SyncCampaigns synchronizes drop campaigns with the user's inventory
// and updates streamer campaign data. This is called periodically by the miner.
func (c *Client) SyncCampaigns(ctx context.Context, streamers []*model.Streamer) error {
	if err := c.ClaimAllDropsFromInventory(ctx); err != nil {
		c.Log.Warn("Failed to claim drops from inventory", "error", err)
	}

	dashboardCampaigns, err := c.GQL.GetDropsDashboard(ctx, "ACTIVE")
	if err != nil {
		return fmt.Errorf("getting drops dashboard: %w", err)
	}

	if len(dashboardCampaigns) == 0 {
		return nil
	}

	campaignIDs := make([]string, 0, len(dashboardCampaigns))
	for _, raw := range dashboardCampaigns {
		id, err := decode.Property(raw, "id", decode.String)
		if err != nil || id == "" {
			continue
		}
		campaignIDs = append(campaignIDs, id)
	}

	campaignDetails, err := c.GQL.GetDropCampaignDetailsBatch(ctx, campaignIDs, c.Auth.UserID())
	if err != nil {
		return fmt.Errorf("getting campaign details: %w", err)
	}

	campaigns := make([]*model.Campaign, 0, len(campaignDetails))
	for _, raw := range campaignDetails {
		if raw == nil {
			continue
		}
		campaign, err := decodeCampaign(raw)
		if err != nil {
			c.Log.Debug("Failed to parse campaign", "error", err)
			continue
		}
		if campaign.DTMatch {
			campaign.ClearDrops()
			if len(campaign.Drops) > 0 {
				campaigns = append(campaigns, campaign)
			}
		}
	}

	campaigns, err = c.syncCampaignsWithInventory(ctx, campaigns)
	if err != nil {
		c.Log.Warn("Failed to sync campaigns with inventory", "error", err)
	}

	for _, streamer := range streamers {
		streamer.Mu.Lock()
		if streamer.DropsCondition() {
			var matchingCampaigns []model.Campaign
			for _, campaign := range campaigns {
				if len(campaign.Drops) > 0 && campaignMatchesStreamer(campaign, streamer) {
					matchingCampaigns = append(matchingCampaigns, *campaign)
				}
			}
			streamer.Stream.Campaigns = matchingCampaigns
		}
		streamer.Mu.Unlock()
	}

	return nil
}

func (c *Client) syncCampaignsWithInventory(ctx context.Context, campaigns []*model.Campaign) ([]*model.Campaign, error) {
	inventoryData, err := c.GQL.GetDropsInventory(ctx)
	if err != nil {
		return campaigns, fmt.Errorf("getting inventory: %w", err)
	}
	if inventoryData == nil {
		return campaigns, nil
	}

	progress, err := decodeInventoryProgress(inventoryData)
	if err != nil {
		return campaigns, fmt.Errorf("parsing inventory: %w", err)
	}

	for i, campaign := range campaigns {
		campaign.ClearDrops()
		inProgress, ok := progress[campaign.ID]
		if !ok {
			continue
		}
		campaigns[i].InInventory = true
		for _, drop := range campaigns[i].Drops {
			dp, ok := inProgress[drop.ID]
			if !ok {
				continue
			}
			drop.Update(dp.hasPreconditionsMet, dp.currentMinutesWatched, dp.dropInstanceID, dp.isClaimed)
			if drop.IsClaimable {
				c.Log.Event(ctx, model.EventDropClaim, "Claiming drop",
					"drop", drop.String())
				claimed, err := c.GQL.ClaimDropRewards(ctx, drop.DropInstanceID)
				if err != nil {
					c.Log.Warn("Failed to claim drop",
						"drop", drop.Name, "error", err)
				} else {
					drop.IsClaimed = claimed
				}
			}
		}
		campaigns[i].ClearDrops()
	}

	return campaigns, nil
}

// ClaimDrop claims a single drop reward.
func (c *Client) ClaimDrop(ctx context.Context, dropInstanceID string) error {
	c.Log.Info("Claiming drop", "drop_instance_id", dropInstanceID)
	claimed, err := c.GQL.ClaimDropRewards(ctx, dropInstanceID)
	if err != nil {
		return fmt.Errorf("claiming drop %s: %w", dropInstanceID, err)
	}
	if !claimed {
		return fmt.Errorf("drop %s was not claimed", dropInstanceID)
	}
	return nil
}

// ClaimAllDropsFromInventory claims all pending drops from the user's inventory.
func (c *Client) ClaimAllDropsFromInventory(ctx context.Context) error {
	inventoryData, err := c.GQL.GetDropsInventory(ctx)
	if err != nil {
		return fmt.Errorf("getting inventory: %w", err)
	}
	if inventoryData == nil {
		return nil
	}

	inProgress, err := decode.Property(inventoryData, "dropCampaignsInProgress", nullableArray)
	if err != nil {
		return fmt.Errorf("parsing inventory: %w", err)
	}

	for _, rawCampaign := range inProgress {
		drops, err := decode.Property(rawCampaign, "timeBasedDrops", decode.Array)
		if err != nil {
			continue
		}
		for _, rawDrop := range drops {
			self, err := decode.Property(rawDrop, "self", decode.Any)
			if err != nil || self == nil {
				continue
			}
			isClaimed, err := decode.Property(self, "isClaimed", decode.Bool)
			if err != nil || isClaimed {
				continue
			}
			instanceID, err := decode.Property(self, "dropInstanceID", nullableString)
			if err != nil || instanceID == "" {
				continue
			}
			name, _ := decode.Property(rawDrop, "name", decode.String)

			c.Log.Event(ctx, model.EventDropClaim, "Claiming drop from inventory",
				"drop", name)
			if _, err := c.GQL.ClaimDropRewards(ctx, instanceID); err != nil {
				c.Log.Warn("Failed to claim drop from inventory",
					"drop", name, "error", err)
			}

			sleepDuration := time.Duration(5+rand.IntN(5)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleepDuration):
			}
		}
	}

	return nil
}

var nullableString = decode.Union("string or null",
	decode.String,
	func(v any) (string, error) {
		if _, err := decode.Null(v); err != nil {
			return "", err
		}
		return "", nil
	},
)

// nullableArray treats a null list as empty.
var nullableArray = decode.Union("array or null",
	decode.Array,
	func(v any) ([]any, error) {
		if _, err := decode.Null(v); err != nil {
			return nil, err
		}
		return nil, nil
	},
)

// dropProgress is the per-drop slice of inventory state.
type dropProgress struct {
	hasPreconditionsMet   bool
	currentMinutesWatched int
	dropInstanceID        string
	isClaimed             bool
}

// decodeInventoryProgress flattens the inventory response into
// campaign id -> drop id -> progress.
func decodeInventoryProgress(v any) (map[string]map[string]dropProgress, error) {
	campaignsRaw, err := decode.Property(v, "dropCampaignsInProgress", nullableArray)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]dropProgress, len(campaignsRaw))
	for _, rawCampaign := range campaignsRaw {
		campaignID, err := decode.Property(rawCampaign, "id", decode.String)
		if err != nil {
			continue
		}
		drops, err := decode.Property(rawCampaign, "timeBasedDrops", decode.Array)
		if err != nil {
			continue
		}

		byDrop := make(map[string]dropProgress, len(drops))
		for _, rawDrop := range drops {
			dropID, err := decode.Property(rawDrop, "id", decode.String)
			if err != nil {
				continue
			}
			self, err := decode.Property(rawDrop, "self", decode.Any)
			if err != nil || self == nil {
				continue
			}

			var dp dropProgress
			if dp.hasPreconditionsMet, err = decode.Property(self, "hasPreconditionsMet", decode.Bool); err != nil {
				continue
			}
			if dp.currentMinutesWatched, err = decode.Property(self, "currentMinutesWatched", decode.Int); err != nil {
				continue
			}
			if dp.dropInstanceID, err = decode.Property(self, "dropInstanceID", nullableString); err != nil {
				continue
			}
			if dp.isClaimed, err = decode.Property(self, "isClaimed", decode.Bool); err != nil {
				continue
			}
			byDrop[dropID] = dp
		}
		out[campaignID] = byDrop
	}
	return out, nil
}

func decodeCampaign(v any) (*model.Campaign, error) {
	id, err := decode.Property(v, "id", decode.String)
	if err != nil {
		return nil, err
	}
	name, err := decode.Property(v, "name", decode.String)
	if err != nil {
		return nil, err
	}
	status, err := decode.Property(v, "status", decode.String)
	if err != nil {
		return nil, err
	}
	startAt, err := decode.Property(v, "startAt", decode.Time)
	if err != nil {
		return nil, err
	}
	endAt, err := decode.Property(v, "endAt", decode.Time)
	if err != nil {
		return nil, err
	}

	var gameInfo *model.GameInfo
	if game, err := decode.Property(v, "game", decode.Any); err == nil && game != nil {
		gameInfo = &model.GameInfo{}
		gameInfo.ID, _ = decode.Property(game, "id", decode.String)
		gameInfo.Name, _ = decode.Property(game, "name", decode.String)
		gameInfo.DisplayName, _ = decode.Property(game, "displayName", decode.String)
		gameInfo.Slug, _ = decode.Property(game, "slug", nullableString)
	}

	var channels []string
	if allow, err := decode.Property(v, "allow", decode.Any); err == nil && allow != nil {
		if chs, err := decode.Property(allow, "channels", nullableArray); err == nil {
			for _, ch := range chs {
				if channelID, err := decode.Property(ch, "id", decode.String); err == nil {
					channels = append(channels, channelID)
				}
			}
		}
	}

	campaign := model.NewCampaign(id, name, status, gameInfo, startAt, endAt, channels)

	drops, err := decode.Property(v, "timeBasedDrops", nullableArray)
	if err != nil {
		return nil, err
	}
	for _, rawDrop := range drops {
		drop, err := decodeCampaignDrop(rawDrop)
		if err != nil {
			continue
		}
		campaign.Drops = append(campaign.Drops, drop)
	}

	return campaign, nil
}

func decodeCampaignDrop(v any) (*model.Drop, error) {
	id, err := decode.Property(v, "id", decode.String)
	if err != nil {
		return nil, err
	}
	name, err := decode.Property(v, "name", decode.String)
	if err != nil {
		return nil, err
	}
	minutes, err := decode.Property(v, "requiredMinutesWatched", decode.Int)
	if err != nil {
		return nil, err
	}
	startAt, err := decode.Property(v, "startAt", decode.Time)
	if err != nil {
		return nil, err
	}
	endAt, err := decode.Property(v, "endAt", decode.Time)
	if err != nil {
		return nil, err
	}

	var benefits []string
	if edges, err := decode.Property(v, "benefitEdges", nullableArray); err == nil {
		for _, edge := range edges {
			benefit, err := decode.Property(edge, "benefit", decode.Any)
			if err != nil {
				continue
			}
			if benefitName, err := decode.Property(benefit, "name", decode.String); err == nil {
				benefits = append(benefits, benefitName)
			}
		}
	}

	return model.NewDrop(id, name, benefits, minutes, startAt, endAt), nil
}

func campaignMatchesStreamer(campaign *model.Campaign, streamer *model.Streamer) bool {
	if campaign.Game != nil && streamer.Stream.Game != nil {
		if campaign.Game.Name != streamer.Stream.Game.Name {
			return false
		}
	}

	for _, id := range streamer.Stream.CampaignIDs {
		if id == campaign.ID {
			return true
		}
	}

	return false
}
