package gql

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/decode"
	"github.com/veikko/twitch-harvester/internal/model"
)

// ChannelPointsContext holds the parsed response from the ChannelPointsContext GQL query.
type ChannelPointsContext struct {
	Balance           int
	ActiveMultipliers []model.PointsMultiplier
	AvailableClaimID  string
	CommunityGoals    []*model.CommunityGoal
}

// PlaybackAccessToken holds the signature and token needed for HLS manifest access.
type PlaybackAccessToken struct {
	Signature string
	Value     string
}

// TopStream holds information about a stream returned by the DirectoryPage_Game query.
type TopStream struct {
	Username     string
	ChannelID    string
	DisplayName  string
	ViewersCount int
	GameID       string
	GameName     string
	GameSlug     string
}

// transactionID returns a fresh spend transaction id in the dashless form
// the points mutations expect.
func transactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func decodeMultiplier(v any) (model.PointsMultiplier, error) {
	factor, err := decode.Property(v, "factor", decode.Float)
	if err != nil {
		return model.PointsMultiplier{}, err
	}
	return model.PointsMultiplier{Factor: factor}, nil
}

// GetChannelPointsContext fetches channel points balance, multipliers, available claims,
// and community goals for a channel.
func (c *Client) GetChannelPointsContext(ctx context.Context, channelLogin string) (*ChannelPointsContext, error) {
	vars := map[string]any{"channelLogin": channelLogin}
	data, err := c.PostGQL(ctx, constants.GQLChannelPointsContext, vars)
	if err != nil {
		return nil, fmt.Errorf("ChannelPointsContext for %s: %w", channelLogin, err)
	}

	community, err := decode.Property(data, "community", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}
	if community == nil {
		return nil, fmt.Errorf("channel %s not found (community is null)", channelLogin)
	}
	channel, err := decode.Property(community, "channel", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}
	self, err := decode.Property(channel, "self", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}
	points, err := decode.Property(self, "communityPoints", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}

	result := &ChannelPointsContext{}
	if result.Balance, err = decode.Property(points, "balance", decode.Int); err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}

	multipliers, err := decode.OptionalProperty(points, "activeMultipliers", decode.List(decodeMultiplier))
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}
	result.ActiveMultipliers = multipliers.Value()

	claim, err := decode.OptionalProperty(points, "availableClaim", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
	}
	if claim.Defined() && claim.Value() != nil {
		if result.AvailableClaimID, err = decode.Property(claim.Value(), "id", decode.String); err != nil {
			return nil, fmt.Errorf("parsing ChannelPointsContext response: %w", err)
		}
	}

	if settings, err := decode.OptionalProperty(channel, "communityPointsSettings", decode.Any); err == nil && settings.Defined() {
		goals, err := decode.OptionalProperty(settings.Value(), "goals", decode.List(model.DecodeCommunityGoalGQL))
		if err != nil {
			return nil, fmt.Errorf("parsing ChannelPointsContext goals: %w", err)
		}
		result.CommunityGoals = goals.Value()
	}

	return result, nil
}

// ClaimCommunityPoints claims a channel points bonus.
func (c *Client) ClaimCommunityPoints(ctx context.Context, claimID, channelID string) error {
	vars := map[string]any{
		"input": map[string]any{
			"channelID": channelID,
			"claimID":   claimID,
		},
	}
	if _, err := c.PostGQL(ctx, constants.GQLClaimCommunityPoints, vars); err != nil {
		return fmt.Errorf("ClaimCommunityPoints: %w", err)
	}
	return nil
}

// StreamInfoResponse holds parsed stream info from the GQL API.
type StreamInfoResponse struct {
	BroadcastID  string
	Title        string
	Game         *model.GameInfo
	Tags         []model.Tag
	ViewersCount int
}

// streamInfoCacheTTL bounds how often GetStreamInfo hits the API per login.
// Viewcount messages already refresh online streamers, so a short window is
// enough to absorb bursts of redundant lookups.
const streamInfoCacheTTL = 30 * time.Second

type streamInfoCache struct {
	mu      sync.Mutex
	entries map[string]streamInfoCacheEntry
}

type streamInfoCacheEntry struct {
	info      *StreamInfoResponse
	live      bool
	fetchedAt time.Time
}

func newStreamInfoCache() *streamInfoCache {
	return &streamInfoCache{entries: make(map[string]streamInfoCacheEntry)}
}

func (sc *streamInfoCache) get(login string) (*StreamInfoResponse, bool, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	entry, ok := sc.entries[login]
	if !ok || time.Since(entry.fetchedAt) > streamInfoCacheTTL {
		return nil, false, false
	}
	return entry.info, entry.live, true
}

func (sc *streamInfoCache) set(login string, info *StreamInfoResponse, live bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for k, e := range sc.entries {
		if time.Since(e.fetchedAt) > streamInfoCacheTTL {
			delete(sc.entries, k)
		}
	}
	sc.entries[login] = streamInfoCacheEntry{info: info, live: live, fetchedAt: time.Now()}
}

func decodeGameInfo(v any) (*model.GameInfo, error) {
	var game model.GameInfo
	var err error
	if game.ID, err = decode.Property(v, "id", decode.String); err != nil {
		return nil, err
	}
	if name, err := decode.OptionalProperty(v, "name", decode.String); err != nil {
		return nil, err
	} else {
		game.Name = name.Value()
	}
	if displayName, err := decode.OptionalProperty(v, "displayName", decode.String); err != nil {
		return nil, err
	} else {
		game.DisplayName = displayName.Value()
	}
	if slug, err := decode.OptionalProperty(v, "slug", decode.String); err != nil {
		return nil, err
	} else {
		game.Slug = slug.Value()
	}
	return &game, nil
}

func decodeTag(v any) (model.Tag, error) {
	var tag model.Tag
	var err error
	if tag.ID, err = decode.Property(v, "id", decode.String); err != nil {
		return tag, err
	}
	if tag.LocalizedName, err = decode.Property(v, "localizedName", decode.String); err != nil {
		return tag, err
	}
	return tag, nil
}

// GetStreamInfo fetches stream information for a channel. The boolean
// distinguishes an offline streamer from a failed call: (nil, false, nil)
// means the channel exists but is not live.
func (c *Client) GetStreamInfo(ctx context.Context, channelLogin string) (*StreamInfoResponse, bool, error) {
	if info, live, ok := c.infoCache.get(channelLogin); ok {
		return info, live, nil
	}

	vars := map[string]any{"channel": channelLogin}
	data, err := c.PostGQL(ctx, constants.GQLVideoPlayerStreamInfoOverlayChannel, vars)
	if err != nil {
		return nil, false, fmt.Errorf("GetStreamInfo for %s: %w", channelLogin, err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}
	if user == nil {
		c.infoCache.set(channelLogin, nil, false)
		return nil, false, nil
	}
	stream, err := decode.Property(user, "stream", decode.Any)
	if err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}
	if stream == nil {
		c.infoCache.set(channelLogin, nil, false)
		return nil, false, nil
	}

	result := &StreamInfoResponse{}
	if result.BroadcastID, err = decode.Property(stream, "id", decode.String); err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}
	if viewers, err := decode.OptionalProperty(stream, "viewersCount", decode.Int); err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	} else {
		result.ViewersCount = viewers.Value()
	}
	if tags, err := decode.OptionalProperty(stream, "tags", decode.List(decodeTag)); err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo tags: %w", err)
	} else {
		result.Tags = tags.Value()
	}

	settings, err := decode.Property(user, "broadcastSettings", decode.Any)
	if err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}
	if result.Title, err = decode.Property(settings, "title", decode.String); err != nil {
		return nil, false, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}
	if game, err := decode.Property(settings, "game", decode.Any); err == nil && game != nil {
		if result.Game, err = decodeGameInfo(game); err != nil {
			return nil, false, fmt.Errorf("parsing GetStreamInfo game: %w", err)
		}
	}

	c.infoCache.set(channelLogin, result, true)
	return result, true, nil
}

// GetUserID fetches the Twitch user ID for a given login name. A login that
// resolves to no user returns ErrStreamerDoesNotExist.
func (c *Client) GetUserID(ctx context.Context, login string) (string, error) {
	vars := map[string]any{"login": login}
	data, err := c.PostGQL(ctx, constants.GQLGetIDFromLogin, vars)
	if err != nil {
		return "", fmt.Errorf("GetUserID for %s: %w", login, err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return "", fmt.Errorf("parsing GetUserID response: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("%s: %w", login, ErrStreamerDoesNotExist)
	}
	id, err := decode.Property(user, "id", decode.String)
	if err != nil {
		return "", fmt.Errorf("parsing GetUserID response: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("%s: %w", login, ErrStreamerDoesNotExist)
	}
	return id, nil
}

// GetFollowedStreamers fetches the list of followed channel logins for a user.
// It paginates through all results.
func (c *Client) GetFollowedStreamers(ctx context.Context, limit int, order string) ([]string, error) {
	var follows []string
	cursor := ""
	hasNext := true

	for hasNext {
		vars := map[string]any{
			"limit":  limit,
			"order":  order,
			"cursor": cursor,
		}

		data, err := c.PostGQL(ctx, constants.GQLChannelFollows, vars)
		if err != nil {
			return nil, fmt.Errorf("GetFollowedStreamers: %w", err)
		}

		user, err := decode.Property(data, "user", decode.Any)
		if err != nil {
			return follows, fmt.Errorf("parsing GetFollowedStreamers response: %w", err)
		}
		if user == nil {
			return follows, nil
		}
		followsData, err := decode.Property(user, "follows", decode.Any)
		if err != nil {
			return follows, fmt.Errorf("parsing GetFollowedStreamers response: %w", err)
		}
		edges, err := decode.Property(followsData, "edges", decode.Array)
		if err != nil {
			return follows, fmt.Errorf("parsing GetFollowedStreamers response: %w", err)
		}

		for _, edge := range edges {
			node, err := decode.Property(edge, "node", decode.Any)
			if err != nil {
				return follows, fmt.Errorf("parsing GetFollowedStreamers edge: %w", err)
			}
			login, err := decode.Property(node, "login", decode.String)
			if err != nil {
				return follows, fmt.Errorf("parsing GetFollowedStreamers edge: %w", err)
			}
			follows = append(follows, login)
			if edgeCursor, err := decode.OptionalProperty(edge, "cursor", decode.String); err == nil {
				cursor = edgeCursor.Or(cursor)
			}
		}

		pageInfo, err := decode.Property(followsData, "pageInfo", decode.Any)
		if err != nil {
			return follows, fmt.Errorf("parsing GetFollowedStreamers response: %w", err)
		}
		if hasNext, err = decode.Property(pageInfo, "hasNextPage", decode.Bool); err != nil {
			return follows, fmt.Errorf("parsing GetFollowedStreamers response: %w", err)
		}
	}

	return follows, nil
}

// MakePrediction places a prediction wager on an event outcome.
func (c *Client) MakePrediction(ctx context.Context, eventID, outcomeID string, points int) error {
	vars := map[string]any{
		"input": map[string]any{
			"eventID":       eventID,
			"outcomeID":     outcomeID,
			"points":        points,
			"transactionID": transactionID(),
		},
	}

	data, err := c.PostGQL(ctx, constants.GQLMakePrediction, vars)
	if err != nil {
		return fmt.Errorf("MakePrediction: %w", err)
	}

	payload, err := decode.Property(data, "makePrediction", decode.Any)
	if err != nil || payload == nil {
		return nil
	}
	mutationErr, err := decode.OptionalProperty(payload, "error", decode.Any)
	if err != nil || !mutationErr.Defined() || mutationErr.Value() == nil {
		return nil
	}
	code, err := decode.Property(mutationErr.Value(), "code", decode.String)
	if err != nil {
		return fmt.Errorf("parsing MakePrediction error: %w", err)
	}
	return fmt.Errorf("prediction error: %s", code)
}

// GetAvailableCampaigns fetches available drop campaign ids for a channel.
func (c *Client) GetAvailableCampaigns(ctx context.Context, channelID string) ([]string, error) {
	vars := map[string]any{"channelID": channelID}
	data, err := c.PostGQL(ctx, constants.GQLDropsHighlightServiceAvailableDrops, vars)
	if err != nil {
		return nil, fmt.Errorf("GetAvailableCampaigns: %w", err)
	}

	channel, err := decode.Property(data, "channel", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetAvailableCampaigns response: %w", err)
	}
	if channel == nil {
		return nil, nil
	}
	campaigns, err := decode.OptionalProperty(channel, "viewerDropCampaigns", decode.Any)
	if err != nil || !campaigns.Defined() || campaigns.Value() == nil {
		return nil, nil
	}

	ids, err := decode.List(func(v any) (string, error) {
		return decode.Property(v, "id", decode.String)
	})(campaigns.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing GetAvailableCampaigns response: %w", err)
	}
	return ids, nil
}

// GetDropsDashboard fetches drop campaigns from the viewer dashboard.
// If status is non-empty, only campaigns with that status are returned.
func (c *Client) GetDropsDashboard(ctx context.Context, status string) ([]any, error) {
	data, err := c.PostGQL(ctx, constants.GQLViewerDropsDashboard, nil)
	if err != nil {
		return nil, fmt.Errorf("GetDropsDashboard: %w", err)
	}

	currentUser, err := decode.Property(data, "currentUser", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropsDashboard response: %w", err)
	}
	if currentUser == nil {
		return nil, nil
	}
	campaigns, err := decode.Property(currentUser, "dropCampaigns", decode.Array)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropsDashboard response: %w", err)
	}

	if status == "" {
		return campaigns, nil
	}
	var filtered []any
	for _, campaign := range campaigns {
		if s, err := decode.Property(campaign, "status", decode.String); err == nil && s == status {
			filtered = append(filtered, campaign)
		}
	}
	return filtered, nil
}

// GetDropsInventory fetches the user's drop inventory.
func (c *Client) GetDropsInventory(ctx context.Context) (any, error) {
	data, err := c.PostGQL(ctx, constants.GQLInventory, nil)
	if err != nil {
		return nil, fmt.Errorf("GetDropsInventory: %w", err)
	}

	currentUser, err := decode.Property(data, "currentUser", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropsInventory response: %w", err)
	}
	if currentUser == nil {
		return nil, nil
	}
	inventory, err := decode.Property(currentUser, "inventory", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropsInventory response: %w", err)
	}
	return inventory, nil
}

// GetDropCampaignDetails fetches detailed information about a drop campaign.
func (c *Client) GetDropCampaignDetails(ctx context.Context, dropID, channelLogin string) (any, error) {
	vars := map[string]any{
		"dropID":       dropID,
		"channelLogin": channelLogin,
	}
	data, err := c.PostGQL(ctx, constants.GQLDropCampaignDetails, vars)
	if err != nil {
		return nil, fmt.Errorf("GetDropCampaignDetails: %w", err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropCampaignDetails response: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	campaign, err := decode.Property(user, "dropCampaign", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetDropCampaignDetails response: %w", err)
	}
	return campaign, nil
}

// ClaimDropRewards claims a drop reward by its instance ID. The boolean
// reports whether the drop ended up claimed, including the case where it
// had already been claimed before.
func (c *Client) ClaimDropRewards(ctx context.Context, dropInstanceID string) (bool, error) {
	vars := map[string]any{
		"input": map[string]any{
			"dropInstanceID": dropInstanceID,
		},
	}

	data, err := c.PostGQL(ctx, constants.GQLDropsPageClaimDropRewards, vars)
	if err != nil {
		return false, fmt.Errorf("ClaimDropRewards: %w", err)
	}

	payload, err := decode.Property(data, "claimDropRewards", decode.Any)
	if err != nil || payload == nil {
		return false, nil
	}
	status, err := decode.Property(payload, "status", decode.String)
	if err != nil {
		return false, fmt.Errorf("parsing ClaimDropRewards response: %w", err)
	}

	switch status {
	case "ELIGIBLE_FOR_ALL", "DROP_INSTANCE_ALREADY_CLAIMED":
		return true, nil
	default:
		return false, nil
	}
}

// JoinRaid joins a raid by its ID.
func (c *Client) JoinRaid(ctx context.Context, raidID string) error {
	vars := map[string]any{
		"input": map[string]any{
			"raidID": raidID,
		},
	}

	if _, err := c.PostGQL(ctx, constants.GQLJoinRaid, vars); err != nil {
		return fmt.Errorf("JoinRaid: %w", err)
	}
	return nil
}

// GetPlaybackAccessToken fetches the playback access token for a live stream.
func (c *Client) GetPlaybackAccessToken(ctx context.Context, login string) (*PlaybackAccessToken, error) {
	vars := map[string]any{
		"login":      login,
		"isLive":     true,
		"isVod":      false,
		"vodID":      "",
		"playerType": "site",
	}

	data, err := c.PostGQL(ctx, constants.GQLPlaybackAccessToken, vars)
	if err != nil {
		return nil, fmt.Errorf("GetPlaybackAccessToken for %s: %w", login, err)
	}

	token, err := decode.Property(data, "streamPlaybackAccessToken", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetPlaybackAccessToken response: %w", err)
	}
	if token == nil {
		return nil, fmt.Errorf("no playback access token for %s (stream may be offline)", login)
	}

	result := &PlaybackAccessToken{}
	if result.Signature, err = decode.Property(token, "signature", decode.String); err != nil {
		return nil, fmt.Errorf("parsing GetPlaybackAccessToken response: %w", err)
	}
	if result.Value, err = decode.Property(token, "value", decode.String); err != nil {
		return nil, fmt.Errorf("parsing GetPlaybackAccessToken response: %w", err)
	}
	return result, nil
}

// ClaimCommunityMoment claims a community moment by its ID.
func (c *Client) ClaimCommunityMoment(ctx context.Context, momentID string) error {
	vars := map[string]any{
		"input": map[string]any{
			"momentID": momentID,
		},
	}

	if _, err := c.PostGQL(ctx, constants.GQLCommunityMomentCalloutClaim, vars); err != nil {
		return fmt.Errorf("ClaimCommunityMoment: %w", err)
	}
	return nil
}

func decodeTopStream(v any) (TopStream, error) {
	var stream TopStream
	node, err := decode.Property(v, "node", decode.Any)
	if err != nil {
		return stream, err
	}
	broadcaster, err := decode.Property(node, "broadcaster", decode.Any)
	if err != nil {
		return stream, err
	}
	if broadcaster == nil {
		return stream, nil
	}
	if stream.ChannelID, err = decode.Property(broadcaster, "id", decode.String); err != nil {
		return stream, err
	}
	if stream.Username, err = decode.Property(broadcaster, "login", decode.String); err != nil {
		return stream, err
	}
	if displayName, err := decode.OptionalProperty(broadcaster, "displayName", decode.String); err == nil {
		stream.DisplayName = displayName.Value()
	}
	if viewers, err := decode.OptionalProperty(node, "viewersCount", decode.Int); err == nil {
		stream.ViewersCount = viewers.Value()
	}
	if game, err := decode.OptionalProperty(node, "game", decode.Any); err == nil && game.Defined() && game.Value() != nil {
		g := game.Value()
		if stream.GameID, err = decode.Property(g, "id", decode.String); err != nil {
			return stream, err
		}
		if name, err := decode.OptionalProperty(g, "displayName", decode.String); err == nil {
			stream.GameName = name.Value()
		}
		if slug, err := decode.OptionalProperty(g, "slug", decode.String); err == nil {
			stream.GameSlug = slug.Value()
		}
	}
	return stream, nil
}

// GetTopStreamsByCategory fetches top streams for a game category.
func (c *Client) GetTopStreamsByCategory(ctx context.Context, categorySlug string, limit int, dropsOnly bool) ([]TopStream, error) {
	vars := map[string]any{
		"slug":  categorySlug,
		"first": limit,
	}
	if dropsOnly {
		vars["options"] = map[string]any{
			"tags": []string{constants.DropID},
		}
	}

	data, err := c.PostGQL(ctx, constants.GQLDirectoryPageGame, vars)
	if err != nil {
		return nil, fmt.Errorf("GetTopStreamsByCategory for %s: %w", categorySlug, err)
	}

	game, err := decode.Property(data, "game", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetTopStreamsByCategory response: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("category %s not found", categorySlug)
	}
	streamsData, err := decode.Property(game, "streams", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetTopStreamsByCategory response: %w", err)
	}
	edges, err := decode.Property(streamsData, "edges", decode.List(decodeTopStream))
	if err != nil {
		return nil, fmt.Errorf("parsing GetTopStreamsByCategory response: %w", err)
	}

	streams := make([]TopStream, 0, len(edges))
	for _, stream := range edges {
		if stream.ChannelID == "" {
			if stream.Username != "" {
				if id, err := c.GetUserID(ctx, stream.Username); err == nil {
					stream.ChannelID = id
				}
			}
			if stream.ChannelID == "" {
				continue
			}
		}
		streams = append(streams, stream)
	}

	return streams, nil
}

// ContributeToCommunityGoal contributes channel points to a community goal.
func (c *Client) ContributeToCommunityGoal(ctx context.Context, goalID, channelID string, points int) error {
	vars := map[string]any{
		"input": map[string]any{
			"amount":        points,
			"channelID":     channelID,
			"goalID":        goalID,
			"transactionID": transactionID(),
		},
	}

	data, err := c.PostGQL(ctx, constants.GQLContributeCommunityPointsCommunityGoal, vars)
	if err != nil {
		return fmt.Errorf("ContributeToCommunityGoal: %w", err)
	}

	payload, err := decode.Property(data, "contributeCommunityPointsCommunityGoal", decode.Any)
	if err != nil || payload == nil {
		return nil
	}
	mutationErr, err := decode.OptionalProperty(payload, "error", decode.Any)
	if err != nil || !mutationErr.Defined() || mutationErr.Value() == nil {
		return nil
	}
	code, err := decode.Property(mutationErr.Value(), "code", decode.String)
	if err != nil {
		return fmt.Errorf("parsing ContributeToCommunityGoal error: %w", err)
	}
	return fmt.Errorf("community goal contribution error: %s", code)
}

// GoalContribution holds user contribution data for a community goal.
type GoalContribution struct {
	GoalID                          string
	UserPointsContributedThisStream int
}

func decodeGoalContribution(v any) (GoalContribution, error) {
	var contribution GoalContribution
	goal, err := decode.Property(v, "goal", decode.Any)
	if err != nil {
		return contribution, err
	}
	if contribution.GoalID, err = decode.Property(goal, "id", decode.String); err != nil {
		return contribution, err
	}
	if contribution.UserPointsContributedThisStream, err = decode.Property(v, "userPointsContributedThisStream", decode.Int); err != nil {
		return contribution, err
	}
	return contribution, nil
}

// GetUserPointsContribution fetches the user's points contribution data for a channel.
func (c *Client) GetUserPointsContribution(ctx context.Context, channelLogin string) ([]GoalContribution, error) {
	vars := map[string]any{"channelLogin": channelLogin}
	data, err := c.PostGQL(ctx, constants.GQLUserPointsContribution, vars)
	if err != nil {
		return nil, fmt.Errorf("GetUserPointsContribution: %w", err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetUserPointsContribution response: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	channel, err := decode.Property(user, "channel", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetUserPointsContribution response: %w", err)
	}
	self, err := decode.Property(channel, "self", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetUserPointsContribution response: %w", err)
	}
	points, err := decode.Property(self, "communityPoints", decode.Any)
	if err != nil {
		return nil, fmt.Errorf("parsing GetUserPointsContribution response: %w", err)
	}
	contributions, err := decode.Property(points, "goalContributions", decode.List(decodeGoalContribution))
	if err != nil {
		return nil, fmt.Errorf("parsing GetUserPointsContribution response: %w", err)
	}
	return contributions, nil
}

// GetBroadcastID fetches the broadcast ID for a channel.
// Returns empty string if the streamer is offline.
func (c *Client) GetBroadcastID(ctx context.Context, channelID string) (string, error) {
	vars := map[string]any{"id": channelID}
	data, err := c.PostGQL(ctx, constants.GQLWithIsStreamLiveQuery, vars)
	if err != nil {
		return "", fmt.Errorf("GetBroadcastID: %w", err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return "", fmt.Errorf("parsing GetBroadcastID response: %w", err)
	}
	if user == nil {
		return "", nil
	}
	stream, err := decode.Property(user, "stream", decode.Any)
	if err != nil {
		return "", fmt.Errorf("parsing GetBroadcastID response: %w", err)
	}
	if stream == nil {
		return "", nil
	}
	id, err := decode.Property(stream, "id", decode.String)
	if err != nil {
		return "", fmt.Errorf("parsing GetBroadcastID response: %w", err)
	}
	return id, nil
}

// CheckViewerIsMod checks if the authenticated user is a moderator for a channel.
func (c *Client) CheckViewerIsMod(ctx context.Context, channelLogin string) (bool, error) {
	vars := map[string]any{"channelLogin": channelLogin}
	data, err := c.PostGQL(ctx, constants.GQLModViewChannelQuery, vars)
	if err != nil {
		return false, fmt.Errorf("CheckViewerIsMod: %w", err)
	}

	user, err := decode.Property(data, "user", decode.Any)
	if err != nil {
		return false, fmt.Errorf("parsing CheckViewerIsMod response: %w", err)
	}
	if user == nil {
		return false, nil
	}
	self, err := decode.Property(user, "self", decode.Any)
	if err != nil {
		return false, fmt.Errorf("parsing CheckViewerIsMod response: %w", err)
	}
	isMod, err := decode.Property(self, "isModerator", decode.Bool)
	if err != nil {
		return false, fmt.Errorf("parsing CheckViewerIsMod response: %w", err)
	}
	return isMod, nil
}

// GetDropCampaignDetailsBatch fetches details for multiple drop campaigns,
// riding several detail queries per HTTP request.
func (c *Client) GetDropCampaignDetailsBatch(ctx context.Context, campaignIDs []string, userID string) ([]any, error) {
	var results []any

	for i := 0; i < len(campaignIDs); i += constants.CampaignDetailsBatchSize {
		end := min(i+constants.CampaignDetailsBatchSize, len(campaignIDs))
		chunk := campaignIDs[i:end]

		ops := make([]constants.GQLOperation, len(chunk))
		varsList := make([]map[string]any, len(chunk))
		for j, id := range chunk {
			ops[j] = constants.GQLDropCampaignDetails
			varsList[j] = map[string]any{
				"dropID":       id,
				"channelLogin": userID,
			}
		}

		batchResults, err := c.PostGQLBatch(ctx, ops, varsList)
		if err != nil {
			c.log.Warn("Failed to fetch campaign details batch", "error", err)
			continue
		}

		for _, data := range batchResults {
			if data == nil {
				continue
			}
			user, err := decode.Property(data, "user", decode.Any)
			if err != nil || user == nil {
				continue
			}
			campaign, err := decode.Property(user, "dropCampaign", decode.Any)
			if err != nil || campaign == nil {
				continue
			}
			results = append(results, campaign)
		}

		if end < len(campaignIDs) {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	return results, nil
}

// GetGameSlug fetches the slug for a game by its ID using a raw GQL query.
// Returns empty string if the game is not found.
func (c *Client) GetGameSlug(ctx context.Context, gameID string) (string, error) {
	vars := map[string]any{"id": gameID}
	data, err := c.PostGQL(ctx, constants.GQLGameByID, vars)
	if err != nil {
		return "", fmt.Errorf("GetGameSlug for game ID %s: %w", gameID, err)
	}

	game, err := decode.Property(data, "game", decode.Any)
	if err != nil {
		return "", fmt.Errorf("parsing GetGameSlug response: %w", err)
	}
	if game == nil {
		return "", nil
	}
	slug, err := decode.Property(game, "slug", decode.String)
	if err != nil {
		return "", fmt.Errorf("parsing GetGameSlug response: %w", err)
	}
	return slug, nil
}
