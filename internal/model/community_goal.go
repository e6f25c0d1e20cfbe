package model

import (
	"fmt"

	"github.com/veikko/twitch-harvester/internal/decode"
)

// CommunityGoal represents a channel community goal.
type CommunityGoal struct {
	GoalID string `json:"goal_id"`
	Title string `json:"title"`
	IsInStock bool `json:"is_in_stock"`
	PointsContributed int `json:"points_contributed"`
	AmountNeeded int `json:"amount_needed"`
	PerStreamUserMaxContribution int `json:"per_stream_user_maximum_contribution"`
	Status string `json:"status"`
}

// NewCommunityGoal creates a new CommunityGoal.
func NewCommunityGoal(goalID, title string, isInStock bool, pointsContributed, amountNeeded, perStreamMax int, status string) *CommunityGoal {
	return &CommunityGoal{
		GoalID:                       goalID,
		Title:                        title,
		IsInStock:                    isInStock,
		PointsContributed:            pointsContributed,
		AmountNeeded:                 amountNeeded,
		PerStreamUserMaxContribution: perStreamMax,
		Status:                       status,
	}
}

// DecodeCommunityGoalGQL decodes a goal from a ChannelPointsContext response.
func DecodeCommunityGoalGQL(v any) (*CommunityGoal, error) {
	var goal CommunityGoal
	var err error
	if goal.GoalID, err = decode.Property(v, "id", decode.String); err != nil {
		return nil, err
	}
	if goal.Title, err = decode.Property(v, "title", decode.String); err != nil {
		return nil, err
	}
	if goal.IsInStock, err = decode.Property(v, "isInStock", decode.Bool); err != nil {
		return nil, err
	}
	if goal.PointsContributed, err = decode.Property(v, "pointsContributed", decode.Int); err != nil {
		return nil, err
	}
	if goal.AmountNeeded, err = decode.Property(v, "amountNeeded", decode.Int); err != nil {
		return nil, err
	}
	if goal.PerStreamUserMaxContribution, err = decode.Property(v, "perStreamUserMaximumContribution", decode.Int); err != nil {
		return nil, err
	}
	if goal.Status, err = decode.Property(v, "status", decode.String); err != nil {
		return nil, err
	}
	return &goal, nil
}

// DecodeCommunityGoalEvent decodes a goal from a community-points-channel-v1
// payload. The event schema uses snake_case and renames two fields relative
// to the GQL one.
func DecodeCommunityGoalEvent(v any) (*CommunityGoal, error) {
	var goal CommunityGoal
	var err error
	if goal.GoalID, err = decode.Property(v, "id", decode.String); err != nil {
		return nil, err
	}
	if goal.Title, err = decode.Property(v, "title", decode.String); err != nil {
		return nil, err
	}
	if goal.IsInStock, err = decode.Property(v, "is_in_stock", decode.Bool); err != nil {
		return nil, err
	}
	if goal.PointsContributed, err = decode.Property(v, "points_contributed", decode.Int); err != nil {
		return nil, err
	}
	if goal.AmountNeeded, err = decode.Property(v, "goal_amount", decode.Int); err != nil {
		return nil, err
	}
	if goal.PerStreamUserMaxContribution, err = decode.Property(v, "per_stream_maximum_user_contribution", decode.Int); err != nil {
		return nil, err
	}
	if goal.Status, err = decode.Property(v, "status", decode.String); err != nil {
		return nil, err
	}
	return &goal, nil
}

// AmountLeft returns the remaining points needed to complete the goal.
func (cg *CommunityGoal) AmountLeft() int {
	return cg.AmountNeeded - cg.PointsContributed
}

// Equal returns true if two community goals have the same ID.
func (cg *CommunityGoal) Equal(other *CommunityGoal) bool {
	if other == nil {
		return false
	}
	return cg.GoalID == other.GoalID
}

// String returns a human-readable representation of the community goal.
func (cg *CommunityGoal) String() string {
	return fmt.Sprintf("CommunityGoal(goal_id=%s, title=%s, is_in_stock=%t, points_contributed=%d, amount_needed=%d, status=%s)",
		cg.GoalID, cg.Title, cg.IsInStock, cg.PointsContributed, cg.AmountNeeded, cg.Status)
}
