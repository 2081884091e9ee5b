package model

// WildcardItemID matches every item id of the alert's world.
const WildcardItemID int32 = -1

// UserAlert is one row of the users_alerts_next table.
type UserAlert struct {
	ID             int64  `json:"id" bson:"id"`
	Name           string `json:"name" bson:"name"`
	WorldID        int32  `json:"world_id" bson:"world_id"`
	ItemID         int32  `json:"item_id" bson:"item_id"`
	DiscordWebhook string `json:"discord_webhook,omitempty" bson:"discord_webhook,omitempty"` // empty means inert
	Trigger        string `json:"trigger" bson:"trigger"`
	TriggerVersion int32  `json:"trigger_version" bson:"trigger_version"`
}

// HasEndpoint reports whether the alert has somewhere to send notifications.
func (a *UserAlert) HasEndpoint() bool {
	return a.DiscordWebhook != ""
}

// IsWildcard reports whether the alert applies to every item of its world.
func (a *UserAlert) IsWildcard() bool {
	return a.ItemID == WildcardItemID
}

// MatchesItem reports whether the alert covers the given world/item pair.
func (a *UserAlert) MatchesItem(worldID, itemID int32) bool {
	return a.WorldID == worldID && (a.IsWildcard() || a.ItemID == itemID)
}
