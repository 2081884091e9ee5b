package model

// Listing is a single market sell order carried by a listings update.
type Listing struct {
	ListingID    string `json:"listing_id" bson:"listing_id,omitempty"`
	PricePerUnit int32  `json:"price_per_unit" bson:"price_per_unit" validate:"gte=0"`
	Quantity     int32  `json:"quantity" bson:"quantity" validate:"gte=0"`
	HQ           bool   `json:"hq" bson:"hq"`
	RetainerName string `json:"retainer_name,omitempty" bson:"retainer_name,omitempty"`
	RetainerCity int32  `json:"retainer_city,omitempty" bson:"retainer_city,omitempty"`
	SellerID     string `json:"seller_id,omitempty" bson:"seller_id,omitempty"`
}

// Total returns the full cost of buying every unit of the listing.
func (l Listing) Total() int64 {
	return int64(l.PricePerUnit) * int64(l.Quantity)
}

// MarketUpdateEvent represents one decoded listings update for a world/item pair.
// Listings are kept in market order, which is not guaranteed to be sorted by price.
type MarketUpdateEvent struct {
	WorldID  int32     `json:"world_id" bson:"world_id" validate:"gte=0"`
	ItemID   int32     `json:"item_id" bson:"item_id" validate:"gte=0"`
	Listings []Listing `json:"listings" bson:"listings" validate:"dive"`
}
