package stream

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"universalis-alerts/internal/model"
)

var (
	// ErrMalformedMessage is wrapped by every decode failure.
	ErrMalformedMessage = errors.New("malformed stream message")

	// ErrMissingField indicates a required top-level field is absent or null.
	ErrMissingField = errors.New("missing required field")
)

var validate = validator.New()

// subscribeEvent is the control document sent right after connecting.
type subscribeEvent struct {
	Event   string `bson:"event"`
	Channel string `bson:"channel"`
}

// EncodeSubscribe builds the BSON subscribe document for a channel.
func EncodeSubscribe(channel string) ([]byte, error) {
	data, err := bson.Marshal(subscribeEvent{Event: "subscribe", Channel: channel})
	if err != nil {
		return nil, fmt.Errorf("failed to encode subscribe event: %w", err)
	}
	return data, nil
}

// DecodeEvent turns one stream message into a market update event.
// Every failure wraps ErrMalformedMessage and is safe to skip.
func DecodeEvent(data []byte) (model.MarketUpdateEvent, error) {
	var ev model.MarketUpdateEvent

	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if err := checkField(raw, "world_id", bsontype.Int32, bsontype.Int64); err != nil {
		return ev, err
	}
	if err := checkField(raw, "item_id", bsontype.Int32, bsontype.Int64); err != nil {
		return ev, err
	}
	if err := checkField(raw, "listings", bsontype.Array); err != nil {
		return ev, err
	}
	if err := checkListings(raw.Lookup("listings").Array()); err != nil {
		return ev, err
	}

	if err := bson.Unmarshal(data, &ev); err != nil {
		return model.MarketUpdateEvent{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(ev); err != nil {
		return model.MarketUpdateEvent{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if ev.Listings == nil {
		ev.Listings = []model.Listing{}
	}
	return ev, nil
}

// checkListings requires price_per_unit, quantity and hq on every listing so
// an absent value is never read as zero.
func checkListings(arr bson.Raw) error {
	values, err := arr.Values()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	for i, v := range values {
		doc, ok := v.DocumentOK()
		if !ok {
			return fmt.Errorf("%w: listings[%d] has type %s", ErrMalformedMessage, i, v.Type)
		}
		for _, f := range listingFields {
			if err := checkField(doc, f.key, f.types...); err != nil {
				return fmt.Errorf("listings[%d]: %w", i, err)
			}
		}
	}
	return nil
}

var listingFields = []struct {
	key   string
	types []bsontype.Type
}{
	{"price_per_unit", []bsontype.Type{bsontype.Int32, bsontype.Int64}},
	{"quantity", []bsontype.Type{bsontype.Int32, bsontype.Int64}},
	{"hq", []bsontype.Type{bsontype.Boolean}},
}

func checkField(raw bson.Raw, key string, allowed ...bsontype.Type) error {
	v, err := raw.LookupErr(key)
	if err != nil || v.Type == bsontype.Null || v.Type == bsontype.Undefined {
		return fmt.Errorf("%w: %w: %s", ErrMalformedMessage, ErrMissingField, key)
	}
	for _, t := range allowed {
		if v.Type == t {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has type %s", ErrMalformedMessage, key, v.Type)
}
