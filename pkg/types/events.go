package types

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds broadcast to connected observers. These are the only channel
// through which clients learn of state changes without polling.
const (
	EventAuctionCreated = "auction_created"
	EventBidAccepted    = "bid_accepted"
	EventSettled        = "auction_settled"
	EventConfigChanged  = "config_changed"
	EventFeedUpdated    = "feed_updated"
)

// Event is the outbound notification envelope.
type Event struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// NewEvent stamps a payload with a unique id so observers can deduplicate
// redeliveries.
func NewEvent(kind string, data interface{}) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: kind,
		Time: time.Now().UTC(),
		Data: data,
	}
}

type AuctionCreatedEvent struct {
	Auction       string `json:"auction"`
	Index         int    `json:"index"`
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
}

type BidAcceptedEvent struct {
	Auction string `json:"auction"`
	Bidder  string `json:"bidder"`
	Amount  string `json:"amount"`
}

// SettledEvent carries the zero address as Winner when the auction closed
// without bids.
type SettledEvent struct {
	Auction string `json:"auction"`
	Winner  string `json:"winner"`
	Amount  string `json:"amount"`
}

type ConfigChangedEvent struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type FeedUpdatedEvent struct {
	Asset string `json:"asset"`
	Feed  string `json:"feed"`
}
