package types

import (
	"time"
)

type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"` // wallet address bound to the session
	Role    string `json:"role"`
}

// AuctionDetails is the read-only snapshot of a single auction instance,
// served to the presentation layer and mirrored into the database.
type AuctionDetails struct {
	Address         string    `json:"address"`
	AssetContract   string    `json:"assetContract"`
	AssetID         string    `json:"assetId"`
	Seller          string    `json:"seller"`
	PaymentAsset    string    `json:"paymentAsset"` // zero address means native currency
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	ReservePriceUsd string    `json:"reservePriceUsd"` // 18-decimal fixed point
	HighestBid      string    `json:"highestBid"`
	HighestBidder   string    `json:"highestBidder"`
	Ended           bool      `json:"ended"`
}

type Bid struct {
	ID             string    `json:"id"`
	AuctionAddress string    `json:"auctionAddress"`
	Bidder         string    `json:"bidder"`
	Amount         string    `json:"amount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
