package oracle

import (
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Feed reports the latest USD exchange rate of one asset. Prices are
// fixed-point integers scaled by 10^Decimals, the shape Chainlink
// aggregators report.
type Feed interface {
	// LatestRoundData returns the most recent price and when it was set.
	LatestRoundData() (price *big.Int, updatedAt time.Time, err error)
	// Decimals is the fixed-point precision of reported prices.
	Decimals() uint8
	// Description names the pair, e.g. "ETH / USD".
	Description() string
}

// StaticFeed is an in-process feed seeded from configuration. Operators set
// prices as decimal strings; the feed scales them to its precision.
type StaticFeed struct {
	mu          sync.Mutex
	description string
	decimals    uint8
	price       *big.Int
	updatedAt   time.Time
}

func NewStaticFeed(description string, decimals uint8, price decimal.Decimal, updatedAt time.Time) *StaticFeed {
	return &StaticFeed{
		description: description,
		decimals:    decimals,
		price:       price.Shift(int32(decimals)).BigInt(),
		updatedAt:   updatedAt,
	}
}

func (f *StaticFeed) LatestRoundData() (*big.Int, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.price), f.updatedAt, nil
}

func (f *StaticFeed) Decimals() uint8 {
	return f.decimals
}

func (f *StaticFeed) Description() string {
	return f.description
}

// SetPrice replaces the reported price and refreshes the update timestamp.
func (f *StaticFeed) SetPrice(price decimal.Decimal, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price.Shift(int32(f.decimals)).BigInt()
	f.updatedAt = updatedAt
}
