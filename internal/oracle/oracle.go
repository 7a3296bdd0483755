// Package oracle converts native or token amounts into their USD value for
// reserve price enforcement. It never trusts a price older than the
// configured staleness bound.
package oracle

import (
	"math/big"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

// UsdDecimals is the fixed-point precision of every USD amount the engine
// handles.
const UsdDecimals = 18

// DefaultStalenessBound rejects feed readings older than one hour.
const DefaultStalenessBound = time.Hour

// EventSink receives configuration-changed notifications.
type EventSink interface {
	Emit(types.Event)
}

type feedEntry struct {
	feed          Feed
	assetDecimals uint8
}

type Oracle struct {
	mu        sync.Mutex
	owner     common.Address
	staleness time.Duration
	feeds     map[common.Address]feedEntry
	events    EventSink
	now       func() time.Time
}

func New(owner common.Address, staleness time.Duration, events EventSink) *Oracle {
	if staleness <= 0 {
		staleness = DefaultStalenessBound
	}
	return &Oracle{
		owner:     owner,
		staleness: staleness,
		feeds:     make(map[common.Address]feedEntry),
		events:    events,
		now:       time.Now,
	}
}

// SetFeed installs or replaces the feed for an asset. assetDecimals is the
// asset's own fixed-point precision (18 for the native currency). Owner-only.
func (o *Oracle) SetFeed(caller, asset common.Address, feed Feed, assetDecimals uint8) error {
	o.mu.Lock()
	if caller != o.owner {
		o.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "only the oracle owner can set feeds")
	}
	o.feeds[asset] = feedEntry{feed: feed, assetDecimals: assetDecimals}
	o.mu.Unlock()

	log.Info("Price feed configured", "asset", asset.Hex(), "feed", feed.Description())
	if o.events != nil {
		o.events.Emit(types.NewEvent(types.EventFeedUpdated, types.FeedUpdatedEvent{
			Asset: asset.Hex(),
			Feed:  feed.Description(),
		}))
	}
	return nil
}

// Convert returns the USD value of amount of asset, normalized to 18
// decimals. It reads the feed but mutates nothing.
func (o *Oracle) Convert(asset common.Address, amount *big.Int) (*big.Int, error) {
	o.mu.Lock()
	entry, ok := o.feeds[asset]
	staleness := o.staleness
	now := o.now()
	o.mu.Unlock()

	if !ok {
		return nil, errors.New(errors.ErrNoFeedConfigured, "no price feed configured for asset")
	}

	price, updatedAt, err := entry.feed.LatestRoundData()
	if err != nil {
		return nil, errors.WrapCode(errors.ErrInvalidPrice, err, "feed read failed")
	}
	if price.Sign() <= 0 {
		return nil, errors.New(errors.ErrInvalidPrice, "feed reported a non-positive price")
	}
	if now.Sub(updatedAt) > staleness {
		return nil, errors.New(errors.ErrStalePrice, "feed price is older than the staleness bound")
	}

	// usd18 = amount * price * 10^18 / (10^assetDecimals * 10^feedDecimals)
	usd := new(big.Int).Mul(amount, price)
	usd.Mul(usd, pow10(UsdDecimals))
	usd.Div(usd, pow10(int(entry.assetDecimals)))
	usd.Div(usd, pow10(int(entry.feed.Decimals())))
	return usd, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
