package auction

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

// Config is the factory's mutable global configuration. Each auction
// snapshots what it needs at creation, so mutations only affect instances
// created afterward.
type Config struct {
	Owner        common.Address
	FeeCollector common.Address
	FeePercent   int
	MinDuration  time.Duration
	Oracle       Converter
	Funds        Funds
	Custody      Custody
	Events       EventSink
}

// Factory deploys auction instances and keeps an append-only registry of
// them for paginated discovery.
type Factory struct {
	mu sync.Mutex

	addr         common.Address
	owner        common.Address
	feeCollector common.Address
	feePercent   int
	minDuration  time.Duration
	oracle       Converter

	funds   Funds
	custody Custody
	events  EventSink
	now     func() time.Time

	registry  []*Auction
	byAddress map[common.Address]*Auction
}

func NewFactory(addr common.Address, cfg Config) (*Factory, error) {
	if cfg.FeePercent < 0 || cfg.FeePercent > 100 {
		return nil, errors.New(errors.ErrInvalidFeePercent, "fee percent must be between 0 and 100")
	}
	return &Factory{
		addr:         addr,
		owner:        cfg.Owner,
		feeCollector: cfg.FeeCollector,
		feePercent:   cfg.FeePercent,
		minDuration:  cfg.MinDuration,
		oracle:       cfg.Oracle,
		funds:        cfg.Funds,
		custody:      cfg.Custody,
		events:       cfg.Events,
		now:          time.Now,
		byAddress:    make(map[common.Address]*Auction),
	}, nil
}

func (f *Factory) Address() common.Address { return f.addr }
func (f *Factory) Owner() common.Address   { return f.owner }

// CreateAuction deploys a new auction owned by seller. The seller must have
// approved the factory to move the asset; custody is pulled into the new
// instance atomically with creation, so a failed pull leaves nothing
// registered.
func (f *Factory) CreateAuction(seller, assetContract common.Address, assetID *big.Int,
	paymentAsset common.Address, duration time.Duration, reservePriceUsd *big.Int) (*Auction, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if duration < f.minDuration {
		return nil, errors.New(errors.ErrDurationTooShort,
			fmt.Sprintf("duration must be at least %s", f.minDuration))
	}
	if reservePriceUsd == nil || reservePriceUsd.Sign() <= 0 {
		return nil, errors.New(errors.ErrInvalidReserve, "reserve price must be positive")
	}

	index := len(f.registry)
	instanceAddr := deriveAddress(f.addr, uint64(index))

	if err := f.custody.TransferFrom(assetContract, f.addr, seller, instanceAddr, assetID); err != nil {
		return nil, errors.WrapCode(errors.ErrCustodyFailed, err, "asset custody pull failed")
	}

	start := f.now()
	a := &Auction{
		addr:          instanceAddr,
		assetContract: assetContract,
		assetID:       new(big.Int).Set(assetID),
		seller:        seller,
		paymentAsset:  paymentAsset,
		startTime:     start,
		endTime:       start.Add(duration),
		reserveUsd:    new(big.Int).Set(reservePriceUsd),
		highestBid:    new(big.Int),
		feePercent:    f.feePercent,
		feeCollector:  f.feeCollector,
		oracle:        f.oracle,
		funds:         f.funds,
		custody:       f.custody,
		events:        f.events,
		now:           f.now,
	}

	f.registry = append(f.registry, a)
	f.byAddress[instanceAddr] = a

	log.Info("Auction created", "auction", instanceAddr.Hex(), "index", index,
		"seller", seller.Hex(), "asset", assetContract.Hex(), "assetId", assetID.String())
	if f.events != nil {
		f.events.Emit(types.NewEvent(types.EventAuctionCreated, types.AuctionCreatedEvent{
			Auction:       instanceAddr.Hex(),
			Index:         index,
			Seller:        seller.Hex(),
			AssetContract: assetContract.Hex(),
			AssetID:       assetID.String(),
		}))
	}
	return a, nil
}

// AuctionCount returns the number of auctions ever created.
func (f *Factory) AuctionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registry)
}

// AuctionAt returns the auction at a registry index.
func (f *Factory) AuctionAt(index int) (*Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.registry) {
		return nil, errors.New(errors.ErrIndexOutOfRange, "auction index out of range")
	}
	return f.registry[index], nil
}

// AuctionByAddress looks an auction up by its instance address.
func (f *Factory) AuctionByAddress(addr common.Address) (*Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byAddress[addr]
	if !ok {
		return nil, errors.New(errors.ErrAuctionNotFound, "no auction at address")
	}
	return a, nil
}

// Auctions returns a snapshot of the registry in creation order.
func (f *Factory) Auctions() []*Auction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Auction, len(f.registry))
	copy(out, f.registry)
	return out
}

// SetFeePercent changes the platform fee for auctions created afterward.
func (f *Factory) SetFeePercent(caller common.Address, percent int) error {
	f.mu.Lock()
	if caller != f.owner {
		f.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "only the factory owner can change the fee")
	}
	if percent < 0 || percent > 100 {
		f.mu.Unlock()
		return errors.New(errors.ErrInvalidFeePercent, "fee percent must be between 0 and 100")
	}
	f.feePercent = percent
	f.mu.Unlock()

	f.emitConfigChanged("feePercent", fmt.Sprintf("%d", percent))
	return nil
}

// SetFeeCollector changes the fee recipient for auctions created afterward.
func (f *Factory) SetFeeCollector(caller, collector common.Address) error {
	f.mu.Lock()
	if caller != f.owner {
		f.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "only the factory owner can change the fee collector")
	}
	f.feeCollector = collector
	f.mu.Unlock()

	f.emitConfigChanged("feeCollector", collector.Hex())
	return nil
}

// SetOracle swaps the price oracle for auctions created afterward.
func (f *Factory) SetOracle(caller common.Address, oracle Converter) error {
	f.mu.Lock()
	if caller != f.owner {
		f.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "only the factory owner can change the oracle")
	}
	f.oracle = oracle
	f.mu.Unlock()

	f.emitConfigChanged("oracle", "replaced")
	return nil
}

func (f *Factory) emitConfigChanged(name, value string) {
	log.Info("Factory configuration changed", "name", name, "value", value)
	if f.events != nil {
		f.events.Emit(types.NewEvent(types.EventConfigChanged, types.ConfigChangedEvent{
			Name:  name,
			Value: value,
		}))
	}
}

// deriveAddress gives every instance a stable address from the factory
// address and its registry index.
func deriveAddress(factory common.Address, index uint64) common.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	hash := crypto.Keccak256(factory.Bytes(), buf[:])
	return common.BytesToAddress(hash[12:])
}
