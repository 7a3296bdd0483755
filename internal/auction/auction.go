// Package auction implements the settlement engine core: single-instance
// auction state machines and the factory that deploys and tracks them.
//
// Every operation runs as one serialized, all-or-nothing unit. No operation
// depends on an untrusted party's cooperation to make progress: refunds and
// payouts are credited as withdrawable balances instead of push-paid.
package auction

import (
	"math/big"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zxytt/nft-auction-marketplace/internal/ledger"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

// Converter turns an asset amount into its 18-decimal USD value.
type Converter interface {
	Convert(asset common.Address, amount *big.Int) (*big.Int, error)
}

// Funds is the slice of the ledger the engine needs: escrow pulls and
// pull-payment credits.
type Funds interface {
	Escrow(asset, from, holder common.Address, amount *big.Int) error
	Credit(owner, asset, holder common.Address, amount *big.Int) error
}

// Custody is the slice of the asset registry the engine needs.
type Custody interface {
	TransferFrom(contract, caller, from, to common.Address, tokenID *big.Int) error
}

// EventSink receives engine notifications for fan-out to observers.
type EventSink interface {
	Emit(types.Event)
}

// Auction is one escrowed-asset auction. It is created holding the asset and
// stays Active until Settle flips it to Ended exactly once.
type Auction struct {
	mu sync.Mutex

	addr          common.Address
	assetContract common.Address
	assetID       *big.Int
	seller        common.Address
	paymentAsset  common.Address // ledger.NativeAsset means native currency
	startTime     time.Time
	endTime       time.Time
	reserveUsd    *big.Int

	highestBid    *big.Int
	highestBidder common.Address
	ended         bool

	// configuration snapshotted at creation; factory changes never reach
	// a live instance
	feePercent   int
	feeCollector common.Address

	oracle  Converter
	funds   Funds
	custody Custody
	events  EventSink
	now     func() time.Time
}

func (a *Auction) Address() common.Address { return a.addr }
func (a *Auction) Seller() common.Address  { return a.seller }
func (a *Auction) EndTime() time.Time      { return a.endTime }

func (a *Auction) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

// Details returns a read-only snapshot for the presentation layer.
func (a *Auction) Details() types.AuctionDetails {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.AuctionDetails{
		Address:         a.addr.Hex(),
		AssetContract:   a.assetContract.Hex(),
		AssetID:         a.assetID.String(),
		Seller:          a.seller.Hex(),
		PaymentAsset:    a.paymentAsset.Hex(),
		StartTime:       a.startTime,
		EndTime:         a.endTime,
		ReservePriceUsd: a.reserveUsd.String(),
		HighestBid:      a.highestBid.String(),
		HighestBidder:   a.highestBidder.Hex(),
		Ended:           a.ended,
	}
}

// PlaceBid escrows amount from bidder and records it as the highest bid.
// value is the native currency attached to the call; it must equal amount
// for native auctions and be zero for token auctions.
//
// All validation runs before any funds move, so a rejected bid leaves every
// balance untouched. The previous highest bidder is credited their refund
// before the new bid is recorded; the auction never holds more than one
// bidder's funds.
func (a *Auction) PlaceBid(bidder common.Address, amount, value *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return errors.New(errors.ErrAlreadyEnded, "auction already ended")
	}
	if !a.now().Before(a.endTime) {
		return errors.New(errors.ErrAuctionExpired, "auction expired")
	}
	if bidder == a.seller {
		return errors.New(errors.ErrSellerCannotBid, "seller cannot bid")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New(errors.ErrInvalidAmount, "bid amount must be positive")
	}
	if a.paymentAsset == ledger.NativeAsset {
		if value == nil || value.Cmp(amount) != 0 {
			return errors.New(errors.ErrValueMismatch, "attached value must equal bid amount")
		}
	} else if value != nil && value.Sign() != 0 {
		return errors.New(errors.ErrValueMismatch, "token auctions accept no attached value")
	}

	usd, err := a.oracle.Convert(a.paymentAsset, amount)
	if err != nil {
		return err
	}
	if usd.Cmp(a.reserveUsd) < 0 {
		return errors.New(errors.ErrBelowReserve, "below reserve price")
	}
	if amount.Cmp(a.highestBid) <= 0 {
		return errors.New(errors.ErrBidTooLow, "bid too low")
	}

	if err := a.funds.Escrow(a.paymentAsset, bidder, a.addr, amount); err != nil {
		return errors.WrapCode(errors.ErrEscrowFailed, err, "bid escrow failed")
	}

	if a.highestBidder != (common.Address{}) {
		if err := a.funds.Credit(a.highestBidder, a.paymentAsset, a.addr, a.highestBid); err != nil {
			// Both credit legs are engine-internal so this cannot happen
			// under a consistent ledger; undo the escrow and abort.
			_ = a.funds.Credit(bidder, a.paymentAsset, a.addr, amount)
			return errors.WrapCode(errors.ErrInternalServer, err, "refund credit failed")
		}
	}

	a.highestBid = new(big.Int).Set(amount)
	a.highestBidder = bidder

	log.Info("Bid accepted", "auction", a.addr.Hex(), "bidder", bidder.Hex(), "amount", amount.String())
	if a.events != nil {
		a.events.Emit(types.NewEvent(types.EventBidAccepted, types.BidAcceptedEvent{
			Auction: a.addr.Hex(),
			Bidder:  bidder.Hex(),
			Amount:  amount.String(),
		}))
	}
	return nil
}

// Settle concludes the auction. Callable by anyone once the end time has
// passed; exactly one call succeeds.
//
// The ended flag is committed before anything else so racing callers and
// retries observe AlreadyEnded instead of a double settlement. Proceeds are
// split fee-first with integer truncation, the seller receiving the
// remainder, and both legs are pull-payment credits.
func (a *Auction) Settle() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return errors.New(errors.ErrAlreadyEnded, "auction already ended")
	}
	if a.now().Before(a.endTime) {
		return errors.New(errors.ErrNotYetExpired, "auction not ended yet")
	}
	a.ended = true

	winner := a.highestBidder
	amount := new(big.Int).Set(a.highestBid)

	if amount.Sign() > 0 {
		if err := a.custody.TransferFrom(a.assetContract, a.addr, a.addr, winner, a.assetID); err != nil {
			// The auction owns the asset, so this only fires on an
			// inconsistent registry. The settlement stands regardless.
			log.Error("Asset transfer to winner failed", "auction", a.addr.Hex(), "error", err)
		}

		fee := new(big.Int).Mul(amount, big.NewInt(int64(a.feePercent)))
		fee.Div(fee, big.NewInt(100))
		net := new(big.Int).Sub(amount, fee)

		if err := a.funds.Credit(a.feeCollector, a.paymentAsset, a.addr, fee); err != nil {
			log.Error("Fee credit failed", "auction", a.addr.Hex(), "error", err)
		}
		if err := a.funds.Credit(a.seller, a.paymentAsset, a.addr, net); err != nil {
			log.Error("Seller credit failed", "auction", a.addr.Hex(), "error", err)
		}
		log.Info("Auction settled", "auction", a.addr.Hex(), "winner", winner.Hex(),
			"amount", amount.String(), "fee", fee.String())
	} else {
		winner = common.Address{}
		if err := a.custody.TransferFrom(a.assetContract, a.addr, a.addr, a.seller, a.assetID); err != nil {
			log.Error("Asset return to seller failed", "auction", a.addr.Hex(), "error", err)
		}
		log.Info("Auction settled without bids", "auction", a.addr.Hex(), "seller", a.seller.Hex())
	}

	if a.events != nil {
		a.events.Emit(types.NewEvent(types.EventSettled, types.SettledEvent{
			Auction: a.addr.Hex(),
			Winner:  winner.Hex(),
			Amount:  amount.String(),
		}))
	}
	return nil
}
