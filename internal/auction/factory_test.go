package auction

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxytt/nft-auction-marketplace/internal/ledger"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

func TestNewFactoryRejectsBadFeePercent(t *testing.T) {
	for _, percent := range []int{-1, 101} {
		_, err := NewFactory(factoryAddr, Config{FeePercent: percent})
		assert.Equal(t, errors.ErrInvalidFeePercent, errors.Code(err))
	}
}

func TestCreateAuctionRejectsShortDuration(t *testing.T) {
	env := newTestEnv(t)
	tokenID, err := env.nfts.Mint(nftContract, admin, seller, "ipfs://token")
	require.NoError(t, err)
	require.NoError(t, env.nfts.Approve(nftContract, seller, factoryAddr, tokenID))

	_, err = env.factory.CreateAuction(seller, nftContract, tokenID, ledger.NativeAsset,
		30*time.Second, wei("100"))
	assert.Equal(t, errors.ErrDurationTooShort, errors.Code(err))
	assert.Equal(t, 0, env.factory.AuctionCount())
}

func TestCreateAuctionRejectsBadReserve(t *testing.T) {
	env := newTestEnv(t)
	tokenID, err := env.nfts.Mint(nftContract, admin, seller, "ipfs://token")
	require.NoError(t, err)
	require.NoError(t, env.nfts.Approve(nftContract, seller, factoryAddr, tokenID))

	for _, reserve := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		_, err = env.factory.CreateAuction(seller, nftContract, tokenID, ledger.NativeAsset,
			time.Hour, reserve)
		assert.Equal(t, errors.ErrInvalidReserve, errors.Code(err))
	}
	assert.Equal(t, 0, env.factory.AuctionCount())
}

func TestCreateAuctionWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	tokenID, err := env.nfts.Mint(nftContract, admin, seller, "ipfs://token")
	require.NoError(t, err)

	// no Approve call, the custody pull must fail and register nothing
	_, err = env.factory.CreateAuction(seller, nftContract, tokenID, ledger.NativeAsset,
		time.Hour, wei("100"))
	assert.Equal(t, errors.ErrCustodyFailed, errors.Code(err))
	assert.Equal(t, 0, env.factory.AuctionCount())

	owner, err := env.nfts.OwnerOf(nftContract, tokenID)
	require.NoError(t, err)
	assert.Equal(t, seller, owner, "asset stays with the seller")
}

func TestCreateAuctionViaOperatorApproval(t *testing.T) {
	env := newTestEnv(t)
	tokenID, err := env.nfts.Mint(nftContract, admin, seller, "ipfs://token")
	require.NoError(t, err)
	require.NoError(t, env.nfts.SetApprovalForAll(nftContract, seller, factoryAddr, true))

	a, err := env.factory.CreateAuction(seller, nftContract, tokenID, ledger.NativeAsset,
		time.Hour, wei("100"))
	require.NoError(t, err)

	owner, err := env.nfts.OwnerOf(nftContract, tokenID)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), owner)
}

func TestRegistryLookups(t *testing.T) {
	env := newTestEnv(t)
	first := env.newAuction(t)
	second := env.newAuction(t)

	assert.Equal(t, 2, env.factory.AuctionCount())
	assert.NotEqual(t, first.Address(), second.Address())

	got, err := env.factory.AuctionAt(0)
	require.NoError(t, err)
	assert.Same(t, first, got)
	got, err = env.factory.AuctionAt(1)
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = env.factory.AuctionAt(2)
	assert.Equal(t, errors.ErrIndexOutOfRange, errors.Code(err))
	_, err = env.factory.AuctionAt(-1)
	assert.Equal(t, errors.ErrIndexOutOfRange, errors.Code(err))

	got, err = env.factory.AuctionByAddress(second.Address())
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = env.factory.AuctionByAddress(common.BytesToAddress([]byte{0xBA, 0xD0}))
	assert.Equal(t, errors.ErrAuctionNotFound, errors.Code(err))

	all := env.factory.Auctions()
	require.Len(t, all, 2)
	assert.Same(t, first, all[0])
	assert.Same(t, second, all[1])
}

func TestDeriveAddressIsStable(t *testing.T) {
	a := deriveAddress(factoryAddr, 0)
	b := deriveAddress(factoryAddr, 0)
	c := deriveAddress(factoryAddr, 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, common.Address{}, a)
}

func TestMutatorsAreOwnerOnly(t *testing.T) {
	env := newTestEnv(t)

	err := env.factory.SetFeePercent(bidder1, 5)
	assert.Equal(t, errors.ErrNotOwner, errors.Code(err))
	err = env.factory.SetFeeCollector(bidder1, bidder1)
	assert.Equal(t, errors.ErrNotOwner, errors.Code(err))
	err = env.factory.SetOracle(bidder1, env.oracle)
	assert.Equal(t, errors.ErrNotOwner, errors.Code(err))

	err = env.factory.SetFeePercent(admin, 101)
	assert.Equal(t, errors.ErrInvalidFeePercent, errors.Code(err))

	require.NoError(t, env.factory.SetFeePercent(admin, 5))
	require.NoError(t, env.factory.SetFeeCollector(admin, bidder2))

	changed := env.sink.byType(types.EventConfigChanged)
	require.Len(t, changed, 2)
}

func TestFeeChangeDoesNotReachLiveAuctions(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAuction(t)

	require.NoError(t, env.factory.SetFeePercent(admin, 50))
	require.NoError(t, env.factory.SetFeeCollector(admin, bidder2))

	require.NoError(t, a.PlaceBid(bidder1, wei("0.05"), wei("0.05")))
	env.clock.Advance(25 * time.Hour)
	require.NoError(t, a.Settle())

	// the live auction keeps its 2% fee and original collector
	assert.Equal(t, wei("0.001"), env.funds.Pending(collector, ledger.NativeAsset))
	assert.Equal(t, "0", env.funds.Pending(bidder2, ledger.NativeAsset).String())

	// an auction created after the change uses the new snapshot
	b := env.newAuction(t)
	require.NoError(t, b.PlaceBid(bidder1, wei("0.06"), wei("0.06")))
	env.clock.Advance(25 * time.Hour)
	require.NoError(t, b.Settle())
	assert.Equal(t, wei("0.03"), env.funds.Pending(bidder2, ledger.NativeAsset))
}

func TestCreatedEventCarriesIndexAndSeller(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAuction(t)

	created := env.sink.byType(types.EventAuctionCreated)
	require.Len(t, created, 1)
	payload, ok := created[0].Data.(types.AuctionCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, a.Address().Hex(), payload.Auction)
	assert.Equal(t, 0, payload.Index)
	assert.Equal(t, seller.Hex(), payload.Seller)
}
