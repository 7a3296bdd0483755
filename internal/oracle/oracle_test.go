package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

var (
	oracleOwner = common.BytesToAddress([]byte{0x01})
	nativeAsset = common.Address{}
	tokenAsset  = common.BytesToAddress([]byte{0xA0})
)

func eth(v string) *big.Int {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d.Shift(18).BigInt()
}

func TestConvertNativeAmount(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	// 0.04 ETH at $3000 is exactly $120
	usd, err := o.Convert(nativeAsset, eth("0.04"))
	require.NoError(t, err)
	assert.Equal(t, eth("120"), usd)
}

func TestConvertTokenWithSixDecimals(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("USDC / USD", 8, decimal.NewFromInt(1), time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, tokenAsset, feed, 6))

	// 250 USDC with 6 decimals
	usd, err := o.Convert(tokenAsset, big.NewInt(250_000_000))
	require.NoError(t, err)
	assert.Equal(t, eth("250"), usd)
}

func TestConvertFractionalPrice(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.RequireFromString("2999.99"), time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	usd, err := o.Convert(nativeAsset, eth("1"))
	require.NoError(t, err)
	assert.Equal(t, eth("2999.99"), usd)
}

func TestConvertNoFeedConfigured(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)

	_, err := o.Convert(nativeAsset, eth("1"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoFeedConfigured, errors.Code(err))
}

func TestConvertStalePrice(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	// Jump the oracle's clock two hours past the feed's last update
	o.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := o.Convert(nativeAsset, eth("1"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrStalePrice, errors.Code(err))
}

func TestConvertFreshAgainAfterFeedUpdate(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now().Add(-2*time.Hour))
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	_, err := o.Convert(nativeAsset, eth("1"))
	assert.Equal(t, errors.ErrStalePrice, errors.Code(err))

	feed.SetPrice(decimal.NewFromInt(3100), time.Now())
	usd, err := o.Convert(nativeAsset, eth("1"))
	require.NoError(t, err)
	assert.Equal(t, eth("3100"), usd)
}

func TestConvertNonPositivePrice(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.Zero, time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	_, err := o.Convert(nativeAsset, eth("1"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidPrice, errors.Code(err))
}

func TestSetFeedOwnerOnly(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now())

	intruder := common.BytesToAddress([]byte{0x99})
	err := o.SetFeed(intruder, nativeAsset, feed, 18)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotOwner, errors.Code(err))

	_, err = o.Convert(nativeAsset, eth("1"))
	assert.Equal(t, errors.ErrNoFeedConfigured, errors.Code(err))
}

func TestSetFeedReplacesExisting(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset,
		NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now()), 18))
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset,
		NewStaticFeed("ETH / USD v2", 8, decimal.NewFromInt(2000), time.Now()), 18))

	usd, err := o.Convert(nativeAsset, eth("1"))
	require.NoError(t, err)
	assert.Equal(t, eth("2000"), usd)
}

func TestConvertMutatesNothing(t *testing.T) {
	o := New(oracleOwner, time.Hour, nil)
	feed := NewStaticFeed("ETH / USD", 8, decimal.NewFromInt(3000), time.Now())
	require.NoError(t, o.SetFeed(oracleOwner, nativeAsset, feed, 18))

	first, err := o.Convert(nativeAsset, eth("0.5"))
	require.NoError(t, err)
	second, err := o.Convert(nativeAsset, eth("0.5"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
