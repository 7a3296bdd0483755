package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

var (
	alice  = common.BytesToAddress([]byte{0x0A})
	bob    = common.BytesToAddress([]byte{0x0B})
	holder = common.BytesToAddress([]byte{0xAC}) // stands in for an auction instance
	tkn    = common.BytesToAddress([]byte{0x20})
)

func TestFundAndTransfer(t *testing.T) {
	l := New()
	l.Fund(alice, big.NewInt(100))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(40)))
	assert.Equal(t, big.NewInt(60), l.BalanceOf(alice))
	assert.Equal(t, big.NewInt(40), l.BalanceOf(bob))

	err := l.Transfer(alice, bob, big.NewInt(61))
	assert.Equal(t, errors.ErrInsufficientFunds, errors.Code(err))
	assert.Equal(t, big.NewInt(60), l.BalanceOf(alice), "failed transfer moves nothing")

	err = l.Transfer(alice, bob, big.NewInt(-1))
	assert.Equal(t, errors.ErrInvalidAmount, errors.Code(err))
}

func TestEscrowNative(t *testing.T) {
	l := New()
	l.Fund(alice, big.NewInt(100))

	require.NoError(t, l.Escrow(NativeAsset, alice, holder, big.NewInt(70)))
	assert.Equal(t, big.NewInt(30), l.BalanceOf(alice))
	assert.Equal(t, big.NewInt(70), l.BalanceOf(holder))

	err := l.Escrow(NativeAsset, alice, holder, big.NewInt(31))
	assert.Equal(t, errors.ErrInsufficientFunds, errors.Code(err))
}

func TestEscrowTokenConsumesAllowance(t *testing.T) {
	l := New()
	usdc := NewToken("USD Coin", "USDC")
	l.RegisterToken(tkn, usdc)
	usdc.Mint(alice, big.NewInt(100))

	err := l.Escrow(tkn, alice, holder, big.NewInt(50))
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err), "no allowance granted yet")

	usdc.Approve(alice, holder, big.NewInt(50))
	require.NoError(t, l.Escrow(tkn, alice, holder, big.NewInt(50)))
	assert.Equal(t, big.NewInt(50), usdc.BalanceOf(holder))
	assert.Equal(t, big.NewInt(0), usdc.Allowance(alice, holder))

	err = l.Escrow(tkn, alice, holder, big.NewInt(1))
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err), "allowance spent")
}

func TestEscrowUnknownToken(t *testing.T) {
	l := New()
	err := l.Escrow(common.BytesToAddress([]byte{0x99}), alice, holder, big.NewInt(1))
	assert.Equal(t, errors.ErrTokenNotFound, errors.Code(err))
}

func TestCreditAndWithdrawNative(t *testing.T) {
	l := New()
	l.Fund(holder, big.NewInt(100))

	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(60)))
	assert.Equal(t, big.NewInt(40), l.BalanceOf(holder), "credited funds leave the holder immediately")
	assert.Equal(t, big.NewInt(60), l.Pending(alice, NativeAsset))
	assert.Equal(t, big.NewInt(0), l.BalanceOf(alice), "nothing push-paid")

	got, err := l.Withdraw(alice, NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), got)
	assert.Equal(t, big.NewInt(60), l.BalanceOf(alice))
	assert.Equal(t, big.NewInt(0), l.Pending(alice, NativeAsset))
}

func TestCreditAccumulates(t *testing.T) {
	l := New()
	l.Fund(holder, big.NewInt(100))

	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(10)))
	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(25)))
	assert.Equal(t, big.NewInt(35), l.Pending(alice, NativeAsset))
}

func TestCreditZeroIsNoop(t *testing.T) {
	l := New()
	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(0)))
	assert.Equal(t, big.NewInt(0), l.Pending(alice, NativeAsset))
}

func TestWithdrawNothing(t *testing.T) {
	l := New()
	_, err := l.Withdraw(alice, NativeAsset)
	assert.Equal(t, errors.ErrNothingToWithdraw, errors.Code(err))
}

func TestWithdrawTwice(t *testing.T) {
	l := New()
	l.Fund(holder, big.NewInt(100))
	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(60)))

	_, err := l.Withdraw(alice, NativeAsset)
	require.NoError(t, err)
	_, err = l.Withdraw(alice, NativeAsset)
	assert.Equal(t, errors.ErrNothingToWithdraw, errors.Code(err))
}

func TestCreditAndWithdrawToken(t *testing.T) {
	l := New()
	usdc := NewToken("USD Coin", "USDC")
	l.RegisterToken(tkn, usdc)
	usdc.Mint(holder, big.NewInt(100))

	require.NoError(t, l.Credit(alice, tkn, holder, big.NewInt(80)))
	assert.Equal(t, big.NewInt(20), usdc.BalanceOf(holder))
	assert.Equal(t, big.NewInt(80), l.Pending(alice, tkn))

	got, err := l.Withdraw(alice, tkn)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(80), got)
	assert.Equal(t, big.NewInt(80), usdc.BalanceOf(alice))
}

func TestCreditsTrackedPerAsset(t *testing.T) {
	l := New()
	usdc := NewToken("USD Coin", "USDC")
	l.RegisterToken(tkn, usdc)
	l.Fund(holder, big.NewInt(50))
	usdc.Mint(holder, big.NewInt(50))

	require.NoError(t, l.Credit(alice, NativeAsset, holder, big.NewInt(30)))
	require.NoError(t, l.Credit(alice, tkn, holder, big.NewInt(40)))

	assert.Equal(t, big.NewInt(30), l.Pending(alice, NativeAsset))
	assert.Equal(t, big.NewInt(40), l.Pending(alice, tkn))
}

func TestTokenAt(t *testing.T) {
	l := New()
	usdc := NewToken("USD Coin", "USDC")
	l.RegisterToken(tkn, usdc)

	got, err := l.TokenAt(tkn)
	require.NoError(t, err)
	assert.Same(t, usdc, got)
	assert.Equal(t, "USDC", got.Symbol())

	_, err = l.TokenAt(common.BytesToAddress([]byte{0x99}))
	assert.Equal(t, errors.ErrTokenNotFound, errors.Code(err))
}

func TestTokenTransferFromPartialAllowance(t *testing.T) {
	usdc := NewToken("USD Coin", "USDC")
	usdc.Mint(alice, big.NewInt(100))
	usdc.Approve(alice, holder, big.NewInt(60))

	require.NoError(t, usdc.TransferFrom(holder, alice, bob, big.NewInt(40)))
	assert.Equal(t, big.NewInt(20), usdc.Allowance(alice, holder))

	err := usdc.TransferFrom(holder, alice, bob, big.NewInt(30))
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))
	assert.Equal(t, big.NewInt(60), usdc.BalanceOf(alice), "failed pull moves nothing")
}
