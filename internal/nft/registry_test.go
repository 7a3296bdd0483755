package nft

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

var (
	contract = common.BytesToAddress([]byte{0xE7})
	minter   = common.BytesToAddress([]byte{0x01})
	alice    = common.BytesToAddress([]byte{0x0A})
	bob      = common.BytesToAddress([]byte{0x0B})
	carol    = common.BytesToAddress([]byte{0x0C})
)

func newCollection(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Deploy(contract, "Auctionables", "AUCT", minter))
	return r
}

func TestDeployDuplicate(t *testing.T) {
	r := newCollection(t)
	err := r.Deploy(contract, "Again", "AGN", minter)
	assert.Error(t, err)
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	r := newCollection(t)

	first, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)
	second, err := r.Mint(contract, minter, bob, "ipfs://2")
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(1), first)
	assert.Equal(t, big.NewInt(2), second)

	owner, err := r.OwnerOf(contract, first)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	uri, err := r.TokenURI(contract, second)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://2", uri)
}

func TestMintRequiresMinter(t *testing.T) {
	r := newCollection(t)
	_, err := r.Mint(contract, alice, alice, "ipfs://1")
	assert.Equal(t, errors.ErrNotOwner, errors.Code(err))
}

func TestOwnerOfUnknownToken(t *testing.T) {
	r := newCollection(t)
	_, err := r.OwnerOf(contract, big.NewInt(42))
	assert.Equal(t, errors.ErrTokenNotFound, errors.Code(err))

	_, err = r.OwnerOf(common.BytesToAddress([]byte{0x99}), big.NewInt(1))
	assert.Equal(t, errors.ErrTokenNotFound, errors.Code(err))
}

func TestTransferByOwner(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	require.NoError(t, r.TransferFrom(contract, alice, alice, bob, id))
	owner, err := r.OwnerOf(contract, id)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestTransferRequiresAuthorization(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	err = r.TransferFrom(contract, bob, alice, bob, id)
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))

	owner, err := r.OwnerOf(contract, id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestTransferFromWrongOwner(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	err = r.TransferFrom(contract, alice, bob, carol, id)
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))
}

func TestApprovedSpenderCanTransferOnce(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	require.NoError(t, r.Approve(contract, alice, bob, id))
	require.NoError(t, r.TransferFrom(contract, bob, alice, carol, id))

	owner, err := r.OwnerOf(contract, id)
	require.NoError(t, err)
	assert.Equal(t, carol, owner)

	// the per-token approval was cleared on transfer
	err = r.TransferFrom(contract, bob, carol, alice, id)
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))
}

func TestApproveRequiresOwnerOrOperator(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	err = r.Approve(contract, bob, bob, id)
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))

	require.NoError(t, r.SetApprovalForAll(contract, alice, bob, true))
	require.NoError(t, r.Approve(contract, bob, carol, id))
}

func TestOperatorCanTransfer(t *testing.T) {
	r := newCollection(t)
	id, err := r.Mint(contract, minter, alice, "ipfs://1")
	require.NoError(t, err)

	require.NoError(t, r.SetApprovalForAll(contract, alice, bob, true))
	require.NoError(t, r.TransferFrom(contract, bob, alice, carol, id))

	// revoking the operator stops further transfers of alice's tokens
	other, err := r.Mint(contract, minter, alice, "ipfs://2")
	require.NoError(t, err)
	require.NoError(t, r.SetApprovalForAll(contract, alice, bob, false))
	err = r.TransferFrom(contract, bob, alice, carol, other)
	assert.Equal(t, errors.ErrNotApproved, errors.Code(err))
}
