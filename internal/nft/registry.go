// Package nft implements the asset custody collaborator: ERC-721 style
// collections with owner, per-token approval, and operator semantics. The
// auction engine only consumes OwnerOf, Approve and TransferFrom.
package nft

import (
	"math/big"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

// Collection is a single non-fungible token contract.
type Collection struct {
	name      string
	symbol    string
	minter    common.Address
	nextID    *big.Int
	owners    map[string]common.Address                  // tokenID → owner
	approved  map[string]common.Address                  // tokenID → approved spender
	operators map[common.Address]map[common.Address]bool // owner → operator → approved
	tokenURIs map[string]string
}

type Registry struct {
	mu          sync.Mutex
	collections map[common.Address]*Collection
}

func NewRegistry() *Registry {
	return &Registry{collections: make(map[common.Address]*Collection)}
}

// Deploy registers a new collection at the given contract address.
func (r *Registry) Deploy(contract common.Address, name, symbol string, minter common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collections[contract]; exists {
		return errors.New(errors.ErrInternalServer, "collection already deployed at address")
	}
	r.collections[contract] = &Collection{
		name:      name,
		symbol:    symbol,
		minter:    minter,
		nextID:    big.NewInt(1),
		owners:    make(map[string]common.Address),
		approved:  make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		tokenURIs: make(map[string]string),
	}
	log.Info("Deployed NFT collection", "contract", contract.Hex(), "name", name, "symbol", symbol)
	return nil
}

func (r *Registry) collection(contract common.Address) (*Collection, error) {
	c, ok := r.collections[contract]
	if !ok {
		return nil, errors.New(errors.ErrTokenNotFound, "no collection at address")
	}
	return c, nil
}

// Mint issues the next token id of the collection to `to`. Only the
// collection's minter may mint.
func (r *Registry) Mint(contract, caller, to common.Address, uri string) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return nil, err
	}
	if caller != c.minter {
		return nil, errors.New(errors.ErrNotOwner, "only the collection minter can mint")
	}
	id := new(big.Int).Set(c.nextID)
	c.nextID = new(big.Int).Add(c.nextID, big.NewInt(1))
	c.owners[id.String()] = to
	c.tokenURIs[id.String()] = uri
	return id, nil
}

func (r *Registry) OwnerOf(contract common.Address, tokenID *big.Int) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := c.owners[tokenID.String()]
	if !ok {
		return common.Address{}, errors.New(errors.ErrTokenNotFound, "token does not exist")
	}
	return owner, nil
}

func (r *Registry) TokenURI(contract common.Address, tokenID *big.Int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return "", err
	}
	uri, ok := c.tokenURIs[tokenID.String()]
	if !ok {
		return "", errors.New(errors.ErrTokenNotFound, "token does not exist")
	}
	return uri, nil
}

// Approve grants spender the right to transfer a single token. The caller
// must be the token owner or one of the owner's operators.
func (r *Registry) Approve(contract, caller, spender common.Address, tokenID *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return err
	}
	owner, ok := c.owners[tokenID.String()]
	if !ok {
		return errors.New(errors.ErrTokenNotFound, "token does not exist")
	}
	if caller != owner && !c.operators[owner][caller] {
		return errors.New(errors.ErrNotApproved, "caller is not owner nor operator")
	}
	c.approved[tokenID.String()] = spender
	return nil
}

// SetApprovalForAll grants or revokes operator rights over every token the
// caller owns in the collection.
func (r *Registry) SetApprovalForAll(contract, caller, operator common.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return err
	}
	if c.operators[caller] == nil {
		c.operators[caller] = make(map[common.Address]bool)
	}
	c.operators[caller][operator] = approved
	return nil
}

// TransferFrom moves a token from `from` to `to`. The caller must be the
// owner, the token's approved spender, or an operator of the owner. The
// per-token approval is cleared on transfer.
func (r *Registry) TransferFrom(contract, caller, from, to common.Address, tokenID *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.collection(contract)
	if err != nil {
		return err
	}
	key := tokenID.String()
	owner, ok := c.owners[key]
	if !ok {
		return errors.New(errors.ErrTokenNotFound, "token does not exist")
	}
	if owner != from {
		return errors.New(errors.ErrNotApproved, "transfer from address is not the owner")
	}
	if caller != from && c.approved[key] != caller && !c.operators[from][caller] {
		return errors.New(errors.ErrNotApproved, "caller is not owner, approved, nor operator")
	}
	c.owners[key] = to
	delete(c.approved, key)
	return nil
}
