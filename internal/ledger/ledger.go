// Package ledger models the serialized settlement layer the auction engine
// runs on: native currency balances, registered fungible tokens, and the
// pull-payment credits the engine uses instead of push-paying untrusted
// recipients.
package ledger

import (
	"math/big"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

// NativeAsset is the sentinel asset identifier for the native currency.
var NativeAsset = common.Address{}

// vault holds funds that have been credited to a recipient but not yet
// withdrawn. It is engine-owned, so moving funds into it can never be
// blocked by the recipient.
var vault = common.BytesToAddress([]byte("escrow-vault"))

type Ledger struct {
	mu      sync.Mutex
	native  map[common.Address]*big.Int
	tokens  map[common.Address]*Token
	credits map[common.Address]map[common.Address]*big.Int // owner → asset → amount
}

func New() *Ledger {
	return &Ledger{
		native:  make(map[common.Address]*big.Int),
		tokens:  make(map[common.Address]*Token),
		credits: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Fund credits freshly issued native currency to addr.
func (l *Ledger) Fund(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native[addr] = new(big.Int).Add(l.balanceLocked(addr), amount)
}

// BalanceOf returns addr's native currency balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(addr)
}

func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if b, ok := l.native[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// RegisterToken makes a fungible token addressable as a payment asset.
func (l *Ledger) RegisterToken(addr common.Address, t *Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[addr] = t
	log.Debug("Registered payment token", "address", addr.Hex(), "symbol", t.Symbol())
}

func (l *Ledger) TokenAt(addr common.Address) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[addr]
	if !ok {
		return nil, errors.New(errors.ErrTokenNotFound, "no token registered at address")
	}
	return t, nil
}

// Transfer moves native currency between accounts.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

func (l *Ledger) transferLocked(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.New(errors.ErrInvalidAmount, "negative transfer amount")
	}
	balance := l.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return errors.New(errors.ErrInsufficientFunds, "insufficient native balance")
	}
	l.native[from] = balance.Sub(balance, amount)
	l.native[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	return nil
}

// Escrow pulls amount of asset from `from` into `holder`. For the native
// asset this debits `from` directly (the value attached to the call); for a
// token it runs TransferFrom with the holder as spender, so `from` must have
// approved the holder beforehand. Failure leaves every balance unchanged.
func (l *Ledger) Escrow(asset, from, holder common.Address, amount *big.Int) error {
	if asset == NativeAsset {
		return l.Transfer(from, holder, amount)
	}
	token, err := l.TokenAt(asset)
	if err != nil {
		return err
	}
	return token.TransferFrom(holder, from, holder, amount)
}

// Credit parks amount of asset held by `holder` in the vault and records it
// as withdrawable by `owner`. Both legs are engine-internal, so a hostile
// owner cannot make this fail; they can only decline to withdraw.
func (l *Ledger) Credit(owner, asset, holder common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if asset == NativeAsset {
		l.mu.Lock()
		defer l.mu.Unlock()
		if err := l.transferLocked(holder, vault, amount); err != nil {
			return err
		}
		l.creditLocked(owner, asset, amount)
		return nil
	}

	token, err := l.TokenAt(asset)
	if err != nil {
		return err
	}
	if err := token.Transfer(holder, vault, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditLocked(owner, asset, amount)
	return nil
}

func (l *Ledger) creditLocked(owner, asset common.Address, amount *big.Int) {
	if l.credits[owner] == nil {
		l.credits[owner] = make(map[common.Address]*big.Int)
	}
	current := l.credits[owner][asset]
	if current == nil {
		current = new(big.Int)
	}
	l.credits[owner][asset] = new(big.Int).Add(current, amount)
	log.Debug("Credited withdrawable balance", "owner", owner.Hex(), "amount", amount.String())
}

// Pending returns owner's withdrawable balance for asset.
func (l *Ledger) Pending(owner, asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.credits[owner][asset]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

// Withdraw pays out owner's full credited balance for asset. The credit is
// zeroed before funds move, so a retry after a partial observation cannot
// double-pay.
func (l *Ledger) Withdraw(owner, asset common.Address) (*big.Int, error) {
	l.mu.Lock()
	credit, ok := l.credits[owner][asset]
	if !ok || credit.Sign() == 0 {
		l.mu.Unlock()
		return nil, errors.New(errors.ErrNothingToWithdraw, "no withdrawable balance")
	}
	amount := new(big.Int).Set(credit)
	l.credits[owner][asset] = new(big.Int)

	if asset == NativeAsset {
		err := l.transferLocked(vault, owner, amount)
		l.mu.Unlock()
		return amount, err
	}
	l.mu.Unlock()

	token, err := l.TokenAt(asset)
	if err != nil {
		return nil, err
	}
	return amount, token.Transfer(vault, owner, amount)
}
