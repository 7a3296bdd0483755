package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
)

// Token is a fungible token with ERC-20 transfer semantics: balances plus
// spender allowances. A TransferFrom without sufficient allowance fails,
// which is exactly the failure mode the bid escrow path must contain.
type Token struct {
	mu         sync.Mutex
	name       string
	symbol     string
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewToken(name, symbol string) *Token {
	return &Token{
		name:       name,
		symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Name() string   { return t.name }
func (t *Token) Symbol() string { return t.symbol }

func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(addr)
}

func (t *Token) balanceLocked(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits freshly issued tokens to addr.
func (t *Token) Mint(addr common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[addr] = new(big.Int).Add(t.balanceLocked(addr), amount)
}

// Approve lets spender move up to amount of owner's tokens.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Transfer moves amount from the caller's own balance.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(from, to, amount)
}

// TransferFrom moves amount from `from` to `to` on behalf of spender,
// consuming spender's allowance. All-or-nothing: allowance and balance are
// checked before any mutation.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance, ok := t.allowances[from][spender]
	if !ok || allowance.Cmp(amount) < 0 {
		return errors.New(errors.ErrNotApproved, "transfer amount exceeds allowance")
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (t *Token) transferLocked(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.New(errors.ErrInvalidAmount, "negative transfer amount")
	}
	balance := t.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return errors.New(errors.ErrInsufficientFunds, "transfer amount exceeds balance")
	}
	t.balances[from] = balance.Sub(balance, amount)
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	return nil
}
