// Package ledger provides an in-memory asset ledger implementing the pool
// engine's transfer collaborator: per-asset account balances, spender
// authorizations for pulls, and a custody bucket holding pool funds.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotAuthorized     = errors.New("pull not authorized for this amount")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// Ledger is an in-memory asset ledger. Transfers are atomic: every check
// happens before any balance mutation.
type Ledger struct {
	balances   map[common.Address]map[common.Address]*big.Int // asset -> account -> balance
	allowances map[common.Address]map[common.Address]*big.Int // asset -> account -> approved pull amount
	custody    map[common.Address]*big.Int                    // asset -> pool custody
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		custody:    make(map[common.Address]*big.Int),
	}
}

// Mint credits an account's balance. Test and replay seeding only.
func (l *Ledger) Mint(asset, account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	balance := l.ensure(l.balances, asset, account)
	balance.Add(balance, amount)
}

// Approve authorizes the ledger to pull up to amount of asset from the
// account on the pool's behalf, replacing any prior authorization.
func (l *Ledger) Approve(asset, account common.Address, amount *big.Int) {
	allowance := l.ensure(l.allowances, asset, account)
	allowance.Set(amount)
}

// BalanceOf returns a copy of the account's balance for asset.
func (l *Ledger) BalanceOf(asset, account common.Address) *big.Int {
	if accounts, ok := l.balances[asset]; ok {
		if balance, ok := accounts[account]; ok {
			return new(big.Int).Set(balance)
		}
	}
	return new(big.Int)
}

// CustodyOf returns a copy of the custody holding for asset.
func (l *Ledger) CustodyOf(asset common.Address) *big.Int {
	if held, ok := l.custody[asset]; ok {
		return new(big.Int).Set(held)
	}
	return new(big.Int)
}

// Pull moves amount of asset from the account into custody. Fails without
// effect if the authorization or the balance is short.
func (l *Ledger) Pull(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("pull amount must be positive")
	}
	allowance := l.ensure(l.allowances, asset, from)
	if allowance.Cmp(amount) < 0 {
		return ErrNotAuthorized
	}
	balance := l.ensure(l.balances, asset, from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	allowance.Sub(allowance, amount)
	balance.Sub(balance, amount)
	held, ok := l.custody[asset]
	if !ok {
		held = new(big.Int)
		l.custody[asset] = held
	}
	held.Add(held, amount)
	return nil
}

// Push moves amount of asset from custody to the account. Fails without
// effect if custody holds less than amount.
func (l *Ledger) Push(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("push amount must be positive")
	}
	held, ok := l.custody[asset]
	if !ok || held.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	held.Sub(held, amount)
	balance := l.ensure(l.balances, asset, to)
	balance.Add(balance, amount)
	return nil
}

func (l *Ledger) ensure(table map[common.Address]map[common.Address]*big.Int, asset, account common.Address) *big.Int {
	accounts, ok := table[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		table[asset] = accounts
	}
	value, ok := accounts[account]
	if !ok {
		value = new(big.Int)
		accounts[account] = value
	}
	return value
}
