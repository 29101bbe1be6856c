/*
This file contains an in-process share ledger. It backs paper-trading
deployments and deterministic test fixtures; live deployments wire the host
ledger's token module instead.
*/

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidShareAmount  = errors.New("share amount must be positive")
	ErrInsufficientBalance = errors.New("owner balance is insufficient")
)

// MemoryLedger is a mutex-guarded in-process ShareLedger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]sdkmath.LegacyDec
	supply   sdkmath.LegacyDec
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]sdkmath.LegacyDec),
		supply:   sdkmath.LegacyZeroDec(),
	}
}

// Mint implements ShareLedger.
func (l *MemoryLedger) Mint(ctx context.Context, owner string, shares sdkmath.LegacyDec) error {
	if err := validate(owner, shares); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[owner]
	if !ok {
		balance = sdkmath.LegacyZeroDec()
	}
	l.balances[owner] = balance.Add(shares)
	l.supply = l.supply.Add(shares)
	return nil
}

// Burn implements ShareLedger. Burning an owner's full balance removes the
// position entirely.
func (l *MemoryLedger) Burn(ctx context.Context, owner string, shares sdkmath.LegacyDec) error {
	if err := validate(owner, shares); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[owner]
	if !ok {
		balance = sdkmath.LegacyZeroDec()
	}
	if balance.LT(shares) {
		return fmt.Errorf("%w: %s holds %s, burn of %s requested",
			ErrInsufficientBalance, owner, balance.String(), shares.String())
	}
	remaining := balance.Sub(shares)
	if remaining.IsZero() {
		delete(l.balances, owner)
	} else {
		l.balances[owner] = remaining
	}
	l.supply = l.supply.Sub(shares)
	return nil
}

// BalanceOf implements ShareLedger.
func (l *MemoryLedger) BalanceOf(ctx context.Context, owner string) (sdkmath.LegacyDec, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[owner]
	if !ok {
		return sdkmath.LegacyZeroDec(), nil
	}
	return balance, nil
}

// TotalSupply implements ShareLedger.
func (l *MemoryLedger) TotalSupply(ctx context.Context) (sdkmath.LegacyDec, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply, nil
}

func validate(owner string, shares sdkmath.LegacyDec) error {
	if owner == "" {
		return errors.New("owner cannot be empty")
	}
	if shares.IsNil() || !shares.IsPositive() {
		return ErrInvalidShareAmount
	}
	return nil
}
