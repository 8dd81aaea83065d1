package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// PaymentChannel is the outbound value mover at the wallet boundary. The
// ledger only pushes into it after its own state is final; a failure rolls
// the triggering withdrawal back.
type PaymentChannel interface {
	// Credit delivers value to an identity's external wallet.
	Credit(ctx context.Context, to Identity, amount decimal.Decimal) error
	// Withdraw drains and returns everything credited to an identity.
	Withdraw(ctx context.Context, from Identity) (decimal.Decimal, error)
}

// WalletBook is the in-process payment channel used by the demo deployment
// and the tests. It models each identity's external wallet as a decimal
// balance.
type WalletBook struct {
	mu       sync.Mutex
	balances map[Identity]decimal.Decimal
}

func NewWalletBook() *WalletBook {
	return &WalletBook{balances: make(map[Identity]decimal.Decimal)}
}

func (b *WalletBook) Credit(ctx context.Context, to Identity, amount decimal.Decimal) error {
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrTransferFailed)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrTransferFailed, amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] = b.balances[to].Add(amount)
	return nil
}

func (b *WalletBook) Withdraw(ctx context.Context, from Identity) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	amount, ok := b.balances[from]
	if !ok || amount.IsZero() {
		return decimal.Zero, ErrNothingToWithdraw
	}
	b.balances[from] = decimal.Zero
	return amount, nil
}

// BalanceOf reports the current wallet balance without draining it.
func (b *WalletBook) BalanceOf(id Identity) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id]
}
