package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-process AssetLedger with the standard allowance
// model. Balances are created on first mint.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]map[string]int64
}

var _ AssetLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[string]int64),
		allowances: make(map[string]map[string]int64),
	}
}

// Mint credits an account out of thin air. Test and bootstrap helper; not
// part of the AssetLedger contract.
func (l *MemoryLedger) Mint(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.move(from, to, amount)
}

func (l *MemoryLedger) TransferFrom(ctx context.Context, spender, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowances[from][spender]
	if allowed < amount {
		return fmt.Errorf("%w: %s -> %s has %d, need %d", ErrInsufficientAllowance, from, spender, allowed, amount)
	}

	if err := l.move(from, to, amount); err != nil {
		return err
	}

	l.allowances[from][spender] = allowed - amount
	return nil
}

func (l *MemoryLedger) move(from, to string, amount int64) error {
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, from, l.balances[from], amount)
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) Approve(ctx context.Context, owner, spender string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.allowances[owner]; !exists {
		l.allowances[owner] = make(map[string]int64)
	}
	l.allowances[owner][spender] = amount

	return nil
}

func (l *MemoryLedger) Allowance(ctx context.Context, owner, spender string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender], nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}
