package ledger

import (
	"context"
	"errors"
)

// AssetLedger is the fungible-balance service every value movement goes
// through. Amounts are non-negative integers in the ledger's smallest unit.
// TransferFrom requires a prior allowance from the source account to the
// spender of at least the requested amount.
type AssetLedger interface {
	Transfer(ctx context.Context, from, to string, amount int64) error
	TransferFrom(ctx context.Context, spender, from, to string, amount int64) error
	Approve(ctx context.Context, owner, spender string, amount int64) error
	Allowance(ctx context.Context, owner, spender string) (int64, error)
	BalanceOf(ctx context.Context, account string) (int64, error)
}

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)
