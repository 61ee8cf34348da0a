package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestTransfer(t *testing.T) {
	l := NewMemoryLedger()
	l.Mint("alice", 100)

	if err := l.Transfer(context.Background(), "alice", "bob", 40); err != nil {
		t.Fatalf("unexpected error on Transfer: %v", err)
	}

	aliceBal, _ := l.BalanceOf(context.Background(), "alice")
	bobBal, _ := l.BalanceOf(context.Background(), "bob")
	if aliceBal != 60 || bobBal != 40 {
		t.Errorf("expected balances 60/40, got %d/%d", aliceBal, bobBal)
	}
}

func TestTransferRejectsBadAmounts(t *testing.T) {
	l := NewMemoryLedger()
	l.Mint("alice", 100)

	if err := l.Transfer(context.Background(), "alice", "bob", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := l.Transfer(context.Background(), "alice", "bob", -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := l.Transfer(context.Background(), "alice", "bob", 101); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewMemoryLedger()
	l.Mint("alice", 100)
	_ = l.Approve(context.Background(), "alice", "spender", 70)

	if err := l.TransferFrom(context.Background(), "spender", "alice", "bob", 50); err != nil {
		t.Fatalf("unexpected error on TransferFrom: %v", err)
	}

	remaining, _ := l.Allowance(context.Background(), "alice", "spender")
	if remaining != 20 {
		t.Errorf("expected remaining allowance 20, got %d", remaining)
	}

	if err := l.TransferFrom(context.Background(), "spender", "alice", "bob", 21); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestTransferFromKeepsAllowanceOnFailedMove(t *testing.T) {
	l := NewMemoryLedger()
	l.Mint("alice", 10)
	_ = l.Approve(context.Background(), "alice", "spender", 100)

	if err := l.TransferFrom(context.Background(), "spender", "alice", "bob", 50); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	remaining, _ := l.Allowance(context.Background(), "alice", "spender")
	if remaining != 100 {
		t.Errorf("expected allowance untouched at 100, got %d", remaining)
	}
}

func TestApproveOverwrites(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Approve(context.Background(), "alice", "spender", 50)
	_ = l.Approve(context.Background(), "alice", "spender", 30)

	allowed, _ := l.Allowance(context.Background(), "alice", "spender")
	if allowed != 30 {
		t.Errorf("expected approval overwritten to 30, got %d", allowed)
	}

	if err := l.Approve(context.Background(), "alice", "spender", -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative approval, got %v", err)
	}
}
