package reserve

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/ledger"
	"claims_settlement/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidDeposit = errors.New("deposit amount must be positive")
	ErrNotReleaser    = errors.New("caller is not the authorized releaser")
	ErrReserveShort   = errors.New("reserve below requested release")
)

// EventPublisher receives reserve events for audit. Delivery must not block
// pool operations.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SettlementEvent)
}

// Pool custodies insurer collateral and premium inflows on its own ledger
// account and answers solvency queries. The reserve counter tracks pool
// custody; premiums and seeded collateral are fungible once inside.
type Pool struct {
	assets      ledger.AssetLedger
	premiums    repository.PremiumRepository
	events      EventPublisher
	account     string
	releaser    string
	minCoverPct int64
	mu          sync.RWMutex
	reserve     int64
	logger      *slog.Logger
}

func NewPool(
	assets ledger.AssetLedger,
	premiums repository.PremiumRepository,
	account string,
	minCoverPct int64,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		assets:      assets,
		premiums:    premiums,
		account:     account,
		minCoverPct: minCoverPct,
		logger:      logger,
	}
}

// SetReleaser names the single account allowed to call Release. Intended to
// be the settlement engine's custody account.
func (p *Pool) SetReleaser(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaser = account
}

// SetEventPublisher attaches the audit event stream. Optional.
func (p *Pool) SetEventPublisher(events EventPublisher) {
	p.events = events
}

func (p *Pool) publish(ctx context.Context, eventType domain.EventType, payload map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, domain.SettlementEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (p *Pool) Account() string {
	return p.account
}

// Seed deposits insurer collateral into the pool.
func (p *Pool) Seed(ctx context.Context, from string, amount int64) error {
	if err := p.deposit(ctx, from, amount); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Reserve seeded",
		slog.String("from", from),
		slog.Int64("amount", amount),
		slog.Int64("reserve", p.Reserve()))

	p.publish(ctx, domain.EventReserveSeeded, map[string]interface{}{
		"from":    from,
		"amount":  amount,
		"reserve": p.Reserve(),
	})

	return nil
}

// TopUp is an additional collateral deposit after seeding. Same semantics as
// Seed; kept separate so the audit stream distinguishes the two.
func (p *Pool) TopUp(ctx context.Context, from string, amount int64) error {
	if err := p.deposit(ctx, from, amount); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Reserve topped up",
		slog.String("from", from),
		slog.Int64("amount", amount),
		slog.Int64("reserve", p.Reserve()))

	p.publish(ctx, domain.EventReserveToppedUp, map[string]interface{}{
		"from":    from,
		"amount":  amount,
		"reserve": p.Reserve(),
	})

	return nil
}

func (p *Pool) deposit(ctx context.Context, from string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDeposit, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.assets.TransferFrom(ctx, p.account, from, p.account, amount); err != nil {
		return fmt.Errorf("reserve deposit: %w", err)
	}
	p.reserve += amount

	return nil
}

// PayPremium deposits a patient's premium, recorded per (payer, insurer) for
// audit. The funds join the common reserve.
func (p *Pool) PayPremium(ctx context.Context, payer, insurer string, amount int64) (*domain.PremiumPayment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDeposit, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.assets.TransferFrom(ctx, p.account, payer, p.account, amount); err != nil {
		return nil, fmt.Errorf("premium deposit: %w", err)
	}

	payment := &domain.PremiumPayment{
		ID:      uuid.New().String(),
		Payer:   payer,
		Insurer: insurer,
		Amount:  amount,
		PaidAt:  time.Now(),
	}
	if err := p.premiums.Save(ctx, payment); err != nil {
		if rbErr := p.assets.Transfer(ctx, p.account, payer, amount); rbErr != nil {
			p.logger.ErrorContext(ctx, "Premium rollback failed",
				slog.String("payer", payer),
				slog.String("error", rbErr.Error()))
		}
		return nil, fmt.Errorf("record premium: %w", err)
	}

	p.reserve += amount

	p.logger.InfoContext(ctx, "Premium paid",
		slog.String("payer", payer),
		slog.String("insurer", insurer),
		slog.Int64("amount", amount),
		slog.String("receipt", payment.ID))

	p.publish(ctx, domain.EventPremiumPaid, map[string]interface{}{
		"payer":   payer,
		"insurer": insurer,
		"amount":  amount,
		"receipt": payment.ID,
	})

	return payment, nil
}

// HasCapacity reports whether the instantaneous reserve covers the amount at
// the configured ratio: reserve x 100 >= amount x minCoverPct. It does not
// lock or earmark funds; concurrent admissions can each pass this check
// independently.
func (p *Pool) HasCapacity(ctx context.Context, amount int64) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserve*100 >= amount*p.minCoverPct, nil
}

// Release pays out of the reserve. Restricted to the configured releaser
// account; the reserve can never go negative.
func (p *Pool) Release(ctx context.Context, caller, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDeposit, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.releaser {
		return fmt.Errorf("%w: %s", ErrNotReleaser, caller)
	}
	if p.reserve < amount {
		return fmt.Errorf("%w: reserve %d, requested %d", ErrReserveShort, p.reserve, amount)
	}

	if err := p.assets.Transfer(ctx, p.account, to, amount); err != nil {
		return fmt.Errorf("reserve release: %w", err)
	}
	p.reserve -= amount

	p.logger.InfoContext(ctx, "Reserve released",
		slog.String("to", to),
		slog.Int64("amount", amount),
		slog.Int64("reserve", p.reserve))

	return nil
}

func (p *Pool) Reserve() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserve
}

func (p *Pool) MinCoverPct() int64 {
	return p.minCoverPct
}
