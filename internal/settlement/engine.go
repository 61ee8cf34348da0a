package settlement

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

// CapacityChecker is the reserve pool's admission gate. HasCapacity is a
// snapshot check only; the pool does not earmark capacity for claims that
// pass it.
type CapacityChecker interface {
	HasCapacity(ctx context.Context, amount int64) (bool, error)
}

// EventPublisher receives settlement events for audit and indexing. Delivery
// must not block settlement.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SettlementEvent)
}

// Engine owns the claim lifecycle, stake sizing and reputation adjustment.
// Funds in flight are custodied on the engine's own ledger account. All
// public operations execute under one mutex so each settlement step is an
// atomic, serialized transition.
type Engine struct {
	claims   repository.ClaimRepository
	stakes   repository.StakeRepository
	doctors  repository.DoctorDirectory
	consents repository.ConsentRegistry
	coverage repository.CoverageRegistry
	assets   ledger.AssetLedger
	pool     CapacityChecker
	events   EventPublisher
	account  string
	now      func() time.Time
	mu       sync.Mutex
	counters map[string]int
	logger   *slog.Logger
}

func NewEngine(
	claims repository.ClaimRepository,
	stakes repository.StakeRepository,
	doctors repository.DoctorDirectory,
	consents repository.ConsentRegistry,
	coverage repository.CoverageRegistry,
	assets ledger.AssetLedger,
	pool CapacityChecker,
	account string,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		claims:   claims,
		stakes:   stakes,
		doctors:  doctors,
		consents: consents,
		coverage: coverage,
		assets:   assets,
		pool:     pool,
		account:  account,
		now:      time.Now,
		counters: make(map[string]int),
		logger:   logger,
	}
}

// SetEventPublisher attaches the audit event stream. Optional; settlement is
// correct without it.
func (e *Engine) SetEventPublisher(events EventPublisher) {
	e.events = events
}

// Account returns the engine's custody account on the asset ledger. Parties
// approve this account as spender before initiating claims.
func (e *Engine) Account() string {
	return e.account
}

// InitiateClaim escrows both parties' stakes and the insurer's deposit, then
// appends a Pending claim. The insurer comes from the patient's coverage
// policy. Any precondition or transfer failure aborts with no partial
// transfer retained.
func (e *Engine) InitiateClaim(ctx context.Context, patient, doctor string, amount int64, emergency bool) (*domain.Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if patient == "" || doctor == "" {
		return nil, fmt.Errorf("%w: patient and doctor are required", ErrInvalidParty)
	}
	if patient == doctor {
		return nil, fmt.Errorf("%w: patient and doctor must differ", ErrInvalidParty)
	}

	registered, err := e.doctors.IsRegistered(ctx, doctor)
	if err != nil {
		return nil, fmt.Errorf("doctor lookup: %w", err)
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrDoctorNotRegistered, doctor)
	}

	consented, err := e.consents.HasConsent(ctx, patient, doctor)
	if err != nil {
		return nil, fmt.Errorf("consent lookup: %w", err)
	}
	if !consented {
		return nil, fmt.Errorf("%w: %s/%s", ErrConsentMissing, patient, doctor)
	}

	policy, err := e.coverage.GetPolicy(ctx, patient)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoCoverage, patient)
	}
	if err != nil {
		return nil, fmt.Errorf("coverage lookup: %w", err)
	}

	ok, err := e.pool.HasCapacity(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("capacity check: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: amount %d", ErrInsufficientCapacity, amount)
	}

	patientPct, err := e.pctOrBase(ctx, domain.RolePatient, patient)
	if err != nil {
		return nil, err
	}
	doctorPct, err := e.pctOrBase(ctx, domain.RoleDoctor, doctor)
	if err != nil {
		return nil, err
	}

	claim := domain.NewClaim(patient, doctor, policy.Insurer, amount, emergency)
	claim.CreatedAt = e.now()
	claim.PatientStake = domain.StakeFor(amount, patientPct)
	claim.DoctorStake = domain.StakeFor(amount, doctorPct)

	legs := []transferLeg{
		{from: patient, amount: claim.PatientStake},
		{from: doctor, amount: claim.DoctorStake},
		{from: policy.Insurer, amount: amount},
	}
	if err := e.escrow(ctx, legs); err != nil {
		return nil, err
	}

	id, err := e.claims.Append(ctx, claim)
	if err != nil {
		e.refund(ctx, legs)
		return nil, fmt.Errorf("append claim: %w", err)
	}

	e.logger.InfoContext(ctx, "Claim initiated",
		slog.Uint64("claim_id", id),
		slog.String("patient", patient),
		slog.String("doctor", doctor),
		slog.String("insurer", policy.Insurer),
		slog.Int64("amount", amount),
		slog.Int64("patient_stake", claim.PatientStake),
		slog.Int64("doctor_stake", claim.DoctorStake),
		slog.Bool("emergency", emergency))

	e.recordCounter("claims_initiated")
	e.publish(ctx, domain.EventClaimInitiated, id, map[string]interface{}{
		"patient":       patient,
		"doctor":        doctor,
		"insurer":       policy.Insurer,
		"amount":        amount,
		"patient_stake": claim.PatientStake,
		"doctor_stake":  claim.DoctorStake,
		"emergency":     emergency,
	})

	return claim, nil
}

type transferLeg struct {
	from   string
	amount int64
}

// escrow pulls all legs into engine custody. Balances and allowances are
// verified up front; if a transfer still fails midway, the pulled legs are
// returned so the abort leaves no partial movement.
func (e *Engine) escrow(ctx context.Context, legs []transferLeg) error {
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		allowed, err := e.assets.Allowance(ctx, leg.from, e.account)
		if err != nil {
			return fmt.Errorf("allowance lookup for %s: %w", leg.from, err)
		}
		if allowed < leg.amount {
			return fmt.Errorf("%w: %s approved %d, need %d", ledger.ErrInsufficientAllowance, leg.from, allowed, leg.amount)
		}
		balance, err := e.assets.BalanceOf(ctx, leg.from)
		if err != nil {
			return fmt.Errorf("balance lookup for %s: %w", leg.from, err)
		}
		if balance < leg.amount {
			return fmt.Errorf("%w: %s holds %d, need %d", ledger.ErrInsufficientBalance, leg.from, balance, leg.amount)
		}
	}

	for i, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := e.assets.TransferFrom(ctx, e.account, leg.from, e.account, leg.amount); err != nil {
			e.refund(ctx, legs[:i])
			return fmt.Errorf("escrow from %s: %w", leg.from, err)
		}
	}

	return nil
}

func (e *Engine) refund(ctx context.Context, legs []transferLeg) {
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := e.assets.Transfer(ctx, e.account, leg.from, leg.amount); err != nil {
			e.logger.ErrorContext(ctx, "Escrow rollback failed",
				slog.String("account", leg.from),
				slog.Int64("amount", leg.amount),
				slog.String("error", err.Error()))
		}
	}
}

// ReleaseInitial pays the doctor the covered portion of the claim from engine
// custody. Callable by anyone while the claim is Pending. The coverage
// percentage is read from the registry at call time, not from creation.
func (e *Engine) ReleaseInitial(ctx context.Context, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	claim, err := e.claims.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if claim.Status != domain.StatusPending {
		return fmt.Errorf("%w: claim %d is %s", ErrInvalidStatus, id, claim.Status)
	}

	policy, err := e.coverage.GetPolicy(ctx, claim.Patient)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNoCoverage, claim.Patient)
	}
	if err != nil {
		return fmt.Errorf("coverage lookup: %w", err)
	}

	toPay := policy.CoveredAmount(claim.Amount)
	if toPay > 0 {
		if err := e.assets.Transfer(ctx, e.account, claim.Doctor, toPay); err != nil {
			return fmt.Errorf("initial release payout: %w", err)
		}
	}

	if err := e.claims.UpdateStatus(ctx, id, domain.StatusInitialReleased); err != nil {
		return err
	}
	claim.Status = domain.StatusInitialReleased

	e.logger.InfoContext(ctx, "Initial payout released",
		slog.Uint64("claim_id", id),
		slog.String("doctor", claim.Doctor),
		slog.Int64("paid", toPay),
		slog.Int("coverage_pct", policy.CoveragePct))

	e.recordCounter("initial_releases")
	e.publish(ctx, domain.EventInitialReleased, id, map[string]interface{}{
		"doctor":       claim.Doctor,
		"paid":         toPay,
		"coverage_pct": policy.CoveragePct,
	})

	return nil
}

// CompleteClaim refunds both stakes once the review window has elapsed and
// rewards both parties' reputations. Callable by anyone. The un-released
// remainder of the insurer deposit stays in engine custody.
func (e *Engine) CompleteClaim(ctx context.Context, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	claim, err := e.claims.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if claim.Status != domain.StatusInitialReleased {
		return fmt.Errorf("%w: claim %d is %s", ErrInvalidStatus, id, claim.Status)
	}
	if e.now().Before(claim.ReviewDeadline()) {
		return fmt.Errorf("%w: claim %d until %s", ErrReviewWindowOpen, id, claim.ReviewDeadline().UTC().Format(time.RFC3339))
	}

	if claim.PatientStake > 0 {
		if err := e.assets.Transfer(ctx, e.account, claim.Patient, claim.PatientStake); err != nil {
			return fmt.Errorf("patient stake refund: %w", err)
		}
	}
	if claim.DoctorStake > 0 {
		if err := e.assets.Transfer(ctx, e.account, claim.Doctor, claim.DoctorStake); err != nil {
			if claim.PatientStake > 0 {
				if rbErr := e.assets.Transfer(ctx, claim.Patient, e.account, claim.PatientStake); rbErr != nil {
					e.logger.ErrorContext(ctx, "Stake refund rollback failed",
						slog.Uint64("claim_id", id),
						slog.String("error", rbErr.Error()))
				}
			}
			return fmt.Errorf("doctor stake refund: %w", err)
		}
	}

	if err := e.claims.UpdateStatus(ctx, id, domain.StatusCompleted); err != nil {
		return err
	}
	claim.Status = domain.StatusCompleted

	if err := e.rewardCompletion(ctx, claim); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Claim completed",
		slog.Uint64("claim_id", id),
		slog.Int64("patient_refund", claim.PatientStake),
		slog.Int64("doctor_refund", claim.DoctorStake))

	e.recordCounter("claims_completed")
	e.publish(ctx, domain.EventClaimCompleted, id, map[string]interface{}{
		"patient_refund": claim.PatientStake,
		"doctor_refund":  claim.DoctorStake,
	})

	return nil
}

// DisputeClaim seizes collateral for the insurer while the review window is
// still open. Only the claim's patient or insurer may call it. The slash is
// sized from both parties' current percentages, which may have moved since
// creation.
func (e *Engine) DisputeClaim(ctx context.Context, caller string, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	claim, err := e.claims.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeDisputer(claim, caller); err != nil {
		return err
	}
	if claim.Status != domain.StatusInitialReleased {
		return fmt.Errorf("%w: claim %d is %s", ErrInvalidStatus, id, claim.Status)
	}
	if !e.now().Before(claim.ReviewDeadline()) {
		return fmt.Errorf("%w: claim %d since %s", ErrReviewWindowClosed, id, claim.ReviewDeadline().UTC().Format(time.RFC3339))
	}

	patientPct, err := e.pctOrBase(ctx, domain.RolePatient, claim.Patient)
	if err != nil {
		return err
	}
	doctorPct, err := e.pctOrBase(ctx, domain.RoleDoctor, claim.Doctor)
	if err != nil {
		return err
	}

	slash := domain.StakeFor(claim.Amount, patientPct) + domain.StakeFor(claim.Amount, doctorPct)
	if slash > 0 {
		if err := e.assets.Transfer(ctx, e.account, claim.Insurer, slash); err != nil {
			return fmt.Errorf("dispute payout: %w", err)
		}
	}

	if err := e.claims.UpdateStatus(ctx, id, domain.StatusDisputed); err != nil {
		return err
	}
	claim.Status = domain.StatusDisputed

	if err := e.penalizeDispute(ctx, claim); err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "Claim disputed",
		slog.Uint64("claim_id", id),
		slog.String("caller", caller),
		slog.Int64("slash", slash))

	e.recordCounter("claims_disputed")
	e.publish(ctx, domain.EventClaimDisputed, id, map[string]interface{}{
		"caller": caller,
		"slash":  slash,
	})

	return nil
}

// authorizeDisputer is the shared role guard for the dispute path.
func authorizeDisputer(claim *domain.Claim, caller string) error {
	if caller != claim.Patient && caller != claim.Insurer {
		return fmt.Errorf("%w: %s may not dispute claim %d", ErrNotAuthorized, caller, claim.ID)
	}
	return nil
}

func (e *Engine) GetClaim(ctx context.Context, id uint64) (*domain.Claim, error) {
	return e.claims.GetByID(ctx, id)
}

// GetPatientPct returns the account's patient-side collateral percentage,
// defaulting to the base when no profile exists.
func (e *Engine) GetPatientPct(ctx context.Context, account string) (int, error) {
	return e.pctOrBase(ctx, domain.RolePatient, account)
}

// GetDoctorPct is the doctor-side counterpart of GetPatientPct.
func (e *Engine) GetDoctorPct(ctx context.Context, account string) (int, error) {
	return e.pctOrBase(ctx, domain.RoleDoctor, account)
}

func (e *Engine) GetCounters() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int, len(e.counters))
	for k, v := range e.counters {
		out[k] = v
	}
	return out
}

func (e *Engine) recordCounter(key string) {
	e.counters[key]++
}

func (e *Engine) publish(ctx context.Context, eventType domain.EventType, claimID uint64, payload map[string]interface{}) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, domain.SettlementEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		ClaimID:   claimID,
		Payload:   payload,
		Timestamp: e.now(),
	})
}
