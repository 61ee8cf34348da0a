package settlement

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Reputation is a pure function of claim history: completion lowers a party's
// stake percentage, a dispute raises it. There is no other mutation path.

// CompletionAdjusted rewards a clean outcome with a lower future collateral
// requirement, floored at the minimum.
func CompletionAdjusted(pct int) int {
	pct -= domain.CompletionStepPct
	if pct < domain.MinStakePct {
		return domain.MinStakePct
	}
	return pct
}

// DisputeAdjusted penalizes a disputed outcome by the role-specific step,
// capped at the maximum.
func DisputeAdjusted(pct, step int) int {
	pct += step
	if pct > domain.MaxStakePct {
		return domain.MaxStakePct
	}
	return pct
}

// pctOrBase reads a party's current percentage, applying the base default
// when no profile exists yet.
func (e *Engine) pctOrBase(ctx context.Context, role domain.StakeRole, account string) (int, error) {
	pct, err := e.stakes.GetPct(ctx, role, account)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.BaseStakePct, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stake lookup for %s %s: %w", role, account, err)
	}
	return pct, nil
}

func (e *Engine) adjustStake(ctx context.Context, claimID uint64, role domain.StakeRole, account string, next int) error {
	if err := e.stakes.SetPct(ctx, role, account, next); err != nil {
		return fmt.Errorf("stake update for %s %s: %w", role, account, err)
	}

	e.logger.InfoContext(ctx, "Stake percentage adjusted",
		slog.Uint64("claim_id", claimID),
		slog.String("role", string(role)),
		slog.String("account", account),
		slog.Int("pct", next))

	e.publish(ctx, domain.EventStakeAdjusted, claimID, map[string]interface{}{
		"role":    string(role),
		"account": account,
		"pct":     next,
	})

	return nil
}

// rewardCompletion lowers both parties' percentages after a clean claim.
func (e *Engine) rewardCompletion(ctx context.Context, claim *domain.Claim) error {
	patientPct, err := e.pctOrBase(ctx, domain.RolePatient, claim.Patient)
	if err != nil {
		return err
	}
	doctorPct, err := e.pctOrBase(ctx, domain.RoleDoctor, claim.Doctor)
	if err != nil {
		return err
	}

	if err := e.adjustStake(ctx, claim.ID, domain.RolePatient, claim.Patient, CompletionAdjusted(patientPct)); err != nil {
		return err
	}
	return e.adjustStake(ctx, claim.ID, domain.RoleDoctor, claim.Doctor, CompletionAdjusted(doctorPct))
}

// penalizeDispute raises both parties' percentages; the patient step is
// steeper than the doctor's.
func (e *Engine) penalizeDispute(ctx context.Context, claim *domain.Claim) error {
	patientPct, err := e.pctOrBase(ctx, domain.RolePatient, claim.Patient)
	if err != nil {
		return err
	}
	doctorPct, err := e.pctOrBase(ctx, domain.RoleDoctor, claim.Doctor)
	if err != nil {
		return err
	}

	if err := e.adjustStake(ctx, claim.ID, domain.RolePatient, claim.Patient, DisputeAdjusted(patientPct, domain.PatientPenaltyPct)); err != nil {
		return err
	}
	return e.adjustStake(ctx, claim.ID, domain.RoleDoctor, claim.Doctor, DisputeAdjusted(doctorPct, domain.DoctorPenaltyPct))
}
