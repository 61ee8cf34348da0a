package repository

import (
	"claims_settlement/internal/domain"
	"context"
	"errors"
)

// ClaimRepository is an append-only, index-addressed store. Append assigns
// the next monotonic index; indices are never reused or compacted.
type ClaimRepository interface {
	Append(ctx context.Context, claim *domain.Claim) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*domain.Claim, error)
	GetByPatient(ctx context.Context, patient string) ([]*domain.Claim, error)
	GetByStatus(ctx context.Context, status domain.ClaimStatus) ([]*domain.Claim, error)
	UpdateStatus(ctx context.Context, id uint64, status domain.ClaimStatus) error
	Count(ctx context.Context) (uint64, error)
}

// StakeRepository stores per-role collateral percentages. Lookups for an
// account with no stored profile return ErrNotFound; callers apply the base
// percentage default.
type StakeRepository interface {
	GetPct(ctx context.Context, role domain.StakeRole, account string) (int, error)
	SetPct(ctx context.Context, role domain.StakeRole, account string, pct int) error
}

// DoctorDirectory is the membership registry for credentialed doctors.
type DoctorDirectory interface {
	Register(ctx context.Context, doctor string) error
	Deregister(ctx context.Context, doctor string) error
	IsRegistered(ctx context.Context, doctor string) (bool, error)
}

// ConsentRegistry holds one boolean per (patient, doctor) pair, set when the
// doctor confirms an appointment.
type ConsentRegistry interface {
	Grant(ctx context.Context, patient, doctor string) error
	Revoke(ctx context.Context, patient, doctor string) error
	HasConsent(ctx context.Context, patient, doctor string) (bool, error)
}

// CoverageRegistry maps a patient to their insurance policy.
type CoverageRegistry interface {
	SetPolicy(ctx context.Context, policy *domain.CoveragePolicy) error
	GetPolicy(ctx context.Context, patient string) (*domain.CoveragePolicy, error)
	RemovePolicy(ctx context.Context, patient string) error
}

// PremiumRepository records premium payments for audit.
type PremiumRepository interface {
	Save(ctx context.Context, payment *domain.PremiumPayment) error
	GetByPayer(ctx context.Context, payer string) ([]*domain.PremiumPayment, error)
	GetByInsurer(ctx context.Context, insurer string) ([]*domain.PremiumPayment, error)
}

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrInvalidStake  = errors.New("stake percentage out of bounds")
	ErrStatusInvalid = errors.New("invalid status transition")
)
