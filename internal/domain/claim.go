package domain

import (
	"time"
)

type ClaimStatus string

const (
	StatusPending         ClaimStatus = "pending"
	StatusInitialReleased ClaimStatus = "initial_released"
	StatusCompleted       ClaimStatus = "completed"
	StatusDisputed        ClaimStatus = "disputed"
)

const (
	StandardReviewWindow  = 30 * 24 * time.Hour
	EmergencyReviewWindow = 24 * time.Hour
)

// Claim is an append-only settlement record. The ID is the index assigned at
// creation and is never reused; amount, stakes, parties and timestamps are
// immutable after creation. Only Status moves, and only forward.
type Claim struct {
	ID           uint64        `json:"id"`
	Patient      string        `json:"patient"`
	Doctor       string        `json:"doctor"`
	Insurer      string        `json:"insurer"`
	Amount       int64         `json:"amount"`
	PatientStake int64         `json:"patient_stake"`
	DoctorStake  int64         `json:"doctor_stake"`
	Emergency    bool          `json:"emergency"`
	ReviewWindow time.Duration `json:"review_window"`
	Status       ClaimStatus   `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func NewClaim(patient, doctor, insurer string, amount int64, emergency bool) *Claim {
	window := StandardReviewWindow
	if emergency {
		window = EmergencyReviewWindow
	}
	return &Claim{
		Patient:      patient,
		Doctor:       doctor,
		Insurer:      insurer,
		Amount:       amount,
		Emergency:    emergency,
		ReviewWindow: window,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
}

// ReviewDeadline is the instant after which the claim can be completed and
// before which it can still be disputed.
func (c *Claim) ReviewDeadline() time.Time {
	return c.CreatedAt.Add(c.ReviewWindow)
}

// CanTransitionTo enforces the forward-only lifecycle:
// pending -> initial_released -> {completed | disputed}.
func (c *Claim) CanTransitionTo(next ClaimStatus) bool {
	switch c.Status {
	case StatusPending:
		return next == StatusInitialReleased
	case StatusInitialReleased:
		return next == StatusCompleted || next == StatusDisputed
	default:
		return false
	}
}
