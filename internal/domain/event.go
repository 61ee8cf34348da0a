package domain

import "time"

type EventType string

const (
	EventClaimInitiated  EventType = "claim_initiated"
	EventInitialReleased EventType = "claim_initial_released"
	EventClaimCompleted  EventType = "claim_completed"
	EventClaimDisputed   EventType = "claim_disputed"
	EventStakeAdjusted   EventType = "stake_adjusted"
	EventReserveSeeded   EventType = "reserve_seeded"
	EventReserveToppedUp EventType = "reserve_topped_up"
	EventPremiumPaid     EventType = "premium_paid"
)

// SettlementEvent is emitted for audit and indexing; delivery is best-effort
// and never affects settlement correctness.
type SettlementEvent struct {
	ID        string
	Type      EventType
	ClaimID   uint64
	Payload   map[string]interface{}
	Timestamp time.Time
}
