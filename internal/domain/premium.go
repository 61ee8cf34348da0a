package domain

import "time"

// PremiumPayment records a patient's premium deposit into the reserve. Kept
// per (payer, insurer) pair for audit; once inside the pool the funds are
// fungible with seeded collateral.
type PremiumPayment struct {
	ID      string    `json:"id"`
	Payer   string    `json:"payer"`
	Insurer string    `json:"insurer"`
	Amount  int64     `json:"amount"`
	PaidAt  time.Time `json:"paid_at"`
}
