package domain

import "time"

// CoveragePolicy links a patient to the insurer contractually obligated to
// fund their claims and the percentage of face value released to the doctor.
type CoveragePolicy struct {
	Patient     string    `json:"patient"`
	Insurer     string    `json:"insurer"`
	CoveragePct int       `json:"coverage_pct"`
	EffectiveAt time.Time `json:"effective_at"`
	Version     int       `json:"version"`
}

// CoveredAmount is the portion of a claim the insurer pays the doctor at
// initial release, rounded down.
func (p *CoveragePolicy) CoveredAmount(amount int64) int64 {
	return amount * int64(p.CoveragePct) / 100
}
