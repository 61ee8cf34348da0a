package domain

type StakeRole string

const (
	RolePatient StakeRole = "patient"
	RoleDoctor  StakeRole = "doctor"
)

// Stake policy constants. Percentages are integers in [MinStakePct, MaxStakePct];
// stake legs are computed with floor division, so the two legs plus the insurer
// deposit need not sum to the claim amount.
const (
	BaseStakePct      = 50
	MinStakePct       = 5
	MaxStakePct       = 100
	CompletionStepPct = 5
	PatientPenaltyPct = 20
	DoctorPenaltyPct  = 10
)

// StakeProfile holds one party's collateral percentage for one role. The two
// role namespaces are independent: an address acting as both patient and
// doctor carries two unrelated profiles.
type StakeProfile struct {
	Account string    `json:"account"`
	Role    StakeRole `json:"role"`
	Pct     int       `json:"pct"`
}

// StakeFor computes a collateral leg for the given percentage, rounding down.
func StakeFor(amount int64, pct int) int64 {
	return amount * int64(pct) / 100
}
