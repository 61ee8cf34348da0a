package memory

import (
	"claims_settlement/internal/repository"
)

var (
	_ repository.ClaimRepository   = (*ClaimRepository)(nil)
	_ repository.StakeRepository   = (*StakeRepository)(nil)
	_ repository.DoctorDirectory   = (*DoctorDirectory)(nil)
	_ repository.ConsentRegistry   = (*ConsentRegistry)(nil)
	_ repository.CoverageRegistry  = (*CoverageRegistry)(nil)
	_ repository.PremiumRepository = (*PremiumRepository)(nil)
)
