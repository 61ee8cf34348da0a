package memory

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"fmt"
	"sync"
)

// StakeRepository keeps one percentage per (role, account). Profiles are
// created on first write and never deleted.
type StakeRepository struct {
	mu       sync.RWMutex
	profiles map[domain.StakeRole]map[string]int
}

func NewStakeRepository() *StakeRepository {
	return &StakeRepository{
		profiles: map[domain.StakeRole]map[string]int{
			domain.RolePatient: make(map[string]int),
			domain.RoleDoctor:  make(map[string]int),
		},
	}
}

func (r *StakeRepository) GetPct(ctx context.Context, role domain.StakeRole, account string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byAccount, exists := r.profiles[role]
	if !exists {
		return 0, fmt.Errorf("%w: role %s", repository.ErrNotFound, role)
	}
	pct, exists := byAccount[account]
	if !exists {
		return 0, fmt.Errorf("%w: %s profile for %s", repository.ErrNotFound, role, account)
	}
	return pct, nil
}

func (r *StakeRepository) SetPct(ctx context.Context, role domain.StakeRole, account string, pct int) error {
	if pct < domain.MinStakePct || pct > domain.MaxStakePct {
		return fmt.Errorf("%w: %d", repository.ErrInvalidStake, pct)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byAccount, exists := r.profiles[role]
	if !exists {
		return fmt.Errorf("%w: role %s", repository.ErrNotFound, role)
	}
	byAccount[account] = pct

	return nil
}
