package memory

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"fmt"
	"sync"
	"time"
)

// ClaimRepository keeps claims in a growable slice; the slice index is the
// claim ID. Records are never removed or reordered.
type ClaimRepository struct {
	mu           sync.RWMutex
	claims       []*domain.Claim
	patientIndex map[string][]uint64
}

func NewClaimRepository() *ClaimRepository {
	return &ClaimRepository{
		patientIndex: make(map[string][]uint64),
	}
}

func (r *ClaimRepository) Append(ctx context.Context, claim *domain.Claim) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uint64(len(r.claims))
	claim.ID = id
	claim.UpdatedAt = time.Now()
	r.claims = append(r.claims, claim)
	r.patientIndex[claim.Patient] = append(r.patientIndex[claim.Patient], id)

	return id, nil
}

func (r *ClaimRepository) GetByID(ctx context.Context, id uint64) (*domain.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id >= uint64(len(r.claims)) {
		return nil, fmt.Errorf("%w: claim %d", repository.ErrNotFound, id)
	}
	return r.claims[id], nil
}

func (r *ClaimRepository) GetByPatient(ctx context.Context, patient string) ([]*domain.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, exists := r.patientIndex[patient]
	if !exists {
		return nil, fmt.Errorf("%w: patient %s", repository.ErrNotFound, patient)
	}

	var result []*domain.Claim
	for _, id := range ids {
		result = append(result, r.claims[id])
	}

	return result, nil
}

func (r *ClaimRepository) GetByStatus(ctx context.Context, status domain.ClaimStatus) ([]*domain.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Claim
	for _, claim := range r.claims {
		if claim.Status == status {
			result = append(result, claim)
		}
	}

	return result, nil
}

func (r *ClaimRepository) UpdateStatus(ctx context.Context, id uint64, status domain.ClaimStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.claims)) {
		return fmt.Errorf("%w: claim %d", repository.ErrNotFound, id)
	}

	claim := r.claims[id]
	if !claim.CanTransitionTo(status) {
		return fmt.Errorf("%w: claim %d %s -> %s", repository.ErrStatusInvalid, id, claim.Status, status)
	}

	claim.Status = status
	claim.UpdatedAt = time.Now()

	return nil
}

func (r *ClaimRepository) Count(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.claims)), nil
}
