package memory

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"fmt"
	"sort"
	"sync"
)

type PremiumRepository struct {
	mu           sync.RWMutex
	payments     map[string]*domain.PremiumPayment
	payerIndex   map[string][]string
	insurerIndex map[string][]string
}

func NewPremiumRepository() *PremiumRepository {
	return &PremiumRepository{
		payments:     make(map[string]*domain.PremiumPayment),
		payerIndex:   make(map[string][]string),
		insurerIndex: make(map[string][]string),
	}
}

func (r *PremiumRepository) Save(ctx context.Context, payment *domain.PremiumPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.ID]; exists {
		return fmt.Errorf("%w: premium %s", repository.ErrDuplicate, payment.ID)
	}

	r.payments[payment.ID] = payment
	r.payerIndex[payment.Payer] = append(r.payerIndex[payment.Payer], payment.ID)
	r.insurerIndex[payment.Insurer] = append(r.insurerIndex[payment.Insurer], payment.ID)

	return nil
}

func (r *PremiumRepository) GetByPayer(ctx context.Context, payer string) ([]*domain.PremiumPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.payerIndex[payer]), nil
}

func (r *PremiumRepository) GetByInsurer(ctx context.Context, insurer string) ([]*domain.PremiumPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.insurerIndex[insurer]), nil
}

func (r *PremiumRepository) collect(ids []string) []*domain.PremiumPayment {
	var result []*domain.PremiumPayment
	for _, id := range ids {
		result = append(result, r.payments[id])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PaidAt.Before(result[j].PaidAt)
	})

	return result
}
