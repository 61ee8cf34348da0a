package memory

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"fmt"
	"sync"
)

type DoctorDirectory struct {
	mu      sync.RWMutex
	doctors map[string]struct{}
}

func NewDoctorDirectory() *DoctorDirectory {
	return &DoctorDirectory{
		doctors: make(map[string]struct{}),
	}
}

func (d *DoctorDirectory) Register(ctx context.Context, doctor string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.doctors[doctor]; exists {
		return fmt.Errorf("%w: doctor %s", repository.ErrDuplicate, doctor)
	}
	d.doctors[doctor] = struct{}{}

	return nil
}

func (d *DoctorDirectory) Deregister(ctx context.Context, doctor string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.doctors[doctor]; !exists {
		return fmt.Errorf("%w: doctor %s", repository.ErrNotFound, doctor)
	}
	delete(d.doctors, doctor)

	return nil
}

func (d *DoctorDirectory) IsRegistered(ctx context.Context, doctor string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.doctors[doctor]
	return exists, nil
}

type ConsentRegistry struct {
	mu       sync.RWMutex
	consents map[string]struct{}
}

func NewConsentRegistry() *ConsentRegistry {
	return &ConsentRegistry{
		consents: make(map[string]struct{}),
	}
}

func consentKey(patient, doctor string) string {
	return patient + "\x00" + doctor
}

func (c *ConsentRegistry) Grant(ctx context.Context, patient, doctor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consents[consentKey(patient, doctor)] = struct{}{}
	return nil
}

func (c *ConsentRegistry) Revoke(ctx context.Context, patient, doctor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := consentKey(patient, doctor)
	if _, exists := c.consents[key]; !exists {
		return fmt.Errorf("%w: consent %s/%s", repository.ErrNotFound, patient, doctor)
	}
	delete(c.consents, key)

	return nil
}

func (c *ConsentRegistry) HasConsent(ctx context.Context, patient, doctor string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.consents[consentKey(patient, doctor)]
	return exists, nil
}

type CoverageRegistry struct {
	mu       sync.RWMutex
	policies map[string]*domain.CoveragePolicy
}

func NewCoverageRegistry() *CoverageRegistry {
	return &CoverageRegistry{
		policies: make(map[string]*domain.CoveragePolicy),
	}
}

func (c *CoverageRegistry) SetPolicy(ctx context.Context, policy *domain.CoveragePolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.policies[policy.Patient]; exists {
		policy.Version = existing.Version + 1
	} else {
		policy.Version = 1
	}
	c.policies[policy.Patient] = policy

	return nil
}

func (c *CoverageRegistry) GetPolicy(ctx context.Context, patient string) (*domain.CoveragePolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	policy, exists := c.policies[patient]
	if !exists {
		return nil, fmt.Errorf("%w: policy for %s", repository.ErrNotFound, patient)
	}
	return policy, nil
}

func (c *CoverageRegistry) RemovePolicy(ctx context.Context, patient string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.policies[patient]; !exists {
		return fmt.Errorf("%w: policy for %s", repository.ErrNotFound, patient)
	}
	delete(c.policies, patient)

	return nil
}
