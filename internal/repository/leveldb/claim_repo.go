package leveldb

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	claimKeyPrefix = "claim:"
	nextIndexKey   = "meta:next_index"
)

// ClaimRepository persists claims in LevelDB. Keys are the big-endian index
// under the claim: prefix so range scans return records in append order; the
// meta:next_index counter assigns IDs.
type ClaimRepository struct {
	mu sync.Mutex
	db *leveldb.DB
}

var _ repository.ClaimRepository = (*ClaimRepository)(nil)

func NewClaimRepository(path string) (*ClaimRepository, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open claim db: %w", err)
	}
	return &ClaimRepository{db: db}, nil
}

func (r *ClaimRepository) Close() error {
	return r.db.Close()
}

func claimKey(id uint64) []byte {
	key := make([]byte, len(claimKeyPrefix)+8)
	copy(key, claimKeyPrefix)
	binary.BigEndian.PutUint64(key[len(claimKeyPrefix):], id)
	return key
}

func (r *ClaimRepository) Append(ctx context.Context, claim *domain.Claim) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.nextIndex()
	if err != nil {
		return 0, err
	}

	claim.ID = id
	claim.UpdatedAt = time.Now()

	data, err := json.Marshal(claim)
	if err != nil {
		return 0, fmt.Errorf("encode claim %d: %w", id, err)
	}

	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, id+1)

	batch := new(leveldb.Batch)
	batch.Put(claimKey(id), data)
	batch.Put([]byte(nextIndexKey), counter)

	if err := r.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("write claim %d: %w", id, err)
	}

	return id, nil
}

func (r *ClaimRepository) nextIndex() (uint64, error) {
	raw, err := r.db.Get([]byte(nextIndexKey), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read next index: %w", err)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (r *ClaimRepository) GetByID(ctx context.Context, id uint64) (*domain.Claim, error) {
	raw, err := r.db.Get(claimKey(id), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: claim %d", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read claim %d: %w", id, err)
	}

	var claim domain.Claim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return nil, fmt.Errorf("decode claim %d: %w", id, err)
	}
	return &claim, nil
}

func (r *ClaimRepository) GetByPatient(ctx context.Context, patient string) ([]*domain.Claim, error) {
	var result []*domain.Claim
	err := r.scan(func(claim *domain.Claim) {
		if claim.Patient == patient {
			result = append(result, claim)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: patient %s", repository.ErrNotFound, patient)
	}
	return result, nil
}

func (r *ClaimRepository) GetByStatus(ctx context.Context, status domain.ClaimStatus) ([]*domain.Claim, error) {
	var result []*domain.Claim
	err := r.scan(func(claim *domain.Claim) {
		if claim.Status == status {
			result = append(result, claim)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ClaimRepository) scan(visit func(*domain.Claim)) error {
	iter := r.db.NewIterator(util.BytesPrefix([]byte(claimKeyPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var claim domain.Claim
		if err := json.Unmarshal(iter.Value(), &claim); err != nil {
			return fmt.Errorf("decode claim record: %w", err)
		}
		visit(&claim)
	}

	return iter.Error()
}

func (r *ClaimRepository) UpdateStatus(ctx context.Context, id uint64, status domain.ClaimStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	claim, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !claim.CanTransitionTo(status) {
		return fmt.Errorf("%w: claim %d %s -> %s", repository.ErrStatusInvalid, id, claim.Status, status)
	}

	claim.Status = status
	claim.UpdatedAt = time.Now()

	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("encode claim %d: %w", id, err)
	}

	if err := r.db.Put(claimKey(id), data, nil); err != nil {
		return fmt.Errorf("write claim %d: %w", id, err)
	}

	return nil
}

func (r *ClaimRepository) Count(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextIndex()
}
