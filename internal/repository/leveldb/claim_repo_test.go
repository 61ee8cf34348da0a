package leveldb

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/repository"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) (*ClaimRepository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "claims")
	repo, err := NewClaimRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})

	return repo, path
}

func TestAppendAndGetByID(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	claim := domain.NewClaim("alice", "dr-adams", "acme-health", 100, false)
	claim.PatientStake = 50
	claim.DoctorStake = 50

	id, err := repo.Append(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Patient)
	assert.Equal(t, int64(100), got.Amount)
	assert.Equal(t, int64(50), got.PatientStake)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, err = repo.GetByID(ctx, 42)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIDsSurviveReopen(t *testing.T) {
	repo, path := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, domain.NewClaim("alice", "dr-adams", "acme-health", int64(100*(i+1)), false))
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	reopened, err := NewClaimRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	// The counter keeps assigning past the persisted records.
	id, err := reopened.Append(ctx, domain.NewClaim("bob", "dr-adams", "acme-health", 400, false))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	got, err := reopened.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Amount)
}

func TestUpdateStatusEnforcesLifecycle(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	id, err := repo.Append(ctx, domain.NewClaim("alice", "dr-adams", "acme-health", 100, false))
	require.NoError(t, err)

	require.ErrorIs(t, repo.UpdateStatus(ctx, id, domain.StatusDisputed), repository.ErrStatusInvalid)
	require.NoError(t, repo.UpdateStatus(ctx, id, domain.StatusInitialReleased))
	require.NoError(t, repo.UpdateStatus(ctx, id, domain.StatusCompleted))
	require.ErrorIs(t, repo.UpdateStatus(ctx, id, domain.StatusDisputed), repository.ErrStatusInvalid)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestGetByPatientAndStatus(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	id, err := repo.Append(ctx, domain.NewClaim("alice", "dr-adams", "acme-health", 100, false))
	require.NoError(t, err)
	_, err = repo.Append(ctx, domain.NewClaim("bob", "dr-adams", "acme-health", 200, false))
	require.NoError(t, err)
	_, err = repo.Append(ctx, domain.NewClaim("alice", "dr-baker", "acme-health", 300, false))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, domain.StatusInitialReleased))

	byPatient, err := repo.GetByPatient(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byPatient, 2)
	assert.Equal(t, int64(100), byPatient[0].Amount)
	assert.Equal(t, int64(300), byPatient[1].Amount)

	_, err = repo.GetByPatient(ctx, "carol")
	require.ErrorIs(t, err, repository.ErrNotFound)

	pending, err := repo.GetByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
