package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/persistence"
	"github.com/maestro-flow/maestro/pkg/persistence/memory"
)

func testRepository() *Repository {
	return NewRepository(memory.NewPersistence(), NewValidator(testRegistry()))
}

func TestRepositoryRegister(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	registered, err := repo.Register(ctx, validDefinition())
	require.NoError(t, err)
	assert.NotEmpty(t, registered.ID)
	assert.False(t, registered.RegisteredAt.IsZero())

	fetched, err := repo.ByID(ctx, registered.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "disk-pressure", fetched.UseCaseID)
}

func TestRepositoryRegisterAssignsID(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	def := validDefinition()
	def.ID = ""

	registered, err := repo.Register(ctx, def)
	require.NoError(t, err)
	assert.NotEmpty(t, registered.ID)
}

func TestRepositoryRegisterIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	first, err := repo.Register(ctx, validDefinition())
	require.NoError(t, err)

	// Same (use case, version) with identical content is a no-op returning
	// the original registration.
	second, err := repo.Register(ctx, validDefinition())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)

	defs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestRepositoryRegisterConflict(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	_, err := repo.Register(ctx, validDefinition())
	require.NoError(t, err)

	changed := validDefinition()
	changed.Steps[2].Parameters = map[string]any{"service": "different"}

	_, err = repo.Register(ctx, changed)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDefinitionConflict)
}

func TestRepositoryRegisterInvalid(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	def := validDefinition()
	def.Steps = nil

	_, err := repo.Register(ctx, def)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRepositoryByIDVersionMismatch(t *testing.T) {
	ctx := context.Background()
	repo := testRepository()

	registered, err := repo.Register(ctx, validDefinition())
	require.NoError(t, err)

	_, err = repo.ByID(ctx, registered.ID, "2.0.0")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))

	fetched, err := repo.ByID(ctx, registered.ID, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, fetched.ID)
}

func TestRepositoryByIDUnknown(t *testing.T) {
	repo := testRepository()

	_, err := repo.ByID(context.Background(), "wf-missing", "")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}
