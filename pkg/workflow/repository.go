package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

// Repository registers and fetches workflow definitions. Definitions are
// immutable: registering the same (use case, version) with identical
// content is a no-op, with different content a conflict.
type Repository struct {
	persistence persistence.Persistence
	validator   *Validator
}

func NewRepository(p persistence.Persistence, validator *Validator) *Repository {
	return &Repository{
		persistence: p,
		validator:   validator,
	}
}

// Register validates and stores a definition. Returns the stored
// definition, which may be the previously registered identical one.
func (r *Repository) Register(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def.ID == "" {
		def.ID = "wf-" + uuid.New().String()[:8]
	}

	if err := r.validator.Validate(def); err != nil {
		return nil, err
	}

	existing, err := r.persistence.Definitions().ByUseCaseVersion(ctx, def.UseCaseID, def.Version)
	if err == nil {
		same, err := sameContent(existing, def)
		if err != nil {
			return nil, err
		}

		if same {
			return existing, nil
		}

		return nil, fmt.Errorf("%w: %s@%s already registered with different content",
			persistence.ErrDefinitionConflict, def.UseCaseID, def.Version)
	} else if !persistence.IsDefinitionNotFound(err) {
		return nil, err
	}

	def.RegisteredAt = time.Now().UTC()

	if err := r.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

// ByID fetches a definition. An empty version matches any registered
// version of the workflow id; otherwise the versions must agree.
func (r *Repository) ByID(ctx context.Context, workflowID, version string) (*models.WorkflowDefinition, error) {
	def, err := r.persistence.Definitions().ByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if version != "" && def.Version != version {
		return nil, fmt.Errorf("%w: %s@%s", persistence.ErrDefinitionNotFound, workflowID, version)
	}

	return def, nil
}

// List returns all registered definitions.
func (r *Repository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return r.persistence.Definitions().List(ctx)
}

// HealthCheck reports persistence health for readiness probes.
func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "persistence layer is unhealthy: " + err.Error(), false
	}

	return "persistence layer is healthy", true
}

// sameContent compares definitions by canonical JSON digest, ignoring the
// registration timestamp and assigned id.
func sameContent(a, b *models.WorkflowDefinition) (bool, error) {
	digestA, err := contentDigest(a)
	if err != nil {
		return false, err
	}

	digestB, err := contentDigest(b)
	if err != nil {
		return false, err
	}

	return digestA == digestB, nil
}

func contentDigest(def *models.WorkflowDefinition) (string, error) {
	normalized := *def
	normalized.ID = ""
	normalized.RegisteredAt = time.Time{}

	data, err := json.Marshal(&normalized)
	if err != nil {
		return "", fmt.Errorf("failed to compute definition digest: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
