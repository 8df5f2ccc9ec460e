// Package file provides file-based persistence: one JSON document per
// entity under a root directory. Suited to development and small
// single-node deployments.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/maestro-flow/maestro/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root        string
	definitions *definitionRepository
	runs        *runRepository
	approvals   *approvalRepository
	schedules   *scheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts both a plain path and a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		definitions: &definitionRepository{dir: cleanRoot + "/definitions"},
		runs:        &runRepository{dir: cleanRoot + "/runs"},
		approvals:   &approvalRepository{dir: cleanRoot + "/approvals"},
		schedules:   &scheduleRepository{dir: cleanRoot + "/schedules"},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Runs() persistence.RunRepository               { return p.runs }
func (p *Persistence) Approvals() persistence.ApprovalRepository     { return p.approvals }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.schedules }

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
