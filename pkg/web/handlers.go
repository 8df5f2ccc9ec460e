// Package web provides the REST API for definition management and run
// lifecycle operations.
package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	Version        string         `json:"version,omitempty"`
	InitialContext map[string]any `json:"initial_context,omitempty"`
}

// ResolveApprovalRequest is the body of the approval resolution endpoint.
type ResolveApprovalRequest struct {
	Decision models.ApprovalDecision `json:"decision"`
	Actor    string                  `json:"actor"`
}

type APIHandlers struct {
	definitions  *workflow.Repository
	orchestrator *engine.Orchestrator
}

func NewAPIHandlers(definitions *workflow.Repository, orchestrator *engine.Orchestrator) *APIHandlers {
	return &APIHandlers{
		definitions:  definitions,
		orchestrator: orchestrator,
	}
}

func (h *APIHandlers) RegisterDefinition(c fiber.Ctx) error {
	var def models.WorkflowDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	registered, err := h.definitions.Register(c.Context(), &def)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(registered)
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	defs, err := h.definitions.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": defs,
		"total_count": len(defs),
	})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.definitions.ByID(c.Context(), id, c.Query("version"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.WorkflowID == "" {
		return badRequest(c, "workflow_id is required")
	}

	run, err := h.orchestrator.Start(c.Context(), req.WorkflowID, req.Version, req.InitialContext)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.orchestrator.ListRuns(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.orchestrator.GetStatus(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	if err := h.orchestrator.Cancel(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetPendingApprovals(c fiber.Ctx) error {
	approvals, err := h.orchestrator.PendingApprovals(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"approvals":   approvals,
		"total_count": len(approvals),
	})
}

func (h *APIHandlers) ResolveApproval(c fiber.Ctx) error {
	runID := c.Params("id")
	stepID := c.Params("stepId")

	if runID == "" || stepID == "" {
		return badRequest(c, "Run ID and step ID are required")
	}

	var req ResolveApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Decision != models.ApprovalDecisionApprove && req.Decision != models.ApprovalDecisionReject {
		return badRequest(c, "decision must be 'approve' or 'reject'")
	}

	if req.Actor == "" {
		return badRequest(c, "actor is required")
	}

	if err := h.orchestrator.ResolveApproval(c.Context(), runID, stepID, req.Decision, req.Actor); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.definitions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Maestro API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Maestro API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"active_runs": h.orchestrator.ActiveRuns(),
		"timestamp":   time.Now().UTC(),
	})
}
