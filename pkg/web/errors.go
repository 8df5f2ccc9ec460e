package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/persistence"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto RFC 7807
// problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsValidationError(err):
		return badRequest(c, err.Error())
	case errors.Is(err, persistence.ErrDefinitionConflict):
		return conflict(c, err.Error())
	case errors.Is(err, engine.ErrUnknownWorkflow), persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow_not_found", err.Error())
	case errors.Is(err, engine.ErrUnknownRun), persistence.IsRunNotFound(err):
		return notFound(c, "run_not_found", err.Error())
	case errors.Is(err, engine.ErrNoPendingApproval):
		return notFound(c, "approval_not_found", err.Error())
	case errors.Is(err, engine.ErrRunTerminal):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}
