package web

import (
	"errors"

	"github.com/dukex/followup/pkg/intake"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/scanner"
	"github.com/dukex/followup/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType string, err error) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), intake.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrDuplicateActiveAssignment):
		return conflict(c, "duplicate_active_assignment", err)

	case errors.Is(err, services.ErrSequenceInactive):
		return conflict(c, "sequence_inactive", err)

	case errors.Is(err, scanner.ErrScanInProgress):
		return conflict(c, "scan_in_progress", err)

	case persistence.IsStepOrderConflict(err):
		return conflict(c, "step_order_conflict", err)

	case persistence.IsSequenceNotFound(err):
		return notFound(c, "sequence_not_found", "sequence not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step_not_found", "step not found")

	case persistence.IsAssignmentNotFound(err):
		return notFound(c, "assignment_not_found", "assignment not found")

	case leads.IsLeadNotFound(err):
		return notFound(c, "lead_not_found", "lead not found")

	default:
		return internalError(c, err)
	}
}
