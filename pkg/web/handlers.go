// Package web provides HTTP handlers and REST API endpoints for sequence administration.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/followup/pkg/intake"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/scanner"
	"github.com/dukex/followup/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Scanner runs one due-step scan on demand.
type Scanner interface {
	ScanOnce(ctx context.Context) (*scanner.Report, error)
}

type APIHandlers struct {
	sequenceService   *services.Sequence
	assignmentService *services.Assignment
	intake            *intake.Intake
	scanner           Scanner
	validator         *validator.Validate
}

func NewAPIHandlers(
	sequenceService *services.Sequence,
	assignmentService *services.Assignment,
	intake *intake.Intake,
	scanner Scanner,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		sequenceService:   sequenceService,
		assignmentService: assignmentService,
		intake:            intake,
		scanner:           scanner,
		validator:         validator,
	}
}

// Routes mounts every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	s := router.Group("/sequences")
	s.Get("/", h.GetSequences)
	s.Post("/", h.CreateSequence)
	s.Get("/:id", h.GetSequence)
	s.Patch("/:id", h.UpdateSequence)
	s.Delete("/:id", h.DeleteSequence)

	s.Post("/:id/steps", h.AddStep)
	s.Delete("/:id/steps/:stepId", h.RemoveStep)

	s.Get("/:id/assignments", h.GetAssignments)
	s.Post("/:id/assignments", h.EnrollLead)

	a := router.Group("/assignments")
	a.Get("/:id", h.GetAssignment)
	a.Delete("/:id", h.RemoveAssignment)

	router.Post("/leads/events", h.LeadCreated)
	router.Post("/scans", h.TriggerScan)
	router.Get("/health", h.HealthCheck)
	router.Get("/readyz", h.Ready)
}

func (h *APIHandlers) GetSequences(c fiber.Ctx) error {
	sequences, err := h.sequenceService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"sequences":   sequences,
		"total_count": len(sequences),
	})
}

func (h *APIHandlers) GetSequence(c fiber.Ctx) error {
	sequence, err := h.sequenceService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sequence)
}

func (h *APIHandlers) CreateSequence(c fiber.Ctx) error {
	var req CreateSequenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.sequenceService.Create(c.Context(), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateSequence(c fiber.Ctx) error {
	var req UpdateSequenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.sequenceService.Update(c.Context(), c.Params("id"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteSequence(c fiber.Ctx) error {
	err := h.sequenceService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	var req AddStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.sequenceService.AddStep(c.Context(), c.Params("id"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	err := h.sequenceService.RemoveStep(c.Context(), c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetAssignments(c fiber.Ctx) error {
	req, err := parseListAssignmentsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	assignments, err := h.assignmentService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"assignments": assignments,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListAssignmentsRequest parses the status filter and pagination query parameters.
func parseListAssignmentsRequest(c fiber.Ctx) (*services.ListAssignmentsRequest, error) {
	req := &services.ListAssignmentsRequest{SequenceID: c.Params("id")}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.AssignmentStatus(statusStr)
		req.Status = &status
	}

	return req, nil
}

func (h *APIHandlers) EnrollLead(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	assignment, err := h.assignmentService.Enroll(c.Context(), c.Params("id"), req.LeadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(assignment)
}

func (h *APIHandlers) GetAssignment(c fiber.Ctx) error {
	assignment, err := h.assignmentService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(assignment)
}

func (h *APIHandlers) RemoveAssignment(c fiber.Ctx) error {
	assignment, err := h.assignmentService.Remove(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(assignment)
}

// LeadCreated receives the lead-created webhook.
func (h *APIHandlers) LeadCreated(c fiber.Ctx) error {
	result, err := h.intake.LeadCreated(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

// TriggerScan runs one scan synchronously and returns its report.
func (h *APIHandlers) TriggerScan(c fiber.Ctx) error {
	report, err := h.scanner.ScanOnce(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.sequenceService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Followup API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Followup API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Ready reports whether storage answers.
func (h *APIHandlers) Ready(c fiber.Ctx) error {
	if _, ok := h.sequenceService.HealthCheck(c.Context()); !ok {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.SendString("OK")
}
