package web

import (
	"github.com/dukex/creditflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

const (
	msgNotAssigned         = "Automation not assigned to this client"
	msgInactive            = "Automation is not active for this client"
	msgClientNotFound      = "Client not found"
	msgInsufficientCredits = "Insufficient credits"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// internalError hides err from the caller; handlers log it before calling.
func internalError(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithDetail(detail)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func badGateway(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadGateway).
		WithInstance(c.Path()).
		WithType("upstream_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadGateway).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsEntitlementError(err):
		msg := msgNotAssigned
		if services.IsInactiveError(err) {
			msg = msgInactive
		}

		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: msg})

	case services.IsNotFoundError(err):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: msgClientNotFound})

	case services.IsUpstreamError(err):
		return badGateway(c, "The automation engine could not run this dispatch")

	case services.IsMisconfiguredError(err):
		return internalError(c, "Automation webhook not configured")

	default:
		return internalError(c, "Internal server error")
	}
}
