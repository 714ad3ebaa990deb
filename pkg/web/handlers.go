package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukex/creditflow/pkg/credits"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	dispatch  *services.Dispatch
	ledger    *services.Ledger
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	dispatch *services.Dispatch,
	ledger *services.Ledger,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		dispatch:  dispatch,
		ledger:    ledger,
		validator: validator,
		logger:    logger,
	}
}

// CheckCredits reports whether a client may run an automation. It never
// changes a balance or records an execution.
func (h *APIHandlers) CheckCredits(c fiber.Ctx) error {
	req := CheckCreditsRequest{
		ClientID:     c.Query("clientId"),
		AutomationID: c.Query("automationId"),
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "clientId and automationId query parameters are required")
	}

	clientID := models.ClientID(req.ClientID)
	automationID := models.AutomationID(req.AutomationID)

	verdict, err := h.dispatch.CheckCredits(c.Context(), clientID, automationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	switch verdict.Reason {
	case credits.ReasonNotAssigned:
		return c.Status(fiber.StatusForbidden).JSON(CheckCreditsDenied{Error: msgNotAssigned})
	case credits.ReasonInactive:
		return c.Status(fiber.StatusForbidden).JSON(CheckCreditsDenied{Error: msgInactive})
	case credits.ReasonClientNotFound:
		return c.Status(fiber.StatusNotFound).JSON(CheckCreditsDenied{Error: msgClientNotFound})
	}

	return c.JSON(CheckCreditsResponse{
		HasCredits:   verdict.Approved,
		Required:     verdict.Required,
		Remaining:    verdict.Remaining(),
		ClientID:     clientID,
		AutomationID: automationID,
	})
}

// Dispatch runs an automation on behalf of a client and charges its credits.
func (h *APIHandlers) Dispatch(c fiber.Ctx) error {
	var req DispatchRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "clientId and automationId are required")
	}

	result, err := h.dispatch.Dispatch(c.Context(), services.DispatchRequest{
		ClientID:     models.ClientID(req.ClientID),
		AutomationID: models.AutomationID(req.AutomationID),
		Payload:      req.Payload,
	})
	if err != nil {
		if services.IsInsufficientCreditsError(err) {
			return c.Status(fiber.StatusPaymentRequired).JSON(InsufficientCreditsResponse{
				Error:     msgInsufficientCredits,
				Required:  result.Required,
				Available: result.Available,
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(DispatchResponse{
		Success:     true,
		Message:     "Automation dispatched successfully",
		ExecutionID: result.ExecutionID,
	})
}

// GetClient returns a client with its current balance.
func (h *APIHandlers) GetClient(c fiber.Ctx) error {
	client, err := h.ledger.GetClient(c.Context(), models.ClientID(c.Params("clientId")))
	if err != nil {
		h.logIfInternal(c, err)

		return handleServiceError(c, err)
	}

	return c.JSON(client)
}

// GetClientExecutions lists a client's executions, newest first.
func (h *APIHandlers) GetClientExecutions(c fiber.Ctx) error {
	limit := 0

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "limit must be a number")
		}

		limit = parsed
	}

	list, err := h.ledger.ListExecutions(c.Context(), models.ClientID(c.Params("clientId")), limit)
	if err != nil {
		h.logIfInternal(c, err)

		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionsResponse{Executions: list, Count: len(list)})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.ledger.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Creditflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Creditflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
	})
}

func (h *APIHandlers) logIfInternal(c fiber.Ctx, err error) {
	if services.IsValidationError(err) || services.IsNotFoundError(err) {
		return
	}

	h.logger.ErrorContext(c.Context(), "request failed", "path", c.Path(), "error", err)
}
