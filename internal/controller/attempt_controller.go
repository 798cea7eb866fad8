package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/service"
)

type AttemptController struct {
	attemptService service.AttemptService
}

func NewAttemptController(attemptService service.AttemptService) *AttemptController {
	return &AttemptController{attemptService: attemptService}
}

// StartScenario godoc
// @Summary Start a practice scenario
// @Description Creates a pending attempt for the authenticated user and, for reply-type scenarios, sends the starter email first.
// @Tags Attempts
// @Accept json
// @Produce json
// @Param scenario_id path string true "Scenario ID"
// @Param request body dto.StartScenarioRequest true "Start request"
// @Success 200 {object} dto.StartScenarioResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 403 {object} dto.ErrorResponse "Email does not match the authenticated user"
// @Failure 404 {object} dto.ErrorResponse "Unknown scenario"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /scenarios/{scenario_id}/start [post]
func (c *AttemptController) StartScenario(ctx *gin.Context) {
	scenarioID := ctx.Param("scenario_id")

	var req dto.StartScenarioRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: err.Error()})
		return
	}
	if model.NormalizeEmail(req.Email) != AuthedEmail(ctx) {
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Message: "Email does not match the authenticated user"})
		return
	}

	resp, err := c.attemptService.StartScenario(ctx.Request.Context(), AuthedEmail(ctx), scenarioID)
	if errors.Is(err, service.ErrScenarioNotFound) {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Scenario not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("scenarioId", scenarioID).Msg("StartScenario failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to start scenario"})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// AbandonAttempt godoc
// @Summary Abandon a pending attempt
// @Description Moves the attempt to abandoned. Abandoning an already abandoned attempt is a no-op; abandoning a graded one is a conflict.
// @Tags Attempts
// @Produce json
// @Param attempt_id path string true "Attempt ID"
// @Success 204 "Abandoned"
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt already graded"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /attempts/{attempt_id}/abandon [post]
func (c *AttemptController) AbandonAttempt(ctx *gin.Context) {
	attemptID := ctx.Param("attempt_id")
	err := c.attemptService.AbandonAttempt(AuthedEmail(ctx), attemptID)
	switch {
	case errors.Is(err, repository.ErrAttemptNotFound):
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Attempt not found"})
	case errors.Is(err, service.ErrInvalidTransition):
		ctx.JSON(http.StatusConflict, dto.ErrorResponse{Message: "Attempt is already graded"})
	case err != nil:
		log.Error().Err(err).Str("attemptId", attemptID).Msg("AbandonAttempt failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to abandon attempt"})
	default:
		ctx.Status(http.StatusNoContent)
	}
}

// ListAttempts godoc
// @Summary List the authenticated user's attempts
// @Tags Attempts
// @Produce json
// @Success 200 {array} dto.AttemptSummaryDTO
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	attempts, err := c.attemptService.ListAttempts(AuthedEmail(ctx))
	if err != nil {
		log.Error().Err(err).Msg("ListAttempts failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to list attempts"})
		return
	}
	ctx.JSON(http.StatusOK, attempts)
}

// GetAttempt godoc
// @Summary Get one attempt with its grading breakdown
// @Tags Attempts
// @Produce json
// @Param attempt_id path string true "Attempt ID"
// @Success 200 {object} dto.AttemptDetailDTO
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /attempts/{attempt_id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	attemptID := ctx.Param("attempt_id")
	attempt, err := c.attemptService.GetAttempt(AuthedEmail(ctx), attemptID)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Attempt not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("attemptId", attemptID).Msg("GetAttempt failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to load attempt"})
		return
	}
	ctx.JSON(http.StatusOK, attempt)
}

// ActiveAttempt godoc
// @Summary Get the user's current active attempt, if any
// @Description Returns 204 when there is no fresh pending attempt to restore.
// @Tags Attempts
// @Produce json
// @Success 200 {object} dto.AttemptDetailDTO
// @Success 204 "No active attempt"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /attempts/active [get]
func (c *AttemptController) ActiveAttempt(ctx *gin.Context) {
	attempt, err := c.attemptService.ActiveAttempt(AuthedEmail(ctx))
	if err != nil {
		log.Error().Err(err).Msg("ActiveAttempt failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to load active attempt"})
		return
	}
	if attempt == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, attempt)
}
