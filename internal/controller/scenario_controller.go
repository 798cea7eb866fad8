package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/scenario"
)

type ScenarioController struct {
	cfg *config.Config
}

func NewScenarioController(cfg *config.Config) *ScenarioController {
	return &ScenarioController{cfg: cfg}
}

// ListScenarios godoc
// @Summary List available practice scenarios
// @Tags Scenarios
// @Produce json
// @Success 200 {array} dto.ScenarioSummaryDTO
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /scenarios [get]
func (c *ScenarioController) ListScenarios(ctx *gin.Context) {
	scenarios, err := scenario.List(c.cfg.App.ScenarioDir)
	if err != nil {
		log.Error().Err(err).Str("dir", c.cfg.App.ScenarioDir).Msg("ListScenarios failed")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to list scenarios"})
		return
	}

	summaries := make([]dto.ScenarioSummaryDTO, 0, len(scenarios))
	for _, scn := range scenarios {
		summaries = append(summaries, dto.ScenarioSummaryDTO{
			ID:              scn.ID,
			Name:            scn.Name,
			Description:     scn.Description,
			StudentTask:     scn.StudentTask,
			InteractionType: string(scn.InteractionType),
		})
	}
	ctx.JSON(http.StatusOK, summaries)
}
