package controller

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/mail"
)

type FeedbackController struct {
	mailer mail.Mailer
	cfg    *config.Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFeedbackController(mailer mail.Mailer, cfg *config.Config) *FeedbackController {
	return &FeedbackController{
		mailer:   mailer,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-sender limiter: 1 submission per minute, burst 3.
func (c *FeedbackController) limiter(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1.0/60.0), 3)
		c.limiters[key] = lim
	}
	return lim
}

// SubmitFeedback godoc
// @Summary Submit product feedback
// @Description Forwards feedback to the coach inbox. Rate limited per sender.
// @Tags Feedback
// @Accept json
// @Produce json
// @Param request body dto.FeedbackRequest true "Feedback"
// @Success 200 "Sent"
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 429 {object} dto.ErrorResponse "Too many submissions"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /feedback [post]
func (c *FeedbackController) SubmitFeedback(ctx *gin.Context) {
	var req dto.FeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: err.Error()})
		return
	}

	key := req.Email
	if key == "" {
		key = ctx.ClientIP()
	}
	if !c.limiter(key).Allow() {
		ctx.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Message: "Too many feedback submissions, try again later"})
		return
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Feedback from %s\n", key)
	if req.Stars > 0 {
		fmt.Fprintf(&body, "Stars: %d/5\n", req.Stars)
	}
	if req.Page != "" {
		fmt.Fprintf(&body, "Page: %s\n", req.Page)
	}
	fmt.Fprintf(&body, "\n%s\n", req.Message)
	if req.ConsoleErrors != "" {
		fmt.Fprintf(&body, "\nConsole errors:\n%s\n", req.ConsoleErrors)
	}

	err := c.mailer.Send(ctx.Request.Context(), mail.Outgoing{
		FromName: "Pathwise Feedback",
		To:       c.cfg.Gmail.BotEmail,
		Subject:  "Portal feedback",
		Body:     body.String(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to forward feedback")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to submit feedback"})
		return
	}
	ctx.Status(http.StatusOK)
}
