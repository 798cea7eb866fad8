package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/service"
)

type NotificationController struct {
	inboundService service.InboundService
}

func NewNotificationController(inboundService service.InboundService) *NotificationController {
	return &NotificationController{inboundService: inboundService}
}

// HandleGmailPush godoc
// @Summary Mailbox push endpoint
// @Description Receives Gmail watch notifications via Cloud Pub/Sub push. A non-2xx response makes Pub/Sub redeliver the notification.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body dto.PubSubPushRequest true "Pub/Sub push envelope"
// @Success 200 "Consumed"
// @Failure 400 {object} dto.ErrorResponse "Malformed envelope"
// @Failure 500 {object} dto.ErrorResponse "Processing failed, retry wanted"
// @Router /notifications/gmail [post]
func (c *NotificationController) HandleGmailPush(ctx *gin.Context) {
	var payload dto.PubSubPushRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		// A malformed envelope will never parse on retry; acknowledge-with-400
		// keeps the subscription from looping on it.
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid push envelope", Details: err.Error()})
		return
	}

	if err := c.inboundService.ProcessNotification(ctx.Request.Context(), payload); err != nil {
		log.Error().Err(err).Str("pubsubMessageId", payload.Message.MessageID).
			Msg("Notification processing failed, requesting redelivery")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Processing failed"})
		return
	}
	ctx.Status(http.StatusOK)
}
