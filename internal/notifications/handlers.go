package notifications

import (
	"net/http"

	"github.com/eternisai/push-relay/internal/auth"
	"github.com/eternisai/push-relay/internal/errors"
	"github.com/eternisai/push-relay/internal/logger"
	"github.com/gin-gonic/gin"
)

// SendHandler handles the send endpoint. Caller authentication and CORS are
// applied by middleware before this runs; every failure from here on is a 400
// with the error message, which is what the clients of the original endpoint
// expect.
func SendHandler(service *Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c)
		ctx := logger.WithOperation(c.Request.Context(), "send-notification")
		handlerLog := log.WithContext(ctx).WithComponent("send-handler")

		var req SendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handlerLog.Warn("rejecting malformed request body", "error", err.Error())
			errors.AbortWithBadRequest(c, "Invalid JSON body")
			return
		}

		handlerLog.Info("send request received",
			"user", userID,
			"title", req.Title)

		resp, err := service.Send(ctx, req)
		if err != nil {
			handlerLog.Warn("send request failed", "error", err.Error())
			errors.AbortWithBadRequest(c, err.Error())
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
