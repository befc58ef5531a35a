package server

import (
	"net/http"

	"github.com/eternisai/push-relay/internal/auth"
	"github.com/eternisai/push-relay/internal/logger"
	"github.com/eternisai/push-relay/internal/metrics"
	"github.com/eternisai/push-relay/internal/notifications"
	"github.com/gin-gonic/gin"
)

// NewRouter assembles the HTTP surface: CORS on every response, request IDs
// for log correlation, the metrics route, and the authenticated send route.
func NewRouter(service *notifications.Service, authMiddleware *auth.Middleware, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	router.GET("/metrics", metrics.Handler())

	// The send route accepts any method; the original endpoint never
	// distinguished them beyond the OPTIONS preflight.
	router.Any("/send", authMiddleware.RequireAuth(), notifications.SendHandler(service, log))

	return router
}

// corsMiddleware sets the headers the web clients rely on. Preflight requests
// get an empty 200 without reaching auth.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware attaches a request ID to the context and echoes it back.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := logger.GenerateRequestID()
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
