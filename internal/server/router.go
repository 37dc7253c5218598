package server

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter: 관리 API용 Gin 라우터를 구성한다.
func NewRouter(handler *APIHandler, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger, "/health"))
	router.Use(cors.Default())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health", handler.HandleHealth)

	api := router.Group("/api")
	{
		api.GET("/quota/status", handler.HandleQuotaStatusAll)
		api.GET("/quota/status/:setId", handler.HandleQuotaStatus)
		api.POST("/admission/check", handler.HandleAdmissionCheck)
		api.POST("/admission/plan", handler.HandleBatchPlan)
		api.GET("/rotation/advice", handler.HandleRotationAdvice)
		api.GET("/profiles/:setId", handler.HandleProfile)
		api.GET("/events/recent", handler.HandleRecentEvents)
	}

	return router
}
