package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openfiscal/broker-backend/internal/handlers"
	"github.com/openfiscal/broker-backend/internal/middleware"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	BrokerHandler   *handlers.BrokerHandler
	ActorMiddleware *middleware.ActorMiddleware
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(cfg.Log))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-Agency-Code"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	v1 := router.Group("/v1")
	v1.Use(cfg.ActorMiddleware.RequireActor())
	{
		v1.POST("/submit_files", cfg.BrokerHandler.SubmitFiles)
		v1.POST("/finalize_job", cfg.BrokerHandler.FinalizeJob)
		v1.POST("/check_status", cfg.BrokerHandler.CheckStatus)
		v1.POST("/submission_error_reports", cfg.BrokerHandler.ErrorReport)
		v1.POST("/error_metrics", cfg.BrokerHandler.ErrorMetrics)
	}

	return router
}
