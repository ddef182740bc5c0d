package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/openfiscal/broker-backend/internal/db"
	"github.com/openfiscal/broker-backend/internal/handlers"
	"github.com/openfiscal/broker-backend/internal/middleware"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/server"
	"github.com/openfiscal/broker-backend/internal/services"
	"github.com/openfiscal/broker-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	listenAddr := utils.GetEnv("LISTEN_ADDR", ":8080", log)
	uploadPrefix := utils.GetEnv("UPLOAD_KEY_PREFIX", "submissions", log)
	allowOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	submissionRepo := repos.NewSubmissionRepo(thePG, log)
	jobRepo := repos.NewJobRepo(thePG, log)
	fileStatusRepo := repos.NewFileStatusRepo(thePG, log)
	errorRecordRepo := repos.NewErrorRecordRepo(thePG, log)
	jobEventRepo := repos.NewJobEventRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	handleIssuer := services.NewKeyHandleIssuer(uploadPrefix)
	submissionService := services.NewSubmissionService(thePG, log, submissionRepo, jobRepo, jobEventRepo, handleIssuer)
	pipelineService := services.NewPipelineService(thePG, log, jobRepo, submissionRepo, fileStatusRepo, errorRecordRepo, jobEventRepo)
	reportService := services.NewReportService(thePG, log, jobRepo, submissionRepo, errorRecordRepo)

	// Handlers + router
	brokerHandler := handlers.NewBrokerHandler(log, submissionService, pipelineService, reportService)
	actorMiddleware := middleware.NewActorMiddleware(log)

	router := server.NewRouter(server.RouterConfig{
		Log:             log,
		BrokerHandler:   brokerHandler,
		ActorMiddleware: actorMiddleware,
		AllowOrigins:    strings.Split(allowOrigins, ","),
	})

	log.Info("Starting broker backend", "addr", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
