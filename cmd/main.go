package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/controller"
	"github.com/pathwise/epistle/internal/database"
	"github.com/pathwise/epistle/internal/logger"
	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/scenario"
	"github.com/pathwise/epistle/internal/service"
)

// @title Pathwise Email Coach API
// @version 1.0
// @description Email-writing practice service: scenario attempts, AI grading of real emails, mailbox push processing.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			NewGinEngine,
			NewRubric,
			mail.NewGmailMailer,
		),

		fx.Provide(
			repository.NewUserRepository,
			repository.NewAttemptRepository,
			repository.NewWatchRepository,
			repository.NewProcessedMessageRepository,
		),

		fx.Provide(
			service.NewGraderService,
			service.NewMatcherService,
			service.NewWatchService,
			service.NewAttemptService,
			service.NewInboundService,
		),

		fx.Provide(
			controller.NewTokenVerifier,
			controller.NewAttemptController,
			controller.NewScenarioController,
			controller.NewNotificationController,
			controller.NewFeedbackController,
		),

		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(AutoMigrateDB),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

func NewRubric(cfg *config.Config) (*scenario.Rubric, error) {
	return scenario.LoadRubric(cfg.App.RubricPath)
}

func NewGinEngine(cfg *config.Config) *gin.Engine {
	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	origins := []string{"*"}
	if cfg.App.CORSOrigin != "" {
		origins = []string{cfg.App.CORSOrigin}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	return r
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	verifier controller.TokenVerifier,
	attemptCtrl *controller.AttemptController,
	scenarioCtrl *controller.ScenarioController,
	notificationCtrl *controller.NotificationController,
	feedbackCtrl *controller.FeedbackController,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/scenarios", scenarioCtrl.ListScenarios)
		api.POST("/feedback", feedbackCtrl.SubmitFeedback)
		// Pub/Sub authenticates its push subscription at the infrastructure
		// level (OIDC on the subscription), not per request here.
		api.POST("/notifications/gmail", notificationCtrl.HandleGmailPush)

		authed := api.Group("")
		authed.Use(controller.RequireAuth(verifier))
		{
			authed.POST("/scenarios/:scenario_id/start", attemptCtrl.StartScenario)
			authed.GET("/attempts", attemptCtrl.ListAttempts)
			authed.GET("/attempts/active", attemptCtrl.ActiveAttempt)
			authed.GET("/attempts/:attempt_id", attemptCtrl.GetAttempt)
			authed.POST("/attempts/:attempt_id/abandon", attemptCtrl.AbandonAttempt)
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Email coach API server starting on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.User{},
		&model.Attempt{},
		&model.WatchStatus{},
		&model.ProcessedMessage{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
