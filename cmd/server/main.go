package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/api"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/auth"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/database"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/engine"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/export"
	"github.com/MatthiasCiers/Agent-Based-Simulator/pkg/middleware"
)

const jwtSecret = "simulator-secret-key"

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the settlement simulation API server with
// graceful shutdown support
func main() {
	// Initialize export database
	db, err := database.NewDatabase(os.Getenv("EXPORT_DB"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize export database")
	}

	riskFactor := 0.0
	if raw := os.Getenv("RISK_FACTOR"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			riskFactor = parsed
		}
	}

	// Initialize the simulation engine
	sim := engine.New(engine.Config{
		RiskFactor:          riskFactor,
		AllowPartialDefault: os.Getenv("DISALLOW_PARTIAL") != "true",
	})

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	exportService := export.NewService(db)
	engineHandlers := api.NewGinHandlers(sim, exportService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, engineHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: public endpoints for authentication
// - Instruction and snapshot routes: protected by JWT authentication
// - Internal routes: protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	engineHandlers *api.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Instruction routes
		instructions := v1.Group("/instructions")
		instructions.Use(middleware.JWTAuth(jwtSecret))
		{
			instructions.POST("", engineHandlers.SubmitTransactionHandler())
			instructions.POST("/cancel", engineHandlers.CancelTransactionHandler())
		}

		// Snapshot routes
		snapshots := v1.Group("/snapshots")
		snapshots.Use(middleware.JWTAuth(jwtSecret))
		{
			snapshots.GET("/accounts", engineHandlers.AccountsHandler())
			snapshots.GET("/institutions", engineHandlers.InstitutionsHandler())
			snapshots.GET("/instructions", engineHandlers.InstructionsHandler())
			snapshots.GET("/confirmations", engineHandlers.ConfirmationsHandler())
			snapshots.GET("/audit", engineHandlers.AuditHandler())
			snapshots.GET("/efficiency", engineHandlers.EfficiencyHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/institutions", engineHandlers.RegisterInstitutionHandler())
			internal.POST("/accounts", engineHandlers.RegisterAccountHandler())
			internal.POST("/ticks", engineHandlers.TickHandler())
			internal.POST("/export", engineHandlers.ExportHandler())
		}
	}
}
