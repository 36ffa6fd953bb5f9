package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/internal/auth"
	"github.com/aiecon/banking-api/internal/config"
	"github.com/aiecon/banking-api/internal/database"
	"github.com/aiecon/banking-api/internal/directory"
	"github.com/aiecon/banking-api/internal/holdings"
	"github.com/aiecon/banking-api/internal/ledger"
	"github.com/aiecon/banking-api/internal/trading"
	"github.com/aiecon/banking-api/pkg/middleware"
	"github.com/aiecon/banking-api/pkg/response"
)

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

// main initializes and runs the investment banking API server with graceful
// shutdown support. It opens the three store databases, seeds the demo
// accounts, wires the services and starts the order reconciler.
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Each store owns its own database file
	usersDB, err := database.NewUsersDatabase(cfg.UsersDB)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize users database")
	}

	balancesDB, err := database.NewBalancesDatabase(cfg.BalancesDB)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize balances database")
	}

	transactionsDB, err := database.NewTransactionsDatabase(cfg.TransactionsDB)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize transactions database")
	}

	// Initialize services and handlers
	directoryService, err := directory.NewService(usersDB)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize directory service")
	}

	authService := auth.NewService(cfg.JWTSecret, cfg.TokenDuration)
	authHandlers := auth.NewGinHandlers(authService, directoryService)
	directoryHandlers := directory.NewGinHandlers(directoryService)

	ledgerService := ledger.NewService(balancesDB)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	holdingsService := holdings.NewService(transactionsDB)

	tradingService := trading.NewService(transactionsDB, ledgerService, holdingsService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	// Seed demo accounts
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer seedCancel()
	if err := directoryService.SeedDefaultUsers(seedCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed directory")
	}
	if err := ledgerService.SeedDefaultBalances(seedCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed ledger")
	}

	// Create and start the order reconciler
	reconciler := trading.NewReconciler(tradingService)
	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	defer reconcilerCancel()

	go reconciler.Start(reconcilerCtx)

	// Initialize router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(zlog.Logger))

	// Setup API routes
	setupRoutes(router, authService, authHandlers, directoryHandlers, ledgerHandlers, tradingHandlers,
		usersDB, balancesDB, transactionsDB)

	// Create server
	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("address", cfg.ServerAddress).Msg("Starting server")
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
// - Auth routes: public login endpoint
// - Everything else: protected by JWT authentication scoped to an account
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	directoryHandlers *directory.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	databases ...*gorm.DB,
) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler(databases...))

		// Auth routes, rate limited by client IP
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimit())
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Account-scoped routes. The rate limiter runs after the JWT
		// middleware so authenticated clients are keyed by account number.
		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService))
		protected.Use(middleware.RateLimit())
		{
			protected.GET("/users/:account_number", directoryHandlers.GetUserHandler())

			protected.GET("/balance/:account_number", ledgerHandlers.GetBalanceHandler())
			protected.POST("/balance/withdraw", ledgerHandlers.WithdrawHandler())
			protected.POST("/balance/deposit", ledgerHandlers.DepositHandler())
			protected.GET("/transactions/:account_number", ledgerHandlers.ListTransactionsHandler())

			protected.POST("/orders/buy", tradingHandlers.BuyHandler())
			protected.POST("/orders/sell", tradingHandlers.SellHandler())
			protected.GET("/orders/:account_number", tradingHandlers.GetOrdersHandler())

			protected.GET("/portfolio/:account_number", tradingHandlers.GetPortfolioHandler())
			protected.GET("/portfolio/:account_number/summary", tradingHandlers.PortfolioSummaryHandler())
		}
	}
}

// healthHandler pings every store database
func healthHandler(databases ...*gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for _, db := range databases {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				response.DependencyFailure(c, "A backing store is unavailable")
				return
			}
		}

		response.Success(c, gin.H{"status": "healthy"})
	}
}
