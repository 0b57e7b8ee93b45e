package main

import (
	"context"

	"github.com/gavincwyant/traintrack/internal/handlers"
	"github.com/gavincwyant/traintrack/internal/ledger"
	"github.com/gavincwyant/traintrack/pkg/auth"
	"github.com/gavincwyant/traintrack/pkg/config"
	"github.com/gavincwyant/traintrack/pkg/database"
	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/monitoring"
	"github.com/gavincwyant/traintrack/pkg/server"
	"github.com/gavincwyant/traintrack/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("bursar")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Bursar (Billing API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("MIGRATE_ON_START", true) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Schema migration failed")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("bursar", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("bursar", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"JWT_SECRET":   jwtSecret,
	}))

	// Create custom billing metrics
	metrics := &handlers.BursarMetrics{
		SessionDeductions: metricsCollector.NewCounter("session_deductions_total", "Session deductions processed", []string{"outcome"}),
		CreditOperations:  metricsCollector.NewCounter("credit_operations_total", "Balance credit operations", []string{"source", "status"}),
		InvoiceOperations: metricsCollector.NewCounter("invoice_operations_total", "Invoice operations", []string{"operation", "status"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Initialize the billing engine and handlers
	engine := ledger.NewEngine(db, logger, ledger.DefaultConfig())
	handlers.Init(db, logger, engine, metrics)

	// Initialize and start JobManager for session-event billing
	jobManager := handlers.NewJobManager(db, logger, engine)
	if client := jobManager.KafkaClient(); client != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(client))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobManager.Start(ctx)
	defer jobManager.Stop()

	logger.Info("JobManager started - session billing jobs active")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "bursar", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/billing/ prefix)
	{
		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.POST("/clients/:client_id/credits", handlers.AddClientCredit)
			protected.GET("/clients/:client_id/transactions", handlers.GetClientTransactions)
			protected.GET("/billing/prepaid/summary", handlers.GetPrepaidSummary)
			protected.POST("/clients/:client_id/topup-invoices", handlers.GenerateTopUpInvoice)
			protected.POST("/invoices/:invoice_id/void-and-switch", handlers.VoidInvoiceAndSwitch)
		}

		// Scheduling and payment callbacks (service-to-service)
		serviceAPI := router.Group("")
		serviceAPI.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			serviceAPI.POST("/sessions/:session_id/deduct", handlers.DeductSessionBalance)
			serviceAPI.POST("/invoices/:invoice_id/mark-paid", handlers.MarkInvoicePaid)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("bursar", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
