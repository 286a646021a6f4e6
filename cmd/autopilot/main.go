package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkmanabu122003/x-autopilot-sub001/internal/autopost"
	"github.com/mkmanabu122003/x-autopilot-sub001/internal/budget"
	autopilotconfig "github.com/mkmanabu122003/x-autopilot-sub001/internal/config"
	"github.com/mkmanabu122003/x-autopilot-sub001/internal/platform"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/config"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/database"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/llm"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/logging"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/monitoring"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/server"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("autopilot")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting Autopilot (social posting automation)")

	cfg := autopilotconfig.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	if err := database.ApplySchema(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("autopilot", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("autopilot", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
	}))

	// Usage ledger and monthly budget guard
	ledger := budget.NewLedger(budget.LedgerConfig{
		DB:            db,
		Logger:        logger,
		FlushInterval: time.Minute,
	})
	ledger.Start()
	guard := budget.NewGuard(budget.GuardConfig{
		DB:        db,
		BudgetUSD: cfg.MonthlyBudgetUSD,
	})

	// Generation providers, one per configured backend
	providerNames := cfg.Providers()
	if len(providerNames) == 0 {
		logger.Fatal("No LLM provider configured; set CLAUDE_API_KEY or GEMINI_API_KEY")
	}
	providers := make(map[string]llm.Provider, len(providerNames))
	for _, name := range providerNames {
		llmCfg := llm.Config{
			Provider:    name,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Effort:      cfg.LLMEffort,
			Timeout:     cfg.LLMTimeout,
			BudgetPause: cfg.BudgetPause,
			Gate:        guard,
			Recorder:    ledger,
			Pricer:      llm.TablePricer{},
		}
		switch name {
		case "claude":
			llmCfg.APIKey = cfg.ClaudeAPIKey
			llmCfg.APIURL = cfg.ClaudeAPIURL
		case "gemini":
			llmCfg.APIKey = cfg.GeminiAPIKey
			llmCfg.APIURL = cfg.GeminiAPIURL
		}
		provider, err := llm.NewProvider(name, llmCfg)
		if err != nil {
			logger.WithError(err).WithField("provider", name).Fatal("Failed to initialize LLM provider")
		}
		providers[name] = provider
		logger.WithField("provider", name).Info("LLM provider configured")
	}

	// Posting proxy client, degrades to draft-only when unset
	var publisher autopost.Publisher
	var targets autopost.TargetSource
	if cfg.PlatformAPIURL != "" {
		client, err := platform.NewClient(platform.Config{
			BaseURL: cfg.PlatformAPIURL,
			Token:   cfg.PlatformAPIToken,
			Timeout: cfg.PlatformTimeout,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create posting proxy client")
		}
		publisher = client
		targets = client
	} else {
		logger.Warn("PLATFORM_API_URL not set - immediate publishing and target suggestions disabled")
		publisher = platform.Disabled{}
		targets = platform.Disabled{}
	}

	store := autopost.NewStore(db)
	orchestrator, err := autopost.NewOrchestrator(autopost.Config{
		Store:            store,
		Providers:        providers,
		DefaultProvider:  providerNames[0],
		Publisher:        publisher,
		Targets:          targets,
		Logger:           logger,
		Metrics:          metricsCollector,
		ToleranceMinutes: cfg.ToleranceMinutes,
		ScheduleEndHour:  cfg.ScheduleEndHour,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create orchestrator")
	}

	scheduler := autopost.NewScheduler(orchestrator, logger)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start automation scheduler")
	}

	// Setup router
	router := server.SetupRouter(logger, "autopilot")
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetInfo())
	})

	api := router.Group("/api")
	api.GET("/budget", func(c *gin.Context) {
		status, err := guard.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read budget status"})
			return
		}
		c.JSON(http.StatusOK, status)
	})
	api.POST("/automation/:id/trigger", func(c *gin.Context) {
		entry, err := orchestrator.RunManual(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    entry.Status,
			"generated": entry.Generated,
			"errors":    entry.ErrorMessage,
		})
	})

	serverConfig := server.DefaultConfig("autopilot", cfg.Port)
	err = server.Start(serverConfig, router, logger, func(ctx context.Context) {
		scheduler.Stop(ctx)
		ledger.Stop()
	})
	if err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
