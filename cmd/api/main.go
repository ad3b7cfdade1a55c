package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"autopost-engine/internal/config"
	"autopost-engine/internal/events"
	"autopost-engine/internal/events/kafka"
	"autopost-engine/internal/handler"
	"autopost-engine/internal/ledger"
	"autopost-engine/internal/middleware"
	"autopost-engine/internal/repository"
	"autopost-engine/internal/service"
	"autopost-engine/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.App.LogLevel)
	logger.GetLogger().Info("Starting Bank-Transaction Auto-Posting Service")

	db, err := connectDB(cfg.Database)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	logger.GetLogger().Info("Database connection established")

	// Repositories
	statementRepo := repository.NewStatementRepository(db)
	masterRepo := repository.NewMasterDataRepository(db)
	voucherRepo := repository.NewVoucherQueryRepository(db)
	runRepo := repository.NewRunRepository(db)
	txManager := repository.NewTxManager(db)

	// External services
	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.GetLogger().WithField("topic", cfg.Kafka.Topic).Info("Kafka publisher enabled")
	}

	// Services
	statementService := service.NewStatementService(statementRepo, cfg.App.BatchSize)
	postingService := service.NewPostingService(
		db,
		txManager,
		statementRepo,
		masterRepo,
		voucherRepo,
		runRepo,
		repository.NewOpenItemRepository,
		ledgerClient,
		publisher,
		cfg.Posting,
	)

	// Handlers
	statementHandler := handler.NewStatementHandler(statementService)
	postingHandler := handler.NewPostingHandler(postingService)

	router := setupRouter(statementHandler, postingHandler)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.GetLogger().WithField("address", addr).Info("Server starting")

	if err := router.Run(addr); err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to start server")
	}
}

func connectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func setupRouter(statementHandler *handler.StatementHandler, postingHandler *handler.PostingHandler) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		statements := v1.Group("/statements")
		{
			statements.POST("/import", statementHandler.ImportStatement)
			statements.POST("", statementHandler.BulkCreateStatements)
			statements.GET("/:id", statementHandler.GetStatement)
			statements.GET("", statementHandler.ListStatements)
		}

		posting := v1.Group("/posting")
		{
			posting.POST("/runs", postingHandler.ExecuteRun)
			posting.POST("/preview", postingHandler.PreviewReservation)
			posting.GET("/runs/:run_id", postingHandler.GetRun)
			posting.GET("/runs/:run_id/items", postingHandler.ListRunItems)
		}
	}

	return router
}
