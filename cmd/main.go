package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/config"
	"catalog-ingestion-service/internal/handlers"
	"catalog-ingestion-service/internal/ingest"
	"catalog-ingestion-service/internal/repository"
	"catalog-ingestion-service/internal/validation"
	"catalog-ingestion-service/internal/worker"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	appLogger := logrus.New()
	appLogger.SetFormatter(&logrus.JSONFormatter{})
	appLogger.SetLevel(logrus.InfoLevel)

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (cache invalidation disabled)", err)
		redisClient = nil
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Build the ingestion pipeline
	validator := validation.New(validation.DefaultPolicy())
	extractor := ingest.NewExtractor(validator, appLogger)
	parser := ingest.NewMetadataParser(validator, appLogger)
	images := ingest.NewImageProcessor(validator, appLogger)
	interpreter := ingest.NewInterpreter(validator, parser, images, appLogger)

	catalogRepo := repository.NewCatalogRepository(db, redisClient, cfg.MediaDir)
	uploadRepo := repository.NewUploadRepository(db)

	pipeline := ingest.NewPipeline(extractor, interpreter, catalogRepo, uploadRepo, appLogger)
	pool := worker.NewPool(cfg.WorkerCount, cfg.QueueSize, appLogger)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := catalogRepo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	uploadHandler := handlers.NewUploadHandler(uploadRepo, pipeline, pool, validator, cfg.UploadDir, appLogger)
	uploadHandler.RegisterRoutes(router)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Catalog ingestion service starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down catalog-ingestion-service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: Server shutdown error: %v", err)
	}

	// Let in-flight ingestion runs finish before exiting
	pool.Stop()
	log.Println("✓ Worker pool drained")

	log.Println("Catalog ingestion service stopped")
}
