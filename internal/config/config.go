package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalog-ingestion-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Server
	Port        string
	Environment string

	// Storage
	UploadDir string
	MediaDir  string

	// Background workers
	WorkerCount int
	QueueSize   int

	// Redis
	RedisURL string
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	workerCount, _ := strconv.Atoi(getEnv("WORKER_COUNT", "2"))
	queueSize, _ := strconv.Atoi(getEnv("QUEUE_SIZE", "10"))

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "catalog_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Server
		Port:        getEnv("PORT", "8086"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		MediaDir:  getEnv("MEDIA_DIR", "media"),

		// Background workers
		WorkerCount: workerCount,
		QueueSize:   queueSize,

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run auto-migration to ensure schema is up to date
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.ProductImage{},
		&models.PriceWeight{},
		&models.BulkUpload{},
	); err != nil {
		log.Printf("Warning: Auto-migration failed: %v", err)
		// Don't fail startup, just log the warning
	} else {
		log.Println("✓ Database schema migration completed")
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
