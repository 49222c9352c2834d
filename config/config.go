package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	// Monitoring engine
	MarketTimezone string
	PollInterval   time.Duration
	ResetTime      string // "HH:MM", daily trigger reset
	AlertSound     bool
	AlertSoundFile string

	// Watchlist persistence
	StoreBackend string // file, sqlite, mongo
	WatchlistDir string
	SQLitePath   string
	MongoURI     string

	// Alert history database (optional)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MarketTimezone: getEnv("MARKET_TZ", "Asia/Taipei"),
		PollInterval:   time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 30)) * time.Second,
		ResetTime:      getEnv("RESET_TIME", "14:30"),
		AlertSound:     getEnv("ALERT_SOUND", "true") == "true",
		AlertSoundFile: getEnv("ALERT_SOUND_FILE", "alert.mp3"),

		StoreBackend: getEnv("STORE_BACKEND", "file"),
		WatchlistDir: getEnv("WATCHLIST_DIR", "data"),
		SQLitePath:   getEnv("SQLITE_PATH", "data/watchlist.db"),
		MongoURI:     getEnv("MONGODB_URI", ""),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "twse_alerts"),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}

	AppConfig = config
	return config, nil
}

// HistoryEnabled reports whether the alert history database is configured.
func (c *Config) HistoryEnabled() bool {
	return c.DBHost != ""
}

// MarketLocation resolves the configured market timezone, falling back
// to the local clock when the zone cannot be loaded.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		log.Printf("Invalid MARKET_TZ %q, using local time: %v", c.MarketTimezone, err)
		return time.Local
	}
	return loc
}

// InitDB initializes the alert history database connection
func InitDB() (*gorm.DB, error) {
	log.Printf("Connecting to history database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=%s",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
		AppConfig.MarketTimezone,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("History database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return parsed
}
