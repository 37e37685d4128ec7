package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Port       string
	GinMode    string
	LogLevel   string
	CORSOrigin string

	DBDriver string
	DBDSN    string

	JWTSecret     string
	AdminEmail    string
	AdminPassword string

	Location            *time.Location
	ReservationDuration time.Duration
	MinLeadTime         time.Duration
	MaxPartySize        int
	SweepInterval       time.Duration
	FloorPlanPath       string

	RedisURL          string
	BlacklistCacheTTL time.Duration

	KafkaBroker string
	KafkaTopic  string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Debugf(".env not loaded: %v", err)
	}

	tzName := getEnv("RESTAURANT_TZ", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load RESTAURANT_TZ %q: %w", tzName, err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigin:    os.Getenv("CORS_ORIGIN"),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBDSN:         getEnv("DB_DSN", "reservations.db"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		Location:      loc,
		FloorPlanPath: os.Getenv("FLOOR_PLAN_PATH"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBroker:   os.Getenv("KAFKA_BROKER"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "reservations"),
	}

	if cfg.ReservationDuration, err = getMinutes("RESERVATION_DURATION_MINUTES", 90); err != nil {
		return nil, err
	}
	if cfg.MinLeadTime, err = getMinutes("MIN_LEAD_TIME_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.MaxPartySize, err = getInt("MAX_PARTY_SIZE", 30); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.BlacklistCacheTTL, err = getDuration("BLACKLIST_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.GinMode == "release" && cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set when GIN_MODE=release")
	}
	return cfg, nil
}

// InitDB opens the gorm connection for the configured driver.
func InitDB(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite only allows one writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getMinutes(key string, fallback int) (time.Duration, error) {
	n, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
