package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	// Base64-encoded 32-byte key sealing bank account numbers at rest.
	AccountSecretKey string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Email      EmailConfig
	Scheduler  SchedulerConfig
	Compliance ComplianceConfig
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SchedulerConfig struct {
	RunIntervalSeconds int
	BatchSize          int
}

type ComplianceConfig struct {
	// Days before a trust account's reconciliation is considered stale.
	ReconciliationWindowDays int
	// Dedup window for repeated alerts of the same rule, in hours.
	AlertDedupHours int
	// Trailing window for disbursement-velocity forecasting, in days.
	VelocityWindowDays int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "trustledger"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		AccountSecretKey: strings.TrimSpace(getenv("ACCOUNT_SECRET_KEY", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "trustledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "alerts@trustledger.local"),
		},
		Scheduler: SchedulerConfig{
			RunIntervalSeconds: getenvInt("SCHEDULER_RUN_INTERVAL", 60),
			BatchSize:          getenvInt("SCHEDULER_BATCH_SIZE", 50),
		},
		Compliance: ComplianceConfig{
			ReconciliationWindowDays: getenvInt("COMPLIANCE_RECONCILIATION_WINDOW_DAYS", 30),
			AlertDedupHours:          getenvInt("COMPLIANCE_ALERT_DEDUP_HOURS", 24),
			VelocityWindowDays:       getenvInt("COMPLIANCE_VELOCITY_WINDOW_DAYS", 90),
		},
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

// Module provides application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)
