package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Application
	AppName string
	Env     string // development, staging, production
	Debug   bool
	Port    string

	// Logging
	LogLevel string
	LogJSON  bool

	// Database
	DatabaseType string
	DatabaseURL  string

	// Authentication
	JWTSecret        string
	MonitoringAPIKey string // shared key for unauthenticated ingestion
	TrustedMode      bool   // bypasses ingestion auth; development only

	// Client capture (served to clients and used by retentionctl smoke runs)
	DedupWindow      time.Duration
	DedupCapacity    int
	ServerEventNames []string

	// Alert throttle
	ThrottleDefaultCap    int
	ThrottleDefaultWindow time.Duration
	ThrottlePolicyFile    string
	ThrottlePolicies      map[string]ThrottlePolicy
	AlertWebhookURL       string

	// Retention
	AnonymizeAfterDays int
	PurgeAfterDays     int
	RetentionBatchSize int
	RetentionInterval  time.Duration

	// Ingress rate limiting (per client IP)
	IngestRatePerSecond float64
	IngestBurst         int

	// InfluxDB (performance metric mirror)
	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string
}

// ThrottlePolicy overrides the alert cap for one category.
type ThrottlePolicy struct {
	Cap    int           `yaml:"cap"`
	Window time.Duration `yaml:"window"`
}

type throttlePolicyFile struct {
	Categories map[string]ThrottlePolicy `yaml:"categories"`
}

var AppConfig *Config

// Load loads configuration from environment
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")

	config := &Config{
		AppName:  getEnv("APP_NAME", "pennywise-observability"),
		Env:      env,
		Debug:    getEnvBool("DEBUG", env == "development"),
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogJSON:  getEnvBool("LOG_JSON", env == "production"),

		DatabaseType: getEnv("DATABASE_TYPE", "postgres"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret:        getEnv("JWT_SECRET", "change-me-in-production-please-use-a-random-string"),
		MonitoringAPIKey: getEnv("MONITORING_API_KEY", ""),
		TrustedMode:      getEnvBool("MONITORING_TRUSTED_MODE", env == "development"),

		DedupWindow:      getEnvDuration("DEDUP_WINDOW", 5*time.Minute),
		DedupCapacity:    getEnvInt("DEDUP_CAPACITY", 1000),
		ServerEventNames: getEnvList("SERVER_EVENT_NAMES", []string{"page_view", "theme_changed", "export_started", "accessibility_violation"}),

		ThrottleDefaultCap:    getEnvInt("THROTTLE_DEFAULT_CAP", 10),
		ThrottleDefaultWindow: getEnvDuration("THROTTLE_DEFAULT_WINDOW", 15*time.Minute),
		ThrottlePolicyFile:    getEnv("THROTTLE_POLICY_FILE", ""),
		AlertWebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),

		AnonymizeAfterDays: getEnvInt("ANONYMIZE_AFTER_DAYS", 90),
		PurgeAfterDays:     getEnvInt("PURGE_AFTER_DAYS", 365),
		RetentionBatchSize: getEnvInt("RETENTION_BATCH_SIZE", 500),
		RetentionInterval:  getEnvDuration("RETENTION_INTERVAL", 24*time.Hour),

		IngestRatePerSecond: getEnvFloat("INGEST_RATE_PER_SECOND", 20),
		IngestBurst:         getEnvInt("INGEST_BURST", 60),

		InfluxDBURL:    getEnv("INFLUXDB_URL", ""),
		InfluxDBToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxDBOrg:    getEnv("INFLUXDB_ORG", "pennywise"),
		InfluxDBBucket: getEnv("INFLUXDB_BUCKET", "client_metrics"),
	}

	if config.ThrottlePolicyFile != "" {
		policies, err := LoadThrottlePolicies(config.ThrottlePolicyFile)
		if err != nil {
			log.Printf("Ignoring throttle policy file %s: %v", config.ThrottlePolicyFile, err)
		} else {
			config.ThrottlePolicies = policies
		}
	}

	AppConfig = config
	return config
}

// Validate checks cross-field rules that defaults cannot guarantee.
func (c *Config) Validate() error {
	var errs []error

	if c.TrustedMode && c.Env == "production" {
		errs = append(errs, errors.New("MONITORING_TRUSTED_MODE must not be enabled when APP_ENV=production"))
	}
	if !c.TrustedMode && c.MonitoringAPIKey == "" {
		errs = append(errs, errors.New("MONITORING_API_KEY is required outside trusted mode"))
	}
	if c.AnonymizeAfterDays <= 0 {
		errs = append(errs, errors.New("ANONYMIZE_AFTER_DAYS must be positive"))
	}
	if c.PurgeAfterDays <= c.AnonymizeAfterDays {
		errs = append(errs, fmt.Errorf("PURGE_AFTER_DAYS (%d) must be greater than ANONYMIZE_AFTER_DAYS (%d)", c.PurgeAfterDays, c.AnonymizeAfterDays))
	}
	if c.RetentionBatchSize <= 0 {
		errs = append(errs, errors.New("RETENTION_BATCH_SIZE must be positive"))
	}
	if c.ThrottleDefaultCap < 0 || c.ThrottleDefaultWindow <= 0 {
		errs = append(errs, errors.New("THROTTLE_DEFAULT_CAP must be >= 0 and THROTTLE_DEFAULT_WINDOW > 0"))
	}
	for category, p := range c.ThrottlePolicies {
		if p.Cap < 0 || p.Window <= 0 {
			errs = append(errs, fmt.Errorf("throttle policy %q needs cap >= 0 and window > 0", category))
		}
	}

	return errors.Join(errs...)
}

// AnonymizeAfter is the anonymization threshold as a duration.
func (c *Config) AnonymizeAfter() time.Duration {
	return time.Duration(c.AnonymizeAfterDays) * 24 * time.Hour
}

// PurgeAfter is the purge threshold as a duration.
func (c *Config) PurgeAfter() time.Duration {
	return time.Duration(c.PurgeAfterDays) * 24 * time.Hour
}

// LoadThrottlePolicies reads per-category overrides from a YAML file:
//
//	categories:
//	  error: {cap: 20, window: 10m}
func LoadThrottlePolicies(path string) (map[string]ThrottlePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file throttlePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse throttle policy file: %w", err)
	}
	return file.Categories, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Invalid boolean for %s, using default: %v", key, defaultValue)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Invalid integer for %s, using default: %d", key, defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Printf("Invalid float for %s, using default: %.2f", key, defaultValue)
			return defaultValue
		}
		return floatVal
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			log.Printf("Invalid duration for %s, using default: %s", key, defaultValue)
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
