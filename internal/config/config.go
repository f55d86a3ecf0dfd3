// internal/config/config.go
package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Alerting  AlertingConfig
	Timing    TimingConfig
	Risk      RiskConfig
	LogLevel  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RiskTTL       time.Duration
}

type SchedulerConfig struct {
	Tick                  time.Duration
	UsageRecalcInterval   time.Duration
	AlertGenInterval      time.Duration
	StockHistoryInterval  time.Duration
	DailySnapshotInterval time.Duration
	AlertMetricsInterval  time.Duration
	RiskRefreshInterval   time.Duration
	TimingRefreshInterval time.Duration
}

type AlertingConfig struct {
	// UsageSpikeFactor is the multiple of average daily usage above which a
	// usage_spike alert fires.
	UsageSpikeFactor float64
	// NoMovementDays is the age of the last completed transaction beyond which
	// a stocked product gets a no_movement alert.
	NoMovementDays int
}

type TimingConfig struct {
	SupplierLeadDays   int
	ShippingLeadDays   int
	ProcessingLeadDays int
	SafetyBufferDays   int
	// MaxCacheAge is how old a product's cached timing fields may get before
	// the staleness sweep recomputes them.
	MaxCacheAge time.Duration
}

type RiskConfig struct {
	ServiceURL string
	Timeout    time.Duration
	// Expiry is how long a computed risk score row stays valid.
	Expiry time.Duration
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "stocksense")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_RISK_TTL_SECONDS", 3600)
		viper.SetDefault("SCHEDULER_TICK_SECONDS", 10)
		viper.SetDefault("JOB_USAGE_RECALC_HOURS", 24)
		viper.SetDefault("JOB_ALERT_GEN_HOURS", 1)
		viper.SetDefault("JOB_STOCK_HISTORY_HOURS", 6)
		viper.SetDefault("JOB_DAILY_SNAPSHOT_HOURS", 24)
		viper.SetDefault("JOB_ALERT_METRICS_HOURS", 24)
		viper.SetDefault("JOB_RISK_REFRESH_HOURS", 1)
		viper.SetDefault("JOB_TIMING_REFRESH_HOURS", 6)
		viper.SetDefault("ALERT_USAGE_SPIKE_FACTOR", 2.0)
		viper.SetDefault("ALERT_NO_MOVEMENT_DAYS", 30)
		viper.SetDefault("TIMING_SUPPLIER_LEAD_DAYS", 7)
		viper.SetDefault("TIMING_SHIPPING_LEAD_DAYS", 3)
		viper.SetDefault("TIMING_PROCESSING_LEAD_DAYS", 2)
		viper.SetDefault("TIMING_SAFETY_BUFFER_DAYS", 3)
		viper.SetDefault("TIMING_MAX_CACHE_AGE_HOURS", 24)
		viper.SetDefault("RISK_SERVICE_URL", "http://localhost:8500")
		viper.SetDefault("RISK_TIMEOUT_SECONDS", 10)
		viper.SetDefault("RISK_EXPIRY_HOURS", 2)

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			LogLevel: viper.GetString("LOG_LEVEL"),
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:       viper.GetBool("CACHE_ENABLED"),
				RedisURL:      viper.GetString("REDIS_URL"),
				RedisHost:     viper.GetString("REDIS_HOST"),
				RedisPort:     viper.GetString("REDIS_PORT"),
				RedisPassword: viper.GetString("REDIS_PASSWORD"),
				RedisDB:       viper.GetInt("REDIS_DB"),
				RiskTTL:       time.Duration(viper.GetInt("CACHE_RISK_TTL_SECONDS")) * time.Second,
			},
			Scheduler: SchedulerConfig{
				Tick:                  time.Duration(viper.GetInt("SCHEDULER_TICK_SECONDS")) * time.Second,
				UsageRecalcInterval:   time.Duration(viper.GetInt("JOB_USAGE_RECALC_HOURS")) * time.Hour,
				AlertGenInterval:      time.Duration(viper.GetInt("JOB_ALERT_GEN_HOURS")) * time.Hour,
				StockHistoryInterval:  time.Duration(viper.GetInt("JOB_STOCK_HISTORY_HOURS")) * time.Hour,
				DailySnapshotInterval: time.Duration(viper.GetInt("JOB_DAILY_SNAPSHOT_HOURS")) * time.Hour,
				AlertMetricsInterval:  time.Duration(viper.GetInt("JOB_ALERT_METRICS_HOURS")) * time.Hour,
				RiskRefreshInterval:   time.Duration(viper.GetInt("JOB_RISK_REFRESH_HOURS")) * time.Hour,
				TimingRefreshInterval: time.Duration(viper.GetInt("JOB_TIMING_REFRESH_HOURS")) * time.Hour,
			},
			Alerting: AlertingConfig{
				UsageSpikeFactor: viper.GetFloat64("ALERT_USAGE_SPIKE_FACTOR"),
				NoMovementDays:   viper.GetInt("ALERT_NO_MOVEMENT_DAYS"),
			},
			Timing: TimingConfig{
				SupplierLeadDays:   viper.GetInt("TIMING_SUPPLIER_LEAD_DAYS"),
				ShippingLeadDays:   viper.GetInt("TIMING_SHIPPING_LEAD_DAYS"),
				ProcessingLeadDays: viper.GetInt("TIMING_PROCESSING_LEAD_DAYS"),
				SafetyBufferDays:   viper.GetInt("TIMING_SAFETY_BUFFER_DAYS"),
				MaxCacheAge:        time.Duration(viper.GetInt("TIMING_MAX_CACHE_AGE_HOURS")) * time.Hour,
			},
			Risk: RiskConfig{
				ServiceURL: viper.GetString("RISK_SERVICE_URL"),
				Timeout:    time.Duration(viper.GetInt("RISK_TIMEOUT_SECONDS")) * time.Second,
				Expiry:     time.Duration(viper.GetInt("RISK_EXPIRY_HOURS")) * time.Hour,
			},
		}
	})

	return instance
}
