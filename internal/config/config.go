//
// Go 1.21
//
// Package config provides configuration management for the GeoTracker
// ingestion and broadcast service. It loads and validates all settings
// related to PostgreSQL connectivity, the WebSocket hub, retention
// sweeping, duplicate detection, reset-detector thresholds, and the
// optional MQTT broadcast mirror. Values are read from the environment
// with an optional YAML overlay via viper, and comprehensive
// validation ensures the result is safe to run with.
//
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration constants used as sane fallbacks when
// environment variables or a config file do not provide a value.
const (
	DefaultDBPort               = 5432
	DefaultWSPort               = 6789
	DefaultMaxConnections       = 10
	DefaultDataRetentionHours   = 24
	DefaultCleanupIntervalSecs  = 3600
	DefaultActivityTimeoutSecs  = 60
	DefaultDupTimeToleranceSecs = 5
	DefaultDupCoordTolerance    = 0.0001
	DefaultDupSearchWindowDays  = 1
	DefaultResetTimeGapSecs     = 300
	DefaultResetJumpDegrees     = 0.045
	DefaultResetDistanceRatio   = 0.5
)

// DBConfig defines PostgreSQL connection parameters, including
// credentials, pooling bounds, and statement timeouts.
type DBConfig struct {
	Host              string
	Port              int
	Database          string
	Username          string
	Password          string
	MinConnections    int32
	MaxConnections    int32
	ConnectTimeout    time.Duration
	StatementTimeout  time.Duration
	MaxConnLifetime   time.Duration
}

// HubConfig defines the WebSocket hub's listen parameters and
// activity-timeout window.
type HubConfig struct {
	WSPort                int
	ActivityTimeoutSeconds int
	RateLimitPerSecond    float64
	RateLimitBurst        int
}

// RetentionConfig defines the in-memory retention sweeper's period
// and cutoff age.
type RetentionConfig struct {
	DataRetentionHours   int
	CleanupIntervalSecs  int
	EnableAutomaticSweep bool
}

// DuplicateConfig defines the bulk-upload duplicate detector's
// tolerances.
type DuplicateConfig struct {
	Enabled              bool
	TimeToleranceSeconds int
	CoordinateTolerance  float64
	SearchWindowDays     int
}

// ResetConfig defines the reset detector's trigger thresholds. These
// mirror compile-time constants in the source system; they are
// exposed here as overridable config in keeping with the rest of this
// package, but default to the spec's fixed values.
type ResetConfig struct {
	TimeGapSeconds float64
	JumpDegrees    float64
	DistanceRatio  float64
}

// MQTTConfig defines the optional secondary broadcast mirror. When
// Enabled is false, no MQTT connection is attempted and the hub
// operates purely over WebSocket.
type MQTTConfig struct {
	Enabled           bool
	Host              string
	Port              int
	Username          string
	Password          string
	TLSEnabled        bool
	ConnectionTimeout time.Duration
	KeepAlive         time.Duration
	QoS               int
	RetryInterval     time.Duration
}

// Config is the top-level configuration for the service.
type Config struct {
	Database  DBConfig
	Hub       HubConfig
	Retention RetentionConfig
	Duplicate DuplicateConfig
	Reset     ResetConfig
	MQTT      MQTTConfig
	LogLevel  string
}

// Validate performs comprehensive validation on all configuration
// fields, aggregating every violation into a single error.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Database.Host) == "" {
		errs = append(errs, "database host is empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database port %d is out of valid range", c.Database.Port))
	}
	if strings.TrimSpace(c.Database.Database) == "" {
		errs = append(errs, "database name is empty")
	}
	if c.Database.MinConnections < 1 {
		errs = append(errs, fmt.Sprintf("database min connections %d must be at least 1", c.Database.MinConnections))
	}
	if c.Database.MaxConnections < c.Database.MinConnections {
		errs = append(errs, "database max connections must be >= min connections")
	}
	if c.Database.StatementTimeout <= 0 {
		errs = append(errs, "database statement timeout must be greater than zero")
	}

	if c.Hub.WSPort <= 0 || c.Hub.WSPort > 65535 {
		errs = append(errs, fmt.Sprintf("hub ws port %d is out of valid range", c.Hub.WSPort))
	}
	if c.Hub.ActivityTimeoutSeconds <= 0 {
		errs = append(errs, "hub activity timeout must be greater than zero")
	}
	if c.Hub.RateLimitPerSecond <= 0 {
		errs = append(errs, "hub rate limit per second must be greater than zero")
	}

	if c.Retention.DataRetentionHours <= 0 {
		errs = append(errs, fmt.Sprintf("retention data retention hours %d must be positive", c.Retention.DataRetentionHours))
	}
	if c.Retention.CleanupIntervalSecs <= 0 {
		errs = append(errs, fmt.Sprintf("retention cleanup interval %d must be positive", c.Retention.CleanupIntervalSecs))
	}

	if c.Duplicate.TimeToleranceSeconds < 0 {
		errs = append(errs, "duplicate time tolerance cannot be negative")
	}
	if c.Duplicate.CoordinateTolerance < 0 {
		errs = append(errs, "duplicate coordinate tolerance cannot be negative")
	}
	if c.Duplicate.SearchWindowDays <= 0 {
		errs = append(errs, "duplicate search window days must be positive")
	}

	if c.Reset.TimeGapSeconds <= 0 {
		errs = append(errs, "reset time gap must be positive")
	}
	if c.Reset.JumpDegrees <= 0 {
		errs = append(errs, "reset jump degrees must be positive")
	}
	if c.Reset.DistanceRatio <= 0 || c.Reset.DistanceRatio >= 1 {
		errs = append(errs, "reset distance ratio must be in (0,1)")
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Host) == "" {
			errs = append(errs, "mqtt host is empty but mqtt bridge is enabled")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mqtt port %d is out of valid range", c.MQTT.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n - %s", strings.Join(errs, "\n - "))
	}
	return nil
}

// LoadConfig reads environment variables (with an optional
// geotracker.yaml overlay consulted first via viper, environment
// always taking precedence), applies defaults, and returns a
// populated, validated Config.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("geotracker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/geotracker")
	v.AutomaticEnv()
	// Config file is optional; a missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DBConfig{
			Host:             getStr(v, "POSTGRES_HOST", "localhost"),
			Port:             getInt(v, "POSTGRES_PORT", DefaultDBPort),
			Database:         getStr(v, "POSTGRES_DB", "geotracker"),
			Username:         getStr(v, "POSTGRES_USER", "geotracker"),
			Password:         getStr(v, "POSTGRES_PASSWORD", ""),
			MinConnections:   int32(getInt(v, "POSTGRES_MIN_CONNECTIONS", 2)),
			MaxConnections:   int32(getInt(v, "POSTGRES_MAX_CONNECTIONS", DefaultMaxConnections)),
			ConnectTimeout:   getDuration(v, "POSTGRES_CONNECT_TIMEOUT", 10*time.Second),
			StatementTimeout: getDuration(v, "POSTGRES_STATEMENT_TIMEOUT", 30*time.Second),
			MaxConnLifetime:  getDuration(v, "POSTGRES_MAX_CONN_LIFETIME", 60*time.Minute),
		},
		Hub: HubConfig{
			WSPort:                 getInt(v, "TRACKING_WS_PORT", DefaultWSPort),
			ActivityTimeoutSeconds: getInt(v, "ACTIVITY_TIMEOUT_SECONDS", DefaultActivityTimeoutSecs),
			RateLimitPerSecond:     getFloat(v, "WS_RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:         getInt(v, "WS_RATE_LIMIT_BURST", 100),
		},
		Retention: RetentionConfig{
			DataRetentionHours:   getInt(v, "DATA_RETENTION_HOURS", DefaultDataRetentionHours),
			CleanupIntervalSecs:  getInt(v, "CLEANUP_INTERVAL_SECONDS", DefaultCleanupIntervalSecs),
			EnableAutomaticSweep: getBool(v, "ENABLE_AUTOMATIC_CLEANUP", true),
		},
		Duplicate: DuplicateConfig{
			Enabled:              getBool(v, "DUPLICATE_CHECK_ENABLED", true),
			TimeToleranceSeconds: getInt(v, "DUPLICATE_TIME_TOLERANCE_SECONDS", DefaultDupTimeToleranceSecs),
			CoordinateTolerance:  getFloat(v, "DUPLICATE_COORDINATE_TOLERANCE", DefaultDupCoordTolerance),
			SearchWindowDays:     getInt(v, "DUPLICATE_SEARCH_WINDOW_DAYS", DefaultDupSearchWindowDays),
		},
		Reset: ResetConfig{
			TimeGapSeconds: getFloat(v, "RESET_TIME_GAP_SECONDS", DefaultResetTimeGapSecs),
			JumpDegrees:    getFloat(v, "RESET_JUMP_DEGREES", DefaultResetJumpDegrees),
			DistanceRatio:  getFloat(v, "RESET_DISTANCE_RATIO", DefaultResetDistanceRatio),
		},
		MQTT: MQTTConfig{
			Enabled:           getBool(v, "MQTT_BRIDGE_ENABLED", false),
			Host:              getStr(v, "MQTT_HOST", "localhost"),
			Port:              getInt(v, "MQTT_PORT", 1883),
			Username:          getStr(v, "MQTT_USER", ""),
			Password:          getStr(v, "MQTT_PASS", ""),
			TLSEnabled:        getBool(v, "MQTT_TLS_ENABLED", false),
			ConnectionTimeout: getDuration(v, "MQTT_CONNECTION_TIMEOUT", 10*time.Second),
			KeepAlive:         getDuration(v, "MQTT_KEEP_ALIVE", 60*time.Second),
			QoS:               getInt(v, "MQTT_QOS", 1),
			RetryInterval:     getDuration(v, "MQTT_RETRY_INTERVAL", 5*time.Second),
		},
		LogLevel: getStr(v, "LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getStr(v *viper.Viper, key, def string) string {
	val := v.GetString(key)
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}

func getInt(v *viper.Viper, key string, def int) int {
	raw := v.GetString(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	raw := v.GetString(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(v *viper.Viper, key string, def bool) bool {
	raw := v.GetString(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := v.GetString(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
