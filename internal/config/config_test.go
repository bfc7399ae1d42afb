package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Database: DBConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "geotracker",
			MinConnections:   2,
			MaxConnections:   10,
			StatementTimeout: 30 * time.Second,
		},
		Hub: HubConfig{
			WSPort:                 6789,
			ActivityTimeoutSeconds: 60,
			RateLimitPerSecond:     50,
		},
		Retention: RetentionConfig{
			DataRetentionHours:  24,
			CleanupIntervalSecs: 3600,
		},
		Duplicate: DuplicateConfig{
			TimeToleranceSeconds: 5,
			CoordinateTolerance:  0.0001,
			SearchWindowDays:     1,
		},
		Reset: ResetConfig{
			TimeGapSeconds: 300,
			JumpDegrees:    0.045,
			DistanceRatio:  0.5,
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsEmptyDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database host is empty")
}

func TestValidateRejectsMaxConnectionsBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MaxConnections = 1
	cfg.Database.MinConnections = 5
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max connections must be >= min connections")
}

func TestValidateRejectsResetDistanceRatioOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Reset.DistanceRatio = 1.5
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reset distance ratio must be in (0,1)")
}

func TestValidateAggregatesMultipleViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	cfg.Hub.WSPort = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database host is empty")
	assert.Contains(t, err.Error(), "hub ws port")
}

func TestValidateRequiresMQTTHostWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Enabled = true
	cfg.MQTT.Host = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt host is empty")
}
