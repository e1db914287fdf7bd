package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	PERSISTENCE_BACKEND_SQLITE = "sqlite"
	PERSISTENCE_BACKEND_REST   = "rest"

	// floor for any recording interval, enforced again per session
	MIN_INTERVAL_SECONDS = 3
)

type Config struct {
	LogLevel    zapcore.Level
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Recorder    RecorderConfig    `mapstructure:"recorder"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Port        uint              `mapstructure:"port"`
	HttpLog     bool              `mapstructure:"http_log"`
}

type MQTTConfig struct {
	URI                    string
	Username               string
	Password               string
	ClientIdPrefix         string `mapstructure:"client_id_prefix"`
	Clean                  bool   `mapstructure:"clean"`
	ReconnectPeriodMillis  uint32 `mapstructure:"reconnect_period_millis"`
	ConnectTimeoutMillis   uint32 `mapstructure:"connect_timeout_millis"`
	OperationTimeoutMillis uint32 `mapstructure:"operation_timeout_millis"`
	HealthCheckTopic       string `mapstructure:"health_check_topic"`
}

type RecorderConfig struct {
	JitterFraction       float64 `mapstructure:"jitter_fraction"`
	MinIntervalSeconds   uint    `mapstructure:"min_interval_seconds"`
	PersistTimeoutMillis uint32  `mapstructure:"persist_timeout_millis"`
}

type PersistenceConfig struct {
	Backend       string
	DBPath        string `mapstructure:"db_path"`
	SeedFile      string `mapstructure:"seed_file"`
	BaseURL       string `mapstructure:"base_url"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMillis) * time.Millisecond
}

func (c MQTTConfig) ReconnectPeriod() time.Duration {
	return time.Duration(c.ReconnectPeriodMillis) * time.Millisecond
}

func (c MQTTConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutMillis) * time.Millisecond
}

func (c RecorderConfig) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutMillis) * time.Millisecond
}

func (c PersistenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Validate checks bounds that cannot be expressed as viper defaults.
func (c *Config) Validate() error {
	if c.MQTT.URI == "" {
		return errors.New("config param mqtt.uri is required")
	}
	topic, err := CheckMQTTTopic(c.MQTT.HealthCheckTopic)
	if err != nil {
		return fmt.Errorf("config param mqtt.health_check_topic: %w", err)
	}
	c.MQTT.HealthCheckTopic = topic
	if c.MQTT.ConnectTimeoutMillis < 1000 {
		return errors.New("config param mqtt.connect_timeout_millis should be >= 1000")
	}
	if c.Recorder.JitterFraction <= 0 || c.Recorder.JitterFraction > 1 {
		return errors.New("config param recorder.jitter_fraction should be in (0, 1]")
	}
	if c.Recorder.MinIntervalSeconds < MIN_INTERVAL_SECONDS {
		return fmt.Errorf("config param recorder.min_interval_seconds should be >= %d", MIN_INTERVAL_SECONDS)
	}
	switch c.Persistence.Backend {
	case PERSISTENCE_BACKEND_SQLITE:
		if c.Persistence.DBPath == "" {
			return errors.New("config param persistence.db_path is required for the sqlite backend")
		}
	case PERSISTENCE_BACKEND_REST:
		if c.Persistence.BaseURL == "" {
			return errors.New("config param persistence.base_url is required for the rest backend")
		}
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	return nil
}

var topicRegexp = regexp.MustCompile("^[a-zA-Z0-9_-]+(/[a-zA-Z0-9_-]+)*$")

// CheckMQTTTopic accepts a concrete publish topic: slash separated segments,
// no wildcards and no empty levels.
func CheckMQTTTopic(topic string) (string, error) {
	if !topicRegexp.MatchString(topic) {
		return "", errors.New("invalid topic. can only contain letters, numbers, dashes, underscores and slashes")
	}
	return topic, nil
}
