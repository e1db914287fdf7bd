package util

import (
	"github.com/berfenger/healthrecorder/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			URI:                    "tcp://localhost:1883",
			ClientIdPrefix:         "healthrec_test",
			Clean:                  true,
			ReconnectPeriodMillis:  1000,
			ConnectTimeoutMillis:   2000,
			OperationTimeoutMillis: 1000,
			HealthCheckTopic:       "healthCheck",
		},
		Recorder: config.RecorderConfig{
			JitterFraction:       0.1,
			MinIntervalSeconds:   config.MIN_INTERVAL_SECONDS,
			PersistTimeoutMillis: 1000,
		},
		Persistence: config.PersistenceConfig{
			Backend:       config.PERSISTENCE_BACKEND_SQLITE,
			DBPath:        ":memory:",
			TimeoutMillis: 1000,
		},
		Port: 8080,
	}
}
