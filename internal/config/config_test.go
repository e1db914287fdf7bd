package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			URI:                  "tcp://localhost:1883",
			ConnectTimeoutMillis: 30000,
			HealthCheckTopic:     "healthCheck",
		},
		Recorder: RecorderConfig{
			JitterFraction:     0.1,
			MinIntervalSeconds: 3,
		},
		Persistence: PersistenceConfig{
			Backend: PERSISTENCE_BACKEND_SQLITE,
			DBPath:  "/tmp/machines.db",
		},
	}
}

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("healthCheck")
	assert.NoError(err)
	assert.Equal("healthCheck", topic, "case is preserved")

	_, err = CheckMQTTTopic("plant/line_1/health-check")
	assert.NoError(err, "multi level topic")

	for _, bad := range []string{"", "health/#", "health/+/x", "health//x", "/health"} {
		_, err = CheckMQTTTopic(bad)
		assert.Error(err, "topic %q must be rejected", bad)
	}
}

func TestValidateConfig(t *testing.T) {

	require := require.New(t)

	cfg := validConfig()
	require.NoError(cfg.Validate())

	cfg = validConfig()
	cfg.Recorder.MinIntervalSeconds = 2
	require.Error(cfg.Validate(), "interval floor")

	cfg = validConfig()
	cfg.Recorder.JitterFraction = 0
	require.Error(cfg.Validate(), "jitter must be positive")

	cfg = validConfig()
	cfg.Persistence.Backend = "mongo"
	require.Error(cfg.Validate(), "unknown backend")

	cfg = validConfig()
	cfg.Persistence = PersistenceConfig{Backend: PERSISTENCE_BACKEND_REST}
	require.Error(cfg.Validate(), "rest backend needs a base url")

	cfg = validConfig()
	cfg.MQTT.HealthCheckTopic = "health/#"
	require.Error(cfg.Validate(), "wildcard topic")
}
