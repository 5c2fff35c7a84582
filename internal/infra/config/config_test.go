package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "HTTP_ADDR", "MONGO_URI", "MONGO_DB", "KAFKA_BROKERS", "KAFKA_TOPIC_PREFIX", "WS_SEND_BUFFER", "SHUTDOWN_TIMEOUT", "SUPPORT_FIXTURES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Empty(t, cfg.MongoURI)
	require.Equal(t, "homedesk", cfg.MongoDB)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, 32, cfg.WSSendBuffer)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB", "support")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC_PREFIX", "homedesk.")
	t.Setenv("WS_SEND_BUFFER", "64")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, "support", cfg.MongoDB)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "homedesk.", cfg.KafkaTopicPrefix)
	require.Equal(t, 64, cfg.WSSendBuffer)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("WS_SEND_BUFFER", "many")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("WS_SEND_BUFFER", "0")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("WS_SEND_BUFFER", "32")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err = Load()
	require.Error(t, err)
}
