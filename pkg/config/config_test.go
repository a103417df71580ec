package config

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpa/pkg/credential"
)

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(New(), "")
		require.NoError(t, err)

		assert.Equal(t, ":8000", cfg.Server.Addr)
		assert.Equal(t, 5*time.Second, cfg.Server.ExitWait)
		assert.Equal(t, 30*time.Second, cfg.Agent.Timeout)
		assert.Equal(t, time.Minute, cfg.Agent.TokenTTL)
		assert.Equal(t, "sqlite", cfg.DB.Type)
		assert.Equal(t, "rpa_dispatch_events", cfg.Kafka.Topic)
		assert.Empty(t, cfg.Kafka.BrokerList())
		assert.Equal(t, 2*time.Minute, cfg.Host.TriggerDelay)
		assert.True(t, cfg.Host.AllowOverwrite)
		assert.Equal(t, defaultFacility(), cfg.Host.Facility)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("MINIRPA_SERVER_ADDR", ":5001")
		t.Setenv("MINIRPA_AGENT_TIMEOUT", "45s")
		t.Setenv("MINIRPA_KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("MINIRPA_HOST_ALLOW_OVERWRITE", "false")
		t.Setenv("MINIRPA_HOST_FACILITY", "schtasks")
		t.Setenv("MINIRPA_RATELIMIT_RPM", "120")

		cfg, err := Load(New(), "")
		require.NoError(t, err)

		assert.Equal(t, ":5001", cfg.Server.Addr)
		assert.Equal(t, 45*time.Second, cfg.Agent.Timeout)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.BrokerList())
		assert.False(t, cfg.Host.AllowOverwrite)
		assert.Equal(t, "schtasks", cfg.Host.Facility)
		assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agent.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":5002\"\nhost:\n  trigger_delay: 5m\n"), 0o600))

		cfg, err := Load(New(), path)
		require.NoError(t, err)
		assert.Equal(t, ":5002", cfg.Server.Addr)
		assert.Equal(t, 5*time.Minute, cfg.Host.TriggerDelay)
	})

	t.Run("EnvBeatsConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agent.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":5002\"\n"), 0o600))
		t.Setenv("MINIRPA_SERVER_ADDR", ":6000")

		cfg, err := Load(New(), path)
		require.NoError(t, err)
		assert.Equal(t, ":6000", cfg.Server.Addr)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read config file")
	})
}

func TestConfig_Key(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		t.Setenv("MINIRPA_SHARED_KEY", "")
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		_, err = cfg.Key()
		assert.ErrorIs(t, err, ErrMissingSharedKey)
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Setenv("MINIRPA_SHARED_KEY", "not-a-key")
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		_, err = cfg.Key()
		assert.ErrorContains(t, err, "invalid MINIRPA_SHARED_KEY")
	})

	t.Run("Valid", func(t *testing.T) {
		k, err := credential.GenerateKey()
		require.NoError(t, err)
		t.Setenv("MINIRPA_SHARED_KEY", k.Encode())

		cfg, err := Load(New(), "")
		require.NoError(t, err)
		parsed, err := cfg.Key()
		require.NoError(t, err)
		assert.Equal(t, k.Encode(), parsed.Encode())
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, hlog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, hlog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, hlog.LevelError, ParseLogLevel(" error "))
	assert.Equal(t, hlog.LevelInfo, ParseLogLevel("chatty"))
}

func TestClientTLSConfig(t *testing.T) {
	t.Run("NothingConfigured", func(t *testing.T) {
		cfg, err := ClientTLSConfig("", false)
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("CAFile", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.NotFoundHandler())
		defer srv.Close()
		path := filepath.Join(t.TempDir(), "ca.pem")
		certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
		require.NoError(t, os.WriteFile(path, certPEM, 0o600))

		t.Setenv("MINIRPA_AGENT_TLS_CA_FILE", path)
		loaded, err := Load(New(), "")
		require.NoError(t, err)
		cfg, err := loaded.Agent.TLSConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.NotNil(t, cfg.RootCAs)
		assert.False(t, cfg.InsecureSkipVerify)
	})

	t.Run("Insecure", func(t *testing.T) {
		cfg, err := ClientTLSConfig("", true)
		require.NoError(t, err)
		assert.True(t, cfg.InsecureSkipVerify)
		assert.Nil(t, cfg.RootCAs)
	})

	t.Run("BadCAFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o600))
		_, err := ClientTLSConfig(path, false)
		assert.ErrorContains(t, err, "no certificates found")

		_, err = ClientTLSConfig(filepath.Join(t.TempDir(), "missing.pem"), false)
		assert.ErrorContains(t, err, "read tls ca file")
	})
}
