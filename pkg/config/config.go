package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mini-rpa/pkg/credential"
)

// EnvPrefix is prepended to every environment variable, e.g. MINIRPA_SHARED_KEY.
const EnvPrefix = "MINIRPA"

// ErrMissingSharedKey is returned when no shared key is configured. Both
// components refuse to start without it.
var ErrMissingSharedKey = errors.New("shared key is not configured (set " + EnvPrefix + "_SHARED_KEY)")

type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	ExitWait time.Duration `mapstructure:"exit_wait"`
}

type AgentConfig struct {
	// Timeout bounds the orchestrator's single call to an agent.
	Timeout    time.Duration `mapstructure:"timeout"`
	AuthSecret string        `mapstructure:"auth_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	// TLSCAFile is a PEM bundle of roots for https agents; empty means the system roots.
	TLSCAFile   string `mapstructure:"tls_ca_file"`
	TLSInsecure bool   `mapstructure:"tls_insecure"`
}

// TLSConfig is the client TLS configuration for https agent URLs.
func (a AgentConfig) TLSConfig() (*tls.Config, error) {
	return ClientTLSConfig(a.TLSCAFile, a.TLSInsecure)
}

// ClientTLSConfig builds a client TLS configuration. It returns nil when
// neither a CA file nor insecure is given, leaving the system roots in charge.
func ClientTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	if caFile == "" && !insecure {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read tls ca file %s: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

type DBConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// BrokerList splits the comma separated broker list; empty means events are off.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"rpm"`
	Burst             int `mapstructure:"burst"`
}

type HostConfig struct {
	// Facility selects the host scheduler adapter: "schtasks" or "gocron".
	Facility       string        `mapstructure:"facility"`
	TriggerDelay   time.Duration `mapstructure:"trigger_delay"`
	AllowOverwrite bool          `mapstructure:"allow_overwrite"`
	WorkdirRoot    string        `mapstructure:"workdir_root"`
	Runtime        string        `mapstructure:"runtime"`
	// Launcher selects the wrapper style: "cmd" or "sh".
	Launcher string `mapstructure:"launcher"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the process-wide configuration shared by the orchestrator, the agent
// and rpactl. It is built once at startup and not mutated afterwards.
type Config struct {
	SharedKey string          `mapstructure:"shared_key"`
	Server    ServerConfig    `mapstructure:"server"`
	Agent     AgentConfig     `mapstructure:"agent"`
	DB        DBConfig        `mapstructure:"db"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Host      HostConfig      `mapstructure:"host"`
	Log       LogConfig       `mapstructure:"log"`
}

var defaults = map[string]any{
	"shared_key":           "",
	"server.addr":          ":8000",
	"server.exit_wait":     5 * time.Second,
	"agent.timeout":        30 * time.Second,
	"agent.auth_secret":    "",
	"agent.token_ttl":      time.Minute,
	"agent.tls_ca_file":    "",
	"agent.tls_insecure":   false,
	"db.type":              "sqlite",
	"db.dsn":               "",
	"kafka.brokers":        "",
	"kafka.topic":          "rpa_dispatch_events",
	"kafka.group_id":       "rpactl-events",
	"ratelimit.rpm":        0,
	"ratelimit.burst":      0,
	"host.facility":        defaultFacility(),
	"host.trigger_delay":   2 * time.Minute,
	"host.allow_overwrite": true,
	"host.workdir_root":    "",
	"host.runtime":         defaultRuntime(),
	"host.launcher":        defaultLauncher(),
	"log.level":            "info",
}

// New returns a viper instance with defaults and MINIRPA_* environment bindings.
// A .env file in the working directory is loaded first when present.
func New() *viper.Viper {
	if err := godotenv.Load(); err != nil {
		hlog.Debugf(".env file not loaded (%v), relying on environment variables", err)
	}
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the optional config file, then decodes v into a Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Key parses the shared key. A missing or malformed key is a startup failure.
func (c *Config) Key() (*credential.Key, error) {
	if strings.TrimSpace(c.SharedKey) == "" {
		return nil, ErrMissingSharedKey
	}
	k, err := credential.ParseKey(c.SharedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid %s_SHARED_KEY: %w", EnvPrefix, err)
	}
	return k, nil
}

// ApplyLogLevel sets hlog's level from the configured name.
func (c *Config) ApplyLogLevel() {
	hlog.SetLevel(ParseLogLevel(c.Log.Level))
}

// ParseLogLevel maps a level name to hlog's level; unknown names mean info.
func ParseLogLevel(name string) hlog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return hlog.LevelTrace
	case "debug":
		return hlog.LevelDebug
	case "notice":
		return hlog.LevelNotice
	case "warn", "warning":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	case "fatal":
		return hlog.LevelFatal
	default:
		return hlog.LevelInfo
	}
}
