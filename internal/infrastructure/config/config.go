package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for hamonitor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Cards         CardsConfig         `yaml:"cards"`
	Database      DatabaseConfig      `yaml:"database"`
	History       HistoryConfig       `yaml:"history"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
}

// HomeAssistantConfig describes how to reach the Home Assistant WebSocket API.
type HomeAssistantConfig struct {
	// URL is the WebSocket endpoint, e.g. "ws://homeassistant.local:8123/api/websocket".
	URL string `yaml:"url"`

	// Token is a long-lived access token. Prefer HAMONITOR_HA_TOKEN.
	Token string `yaml:"token"`

	// PollInterval is how often states and registries are refetched.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RequestTimeout bounds a single WebSocket command round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CardsConfig holds the user-facing options of the four dashboard cards.
type CardsConfig struct {
	Theme   Theme             `yaml:"theme"`
	Offline OfflineCardConfig `yaml:"offline"`
	Updates UpdateCardConfig  `yaml:"updates"`
	Todo    TodoCardConfig    `yaml:"todo"`
	Balance BalanceCardConfig `yaml:"balance"`
}

// OfflineCardConfig lists wildcard exclusions for the offline monitor.
// Each field accepts either a single string or a list of strings.
type OfflineCardConfig struct {
	ExcludeDevices  StringList `yaml:"exclude_devices"`
	ExcludeEntities StringList `yaml:"exclude_entities"`
}

// UpdateCardConfig controls the software update monitor.
type UpdateCardConfig struct {
	// IncludeSkipped keeps updates whose latest version was skipped by the user.
	// Default: true
	IncludeSkipped bool `yaml:"include_skipped"`
}

// TodoCardConfig names the to-do list entities to manage.
type TodoCardConfig struct {
	Entities StringList `yaml:"entities"`

	// Language selects due-date labels: "zh" (default) or "en".
	Language string `yaml:"language"`
}

// BalanceCardConfig lists the balance sensors shown by the balance card.
type BalanceCardConfig struct {
	Entities []BalanceEntityConfig `yaml:"entities"`
}

// BalanceEntityConfig is one balance sensor with an optional low-balance warning.
type BalanceEntityConfig struct {
	EntityID string `yaml:"entity"`
	Name     string `yaml:"name,omitempty"`

	// Warning marks the reading as low when the value drops below it.
	// Nil disables the warning.
	Warning *float64 `yaml:"warning,omitempty"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls the poll history kept in SQLite.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every published topic. Default: "hamonitor"
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the dashboard push channel.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of tokens minted with -mint-token (minutes).
	TokenTTL int `yaml:"token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: HAMONITOR_SECTION_KEY
// For example: HAMONITOR_HA_TOKEN, HAMONITOR_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		HomeAssistant: HomeAssistantConfig{
			URL:            "ws://homeassistant.local:8123/api/websocket",
			PollInterval:   300 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Cards: CardsConfig{
			Theme: ThemeAuto,
			Updates: UpdateCardConfig{
				IncludeSkipped: true,
			},
			Todo: TodoCardConfig{
				Language: "zh",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/hamonitor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 7 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hamonitor",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "hamonitor",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 60 * 24 * 30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Home Assistant
	if v := os.Getenv("HAMONITOR_HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("HAMONITOR_HA_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := os.Getenv("HAMONITOR_HA_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HomeAssistant.PollInterval = d
		}
	}

	// Cards
	if v := os.Getenv("HAMONITOR_UPDATES_INCLUDE_SKIPPED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cards.Updates.IncludeSkipped = b
		}
	}

	// Database
	if v := os.Getenv("HAMONITOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HAMONITOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HAMONITOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HAMONITOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HAMONITOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HAMONITOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HAMONITOR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// minJWTSecretLength is the shortest accepted HS256 signing secret.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and reports all of them at once.
func (c *Config) Validate() error {
	var errs []string

	// Home Assistant
	if c.HomeAssistant.URL == "" {
		errs = append(errs, "homeassistant.url is required")
	} else if !strings.HasPrefix(c.HomeAssistant.URL, "ws://") && !strings.HasPrefix(c.HomeAssistant.URL, "wss://") {
		errs = append(errs, "homeassistant.url must start with ws:// or wss://")
	}
	if c.HomeAssistant.Token == "" {
		errs = append(errs, "homeassistant.token is required (set HAMONITOR_HA_TOKEN environment variable)")
	}
	if c.HomeAssistant.PollInterval < time.Second {
		errs = append(errs, "homeassistant.poll_interval must be at least 1s")
	}
	if c.HomeAssistant.RequestTimeout <= 0 {
		errs = append(errs, "homeassistant.request_timeout must be positive")
	}

	// Cards
	if !c.Cards.Theme.Valid() {
		errs = append(errs, fmt.Sprintf("cards.theme %q is not one of light, dark, auto", string(c.Cards.Theme)))
	}
	switch c.Cards.Todo.Language {
	case "zh", "en":
	default:
		errs = append(errs, "cards.todo.language must be zh or en")
	}
	for _, e := range c.Cards.Todo.Entities {
		if !strings.HasPrefix(e, "todo.") {
			errs = append(errs, fmt.Sprintf("cards.todo.entities: %q is not a todo entity", e))
		}
	}
	for i, b := range c.Cards.Balance.Entities {
		if b.EntityID == "" {
			errs = append(errs, fmt.Sprintf("cards.balance.entities[%d].entity is required", i))
		}
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.History.Enabled && c.History.Retention <= 0 {
		errs = append(errs, "history.retention must be positive when history is enabled")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The API exposes service calls (install update, edit to-do), so a
	// secret is mandatory.
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HAMONITOR_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
