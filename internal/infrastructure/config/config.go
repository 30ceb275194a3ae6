package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the observatory gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	RPC           RPCConfig           `yaml:"rpc"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
	Triggers      TriggersConfig      `yaml:"triggers"`
	Messages      MessagesConfig      `yaml:"messages"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// SiteConfig contains observatory-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains the geographic position of the observatory.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the broker carrying the device network.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RPCConfig contains the RPC listener settings.
type RPCConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket push settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for value telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Tags are added to every point. The site ID is added as "site" unless set here.
	Tags map[string]string `yaml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains session and credential settings.
type SecurityConfig struct {
	// SessionTimeout is the lifetime of a login session in seconds.
	SessionTimeout int `yaml:"session_timeout"`

	// TokenSecret signs session tokens. Must be at least 32 characters.
	TokenSecret string `yaml:"token_secret"`

	// SeedUser is created with a random password when the user table is empty.
	SeedUser string `yaml:"seed_user"`
}

// TriggersConfig points at the rule file with state and value triggers.
type TriggersConfig struct {
	File string `yaml:"file"`
}

// MessagesConfig sizes the in-memory message ring.
type MessagesConfig struct {
	Capacity int `yaml:"capacity"`
}

// NotificationsConfig controls the SendNotification action.
type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Sender  string `yaml:"sender"`
}

// Load reads the YAML file at path over the built-in defaults, then lets
// OBSGATE_* environment variables override individual settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if ignored := applyEnvOverrides(cfg); len(ignored) > 0 {
		return nil, fmt.Errorf("unusable environment overrides: %v", ignored)
	}
	cfg.tagSite()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{ID: "obs-001", Name: "Observatory", Timezone: "UTC"},
		Database: DatabaseConfig{
			Path:        "./data/obsgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "obsgate"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		RPC: RPCConfig{
			Host:     "0.0.0.0",
			Port:     8889,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging:       LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security:      SecurityConfig{SessionTimeout: 3600, SeedUser: "observer"},
		Triggers:      TriggersConfig{File: "configs/triggers.yaml"},
		Messages:      MessagesConfig{Capacity: 42},
		Notifications: NotificationsConfig{Enabled: true, Sender: "obsgate"},
	}
}

// envOverride binds one environment variable to a setting. set reports
// whether the value was usable; unusable values leave the setting alone.
type envOverride struct {
	name string
	set  func(c *Config, v string) bool
}

func setString(field func(c *Config) *string) func(*Config, string) bool {
	return func(c *Config, v string) bool {
		*field(c) = v
		return true
	}
}

func setInt(field func(c *Config) *int) func(*Config, string) bool {
	return func(c *Config, v string) bool {
		n, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		*field(c) = n
		return true
	}
}

var envOverrides = []envOverride{
	{"OBSGATE_SITE_ID", setString(func(c *Config) *string { return &c.Site.ID })},
	{"OBSGATE_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"OBSGATE_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"OBSGATE_MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"OBSGATE_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"OBSGATE_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"OBSGATE_RPC_HOST", setString(func(c *Config) *string { return &c.RPC.Host })},
	{"OBSGATE_RPC_PORT", setInt(func(c *Config) *int { return &c.RPC.Port })},
	{"OBSGATE_INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"OBSGATE_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"OBSGATE_TRIGGERS_FILE", setString(func(c *Config) *string { return &c.Triggers.File })},
	{"OBSGATE_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
	// Production deployments keep the secret out of the file.
	{"OBSGATE_TOKEN_SECRET", setString(func(c *Config) *string { return &c.Security.TokenSecret })},
}

// applyEnvOverrides applies every non-empty OBSGATE_* variable.
// It returns the names of variables whose values could not be used.
func applyEnvOverrides(cfg *Config) []string {
	var ignored []string
	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		if !o.set(cfg, v) {
			ignored = append(ignored, o.name)
		}
	}
	return ignored
}

// tagSite adds the site ID to the telemetry tags unless one is configured.
func (c *Config) tagSite() {
	if c.Site.ID == "" {
		return
	}
	if c.InfluxDB.Tags == nil {
		c.InfluxDB.Tags = make(map[string]string)
	}
	if _, ok := c.InfluxDB.Tags["site"]; !ok {
		c.InfluxDB.Tags["site"] = c.Site.ID
	}
}

// minTokenSecretLength is the shortest accepted session signing secret.
const minTokenSecretLength = 32

var validLogLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Site.ID != "", "site.id is required")
	check(c.Database.Path != "", "database.path is required")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
	check(c.RPC.Port >= 1 && c.RPC.Port <= 65535, "rpc.port must be between 1 and 65535, got %d", c.RPC.Port)
	check(c.Security.SessionTimeout > 0, "security.session_timeout must be positive")
	switch {
	case c.Security.TokenSecret == "":
		check(false, "security.token_secret is required (set OBSGATE_TOKEN_SECRET)")
	case len(c.Security.TokenSecret) < minTokenSecretLength:
		check(false, "security.token_secret must be at least %d characters", minTokenSecretLength)
	}
	check(c.Messages.Capacity > 0, "messages.capacity must be positive")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	check(validLogLevels[c.Logging.Level], "logging.level %q is not one of debug, info, warn, error", c.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// GetReadTimeout returns the RPC read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return seconds(c.RPC.Timeouts.Read)
}

// GetWriteTimeout returns the RPC write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return seconds(c.RPC.Timeouts.Write)
}

// GetIdleTimeout returns the RPC idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	return seconds(c.RPC.Timeouts.Idle)
}

// GetSessionTimeout returns the login session lifetime.
func (c *Config) GetSessionTimeout() time.Duration {
	return seconds(c.Security.SessionTimeout)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
