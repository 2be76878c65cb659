package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Cloud           CloudConfig    `yaml:"cloud"`
	Device          DeviceConfig   `yaml:"device"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Sync            SyncConfig     `yaml:"sync"`
	UI              UIConfig       `yaml:"ui"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Script          string         `yaml:"script"`           // Lua hooks file, empty = no hooks
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// CloudConfig contains IoT cloud credentials and the property that holds the color
type CloudConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Audience     string   `yaml:"audience"`
	TokenURL     string   `yaml:"token_url"`
	APIURL       string   `yaml:"api_url"`
	ThingID      string   `yaml:"thing_id"`
	PropertyID   string   `yaml:"property_id"`
	DeviceID     string   `yaml:"device_id"`
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for cloud requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Cloud request budget (default: 1)
}

// DeviceConfig contains the local lamp endpoint
type DeviceConfig struct {
	Address string   `yaml:"address"` // e.g. http://192.168.1.40, empty = no HTTP device
	Timeout Duration `yaml:"timeout"`
}

// MQTTConfig contains the optional MQTT mirror of device notifications
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// SyncConfig contains polling settings
type SyncConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// UIConfig contains the web preview server settings
type UIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CoalesceWindow Duration `yaml:"coalesce_window"` // Picker input debounce
	Console        bool     `yaml:"console"`         // Print a swatch to stdout on every change
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains sync ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Config{
		UI:     UIConfig{Enabled: true},
		Ledger: LedgerConfig{Enabled: true},
		Log:    LogConfig{Colors: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lampd.sqlite"
	}

	// Cloud defaults
	if cfg.Cloud.TokenURL == "" {
		cfg.Cloud.TokenURL = "https://api2.arduino.cc/iot/v1/clients/token"
	}
	if cfg.Cloud.Audience == "" {
		cfg.Cloud.Audience = "https://api2.arduino.cc/iot"
	}
	if cfg.Cloud.APIURL == "" {
		cfg.Cloud.APIURL = "https://api2.arduino.cc/iot"
	}
	if cfg.Cloud.Timeout == 0 {
		cfg.Cloud.Timeout = Duration(15 * time.Second)
	}
	if cfg.Cloud.RateLimitRPS == 0 {
		cfg.Cloud.RateLimitRPS = 1.0
	}

	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(2 * time.Second)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lampd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "lampd"
	}

	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = Duration(10 * time.Second)
	}

	// UI defaults
	if cfg.UI.Port == 0 {
		cfg.UI.Port = 8080
	}
	if cfg.UI.Host == "" {
		cfg.UI.Host = "0.0.0.0"
	}
	if cfg.UI.CoalesceWindow == 0 {
		cfg.UI.CoalesceWindow = Duration(150 * time.Millisecond)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// Validate reports every mandatory setting that is missing or unusable.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"cloud.client_id", c.Cloud.ClientID},
		{"cloud.client_secret", c.Cloud.ClientSecret},
		{"cloud.device_id", c.Cloud.DeviceID},
		{"cloud.thing_id", c.Cloud.ThingID},
		{"cloud.property_id", c.Cloud.PropertyID},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if c.Sync.PollInterval.Duration() < 0 {
		errs = append(errs, errors.New("sync.poll_interval must be positive"))
	}
	if c.Cloud.RateLimitRPS < 0 {
		errs = append(errs, errors.New("cloud.rate_limit_rps must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
