package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"linewatch/internal/domain"
)

// Duration wraps time.Duration for YAML ("5m", "15s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config models linewatch.yml.
type Config struct {
	Line struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		StatusURL string `yaml:"status_url"`
	} `yaml:"line"`
	Poll struct {
		Interval Duration `yaml:"interval"`
		Timeout  Duration `yaml:"timeout"`
	} `yaml:"poll"`
	Source struct {
		Kind      string   `yaml:"kind"`
		URL       string   `yaml:"url"`
		APIKeyEnv string   `yaml:"api_key_env"`
		Language  string   `yaml:"language"`
		Keywords  []string `yaml:"keywords"`
	} `yaml:"source"`
	Channels struct {
		Desktop struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"desktop"`
		Email struct {
			Enabled     bool   `yaml:"enabled"`
			From        string `yaml:"from"`
			To          string `yaml:"to"`
			Host        string `yaml:"host"`
			Port        int    `yaml:"port"`
			PasswordEnv string `yaml:"password_env"`
		} `yaml:"email"`
		MQTT struct {
			Enabled  bool   `yaml:"enabled"`
			Broker   string `yaml:"broker"`
			Topic    string `yaml:"topic"`
			ClientID string `yaml:"client_id"`
		} `yaml:"mqtt"`
	} `yaml:"channels"`
	// Notify maps a transition to the channels it dispatches to. The
	// table is policy, overridable per deployment; missing transitions
	// fall back to the built-in defaults (new/updated fan out to every
	// enabled channel, resolved to desktop only, ongoing to none).
	Notify map[string][]string `yaml:"notify"`
}

var sourceKinds = map[string]bool{"gtfs": true, "deviations": true, "scrape": true}

var channelKinds = map[string]bool{"desktop": true, "email": true, "mqtt": true}

var notifyTransitions = map[string]bool{"new": true, "updated": true, "ongoing": true, "resolved": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Line.ID == "" {
		return fmt.Errorf("config.line.id is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("config.poll.interval must be positive")
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("config.poll.timeout must be positive")
	}
	if !sourceKinds[c.Source.Kind] {
		return fmt.Errorf("config.source.kind must be one of gtfs, deviations, scrape")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("config.source.url is required")
	}
	if c.Channels.Email.Enabled {
		if c.Channels.Email.From == "" || c.Channels.Email.To == "" || c.Channels.Email.Host == "" {
			return fmt.Errorf("config.channels.email requires from, to and host when enabled")
		}
		if c.Channels.Email.Port == 0 {
			return fmt.Errorf("config.channels.email.port is required when enabled")
		}
	}
	if c.Channels.MQTT.Enabled {
		if c.Channels.MQTT.Broker == "" || c.Channels.MQTT.Topic == "" {
			return fmt.Errorf("config.channels.mqtt requires broker and topic when enabled")
		}
	}
	for transition, channels := range c.Notify {
		if !notifyTransitions[transition] {
			return fmt.Errorf("config.notify references unknown transition %s", transition)
		}
		for _, ch := range channels {
			if !channelKinds[ch] {
				return fmt.Errorf("config.notify.%s references unknown channel %s", transition, ch)
			}
		}
	}
	return nil
}

// LineContext returns the monitored line as passed into the core.
func (c *Config) LineContext() domain.LineContext {
	return domain.LineContext{ID: c.Line.ID, Name: c.Line.Name, StatusURL: c.Line.StatusURL}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "linewatch.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with linewatch config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a line.
func Default(lineID, lineName string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(lineID, lineName)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(lineID, lineName string) string {
	return fmt.Sprintf(defaultTemplate, lineID, lineName)
}

const defaultTemplate = `line:
  id: "%s"
  name: "%s"
  status_url: https://sl.se/reseplanering/trafiklaget

poll:
  interval: 5m
  timeout: 15s

source:
  kind: gtfs
  url: https://opendata.samtrafiken.se/gtfs-sweden3/Service-Alerts.pb
  api_key_env: SL_API_KEY
  language: sv
  keywords: ["störning", "förseningar", "inställd", "ersättningsbuss", "avbrott"]

channels:
  desktop:
    enabled: true
  email:
    enabled: false
    from: ""
    to: ""
    host: smtp.gmail.com
    port: 587
    password_env: EMAIL_PASSWORD
  mqtt:
    enabled: false
    broker: tcp://127.0.0.1:1883
    topic: linewatch/notifications
    client_id: linewatch

notify:
  new: [desktop, email, mqtt]
  updated: [desktop, email]
  resolved: [desktop]
`
