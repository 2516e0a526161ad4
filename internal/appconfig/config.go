package appconfig

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	DBPath        string          `mapstructure:"db_path" yaml:"db_path"`
	Agent         AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Backend       BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Delivery      DeliveryConfig  `mapstructure:"delivery" yaml:"delivery"`
	Queue         QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Messages      MessagesConfig  `mapstructure:"messages" yaml:"messages"`
	Collector     CollectorConfig `mapstructure:"collector" yaml:"collector"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// AgentConfig configures the loopback API the extension talks to.
type AgentConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// BackendConfig seeds the backend URL until the user sets one.
type BackendConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type DeliveryConfig struct {
	BatchSize             int `mapstructure:"batch_size" yaml:"batch_size"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	HealthTimeoutSeconds  int `mapstructure:"health_timeout_seconds" yaml:"health_timeout_seconds"`
	HealthCooldownSeconds int `mapstructure:"health_cooldown_seconds" yaml:"health_cooldown_seconds"`
	FlushIntervalSeconds  int `mapstructure:"flush_interval_seconds" yaml:"flush_interval_seconds"`
}

type QueueConfig struct {
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
}

// MessagesConfig bounds command handling.
type MessagesConfig struct {
	TimeoutSeconds     int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	PingTimeoutSeconds int `mapstructure:"ping_timeout_seconds" yaml:"ping_timeout_seconds"`
}

// CollectorConfig configures the reference collector.
type CollectorConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	DBPath     string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	stateDir, err := DefaultStateDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		DBPath:        filepath.Join(stateDir, "agent.db"),
		Agent: AgentConfig{
			ListenAddr: "127.0.0.1:8123",
		},
		Backend: BackendConfig{
			URL: "",
		},
		Delivery: DeliveryConfig{
			BatchSize:             100,
			RequestTimeoutSeconds: 10,
			HealthTimeoutSeconds:  3,
			HealthCooldownSeconds: 30,
			FlushIntervalSeconds:  60,
		},
		Queue: QueueConfig{
			MaxSize: 10000,
		},
		Messages: MessagesConfig{
			TimeoutSeconds:     5,
			PingTimeoutSeconds: 2,
		},
		Collector: CollectorConfig{
			ListenAddr: "127.0.0.1:8124",
			DBPath:     filepath.Join(stateDir, "collector.db"),
		},
	}, nil
}

// DefaultStateDir returns the platform application data directory.
func DefaultStateDir() (string, error) {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDirectory, "Library", "Application Support", "MindfulWeb"), nil
	case "windows":
		return filepath.Join(homeDirectory, "AppData", "Roaming", "MindfulWeb"), nil
	default:
		return filepath.Join(homeDirectory, ".local", "share", "mindfulweb"), nil
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	stateDir, err := DefaultStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, "config.yaml"), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c DeliveryConfig) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }
func (c DeliveryConfig) HealthTimeout() time.Duration  { return seconds(c.HealthTimeoutSeconds) }
func (c DeliveryConfig) HealthCooldown() time.Duration { return seconds(c.HealthCooldownSeconds) }
func (c DeliveryConfig) FlushInterval() time.Duration  { return seconds(c.FlushIntervalSeconds) }
func (c MessagesConfig) Timeout() time.Duration        { return seconds(c.TimeoutSeconds) }
func (c MessagesConfig) PingTimeout() time.Duration    { return seconds(c.PingTimeoutSeconds) }
