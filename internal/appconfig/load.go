package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. MINDFULWEB_AGENT_LISTEN_ADDR.
const EnvPrefix = "MINDFULWEB"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("db_path", "")
	v.SetDefault("agent.listen_addr", cfg.Agent.ListenAddr)
	v.SetDefault("backend.url", cfg.Backend.URL)
	v.SetDefault("delivery.batch_size", cfg.Delivery.BatchSize)
	v.SetDefault("delivery.request_timeout_seconds", cfg.Delivery.RequestTimeoutSeconds)
	v.SetDefault("delivery.health_timeout_seconds", cfg.Delivery.HealthTimeoutSeconds)
	v.SetDefault("delivery.health_cooldown_seconds", cfg.Delivery.HealthCooldownSeconds)
	v.SetDefault("delivery.flush_interval_seconds", cfg.Delivery.FlushIntervalSeconds)
	v.SetDefault("queue.max_size", cfg.Queue.MaxSize)
	v.SetDefault("messages.timeout_seconds", cfg.Messages.TimeoutSeconds)
	v.SetDefault("messages.ping_timeout_seconds", cfg.Messages.PingTimeoutSeconds)
	v.SetDefault("collector.listen_addr", cfg.Collector.ListenAddr)
	v.SetDefault("collector.db_path", "")

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	expandConfigEnv(&cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.StateDir, "agent.db")
	}
	if cfg.Collector.DBPath == "" {
		cfg.Collector.DBPath = filepath.Join(cfg.StateDir, "collector.db")
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	backendURL := strings.TrimSpace(cfg.Backend.URL)
	if backendURL != "" {
		parsed, err := url.Parse(backendURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("backend.url must be an absolute http or https url (e.g. https://collector.example.com)")
		}
	}
	if strings.TrimSpace(cfg.Agent.ListenAddr) == "" {
		return fmt.Errorf("agent.listen_addr is required")
	}
	positive := map[string]int{
		"delivery.batch_size":              cfg.Delivery.BatchSize,
		"delivery.request_timeout_seconds": cfg.Delivery.RequestTimeoutSeconds,
		"delivery.health_timeout_seconds":  cfg.Delivery.HealthTimeoutSeconds,
		"delivery.flush_interval_seconds":  cfg.Delivery.FlushIntervalSeconds,
		"queue.max_size":                   cfg.Queue.MaxSize,
		"messages.timeout_seconds":         cfg.Messages.TimeoutSeconds,
		"messages.ping_timeout_seconds":    cfg.Messages.PingTimeoutSeconds,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, value)
		}
	}
	if cfg.Delivery.HealthCooldownSeconds < 0 {
		return fmt.Errorf("delivery.health_cooldown_seconds must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.DBPath = expandEnv(cfg.DBPath)
	cfg.Collector.DBPath = expandEnv(cfg.Collector.DBPath)
	cfg.Backend.URL = expandEnv(cfg.Backend.URL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
