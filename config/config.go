package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Volspike  VolspikeConfig  `yaml:"volspike"`
	Feed      FeedConfig      `yaml:"feed"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type VolspikeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	URL              string        `yaml:"url"`
	Tier             string        `yaml:"tier"`
	VolumeFloor      float64       `yaml:"volume_floor"`
	MinSymbols       int           `yaml:"min_symbols"`
	BootstrapWindow  time.Duration `yaml:"bootstrap_window"`
	GeofenceWindow   time.Duration `yaml:"geofence_window"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
}

type BootstrapConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

type ChannelsConfig struct {
	ArchiveBuffer int `yaml:"archive_buffer"`
	PublishBuffer int `yaml:"publish_buffer"`
}

type WriterConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
}

type StorageConfig struct {
	KV    KVConfig    `yaml:"kv"`
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type KVConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type APIConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Namespace      string        `yaml:"namespace"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

const defaultConfigPath = "config/config.yml"

// envSpecificPaths maps an application environment to the configuration file
// used when the caller did not ask for a specific one.
var envSpecificPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envSpecificPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			Tier: "free",
		},
		Bootstrap: BootstrapConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			KV: KVConfig{Backend: "file", Dir: "data"},
		},
		Metrics: MetricsConfig{
			ReportInterval: time.Minute,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides
	if v := os.Getenv("VOLSPIKE_WS_URL"); v != "" {
		config.Feed.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("VOLSPIKE_TIER"); v != "" {
		config.Feed.Tier = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Storage.KV.Redis.Addr = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Volspike.Name == "" {
		return fmt.Errorf("volspike.name is required")
	}

	if cfg.Volspike.Version == "" {
		return fmt.Errorf("volspike.version is required")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}

	switch strings.ToLower(cfg.Feed.Tier) {
	case "free", "pro", "elite":
	default:
		return fmt.Errorf("feed.tier '%s' is invalid (want free, pro or elite)", cfg.Feed.Tier)
	}

	if cfg.Feed.VolumeFloor < 0 {
		return fmt.Errorf("feed.volume_floor must not be negative")
	}

	if cfg.Channels.ArchiveBuffer <= 0 {
		return fmt.Errorf("channels.archive_buffer must be greater than 0")
	}
	if cfg.Channels.PublishBuffer <= 0 {
		return fmt.Errorf("channels.publish_buffer must be greater than 0")
	}

	switch cfg.Storage.KV.Backend {
	case "file":
		if cfg.Storage.KV.Dir == "" {
			return fmt.Errorf("storage.kv.dir is required for the file backend")
		}
	case "redis":
		if cfg.Storage.KV.Redis.Addr == "" {
			return fmt.Errorf("storage.kv.redis.addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.kv.backend '%s' is invalid (want file, redis or memory)", cfg.Storage.KV.Backend)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Writer.FlushInterval <= 0 {
			return fmt.Errorf("writer.flush_interval must be greater than 0 when S3 is enabled")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("api.port '%d' is invalid", cfg.API.Port)
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
