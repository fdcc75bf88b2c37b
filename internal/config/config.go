package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	InitialAdminKey string `yaml:"initialAdminKey"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

// FileServiceConfig points at the external file storage service used to
// resolve opaque file identifiers into fetchable locations.
type FileServiceConfig struct {
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// ProbeConfig bounds the merge dry-run accessibility checks.
type ProbeConfig struct {
	TimeoutMs int `yaml:"timeoutMs"`
}

// WebhookConfig controls outbound callback delivery. Secret, when set,
// switches the payload signature from the legacy base64 hint to
// HMAC-SHA256.
type WebhookConfig struct {
	Secret       string `yaml:"secret"`
	TimeoutMs    int    `yaml:"timeoutMs"`
	RetryDelayMs int    `yaml:"retryDelayMs"`
}

// JobTTLConfig controls per-job-type retention in days.
type JobTTLConfig struct {
	DefaultDays    int `yaml:"defaultDays"`
	ValidateDays   int `yaml:"validateDays"`
	ConvertDays    int `yaml:"convertDays"`
	SynthesizeDays int `yaml:"synthesizeDays"`
}

// SweeperConfig controls the background loop that repairs orphaned
// PENDING jobs and deletes expired terminal jobs.
type SweeperConfig struct {
	Enabled                    bool         `yaml:"enabled"`
	IntervalMinutes            int          `yaml:"intervalMinutes"`
	PendingRequeueAfterMinutes int          `yaml:"pendingRequeueAfterMinutes"`
	Retention                  JobTTLConfig `yaml:"retention"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	FileService FileServiceConfig `yaml:"fileService"`
	Probe       ProbeConfig       `yaml:"probe"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}
