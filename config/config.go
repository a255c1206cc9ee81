package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"safetyeye/internal/classify"
)

// Config is the root configuration.
type Config struct {
	SafetyEye SafetyEyeConfig `yaml:"safetyeye"`
}

// SafetyEyeConfig is the project configuration.
type SafetyEyeConfig struct {
	Input     InputConfig     `yaml:"input"`
	Detection DetectionConfig `yaml:"detection"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Events    EventsConfig    `yaml:"events"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InputConfig controls the detection input reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls the Redis frame-packet queue.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// DetectionConfig holds the classification thresholds and the tracked
// equipment categories. Thresholds are safe to change between frames; they
// never reset accumulated cooldown state.
type DetectionConfig struct {
	ConfThreshold float64             `yaml:"conf_threshold"`
	IoUThreshold  float64             `yaml:"iou_threshold"`
	Categories    []classify.Category `yaml:"categories"`
}

// TrackingConfig controls durable person identity across frames.
type TrackingConfig struct {
	Enabled      *bool   `yaml:"enabled"`
	IoUThreshold float64 `yaml:"iou_threshold"`
	MaxMisses    int     `yaml:"max_misses"`
}

// PipelineConfig controls the session loop.
type PipelineConfig struct {
	MaxFPS        float64       `yaml:"max_fps"`
	LogCooldown   time.Duration `yaml:"log_cooldown"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
}

// EventsConfig selects and configures the event log sink.
type EventsConfig struct {
	Mode   string            `yaml:"mode"` // csv|jsonl|sqlite|redis
	File   FileOutputConfig  `yaml:"file"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Redis  RedisOutputConfig `yaml:"redis"`
}

// FileOutputConfig config for file-backed sinks.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// SQLiteConfig config for the SQLite event store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisOutputConfig config for the Redis event sink.
type RedisOutputConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxRows  int64  `yaml:"max_rows"`
}

// AlertsConfig controls outbound notifications.
type AlertsConfig struct {
	Enabled bool          `yaml:"enabled"`
	Mode    string        `yaml:"mode"` // smtp|webhook
	SMTP    SMTPConfig    `yaml:"smtp"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
	UseTLS     *bool    `yaml:"use_tls"`
}

// WebhookConfig configures the HTTP notifier.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// SnapshotsConfig controls violation snapshot output.
type SnapshotsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
