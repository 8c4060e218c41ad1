// Package config loads application configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// SystemConfig holds pipeline-wide settings.
type SystemConfig struct {
	FPSTarget             int    `yaml:"fps_target"`
	MaxCameras            int    `yaml:"max_cameras"`
	SnapshotRetentionDays int    `yaml:"snapshot_retention_days"`
	LogLevel              string `yaml:"log_level"`
	SnapshotDir           string `yaml:"snapshot_dir"`
	FrameQueueSize        int    `yaml:"frame_queue_size"`
}

// InferenceConfig holds detection service settings.
type InferenceConfig struct {
	Endpoint            string   `yaml:"endpoint"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	TimeoutSeconds      int      `yaml:"timeout_seconds"`
	ClassesFilter       []string `yaml:"classes_filter"`
}

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SnapshotsConfig selects and configures the snapshot backend.
type SnapshotsConfig struct {
	Backend string `yaml:"backend"` // "dir" or "minio"

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
	AdminUser string `yaml:"admin_user"`
	AdminPass string `yaml:"admin_pass"`
}

// Config is the application configuration tree.
type Config struct {
	System    SystemConfig                `yaml:"system"`
	Inference InferenceConfig             `yaml:"inference"`
	MQTT      MQTTConfig                  `yaml:"mqtt"`
	Database  DatabaseConfig              `yaml:"database"`
	Snapshots SnapshotsConfig             `yaml:"snapshots"`
	HTTP      HTTPConfig                  `yaml:"http"`
	Rules     map[string]model.RuleConfig `yaml:"rules"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			FPSTarget:             15,
			MaxCameras:            4,
			SnapshotRetentionDays: 30,
			LogLevel:              "info",
			SnapshotDir:           "data/snapshots",
			FrameQueueSize:        100,
		},
		Inference: InferenceConfig{
			Endpoint:            "http://localhost:8001",
			ConfidenceThreshold: 0.5,
			TimeoutSeconds:      15,
		},
		MQTT: MQTTConfig{
			Enabled:     true,
			Broker:      "localhost",
			Port:        1883,
			TopicPrefix: "sentinelsight",
			QoS:         1,
		},
		Database:  DatabaseConfig{Path: "data/sentinelsight.db"},
		Snapshots: SnapshotsConfig{Backend: "dir"},
		HTTP:      HTTPConfig{Addr: ":8000"},
		Rules:     map[string]model.RuleConfig{},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			log.Printf("[Config] %s not found, using defaults", path)
		} else if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides selected fields from the environment. Secrets are
// expected to arrive this way in deployments.
func (c *Config) applyEnv() {
	if v := os.Getenv("SENTINEL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SENTINEL_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("SENTINEL_JWT_SECRET"); v != "" {
		c.HTTP.JWTSecret = v
	}
	if v := os.Getenv("SENTINEL_ADMIN_USER"); v != "" {
		c.HTTP.AdminUser = v
	}
	if v := os.Getenv("SENTINEL_ADMIN_PASS"); v != "" {
		c.HTTP.AdminPass = v
	}
	if v := os.Getenv("SENTINEL_INFERENCE_ENDPOINT"); v != "" {
		c.Inference.Endpoint = v
	}
	if v := os.Getenv("SENTINEL_SNAPSHOT_DIR"); v != "" {
		c.System.SnapshotDir = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.MQTT.Port = port
		}
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Snapshots.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Snapshots.MinioSecretKey = v
	}
}

// RuleSource returns a lookup for per-rule configuration. Rules absent
// from the config are enabled with defaults.
func (c *Config) RuleSource() func(rule string) model.RuleConfig {
	return func(rule string) model.RuleConfig {
		return c.Rules[rule]
	}
}

// InferenceTimeout returns the detection client timeout.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}
