package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	FedEx      FedExConfig      `yaml:"fedex"`
	Security   SecurityConfig   `yaml:"security"`
	Storage    StorageConfig    `yaml:"storage"`
	Retention  RetentionConfig  `yaml:"retention"`
	ColisTrack ColisTrackConfig `yaml:"colistrack"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"DATABASE_HOST"`
	Port     int    `yaml:"port" env:"DATABASE_PORT"`
	Username string `yaml:"username" env:"DATABASE_USER"`
	Password string `yaml:"password" env:"DATABASE_PASSWORD"`
	DBName   string `yaml:"name" env:"DATABASE_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DATABASE_SSL_MODE"`
}

// ConnString prefers an explicit URL over the individual fields.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                     string `yaml:"host" env:"KAFKA_HOST"`
	Port                     int    `yaml:"port" env:"KAFKA_PORT"`
	TrackingUpdatedTopicName string `yaml:"tracking_updated_topic_name" env:"KAFKA_TRACKING_UPDATED_TOPIC"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"REDIS_URL"`
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type FedExConfig struct {
	BaseURL        string `yaml:"base_url" env:"FEDEX_BASE_URL"`
	AuthURL        string `yaml:"auth_url" env:"FEDEX_AUTH_URL"`
	ClientID       string `yaml:"client_id" env:"FEDEX_CLIENT_ID"`
	ClientSecret   string `yaml:"client_secret" env:"FEDEX_CLIENT_SECRET"`
	AccountNumber  string `yaml:"account_number" env:"FEDEX_ACCOUNT_NUMBER"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"FEDEX_TIMEOUT_SECONDS"`
}

// Enabled reports whether real carrier credentials are configured.
func (f FedExConfig) Enabled() bool {
	return f.ClientID != "" && f.ClientSecret != ""
}

type SecurityConfig struct {
	WebhookSecret string `yaml:"webhook_secret" env:"FEDEX_WEBHOOK_SECRET"`
	JWTSecret     string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTAlgorithm  string `yaml:"jwt_algorithm" env:"JWT_ALGORITHM"`
}

type StorageConfig struct {
	BarcodeDir string `yaml:"barcode_dir" env:"BARCODE_DIR"`
	ProofDir   string `yaml:"proof_dir" env:"PROOF_DIR"`
}

type RetentionConfig struct {
	HistoryDays          int `yaml:"history_days" env:"HISTORY_RETENTION_DAYS"`
	NotificationDays     int `yaml:"notification_days" env:"NOTIFICATION_RETENTION_DAYS"`
	PurgeIntervalMinutes int `yaml:"purge_interval_minutes" env:"RETENTION_PURGE_INTERVAL_MINUTES"`
}

type ColisTrackConfig struct {
	HTTPAddr                string `yaml:"http_addr" env:"HTTP_ADDR"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	WorkerPollIntervalSeconds     int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize               int    `yaml:"worker_batch_size"`
	WorkerConcurrency             int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds            int    `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute      int    `yaml:"worker_rate_limit_per_minute"`
	WorkerRateLimitFedExPerMinute int    `yaml:"worker_rate_limit_fedex_per_minute"`
	WorkerHTTPAddr                string `yaml:"worker_http_addr"`

	// Worker scheduling. Unset values fall back to the planner defaults.
	WorkerNextCheckInTransitMinSeconds int `yaml:"worker_next_check_in_transit_min_seconds"`
	WorkerNextCheckInTransitMaxSeconds int `yaml:"worker_next_check_in_transit_max_seconds"`
	WorkerNextCheckUnknownSeconds      int `yaml:"worker_next_check_unknown_seconds"`
	WorkerNextCheckPendingSeconds      int `yaml:"worker_next_check_pending_seconds"`
	WorkerNextCheckExceptionSeconds    int `yaml:"worker_next_check_exception_seconds"`
	WorkerBackoff1Seconds              int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds              int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds              int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds              int `yaml:"worker_backoff_4_seconds"`
}

// LoadConfig reads the YAML file and then applies environment overrides.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}
