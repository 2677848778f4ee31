package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database   DatabaseConfig  `yaml:"database"`
	RabbitMQ   RabbitMQConfig  `yaml:"rabbitmq"`
	HTTP       HTTPConfig      `yaml:"http"`
	AI         AIConfig        `yaml:"ai"`
	Fetch      FetchConfig     `yaml:"fetch"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Trigger    TriggerConfig   `yaml:"trigger"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	BaseURL    string          `yaml:"base_url"`
	CronSecret string          `yaml:"cron_secret"`
	LogLevel   string          `yaml:"log_level"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AIConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"api_key"`
	ChatModel           string        `yaml:"chat_model"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	// EmbeddingDimensions must match the model; 0 disables the length check.
	EmbeddingDimensions int           `yaml:"embedding_dimensions"`
	Language            string        `yaml:"language"`
	Analysis            *bool         `yaml:"analysis"`
	MaxInputChars       int           `yaml:"max_input_chars"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
	RequestsPerSec      float64       `yaml:"requests_per_sec"`
	Burst               int           `yaml:"burst"`
}

// AnalysisEnabled defaults to true when the key is absent.
func (a AIConfig) AnalysisEnabled() bool {
	return a.Analysis == nil || *a.Analysis
}

type FetchConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	Retry     RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type IngestConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	SourceTimeout  time.Duration `yaml:"source_timeout"`
	MaxRunDuration time.Duration `yaml:"max_run_duration"`
}

type TriggerConfig struct {
	Slots            []string       `yaml:"slots"`
	Timezone         string         `yaml:"timezone"`
	DelayMin         time.Duration  `yaml:"delay_min"`
	DelayMax         time.Duration  `yaml:"delay_max"`
	DryRetryInterval *time.Duration `yaml:"dry_retry_interval"`
}

type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		c.CronSecret = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
}

func (c *Config) setDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "intel_fetcher"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "articles.created"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "article_notifications"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://api.openai.com/v1"
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = "gpt-4o-mini"
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.AI.EmbeddingDimensions == 0 && c.AI.EmbeddingModel == "text-embedding-3-small" {
		c.AI.EmbeddingDimensions = 1536
	}
	if c.AI.Language == "" {
		c.AI.Language = "Japanese"
	}
	if c.AI.MaxInputChars == 0 {
		c.AI.MaxInputChars = 10000
	}
	if c.AI.CallTimeout == 0 {
		c.AI.CallTimeout = 30 * time.Second
	}
	if c.AI.RequestsPerSec == 0 {
		c.AI.RequestsPerSec = 2
	}
	if c.AI.Burst == 0 {
		c.AI.Burst = 4
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 5 << 20
	}
	if c.Fetch.Retry.MaxAttempts == 0 {
		c.Fetch.Retry.MaxAttempts = 3
	}
	if c.Fetch.Retry.InitialBackoff == 0 {
		c.Fetch.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Fetch.Retry.MaxBackoff == 0 {
		c.Fetch.Retry.MaxBackoff = 10 * time.Second
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = 4
	}
	if c.Ingest.SourceTimeout == 0 {
		c.Ingest.SourceTimeout = 45 * time.Second
	}
	if c.Ingest.MaxRunDuration == 0 {
		c.Ingest.MaxRunDuration = 5 * time.Minute
	}
	if len(c.Trigger.Slots) == 0 {
		c.Trigger.Slots = []string{"08:00", "12:00", "18:00"}
	}
	if c.Trigger.Timezone == "" {
		c.Trigger.Timezone = "Asia/Tokyo"
	}
	if c.Trigger.DelayMin == 0 {
		c.Trigger.DelayMin = 3 * time.Minute
	}
	if c.Trigger.DelayMax == 0 {
		c.Trigger.DelayMax = 4 * time.Minute
	}
	if c.Trigger.DryRetryInterval == nil {
		d := 30 * time.Minute
		c.Trigger.DryRetryInterval = &d
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = time.Minute
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Trigger.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("trigger.timezone: %w", err))
	}
	for _, slot := range c.Trigger.Slots {
		if _, err := time.Parse("15:04", slot); err != nil {
			errs = append(errs, fmt.Errorf("trigger.slots: %q is not HH:MM", slot))
		}
	}
	if c.Trigger.DelayMax <= c.Trigger.DelayMin {
		errs = append(errs, errors.New("trigger.delay_max must be greater than trigger.delay_min"))
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, errors.New("ingest.concurrency must be at least 1"))
	}

	return errors.Join(errs...)
}
