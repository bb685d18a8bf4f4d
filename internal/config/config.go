package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	MailPro MailProConfig `yaml:"mailpro"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Report  ReportConfig  `yaml:"report"`
	Cron    CronConfig    `yaml:"cron"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// MailProConfig holds MailPro API configuration
type MailProConfig struct {
	BaseURL        string `yaml:"base_url"`
	PublicKey      string `yaml:"public_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	// Retries is 0 by default: a failed request is reported, not repeated.
	Retries int `yaml:"retries"`
	// ExcludeNameTerms drops campaigns and lists whose names contain any
	// term. Nil means the defaults; an explicit empty list disables it.
	ExcludeNameTerms   []string `yaml:"exclude_name_terms"`
	SuppressionListUID string   `yaml:"suppression_list_uid"`
}

// Timeout returns the configured timeout as a duration
func (c MailProConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type          string `yaml:"type"` // dynamodb or memory
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"` // report archive; empty disables archiving
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the job-lock Redis connection. An empty URL disables locking.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ReportConfig holds daily email report settings
type ReportConfig struct {
	Recipient    string `yaml:"recipient"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"` // optional; default credential chain otherwise
	SESSecretKey string `yaml:"ses_secret_key"`
	BedrockModel string `yaml:"bedrock_model"`
	AISummary    bool   `yaml:"ai_summary"`
}

// CronConfig holds the shared secret scheduled triggers must present.
type CronConfig struct {
	Secret string `yaml:"secret"`
}

// SyncConfig holds sync orchestration settings
type SyncConfig struct {
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	BatchSize       int `yaml:"batch_size"`
	IntervalMinutes int `yaml:"interval_minutes"` // 0 disables the in-process ticker
	LockTTLSeconds  int `yaml:"lock_ttl_seconds"`
}

// Timeout returns the manual-trigger deadline.
func (c SyncConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval returns the background sync interval.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// LockTTL returns how long a sync run may hold the job lock.
func (c SyncConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// MissingError names a required configuration value that is not set.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + e.Name
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for
// deployments that configure purely through the environment.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.MailPro.TimeoutSeconds == 0 {
		cfg.MailPro.TimeoutSeconds = 30
	}
	if cfg.MailPro.PageSize == 0 {
		cfg.MailPro.PageSize = 50
	}
	if cfg.MailPro.MaxConcurrency == 0 {
		cfg.MailPro.MaxConcurrency = 8
	}
	if cfg.MailPro.ExcludeNameTerms == nil {
		cfg.MailPro.ExcludeNameTerms = []string{"farm", "test"}
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "dynamodb"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Report.SESRegion == "" {
		cfg.Report.SESRegion = cfg.Storage.AWSRegion
	}
	if cfg.Report.FromName == "" {
		cfg.Report.FromName = "MailPro Dashboard"
	}
	if cfg.Report.BedrockModel == "" {
		cfg.Report.BedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Sync.TimeoutSeconds == 0 {
		cfg.Sync.TimeoutSeconds = 120
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 20
	}
	if cfg.Sync.LockTTLSeconds == 0 {
		cfg.Sync.LockTTLSeconds = 600
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. A
// missing config file is not an error: defaults plus environment apply.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	overrides := []struct {
		env    string
		target *string
	}{
		{"MAILPRO_API_KEY", &cfg.MailPro.PublicKey},
		{"MAILPRO_BASE_URL", &cfg.MailPro.BaseURL},
		{"MAILPRO_SUPPRESSION_LIST_UID", &cfg.MailPro.SuppressionListUID},
		{"REPORT_RECIPIENT", &cfg.Report.Recipient},
		{"REPORT_FROM_EMAIL", &cfg.Report.FromEmail},
		{"AWS_SES_ACCESS_KEY", &cfg.Report.SESAccessKey},
		{"AWS_SES_SECRET_KEY", &cfg.Report.SESSecretKey},
		{"AWS_SES_REGION", &cfg.Report.SESRegion},
		{"CRON_SECRET", &cfg.Cron.Secret},
		{"STORAGE_TYPE", &cfg.Storage.Type},
		{"DYNAMODB_TABLE", &cfg.Storage.DynamoDBTable},
		{"S3_BUCKET", &cfg.Storage.S3Bucket},
		{"AWS_REGION", &cfg.Storage.AWSRegion},
		{"REDIS_URL", &cfg.Redis.URL},
		{"LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}

	return cfg, nil
}

// Validate fails on the first missing required value. requireCronSecret
// is set by the HTTP server, which cannot authenticate scheduled triggers
// without it.
func (c *Config) Validate(requireCronSecret bool) error {
	if strings.TrimSpace(c.MailPro.BaseURL) == "" {
		return &MissingError{Name: "MAILPRO_BASE_URL"}
	}
	if strings.TrimSpace(c.MailPro.PublicKey) == "" {
		return &MissingError{Name: "MAILPRO_API_KEY"}
	}
	switch c.Storage.Type {
	case "dynamodb":
		if c.Storage.DynamoDBTable == "" {
			return &MissingError{Name: "DYNAMODB_TABLE"}
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if requireCronSecret && c.Cron.Secret == "" {
		return &MissingError{Name: "CRON_SECRET"}
	}
	if c.MailPro.MaxConcurrency < 0 || c.MailPro.PageSize < 0 {
		return fmt.Errorf("mailpro page_size and max_concurrency must be positive")
	}
	return nil
}
