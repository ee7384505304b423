package main

import (
	"fmt"
	"os"
	"time"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/common/db"
	commonmw "gradeflow/internal/common/http/middleware"
	"gradeflow/internal/common/lock"
	"gradeflow/internal/common/mq"
	"gradeflow/internal/common/storage"
	"gradeflow/internal/review/evaluate"
	"gradeflow/internal/review/github"
	"gradeflow/internal/review/report"
	"gradeflow/internal/review/runner"
	"gradeflow/internal/review/workspace"
	"gradeflow/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultJobTimeout      = 10 * time.Minute
	defaultCacheTTL        = 10 * time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// TopicConfig names the Kafka topics of the review pipeline.
type TopicConfig struct {
	Jobs          string        `yaml:"jobs"`
	Retry         string        `yaml:"retry"`
	DeadLetter    string        `yaml:"deadLetter"`
	StatusFinal   string        `yaml:"statusFinal"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize      int           `yaml:"poolSize"`
	Timeout       time.Duration `yaml:"timeout"`
	PoolRetryMax  int           `yaml:"poolRetryMax"`
	PoolRetryBase time.Duration `yaml:"poolRetryBaseDelay"`
	PoolRetryMaxD time.Duration `yaml:"poolRetryMaxDelay"`
}

// StatusConfig holds status persistence settings.
type StatusConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// ArtifactConfig holds review archive settings.
type ArtifactConfig struct {
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClassifierConfig holds the task file layout settings.
type ClassifierConfig struct {
	Root string `yaml:"root"`
}

// GradebookConfig holds gradebook settings.
type GradebookConfig struct {
	AutoCreateSheets bool `yaml:"autoCreateSheets"`
}

// CacheTTLConfig holds read-through cache lifetimes.
type CacheTTLConfig struct {
	Assignment time.Duration `yaml:"assignment"`
	Student    time.Duration `yaml:"student"`
}

// AuthConfig holds admin token settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	Role   string `yaml:"role"`
}

// AppConfig holds review-service config.
type AppConfig struct {
	Server     ServerConfig             `yaml:"server"`
	Logger     logger.Config            `yaml:"logger"`
	Database   db.MySQLConfig           `yaml:"database"`
	Redis      cache.RedisConfig        `yaml:"redis"`
	Kafka      mq.KafkaConfig           `yaml:"kafka"`
	Topics     TopicConfig              `yaml:"topics"`
	MinIO      storage.MinIOConfig      `yaml:"minio"`
	GitHub     github.Config            `yaml:"github"`
	Workspace  workspace.Config         `yaml:"workspace"`
	Git        workspace.GitConfig      `yaml:"git"`
	Lock       lock.Config              `yaml:"lock"`
	Runner     runner.Config            `yaml:"runner"`
	Evaluate   evaluate.Config          `yaml:"evaluate"`
	Classifier ClassifierConfig         `yaml:"classifier"`
	Merge      report.MergeConfig       `yaml:"merge"`
	Gradebook  GradebookConfig          `yaml:"gradebook"`
	CacheTTL   CacheTTLConfig           `yaml:"cacheTTL"`
	Worker     WorkerConfig             `yaml:"worker"`
	Status     StatusConfig             `yaml:"status"`
	Artifacts  ArtifactConfig           `yaml:"artifacts"`
	Auth       AuthConfig               `yaml:"auth"`
	RateLimit  commonmw.RateLimitPolicy `yaml:"rateLimit"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Workspace.RepoURL == "" {
		return nil, fmt.Errorf("workspace repoURL is required")
	}
	if cfg.Workspace.Root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Topics.Jobs == "" {
		cfg.Topics.Jobs = "review.jobs"
	}
	if cfg.Topics.DeadLetter == "" {
		cfg.Topics.DeadLetter = "review.jobs.dlq"
	}
	if cfg.Topics.StatusFinal == "" {
		cfg.Topics.StatusFinal = "review.status.final"
	}
	if cfg.Topics.ConsumerGroup == "" {
		cfg.Topics.ConsumerGroup = "review-service"
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Worker.Timeout == 0 {
		cfg.Worker.Timeout = defaultJobTimeout
	}
	if cfg.Worker.PoolRetryMax <= 0 {
		cfg.Worker.PoolRetryMax = 5
	}
	if cfg.Worker.PoolRetryBase == 0 {
		cfg.Worker.PoolRetryBase = time.Second
	}
	if cfg.Worker.PoolRetryMaxD == 0 {
		cfg.Worker.PoolRetryMaxD = 30 * time.Second
	}
	if cfg.Status.Timeout == 0 {
		cfg.Status.Timeout = 2 * time.Second
	}
	if cfg.Artifacts.Bucket == "" {
		cfg.Artifacts.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Artifacts.Timeout == 0 {
		cfg.Artifacts.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL.Assignment == 0 {
		cfg.CacheTTL.Assignment = defaultCacheTTL
	}
	if cfg.CacheTTL.Student == 0 {
		cfg.CacheTTL.Student = defaultCacheTTL
	}
	if cfg.Auth.Role == "" {
		cfg.Auth.Role = "teacher"
	}
	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 60
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
