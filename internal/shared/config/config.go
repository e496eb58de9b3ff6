package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"rateshop-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Env             string   `env:"ENV" envDefault:"dev"`
	Port            string   `env:"PORT" envDefault:"8080"`
	CORSAllowOrigin []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	ResultStore     string `env:"RESULT_STORE" envDefault:"auto"`
	ObjectStoreType string `env:"OBJECT_STORE" envDefault:"local"`
	LocalStoreDir   string `env:"LOCAL_STORE_DIR" envDefault:"./data"`
	AWSRegion       string `env:"AWS_REGION"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Prefix        string `env:"S3_PREFIX"`
	SSEKMSKeyID     string `env:"SSE_KMS_KEY_ID"`
	S3Endpoint      string `env:"S3_ENDPOINT"`

	DispatchMode string `env:"DISPATCH_MODE" envDefault:"inprocess"`
	SQSQueueURL  string `env:"RS_SQS_QUEUE_URL"`

	JWTSecret    string `env:"JWT_SECRET"`
	OIDCIssuer   string `env:"OIDC_ISSUER"`
	OIDCAudience string `env:"OIDC_AUDIENCE"`

	CarrierSeedFile string `env:"CARRIER_SEED_FILE"`

	Pipeline Pipeline
}

// Pipeline tunes job processing.
type Pipeline struct {
	Concurrency         int           `env:"RATE_CONCURRENCY" envDefault:"8"`
	BatchSize           int           `env:"PERSIST_BATCH_SIZE" envDefault:"50"`
	BatchTimeout        time.Duration `env:"PERSIST_BATCH_TIMEOUT" envDefault:"30s"`
	MaxPersistFailures  int           `env:"PERSIST_MAX_FAILURES" envDefault:"3"`
	CarrierTimeout      time.Duration `env:"CARRIER_REQUEST_TIMEOUT" envDefault:"20s"`
	CarrierMaxAttempts  int           `env:"CARRIER_MAX_ATTEMPTS" envDefault:"2"`
	CarrierRetryBackoff time.Duration `env:"CARRIER_RETRY_BACKOFF" envDefault:"500ms"`
	CarrierRPS          float64       `env:"CARRIER_RPS" envDefault:"10"`
	CarrierBurst        int           `env:"CARRIER_BURST" envDefault:"5"`
	MaxShipmentsPerJob  int           `env:"MAX_SHIPMENTS_PER_JOB" envDefault:"50000"`
	JobLeaseTTL         time.Duration `env:"JOB_LEASE_TTL" envDefault:"10m"`
	SubmitRatePerMin    int           `env:"SUBMIT_RATE_PER_MIN" envDefault:"30"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		if err := godotenv.Load(path); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return Config{}, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": cfg.Env})
	}
	return cfg, nil
}

// Sanitize normalizes enumerations and clamps pipeline values.
func (c *Config) Sanitize() {
	c.Env = normalizeEnv(c.Env)
	c.CORSAllowOrigin = trimAll(c.CORSAllowOrigin)
	if len(c.CORSAllowOrigin) == 0 {
		c.CORSAllowOrigin = []string{"*"}
	}
	c.ResultStore = oneOf(c.ResultStore, "auto", "auto", "postgres", "object", "memory")
	c.ObjectStoreType = oneOf(c.ObjectStoreType, "local", "local", "s3")
	c.DispatchMode = oneOf(c.DispatchMode, "inprocess", "inprocess", "sqs")

	p := &c.Pipeline
	if p.Concurrency <= 0 {
		p.Concurrency = 8
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	if p.BatchTimeout <= 0 {
		p.BatchTimeout = 30 * time.Second
	}
	if p.MaxPersistFailures <= 0 {
		p.MaxPersistFailures = 3
	}
	if p.CarrierTimeout <= 0 {
		p.CarrierTimeout = 20 * time.Second
	}
	if p.CarrierMaxAttempts <= 0 {
		p.CarrierMaxAttempts = 2
	}
	if p.CarrierRetryBackoff < 0 {
		p.CarrierRetryBackoff = 0
	}
	if p.MaxShipmentsPerJob <= 0 {
		p.MaxShipmentsPerJob = 50000
	}
	if p.JobLeaseTTL <= 0 {
		p.JobLeaseTTL = 10 * time.Minute
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, p := range in {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func oneOf(raw, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
