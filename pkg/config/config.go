// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

var ErrInvalid = errors.New("config: invalid")

// Config holds the run configuration. It is built once by Load and never
// mutated afterwards.
type Config struct {
	PromosDSN    string `env:"MSSQL_PROMOS_URL,required,notEmpty"`
	MesasDSN     string `env:"MSSQL_MESAS_URL"`
	PromosSchema string `env:"DB_SCHEMA_PROMOS" envDefault:"dbo"`
	MesasSchema  string `env:"DB_SCHEMA_MESAS" envDefault:"dbo"`

	EmailEndpoint string        `env:"EMAIL_ENDPOINT"`
	EmailKey      string        `env:"EMAIL_KEY"`
	EmailTo       []string      `env:"EMAIL_TO" envSeparator:","`
	EmailAppKey   string        `env:"EMAIL_APP_KEY" envDefault:"NOTIFICACIONESQA"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT" envDefault:"20s"`

	TemplatesDir string  `env:"BRIEF_TEMPLATES_DIR" envDefault:"pages/Brief/JsonGenerales"`
	ReportsDir   string  `env:"BRIEF_REPORTS_DIR" envDefault:"pages/Brief/Validaciones"`
	CatalogFile  string  `env:"BRIEF_CATALOG_FILE"`
	DBQPS        float64 `env:"BRIEF_DB_QPS" envDefault:"0"`

	S3 S3Config
	// GCS mirroring is only compiled in with the gcp build tag.
	GCS GCSConfig

	RedisAddr string        `env:"REDIS_ADDR"`
	LockTTL   time.Duration `env:"BRIEF_LOCK_TTL" envDefault:"30m"`

	OtelEnabled  bool   `env:"BRIEF_OTEL_ENABLED" envDefault:"false"`
	OtelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type S3Config struct {
	Bucket   string `env:"BRIEF_REPORTS_S3_BUCKET"`
	Prefix   string `env:"BRIEF_REPORTS_S3_PREFIX"`
	Region   string `env:"BRIEF_REPORTS_S3_REGION"`
	Endpoint string `env:"BRIEF_REPORTS_S3_ENDPOINT"`
}

type GCSConfig struct {
	Bucket string `env:"BRIEF_REPORTS_GCS_BUCKET"`
	Prefix string `env:"BRIEF_REPORTS_GCS_PREFIX"`
}

// Load parses and validates the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	cfg.EmailTo = cleanList(cfg.EmailTo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.PromosDSN) == "" {
		errs = append(errs, errors.New("MSSQL_PROMOS_URL is required"))
	}
	if c.DBQPS < 0 {
		errs = append(errs, fmt.Errorf("BRIEF_DB_QPS must not be negative, got %v", c.DBQPS))
	}
	if c.EmailTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EMAIL_TIMEOUT must be positive, got %s", c.EmailTimeout))
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("BRIEF_LOCK_TTL must be positive, got %s", c.LockTTL))
	}
	if (c.EmailEndpoint == "") != (c.EmailKey == "") {
		errs = append(errs, errors.New("EMAIL_ENDPOINT and EMAIL_KEY must be set together"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// EmailConfigured reports whether notifications can be sent.
func (c *Config) EmailConfigured() bool {
	return c.EmailEndpoint != "" && c.EmailKey != ""
}

// Recipients merges the configured recipients with extra ones, trimming and
// dropping duplicates while keeping first-seen order.
func (c *Config) Recipients(extra ...string) []string {
	return cleanList(append(append([]string{}, c.EmailTo...), extra...))
}

func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := []string{}
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}
