package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/briefcheck/pkg/config"
	"github.com/Mindburn-Labs/briefcheck/pkg/notify"
	"github.com/Mindburn-Labs/briefcheck/pkg/observability"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/runlock"
	"github.com/Mindburn-Labs/briefcheck/pkg/store"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
)

// app carries the per-invocation state shared by the subcommands.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	verbose bool

	level  zap.AtomicLevel
	logger *zap.Logger
	cfg    *config.Config
}

func (a *app) initLogger() error {
	var core zapcore.Core
	if a.verbose {
		a.level.SetLevel(zapcore.DebugLevel)
		enc := zap.NewDevelopmentEncoderConfig()
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(a.stderr), a.level)
	} else {
		enc := zap.NewProductionConfig().EncoderConfig
		core = zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(a.stderr), a.level)
	}
	a.logger = zap.New(core, zap.AddCaller()).Named("briefcheck")
	return nil
}

// config loads the environment once and applies LOG_LEVEL unless --verbose
// already forced debug output.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !a.verbose {
		lvl, _ := zapcore.ParseLevel(cfg.LogLevel)
		a.level.SetLevel(lvl)
	}
	a.cfg = cfg
	return cfg, nil
}

// openStore opens a store and checks connectivity. sqlite targets get their
// tables created so a local run works against an empty file.
func (a *app) openStore(ctx context.Context, dsn, schema string, qps float64) (*store.SQLStore, error) {
	st, err := store.Open(dsn, store.Options{Schema: schema, QPS: qps, Logger: a.logger.Named("store")})
	if err != nil {
		return nil, err
	}
	if st.Dialect() == store.SQLite {
		a.logger.Warn("using sqlite store, for local runs only")
		if err := st.Bootstrap(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return st, nil
}

func (a *app) catalog(cfg *config.Config) (template.Catalog, error) {
	if cfg.CatalogFile == "" {
		return template.DefaultCatalog(), nil
	}
	return template.LoadCatalog(cfg.CatalogFile)
}

func (a *app) templates(cfg *config.Config) (*template.Loader, error) {
	return template.NewLoader(os.DirFS(cfg.TemplatesDir), a.logger.Named("template"))
}

func (a *app) sinks(ctx context.Context, cfg *config.Config) (*report.Sinks, error) {
	return report.FromConfig(ctx, cfg, a.logger.Named("report"))
}

func (a *app) telemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	oc := observability.DefaultConfig()
	oc.Enabled = cfg.OtelEnabled
	oc.OTLPEndpoint = cfg.OtelEndpoint
	return observability.New(ctx, oc, a.logger.Named("otel"))
}

// locker returns the Redis run lock when REDIS_ADDR is set. The closer is
// never nil.
func (a *app) locker(cfg *config.Config) (runlock.Locker, func() error) {
	if cfg.RedisAddr == "" {
		return runlock.Nop{}, func() error { return nil }
	}
	l := runlock.NewRedis(cfg.RedisAddr, cfg.LockTTL)
	return l, l.Close
}

// mailer returns nil when the notification API is not configured.
func (a *app) mailer(cfg *config.Config) (notify.Mailer, error) {
	if !cfg.EmailConfigured() {
		return nil, nil
	}
	c, err := notify.NewClient(notify.Options{
		Endpoint:   cfg.EmailEndpoint,
		APIKey:     cfg.EmailKey,
		AppKey:     cfg.EmailAppKey,
		Timeout:    cfg.EmailTimeout,
		MaxRetries: 3,
		Limiter:    rate.NewLimiter(rate.Limit(1), 1),
		Logger:     a.logger.Named("notify"),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
