package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/runner"
	"github.com/Mindburn-Labs/briefcheck/pkg/summary"
)

type runFlags struct {
	promos      string
	recipients  string
	noEmail     bool
	failOnError bool
}

func (a *app) validateCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the selected promotions and email the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd.Context(), f, !f.noEmail)
		},
	}
	cmd.Flags().StringVar(&f.promos, "promos", "all", `Comma-separated campaign ids, or "all"`)
	cmd.Flags().StringVar(&f.recipients, "correo", "", "Extra comma-separated recipients")
	cmd.Flags().BoolVar(&f.noEmail, "no-email", false, "Skip the summary email")
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "Exit 1 when any promotion has errors")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Validate the selected promotions and write the reports only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd.Context(), f, false)
		},
	}
	cmd.Flags().StringVar(&f.promos, "promos", "all", `Comma-separated campaign ids, or "all"`)
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "Exit 1 when any promotion has errors")
	return cmd
}

// runPipeline clears the report root, validates every selected campaign,
// summarises the written reports and optionally emails the summary.
func (a *app) runPipeline(ctx context.Context, f runFlags, email bool) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	catalog, err := a.catalog(cfg)
	if err != nil {
		return err
	}
	entries, unknown := catalog.Select(splitList(f.promos))
	for _, id := range unknown {
		a.logger.Warn("unknown promotion, skipping", zap.String("campaign", id))
	}

	locker, closeLock := a.locker(cfg)
	defer func() { _ = closeLock() }()
	release, err := locker.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	st, err := a.openStore(ctx, cfg.PromosDSN, cfg.PromosSchema, cfg.DBQPS)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	loader, err := a.templates(cfg)
	if err != nil {
		return err
	}
	sinks, err := a.sinks(ctx, cfg)
	if err != nil {
		return err
	}
	if err := sinks.Files.Reset(); err != nil {
		return fmt.Errorf("clear reports: %w", err)
	}

	telemetry, err := a.telemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	r, err := runner.New(ctx, runner.Options{
		Source:    st,
		Templates: loader,
		Sink:      sinks.All,
		Telemetry: telemetry,
		Logger:    a.logger.Named("runner"),
	})
	if err != nil {
		return err
	}
	res, err := r.Run(ctx, entries)
	if err != nil {
		return err
	}

	sum, err := summary.Build(sinks.Files, catalog, a.logger.Named("summary"))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, sum.Subject())

	if email {
		if err := a.deliver(ctx, sum, f.recipients, false); err != nil {
			return err
		}
	}

	if f.failOnError && (len(sum.Failed()) > 0 || res.Failed()) {
		return errFailures
	}
	return nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
