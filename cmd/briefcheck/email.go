package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/notify"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/summary"
)

func (a *app) sendEmailCmd() *cobra.Command {
	var recipients string
	cmd := &cobra.Command{
		Use:   "send-email",
		Short: "Email the summary of the reports already on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			catalog, err := a.catalog(cfg)
			if err != nil {
				return err
			}
			files, err := report.NewFileSink(cfg.ReportsDir)
			if err != nil {
				return err
			}
			sum, err := summary.Build(files, catalog, a.logger.Named("summary"))
			if err != nil {
				return err
			}
			return a.deliver(cmd.Context(), sum, recipients, true)
		},
	}
	cmd.Flags().StringVar(&recipients, "correo", "", "Extra comma-separated recipients")
	return cmd
}

// deliver emails the summary. When required is false a missing API or an
// empty recipient list is logged and skipped.
func (a *app) deliver(ctx context.Context, sum *summary.Summary, extra string, required bool) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	mailer, err := a.mailer(cfg)
	if err != nil {
		return err
	}
	if mailer == nil {
		if required {
			return errors.New("email is not configured: set EMAIL_ENDPOINT and EMAIL_KEY")
		}
		a.logger.Warn("email is not configured, skipping notification")
		return nil
	}

	to := cfg.Recipients(splitList(extra)...)
	if len(to) == 0 && !required {
		a.logger.Warn("no recipients, skipping notification")
		return nil
	}
	body, err := sum.HTML()
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	if err := mailer.Send(ctx, notify.Message{To: to, Subject: sum.Subject(), HTML: body}); err != nil {
		return err
	}
	a.logger.Info("summary emailed", zap.Strings("to", to))
	return nil
}
