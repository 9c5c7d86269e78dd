package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/briefcheck/pkg/mesas"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

func (a *app) mesasCmd() *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "mesas",
		Short: "Check upcoming tournament dates against mesas_config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.MesasDSN == "" {
				return errors.New("MSSQL_MESAS_URL is required for the mesas check")
			}
			st, err := a.openStore(ctx, cfg.MesasDSN, cfg.MesasSchema, cfg.DBQPS)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			sinks, err := a.sinks(ctx, cfg)
			if err != nil {
				return err
			}
			res, err := mesas.NewChecker(os.DirFS(cfg.TemplatesDir), st, sinks.All, a.logger.Named("mesas")).Run(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "mesas: %s (%d diffs)\n", res.Status, len(res.Diffs))
			if failOnError && res.Status == verdict.Error {
				return errFailures
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit 1 when any tournament date differs")
	return cmd
}
