package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/summary"
)

func (a *app) summaryCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the summary of the reports already on disk",
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
			if jsonOutput {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			return printSummary(a, sum)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printSummary(a *app, sum *summary.Summary) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROMO\tNAME\tSTATUS\tERRORS\tCATEGORY\tDETAIL")
	for _, c := range sum.Campaigns {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\t\n", c.ID, c.Name, c.Status, c.Errors)
		for _, cat := range c.Categories {
			detail := strings.TrimSpace(string(cat.Status) + " " + strings.Join(cat.Messages, "; "))
			_, _ = fmt.Fprintf(tw, "\t\t\t\t%s\t%s\n", cat.Label(), detail)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, sum.Subject())
	return nil
}
