package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/briefcheck/pkg/store"
)

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

func (a *app) doctorCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, allOK, err := a.doctor(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					_, _ = fmt.Fprintf(a.stdout, "%-4s  %-12s  %s\n", r.Status, r.Name, r.Detail)
				}
			}
			if !allOK {
				return errFailures
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *app) doctor(ctx context.Context) ([]checkResult, bool, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, false, err
	}
	results := []checkResult{{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}
	allOK := true

	ping := func(name, dsn, schema string) {
		if dsn == "" {
			results = append(results, checkResult{Name: name, Status: "warn", Detail: "not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := store.Open(dsn, store.Options{Schema: schema, Logger: a.logger.Named("store")})
		if err == nil {
			err = st.Ping(ctx)
			_ = st.Close()
		}
		if err != nil {
			allOK = false
			results = append(results, checkResult{Name: name, Status: "fail", Detail: err.Error()})
			return
		}
		results = append(results, checkResult{Name: name, Status: "ok", Detail: st.Dialect().Name})
	}
	ping("promos_db", cfg.PromosDSN, cfg.PromosSchema)
	ping("mesas_db", cfg.MesasDSN, cfg.MesasSchema)

	if info, err := os.Stat(cfg.TemplatesDir); err != nil || !info.IsDir() {
		allOK = false
		results = append(results, checkResult{Name: "templates", Status: "fail", Detail: cfg.TemplatesDir + " is not a directory"})
	} else {
		results = append(results, checkResult{Name: "templates", Status: "ok", Detail: cfg.TemplatesDir})
	}

	if _, err := a.catalog(cfg); err != nil {
		allOK = false
		results = append(results, checkResult{Name: "catalog", Status: "fail", Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "catalog", Status: "ok"})
	}

	if cfg.EmailConfigured() {
		results = append(results, checkResult{Name: "email", Status: "ok", Detail: fmt.Sprintf("%d default recipients", len(cfg.EmailTo))})
	} else {
		results = append(results, checkResult{Name: "email", Status: "warn", Detail: "EMAIL_ENDPOINT not set"})
	}
	return results, allOK, nil
}
