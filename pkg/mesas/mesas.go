// Package mesas checks the start and end dates of upcoming tournament tables
// against the expected dates kept next to the rule templates.
package mesas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

const (
	// ConfigFile is the expected-dates document in the template store.
	ConfigFile = "mesas_config.json"
	// CampaignID is the report campaign the result is written under.
	CampaignID = "mesas"
)

var ErrBadConfig = errors.New("mesas: unexpected config structure")

// TournamentSource lists the upcoming tournament rows.
type TournamentSource interface {
	UpcomingTournaments(ctx context.Context) ([]promo.TournamentDate, error)
}

// Window is a start/end pair. Expected windows keep the configured values
// as written; found windows hold rendered instants.
type Window struct {
	Start any `json:"inicio"`
	End   any `json:"fin"`
}

// Diff is one tournament row that is unexpected or has other dates.
type Diff struct {
	Segment  string         `json:"segmento"`
	Expected *Window        `json:"expected,omitempty"`
	Found    *Window        `json:"found,omitempty"`
	Status   verdict.Status `json:"status"`
	Reason   string         `json:"reason,omitempty"`
}

// Row is a tournament row as written to the report.
type Row struct {
	ID           int64  `json:"id"`
	TournamentID int64  `json:"id_torneo"`
	Promotion    string `json:"nombre_promocion"`
	Start        string `json:"inicio"`
	End          string `json:"fin"`
}

// Result is the validacion_fechas.json document.
type Result struct {
	Status   verdict.Status `json:"status"`
	Diffs    []Diff         `json:"diffs"`
	Expected map[string]any `json:"expected"`
	Found    []Row          `json:"found"`
}

type Checker struct {
	fsys   fs.FS
	src    TournamentSource
	sink   report.Sink
	logger *zap.Logger
}

func NewChecker(fsys fs.FS, src TournamentSource, sink report.Sink, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{fsys: fsys, src: src, sink: sink, logger: logger.Named("mesas")}
}

// Run compares the tournament rows with the expected dates and writes the
// result to the sink.
func (c *Checker) Run(ctx context.Context) (*Result, error) {
	expected, err := LoadConfig(c.fsys)
	if err != nil {
		return nil, err
	}
	rows, err := c.src.UpcomingTournaments(ctx)
	if err != nil {
		return nil, fmt.Errorf("mesas: %w", err)
	}

	res := Compare(expected, rows)
	if err := c.sink.Put(ctx, CampaignID, report.CategoryDates, res); err != nil {
		return nil, fmt.Errorf("mesas: write report: %w", err)
	}
	c.logger.Info("tournament dates checked",
		zap.String("status", string(res.Status)),
		zap.Int("rows", len(rows)),
		zap.Int("diffs", len(res.Diffs)),
	)
	return res, nil
}

// Compare diffs tournament rows against the expected config. Rows are keyed
// by their id rendered as text.
func Compare(expected map[string]any, rows []promo.TournamentDate) *Result {
	want := map[string]Window{}
	entries, _ := expected["mesas"].([]any)
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		key := verdict.Text(first(m, "segmento", "codigo"))
		want[key] = Window{Start: first(m, "inicio", "dia_inicio"), End: first(m, "fin", "dia_fin")}
	}

	res := &Result{Diffs: []Diff{}, Expected: expected, Found: make([]Row, 0, len(rows))}
	for _, r := range rows {
		res.Found = append(res.Found, Row{
			ID:           r.ID,
			TournamentID: r.TournamentID,
			Promotion:    r.Promotion,
			Start:        r.Start,
			End:          r.End,
		})

		seg := fmt.Sprint(r.ID)
		w, ok := want[seg]
		if !ok {
			res.Diffs = append(res.Diffs, Diff{Segment: seg, Status: verdict.Error, Reason: "Segmento no esperado"})
			continue
		}
		if verdict.Text(w.Start) != r.Start || verdict.Text(w.End) != r.End {
			res.Diffs = append(res.Diffs, Diff{
				Segment:  seg,
				Expected: &w,
				Found:    &Window{Start: r.Start, End: r.End},
				Status:   verdict.Error,
			})
		}
	}
	res.Status = verdict.Of(len(res.Diffs) == 0)
	return res
}

// first returns the first of keys holding a truthy value, or nil.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if x == "" {
				continue
			}
		case json.Number:
			if f, err := x.Float64(); err == nil && f == 0 {
				continue
			}
		case bool:
			if !x {
				continue
			}
		}
		return v
	}
	return nil
}

// LoadConfig reads the expected tournament dates. The document is either an
// object with a "mesas" list or a bare list; a YAML sibling is accepted when
// the JSON file is absent.
func LoadConfig(fsys fs.FS) (map[string]any, error) {
	data, err := fs.ReadFile(fsys, ConfigFile)
	isYAML := false
	if errors.Is(err, fs.ErrNotExist) {
		data, err = fs.ReadFile(fsys, "mesas_config.yaml")
		isYAML = true
	}
	if err != nil {
		return nil, fmt.Errorf("mesas: read config: %w", err)
	}

	var doc any
	if isYAML {
		var y any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("mesas: decode config: %w", err)
		}
		if data, err = json.Marshal(y); err != nil {
			return nil, fmt.Errorf("mesas: decode config: %w", err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("mesas: decode config: %w", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		if _, ok := v["mesas"]; ok {
			return v, nil
		}
	case []any:
		return map[string]any{"mesas": v}, nil
	}
	return nil, ErrBadConfig
}
