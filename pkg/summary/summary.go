// Package summary rolls the per-segment report documents of every campaign up
// into one status per category and per campaign, and renders the rollup as
// the HTML table and subject line sent by email.
package summary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

// Source is where report documents are read back from. *report.FileSink
// satisfies it.
type Source interface {
	Campaigns() ([]string, error)
	Get(campaignID, category string) ([]byte, error)
}

// CategoryResult is the rolled up status of one category of one campaign.
// Messages are only collected for failing segments, plus the free text of a
// legacy document.
type CategoryResult struct {
	Category verdict.Category `json:"category"`
	Status   verdict.Status   `json:"status"`
	Messages []string         `json:"messages"`
}

func (c CategoryResult) Label() string { return c.Category.Label() }

// Campaign is one row of the summary.
type Campaign struct {
	ID         string           `json:"promo"`
	Name       string           `json:"name"`
	Status     verdict.Status   `json:"status"`
	Errors     int              `json:"errors"`
	Categories []CategoryResult `json:"categories"`
}

type Summary struct {
	Campaigns []Campaign `json:"campaigns"`
}

// Build reads every campaign from src. Campaigns come out sorted by id and
// are named after their catalog entry. Unreadable or malformed documents
// count as absent.
func Build(src Source, catalog template.Catalog, logger *zap.Logger) (*Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids, err := src.Campaigns()
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	sort.Strings(ids)

	out := &Summary{Campaigns: make([]Campaign, 0, len(ids))}
	for _, id := range ids {
		c := buildCampaign(src, id, logger.With(zap.String("campaign", id)))
		c.Name = id
		if e, ok := catalog.Lookup(id); ok {
			c.Name = e.DisplayName()
		}
		out.Campaigns = append(out.Campaigns, c)
	}
	logger.Info("campaigns summarised", zap.Int("campaigns", len(out.Campaigns)), zap.Strings("failed", out.Failed()))
	return out, nil
}

// Failed returns the ids of the campaigns whose status is ERROR.
func (s *Summary) Failed() []string {
	var ids []string
	for _, c := range s.Campaigns {
		if c.Status == verdict.Error {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Subject is the email subject line for the summary.
func (s *Summary) Subject() string {
	failed := s.Failed()
	if len(failed) == 0 {
		return "BRIEF: todas las promociones OK"
	}
	return fmt.Sprintf("BRIEF: %d promociones con errores (%s)", len(failed), strings.Join(failed, ", "))
}

func buildCampaign(src Source, id string, logger *zap.Logger) Campaign {
	segments := readList(src, id, report.CategorySegments, logger)
	stages := readList(src, id, report.CategoryStages, logger)

	c := Campaign{ID: id, Categories: make([]CategoryResult, 0, len(verdict.Categories))}
	allSkipped := true
	for _, cat := range verdict.Categories {
		res, ok := readLegacy(src, id, cat)
		if !ok {
			if cat == verdict.Stages {
				res = rollupStages(segments, stages)
			} else {
				res = rollupStatic(cat, segments)
			}
		}
		if res.Status != verdict.Skipped {
			allSkipped = false
		}
		if res.Status == verdict.Error {
			c.Errors++
		}
		c.Categories = append(c.Categories, res)
	}

	switch {
	case allSkipped:
		c.Status = verdict.Skipped
	case c.Errors > 0:
		c.Status = verdict.Error
	default:
		c.Status = verdict.OK
	}
	return c
}

type legacyDoc struct {
	Status  *verdict.Status `json:"status"`
	Details any             `json:"details"`
}

// readLegacy loads a per-category validacion_<category>.json document. It
// wins over the per-segment documents whenever it carries a status.
func readLegacy(src Source, id string, cat verdict.Category) (CategoryResult, bool) {
	raw, err := src.Get(id, string(cat))
	if err != nil {
		return CategoryResult{}, false
	}
	var doc legacyDoc
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Status == nil {
		return CategoryResult{}, false
	}
	res := CategoryResult{Category: cat, Status: *doc.Status, Messages: []string{}}
	if res.Status != verdict.Error {
		return res, true
	}
	if details, ok := doc.Details.(string); ok && strings.TrimSpace(details) != "" {
		res.Messages = append(res.Messages, strings.TrimSpace(details))
	}
	return res, true
}

type entry map[string]json.RawMessage

func readList(src Source, id, category string, logger *zap.Logger) []entry {
	raw, err := src.Get(id, category)
	if errors.Is(err, report.ErrNotFound) {
		return nil
	}
	if err != nil {
		logger.Warn("report unreadable", zap.String("category", category), zap.Error(err))
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		logger.Warn("report is not a list", zap.String("category", category), zap.Error(err))
		return nil
	}
	out := make([]entry, 0, len(list))
	for _, item := range list {
		var e entry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// segmentID is the first of segmento, segmentId, id that is present.
func (e entry) segmentID() string {
	for _, k := range []string{"segmento", "segmentId", "id"} {
		if v, ok := e[k]; ok && !isNull(v) {
			return display(v)
		}
	}
	return "None"
}

type categoryDoc struct {
	Status   verdict.Status             `json:"status"`
	Expected json.RawMessage            `json:"expected"`
	Found    json.RawMessage            `json:"found"`
	Diffs    map[string]configDiffValue `json:"diffs"`
	Missing  []json.RawMessage          `json:"missing"`
	Extra    []json.RawMessage          `json:"extra"`
}

type configDiffValue struct {
	Expected json.RawMessage `json:"expected"`
	Found    json.RawMessage `json:"found"`
}

// category decodes the object stored under key. It reports false when the
// value is absent or not an object.
func (e entry) category(key verdict.Category) (categoryDoc, bool) {
	raw, ok := e[string(key)]
	if !ok || !isObject(raw) {
		return categoryDoc{}, false
	}
	var doc categoryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return categoryDoc{}, false
	}
	return doc, true
}

// tally accumulates segment statuses into a category status.
type tally struct {
	anyOK, anyError bool
	msgs            []string
}

func (t *tally) result(cat verdict.Category) CategoryResult {
	res := CategoryResult{Category: cat, Status: verdict.Skipped, Messages: t.msgs}
	switch {
	case t.anyError:
		res.Status = verdict.Error
	case t.anyOK:
		res.Status = verdict.OK
	}
	if res.Messages == nil {
		res.Messages = []string{}
	}
	return res
}

func rollupStatic(cat verdict.Category, segments []entry) CategoryResult {
	var t tally
	for _, seg := range segments {
		doc, ok := seg.category(cat)
		if !ok {
			continue
		}
		switch doc.Status {
		case verdict.OK:
			t.anyOK = true
		case verdict.Error:
			t.anyError = true
			t.msgs = append(t.msgs, staticMessage(cat, seg.segmentID(), doc))
		}
	}
	return t.result(cat)
}

func staticMessage(cat verdict.Category, seg string, doc categoryDoc) string {
	switch cat {
	case verdict.Multiplier:
		return fmt.Sprintf("Seg %s: esperado %s, encontrado %s", seg, display(doc.Expected), displayFound(doc.Found))
	case verdict.Configuration:
		if len(doc.Diffs) == 0 {
			return fmt.Sprintf("Seg %s: diferencias en configuraciones", seg)
		}
		keys := make([]string, 0, len(doc.Diffs))
		for k := range doc.Diffs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			d := doc.Diffs[k]
			parts = append(parts, fmt.Sprintf("%s: esp %s, obt %s", k, display(d.Expected), display(d.Found)))
		}
		return fmt.Sprintf("Seg %s: %s", seg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("Seg %s: diferencias en %s", seg, cat)
}

type timingDoc struct {
	Stage     json.RawMessage `json:"etapa"`
	StageName json.RawMessage `json:"nombre_etapa"`
	Rule      json.RawMessage `json:"regla"`
	Expected  json.RawMessage `json:"valor_esperado"`
	Found     json.RawMessage `json:"valor_encontrado"`
	Status    verdict.Status  `json:"estado"`
}

// rollupStages prefers the timing verdicts and falls back to the stage-name
// set verdicts of the segment document when no timing verdict failed.
func rollupStages(segments, timings []entry) CategoryResult {
	var t tally
	for _, item := range timings {
		raw, ok := item["validaciones"]
		if !ok {
			continue
		}
		var checks []json.RawMessage
		if err := json.Unmarshal(raw, &checks); err != nil || checks == nil {
			continue
		}
		seg := display(item["segmento"])
		segError := false
		for _, c := range checks {
			var v timingDoc
			if err := json.Unmarshal(c, &v); err != nil || v.Status != verdict.Error {
				continue
			}
			segError = true
			stage := truthy(v.Stage, v.StageName)
			if stage != "" {
				t.msgs = append(t.msgs, fmt.Sprintf("Seg %s - %s: %s (esp %s, obt %s)",
					seg, stage, display(v.Rule), display(v.Expected), display(v.Found)))
			} else {
				t.msgs = append(t.msgs, fmt.Sprintf("Seg %s: %s (esp %s, obt %s)",
					seg, display(v.Rule), display(v.Expected), display(v.Found)))
			}
		}
		if segError {
			t.anyError = true
		} else if len(checks) > 0 {
			t.anyOK = true
		}
	}

	if !t.anyError {
		for _, seg := range segments {
			doc, ok := seg.category(verdict.Stages)
			if !ok {
				continue
			}
			switch doc.Status {
			case verdict.OK:
				t.anyOK = true
			case verdict.Error:
				t.anyError = true
				t.msgs = append(t.msgs, stageSetMessage(display(seg["segmento"]), doc))
			}
		}
	}
	return t.result(verdict.Stages)
}

func stageSetMessage(seg string, doc categoryDoc) string {
	var parts []string
	if len(doc.Missing) > 0 {
		parts = append(parts, "faltan "+joinDisplay(doc.Missing))
	}
	if len(doc.Extra) > 0 {
		parts = append(parts, "sobran "+joinDisplay(doc.Extra))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Seg %s: diferencias en etapas", seg)
	}
	return fmt.Sprintf("Seg %s: %s", seg, strings.Join(parts, " y "))
}

func joinDisplay(values []json.RawMessage) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = display(v)
	}
	return strings.Join(out, ", ")
}

// truthy returns the display form of the first non-empty value.
func truthy(values ...json.RawMessage) string {
	for _, v := range values {
		if isNull(v) {
			continue
		}
		if s := display(v); s != "" {
			return s
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || string(s) == "null"
}

func isObject(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && s[0] == '{'
}

// display renders a raw JSON value for a message: strings bare, numbers as
// written, null as None and lists as [a, b].
func display(raw json.RawMessage) string {
	if isNull(raw) {
		return "None"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return displayValue(v)
}

// displayFound renders found multiplier values. Numbers in a list keep a
// decimal place so 5 reads as 5.0.
func displayFound(raw json.RawMessage) string {
	if isNull(raw) {
		return "None"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	list, ok := v.([]any)
	if !ok {
		return displayValue(v)
	}
	parts := make([]string, len(list))
	for i, x := range list {
		n, ok := x.(json.Number)
		if !ok {
			parts[i] = displayValue(x)
			continue
		}
		f, err := n.Float64()
		if err != nil {
			parts[i] = n.String()
			continue
		}
		parts[i] = verdict.FormatNumber(f)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func displayValue(v any) string {
	list, ok := v.([]any)
	if !ok {
		return verdict.Text(v)
	}
	parts := make([]string, len(list))
	for i, x := range list {
		parts[i] = displayValue(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
