// Package schedule infers the expected start and end instants of every
// recorded stage of a segment from the campaign's rule table and template,
// and compares them with what was recorded.
package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/stagename"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

const (
	RuleStart = "Inicio según reglas de configuración"
	RuleEnd   = "Fin según reglas de configuración"
)

// Check is one timing verdict.
type Check struct {
	Stage    string         `json:"etapa"`
	Rule     string         `json:"regla"`
	Expected string         `json:"valor_esperado"`
	Found    string         `json:"valor_encontrado"`
	Status   verdict.Status `json:"estado"`
}

// SegmentSchedule is the timing report entry for one segment.
type SegmentSchedule struct {
	Segment     int64   `json:"segmento"`
	SegmentName string  `json:"nombreSegmento"`
	Checks      []Check `json:"validaciones"`
}

// window is a recorded or expected [start, end] pair.
type window struct {
	start, end time.Time
}

// Engine walks rule tables. It is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
	cross  *crossEvaluator
}

func NewEngine(logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cross, err := newCrossEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{logger: logger, cross: cross}, nil
}

// Infer computes the timing verdicts of one segment. The recorded stages are
// not modified. Without a recorded anchor the result has no checks.
func (e *Engine) Infer(tpl *template.RuleTemplate, seg promo.Segment, stages []promo.StageRecord) (SegmentSchedule, error) {
	out := SegmentSchedule{Segment: seg.ID, SegmentName: seg.Name, Checks: []Check{}}
	if tpl == nil {
		return out, nil
	}

	recorded := make(map[string]window, len(stages))
	for _, s := range stages {
		if !s.Complete() {
			continue
		}
		recorded[stagename.String(s.Name)] = window{start: *s.Start, end: *s.End}
	}
	anchor, ok := recorded[AnchorStage]
	if !ok {
		e.logger.Debug("anchor stage not recorded",
			zap.String("campaign", tpl.Campaign),
			zap.Int64("segment", seg.ID))
		return out, nil
	}

	w := walker{tpl: tpl, anchor: anchor, starts: map[string]time.Time{}, ends: map[string]time.Time{}}
	for _, rule := range Rules(tpl.Family) {
		for _, name := range rule.Aliases {
			rec, ok := recorded[name]
			if !ok {
				continue
			}
			out.Checks = append(out.Checks, w.visit(rule, name, rec)...)
		}
	}

	for _, rule := range CrossRules(tpl.Family) {
		c, ok, err := e.cross.check(rule, recorded)
		if err != nil {
			return out, fmt.Errorf("cross rule %q: %w", rule.Rule, err)
		}
		if ok {
			out.Checks = append(out.Checks, c)
		}
	}
	return out, nil
}

// walker holds the per-segment running expectation maps.
type walker struct {
	tpl    *template.RuleTemplate
	anchor window
	starts map[string]time.Time
	ends   map[string]time.Time
}

func (w *walker) reference(r Reference) time.Time {
	switch r.Kind {
	case AnchorStart:
		return w.anchor.start
	case AnchorEnd:
		return w.anchor.end
	}
	running := w.ends
	if r.Kind == PredecessorStart {
		running = w.starts
	}
	for _, s := range r.Stages {
		if t, ok := running[s]; ok {
			return t
		}
	}
	return w.anchor.end
}

func (w *walker) visit(rule StageRule, name string, rec window) []Check {
	ref := w.reference(rule.Ref)
	clocks, _ := w.tpl.Window(rule.Key)
	offset := rule.Offset.resolve(w.tpl)
	span := rule.Span.resolve(w.tpl)

	var checks []Check
	start, hasStart := atClock(ref, clocks.Start, offset)
	end, hasEnd := atClock(ref, clocks.End, offset+span)

	if hasStart {
		w.starts[name] = start
		checks = append(checks, compare(name, RuleStart, start, rec.start))
	} else {
		w.starts[name] = rec.start
	}
	if hasEnd {
		w.ends[name] = end
		checks = append(checks, compare(name, RuleEnd, end, rec.end))
	} else {
		w.ends[name] = rec.end
	}
	return checks
}

func compare(stage, rule string, expected, found time.Time) Check {
	return Check{
		Stage:    stage,
		Rule:     rule,
		Expected: expected.Format(verdict.TimestampLayout),
		Found:    found.Format(verdict.TimestampLayout),
		Status:   verdict.Of(verdict.WithinTolerance(expected, found)),
	}
}

// maxOffsetDays bounds a resolved offset; each combines at most a few
// template durations.
const maxOffsetDays = 4 * template.MaxDurationDays

// atClock returns the calendar date of ref moved by the whole days of offset
// (rounded towards negative infinity), at the given clock. Elapsed time is
// never added: a 23:30 reference plus one day lands on the next date.
func atClock(ref time.Time, clock string, offset float64) (time.Time, bool) {
	h, m, s, ok := ParseClock(clock)
	if !ok || math.IsNaN(offset) || math.Abs(offset) > maxOffsetDays {
		return time.Time{}, false
	}
	days := int(math.Floor(offset))
	y, mo, d := ref.Date()
	return time.Date(y, mo, d+days, h, m, s, 0, ref.Location()), true
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(v string) (h, m, s int, ok bool) {
	if v == "" {
		return 0, 0, 0, false
	}
	parts := strings.Split(v, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	h, m, s = nums[0], nums[1], nums[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, 0, 0, false
	}
	return h, m, s, true
}
