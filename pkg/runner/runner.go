// Package runner drives a validation run: for every selected campaign it
// loads the rule template, reads each active segment, runs the static
// comparator and the schedule engine, and writes the two report documents.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/compare"
	"github.com/Mindburn-Labs/briefcheck/pkg/observability"
	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/schedule"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
)

// timingCategory labels timing verdicts in metrics.
const timingCategory = "cronograma"

// Source reads the live configuration of a campaign. *store.SQLStore
// satisfies it.
type Source interface {
	ActiveSegments(ctx context.Context, campaignID int64) ([]promo.Segment, error)
	Stages(ctx context.Context, segmentID int64) ([]promo.StageRecord, error)
	Multipliers(ctx context.Context, segmentID int64) ([]float64, error)
	Bands(ctx context.Context, segmentID int64) ([]template.Band, error)
	Configs(ctx context.Context, segmentID int64) ([]promo.ConfigRow, error)
	Prizes(ctx context.Context, segmentID int64) ([]template.PrizeTier, error)
}

// TemplateLoader resolves the rule template of a catalog entry; nil means
// the campaign has no usable rules.
type TemplateLoader interface {
	Load(e template.Entry) *template.RuleTemplate
}

type Options struct {
	Source    Source
	Templates TemplateLoader
	Sink      report.Sink
	Telemetry *observability.Provider
	Logger    *zap.Logger
}

// Runner is not safe for concurrent Run calls; the run lock serializes runs.
type Runner struct {
	src       Source
	templates TemplateLoader
	sink      report.Sink
	engine    *schedule.Engine
	telemetry *observability.Provider
	logger    *zap.Logger
}

func New(ctx context.Context, opts Options) (*Runner, error) {
	if opts.Source == nil || opts.Templates == nil || opts.Sink == nil {
		return nil, errors.New("runner: source, templates and sink are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := schedule.NewEngine(logger.Named("schedule"))
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		if telemetry, err = observability.New(ctx, &observability.Config{}, logger); err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
	}
	return &Runner{
		src:       opts.Source,
		templates: opts.Templates,
		sink:      opts.Sink,
		engine:    engine,
		telemetry: telemetry,
		logger:    logger,
	}, nil
}

// CampaignOutcome describes what happened to one campaign.
type CampaignOutcome struct {
	Campaign string
	// Written is true when the report documents were stored.
	Written  bool
	Segments int
	// Failed counts segments omitted after an error.
	Failed int
	Err    error
}

type Result struct {
	RunID     string
	Campaigns []CampaignOutcome
}

// Failed reports whether any campaign or segment failed structurally.
func (r *Result) Failed() bool {
	for _, c := range r.Campaigns {
		if c.Err != nil || c.Failed > 0 {
			return true
		}
	}
	return false
}

// Run validates the entries in order. Campaign and segment failures are
// logged and recorded in the result; only context cancellation stops the
// run early.
func (r *Runner) Run(ctx context.Context, entries []template.Entry) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", res.RunID))
	logger.Info("validation run started", zap.Int("campaigns", len(entries)))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := r.runCampaign(ctx, res.RunID, e, logger.With(zap.String("campaign", e.Campaign)))
		res.Campaigns = append(res.Campaigns, out)
	}

	logger.Info("validation run finished", zap.Bool("failures", res.Failed()))
	return res, ctx.Err()
}

func (r *Runner) runCampaign(ctx context.Context, runID string, e template.Entry, logger *zap.Logger) (out CampaignOutcome) {
	out.Campaign = e.Campaign
	start := time.Now()
	ctx, done := r.telemetry.StartCampaign(ctx, runID, e.Campaign)
	defer func() {
		done(out.Err)
		if out.Err != nil {
			logger.Error("campaign validation failed", zap.Error(out.Err))
			return
		}
		logger.Info("campaign validated",
			zap.Int("segments", out.Segments),
			zap.Int("failed_segments", out.Failed),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	id, err := strconv.ParseInt(e.Campaign, 10, 64)
	if err != nil {
		out.Err = fmt.Errorf("campaign id %q: %w", e.Campaign, err)
		return out
	}
	tpl := r.templates.Load(e)
	if tpl == nil {
		logger.Warn("no rule template for campaign, skipping")
		return out
	}

	segments, err := r.src.ActiveSegments(ctx, id)
	if err != nil {
		out.Err = err
		return out
	}
	if len(segments) == 0 {
		logger.Info("no active segments")
		return out
	}

	static := make([]compare.SegmentReport, 0, len(segments))
	timing := make([]schedule.SegmentSchedule, 0, len(segments))
	for _, seg := range segments {
		out.Segments++
		rep, sched, err := r.runSegment(ctx, e.Campaign, tpl, seg)
		if err != nil {
			out.Failed++
			logger.Error("segment omitted", zap.Int64("segment", seg.ID), zap.Error(err))
			continue
		}
		static = append(static, rep)
		if sched != nil {
			timing = append(timing, *sched)
		}
	}

	if err := r.sink.Put(ctx, e.Campaign, report.CategorySegments, static); err != nil {
		out.Err = err
		return out
	}
	if err := r.sink.Put(ctx, e.Campaign, report.CategoryStages, timing); err != nil {
		out.Err = err
		return out
	}
	out.Written = true
	return out
}

// runSegment validates one segment. A panic is converted to an error so
// sibling segments carry on. sched is nil when the segment has no recorded
// stages at all.
func (r *Runner) runSegment(ctx context.Context, campaignID string, tpl *template.RuleTemplate, seg promo.Segment) (rep compare.SegmentReport, sched *schedule.SegmentSchedule, err error) {
	ctx, done := r.telemetry.StartSegment(ctx, campaignID, seg.ID)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.logger.Debug("segment panic", zap.Int64("segment", seg.ID), zap.ByteString("stack", debug.Stack()))
		}
		done(err)
	}()

	rep = compare.SegmentReport{Segment: seg.ID, SegmentName: seg.Name}

	if tpl.Multiplier != nil {
		values, err := r.src.Multipliers(ctx, seg.ID)
		if err != nil {
			return rep, nil, err
		}
		rep.Multiplier = compare.Multiplier(tpl.Multiplier, values)
	} else {
		rep.Multiplier = compare.Multiplier(nil, nil)
	}

	if len(tpl.Bands) > 0 {
		bands, err := r.src.Bands(ctx, seg.ID)
		if err != nil {
			return rep, nil, err
		}
		rep.Equivalences = compare.Equivalences(tpl.Bands, bands)
	} else {
		rep.Equivalences = compare.Equivalences(nil, nil)
	}

	if len(tpl.FlatConfig) > 0 {
		rows, err := r.src.Configs(ctx, seg.ID)
		if err != nil {
			return rep, nil, err
		}
		rep.Configuration = compare.Configuration(tpl.FlatConfig, rows)
	} else {
		rep.Configuration = compare.Configuration(nil, nil)
	}

	if len(tpl.Prizes) > 0 {
		prizes, err := r.src.Prizes(ctx, seg.ID)
		if err != nil {
			return rep, nil, err
		}
		rep.Prizes = compare.Prizes(tpl.Prizes, prizes)
	} else {
		rep.Prizes = compare.Prizes(nil, nil)
	}

	stages, err := r.src.Stages(ctx, seg.ID)
	if err != nil {
		return rep, nil, err
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	rep.Stages = compare.StageSet(tpl.StageNames, names)

	for cat, status := range rep.Statuses() {
		r.telemetry.RecordVerdict(ctx, string(cat), status)
	}

	if len(stages) == 0 {
		return rep, nil, nil
	}
	s, err := r.engine.Infer(tpl, seg, stages)
	if err != nil {
		return rep, nil, err
	}
	for _, c := range s.Checks {
		r.telemetry.RecordVerdict(ctx, timingCategory, c.Status)
	}
	return rep, &s, nil
}
