package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/summary"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves fixed rows and counts the queries it answers.
type fakeSource struct {
	mu        sync.Mutex
	segments  map[int64][]promo.Segment
	stages    map[int64][]promo.StageRecord
	mults     map[int64][]float64
	failMults map[int64]error
	panicOn   int64
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		segments:  map[int64][]promo.Segment{},
		stages:    map[int64][]promo.StageRecord{},
		mults:     map[int64][]float64{},
		failMults: map[int64]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeSource) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeSource) ActiveSegments(_ context.Context, id int64) ([]promo.Segment, error) {
	f.count("segments")
	return f.segments[id], nil
}

func (f *fakeSource) Stages(_ context.Context, seg int64) ([]promo.StageRecord, error) {
	f.count("stages")
	if seg == f.panicOn {
		panic("corrupt stage row")
	}
	return f.stages[seg], nil
}

func (f *fakeSource) Multipliers(_ context.Context, seg int64) ([]float64, error) {
	f.count("multipliers")
	if err := f.failMults[seg]; err != nil {
		return nil, err
	}
	return f.mults[seg], nil
}

func (f *fakeSource) Bands(context.Context, int64) ([]template.Band, error) {
	f.count("bands")
	return nil, nil
}

func (f *fakeSource) Configs(context.Context, int64) ([]promo.ConfigRow, error) {
	f.count("configs")
	return nil, nil
}

func (f *fakeSource) Prizes(context.Context, int64) ([]template.PrizeTier, error) {
	f.count("prizes")
	return nil, nil
}

type fixedTemplates map[string]*template.RuleTemplate

func (f fixedTemplates) Load(e template.Entry) *template.RuleTemplate { return f[e.Campaign] }

func at(s string) *time.Time {
	t, err := time.Parse(verdict.TimestampLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func drawTemplate() *template.RuleTemplate {
	mult := 2.0
	return &template.RuleTemplate{
		Campaign:   "18",
		Family:     template.FamilyDraw,
		Multiplier: &mult,
		StageNames: []string{"ACUMULACION", "CANJES"},
		Windows:    map[string]template.ClockWindow{"canjes": {Start: "08:00", End: "09:00"}},
	}
}

func seed(src *fakeSource) {
	src.segments[18] = []promo.Segment{{ID: 1, Name: "Oro"}, {ID: 2, Name: "Plata"}}
	for _, seg := range []int64{1, 2} {
		src.stages[seg] = []promo.StageRecord{
			{Name: "Acumulación", Start: at("2024-01-01 00:00:00"), End: at("2024-01-05 00:00:00")},
			{Name: "CANJES", Start: at("2024-01-05 08:00:00"), End: at("2024-01-05 09:00:05")},
		}
	}
	src.mults[1] = []float64{2}
	src.mults[2] = []float64{2, 3}
}

func newRunner(t *testing.T, src Source, tpls TemplateLoader, sink report.Sink) *Runner {
	t.Helper()
	r, err := New(context.Background(), Options{Source: src, Templates: tpls, Sink: sink, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return r
}

var entry18 = template.Entry{Campaign: "18", Family: template.FamilyDraw, Template: "sorteos.rules.full.json", Modes: []string{"estelar"}}

func TestRunWritesReports(t *testing.T) {
	src := newFakeSource()
	seed(src)
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)

	res, err := newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink).Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	require.Len(t, res.Campaigns, 1)
	assert.True(t, res.Campaigns[0].Written)
	assert.Equal(t, 2, res.Campaigns[0].Segments)
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.RunID)

	raw, err := sink.Get("18", report.CategorySegments)
	require.NoError(t, err)
	var segs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &segs))
	require.Len(t, segs, 2)
	assert.Equal(t, "OK", segs[0]["multiplicador"].(map[string]any)["status"])
	assert.Equal(t, "ERROR", segs[1]["multiplicador"].(map[string]any)["status"])
	assert.Equal(t, "SKIPPED", segs[0]["premios"].(map[string]any)["status"])
	assert.Equal(t, "OK", segs[0]["etapas"].(map[string]any)["status"])

	raw, err = sink.Get("18", report.CategoryStages)
	require.NoError(t, err)
	var timing []struct {
		Segment int64 `json:"segmento"`
		Checks  []struct {
			Stage  string `json:"etapa"`
			Status string `json:"estado"`
		} `json:"validaciones"`
	}
	require.NoError(t, json.Unmarshal(raw, &timing))
	require.Len(t, timing, 2)
	require.Len(t, timing[0].Checks, 2)
	assert.Equal(t, "OK", timing[0].Checks[0].Status)
	assert.Equal(t, "ERROR", timing[0].Checks[1].Status)

	s, err := summary.Build(sink, template.DefaultCatalog(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "BRIEF: 1 promociones con errores (18)", s.Subject())
	assert.Equal(t, "Estelar", s.Campaigns[0].Name)
}

func TestRunIsByteIdenticalOnRerun(t *testing.T) {
	src := newFakeSource()
	seed(src)
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)
	r := newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink)

	_, err = r.Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	firstSegs, err := sink.Get("18", report.CategorySegments)
	require.NoError(t, err)
	firstStages, err := sink.Get("18", report.CategoryStages)
	require.NoError(t, err)

	require.NoError(t, sink.Reset())
	_, err = r.Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	secondSegs, err := sink.Get("18", report.CategorySegments)
	require.NoError(t, err)
	secondStages, err := sink.Get("18", report.CategoryStages)
	require.NoError(t, err)

	assert.Equal(t, string(firstSegs), string(secondSegs))
	assert.Equal(t, string(firstStages), string(secondStages))
}

func TestFailingSegmentIsOmitted(t *testing.T) {
	src := newFakeSource()
	seed(src)
	src.segments[18] = append(src.segments[18], promo.Segment{ID: 3, Name: "Bronce"}, promo.Segment{ID: 4, Name: "Cobre"})
	src.failMults[3] = errors.New("deadlock victim")
	src.panicOn = 4
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)

	res, err := newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink).Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	out := res.Campaigns[0]
	assert.Equal(t, 4, out.Segments)
	assert.Equal(t, 2, out.Failed)
	assert.True(t, out.Written)
	assert.True(t, res.Failed())

	raw, err := sink.Get("18", report.CategorySegments)
	require.NoError(t, err)
	var segs []struct {
		Segment int64 `json:"segmento"`
	}
	require.NoError(t, json.Unmarshal(raw, &segs))
	require.Len(t, segs, 2)
	assert.Equal(t, []int64{1, 2}, []int64{segs[0].Segment, segs[1].Segment})
}

func TestOnlyDeclaredCategoriesAreQueried(t *testing.T) {
	src := newFakeSource()
	seed(src)
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)

	_, err = newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink).Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls["multipliers"])
	assert.Equal(t, 2, src.calls["stages"])
	assert.Zero(t, src.calls["bands"])
	assert.Zero(t, src.calls["configs"])
	assert.Zero(t, src.calls["prizes"])
}

func TestCampaignWithoutTemplateOrSegments(t *testing.T) {
	src := newFakeSource()
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)
	entries := []template.Entry{
		{Campaign: "17", Family: template.FamilyRanking, Template: "ranking-top.rules.full.json"},
		entry18,
	}

	res, err := newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink).Run(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, res.Campaigns, 2)
	assert.False(t, res.Campaigns[0].Written)
	assert.False(t, res.Campaigns[1].Written)
	assert.Equal(t, 1, src.calls["segments"])

	ids, err := sink.Campaigns()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSegmentWithoutStagesHasNoTimingEntry(t *testing.T) {
	src := newFakeSource()
	seed(src)
	src.stages[2] = nil
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)

	_, err = newRunner(t, src, fixedTemplates{"18": drawTemplate()}, sink).Run(context.Background(), []template.Entry{entry18})
	require.NoError(t, err)
	raw, err := sink.Get("18", report.CategoryStages)
	require.NoError(t, err)
	var timing []map[string]any
	require.NoError(t, json.Unmarshal(raw, &timing))
	require.Len(t, timing, 1)
	assert.Equal(t, float64(1), timing[0]["segmento"])
}

func TestInvalidCampaignID(t *testing.T) {
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)
	res, err := newRunner(t, newFakeSource(), fixedTemplates{}, sink).Run(context.Background(), []template.Entry{{Campaign: "abc"}})
	require.NoError(t, err)
	assert.Error(t, res.Campaigns[0].Err)
	assert.True(t, res.Failed())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)
	res, err := newRunner(t, newFakeSource(), fixedTemplates{}, sink).Run(ctx, []template.Entry{entry18})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Campaigns)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
