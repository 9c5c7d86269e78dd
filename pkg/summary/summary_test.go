package summary

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Mindburn-Labs/briefcheck/pkg/compare"
	"github.com/Mindburn-Labs/briefcheck/pkg/report"
	"github.com/Mindburn-Labs/briefcheck/pkg/schedule"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

// memSource serves documents from memory: campaign -> category -> JSON.
type memSource map[string]map[string]string

func (m memSource) Campaigns() ([]string, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m memSource) Get(id, category string) ([]byte, error) {
	doc, ok := m[id][category]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", report.ErrNotFound, id, category)
	}
	return []byte(doc), nil
}

const skippedSegment = `{"segmento": 101, "nombreSegmento": "A",
	"multiplicador": {"status": "SKIPPED", "reason": "x"},
	"equivalencias": {"status": "SKIPPED", "reason": "x"},
	"configuraciones": {"status": "SKIPPED", "reason": "x"},
	"premios": {"status": "SKIPPED", "reason": "x"},
	"etapas": {"status": "SKIPPED", "reason": "x"}}`

func statuses(c Campaign) map[verdict.Category]verdict.Status {
	out := map[verdict.Category]verdict.Status{}
	for _, r := range c.Categories {
		out[r.Category] = r.Status
	}
	return out
}

func build(t *testing.T, src Source) *Summary {
	t.Helper()
	s, err := Build(src, template.DefaultCatalog(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestAllSkippedCampaign(t *testing.T) {
	s := build(t, memSource{"17": {
		"segmentos": "[" + skippedSegment + "]",
		"etapas":    `[{"segmento": 101, "nombreSegmento": "A", "validaciones": []}]`,
	}})
	require.Len(t, s.Campaigns, 1)
	c := s.Campaigns[0]
	assert.Equal(t, verdict.Skipped, c.Status)
	assert.Equal(t, 0, c.Errors)
	for _, r := range c.Categories {
		assert.Equal(t, verdict.Skipped, r.Status, r.Category)
		assert.Empty(t, r.Messages)
	}
	assert.Equal(t, "BRIEF: todas las promociones OK", s.Subject())
}

func TestNoDocumentsIsSkipped(t *testing.T) {
	s := build(t, memSource{"22": {}})
	assert.Equal(t, verdict.Skipped, s.Campaigns[0].Status)
}

func TestErrorBeatsOK(t *testing.T) {
	s := build(t, memSource{"18": {"segmentos": `[
		{"segmento": 101, "multiplicador": {"status": "OK", "expected": 2, "found": [2]}},
		{"segmento": 102, "multiplicador": {"status": "ERROR", "expected": 2, "found": [1.5, 2]}},
		{"segmento": 103, "multiplicador": {"status": "SKIPPED"}}
	]`}})
	c := s.Campaigns[0]
	assert.Equal(t, verdict.Error, c.Status)
	assert.Equal(t, 1, c.Errors)
	assert.Equal(t, []string{"Seg 102: esperado 2, encontrado [1.5, 2.0]"}, c.Categories[0].Messages)
	assert.Equal(t, verdict.Skipped, statuses(c)[verdict.Prizes])
}

func TestOKWhenAnySegmentOK(t *testing.T) {
	s := build(t, memSource{"17": {"segmentos": `[
		{"segmento": 101, "premios": {"status": "SKIPPED"}},
		{"segmento": 102, "premios": {"status": "OK"}}
	]`}})
	c := s.Campaigns[0]
	assert.Equal(t, verdict.OK, statuses(c)[verdict.Prizes])
	assert.Equal(t, verdict.OK, c.Status)
}

func TestStaticMessages(t *testing.T) {
	s := build(t, memSource{"17": {"segmentos": `[
		{"segmentId": 7,
		 "equivalencias": {"status": "ERROR"},
		 "configuraciones": {"status": "ERROR", "diffs": {
			"TOPE": {"expected": 5, "found": null},
			"BASE": {"expected": "10", "found": 9}}},
		 "premios": {"status": "ERROR"}},
		{"id": 8, "configuraciones": {"status": "ERROR", "diffs": {}}}
	]`}})
	c := s.Campaigns[0]
	assert.Equal(t, 3, c.Errors)

	msgs := map[verdict.Category][]string{}
	for _, r := range c.Categories {
		msgs[r.Category] = r.Messages
	}
	assert.Equal(t, []string{"Seg 7: diferencias en equivalencias"}, msgs[verdict.Equivalences])
	assert.Equal(t, []string{
		"Seg 7: BASE: esp 10, obt 9, TOPE: esp 5, obt None",
		"Seg 8: diferencias en configuraciones",
	}, msgs[verdict.Configuration])
	assert.Equal(t, []string{"Seg 7: diferencias en premios"}, msgs[verdict.Prizes])
}

func TestLegacyDocumentWins(t *testing.T) {
	s := build(t, memSource{"19": {
		"multiplicador": `{"status": "ERROR", "details": "  multiplicador distinto  "}`,
		"premios":       `{"details": "sin estado"}`,
		"segmentos":     `[{"segmento": 1, "multiplicador": {"status": "OK"}, "premios": {"status": "OK"}}]`,
	}})
	c := s.Campaigns[0]
	assert.Equal(t, CategoryResult{
		Category: verdict.Multiplier,
		Status:   verdict.Error,
		Messages: []string{"multiplicador distinto"},
	}, c.Categories[0])
	assert.Equal(t, verdict.OK, statuses(c)[verdict.Prizes])
	assert.Equal(t, verdict.Error, c.Status)
}

func TestLegacyDetailsOnlyForErrors(t *testing.T) {
	s := build(t, memSource{"19": {
		"multiplicador": `{"status": "OK", "details": "todo correcto"}`,
		"premios":       `{"status": "SKIPPED", "details": "sin premios"}`,
	}})
	c := s.Campaigns[0]
	assert.Equal(t, CategoryResult{Category: verdict.Multiplier, Status: verdict.OK, Messages: []string{}}, c.Categories[0])
	for _, r := range c.Categories {
		if r.Category == verdict.Prizes {
			assert.Equal(t, verdict.Skipped, r.Status)
			assert.Empty(t, r.Messages)
		}
	}
}

func TestFoundMultipliersKeepDecimal(t *testing.T) {
	s := build(t, memSource{"17": {"segmentos": `[
		{"segmento": 1, "multiplicador": {"status": "ERROR", "expected": 2, "found": [5]}},
		{"segmento": 2, "multiplicador": {"status": "ERROR", "expected": 2.5, "found": [5.0, 1e2, "x"]}},
		{"segmento": 3, "multiplicador": {"status": "ERROR", "expected": 2, "found": null}}
	]`}})
	assert.Equal(t, []string{
		"Seg 1: esperado 2, encontrado [5.0]",
		"Seg 2: esperado 2.5, encontrado [5.0, 100.0, x]",
		"Seg 3: esperado 2, encontrado None",
	}, s.Campaigns[0].Categories[0].Messages)
}

func TestCampaignNamesFromCatalog(t *testing.T) {
	catalog := template.Catalog{Entries: []template.Entry{
		{Campaign: "17", Name: "TOP", Family: template.FamilyRanking},
		{Campaign: "30", Family: template.FamilyRanking},
	}}
	s, err := Build(memSource{"17": {}, "30": {}, "99": {}}, catalog, zaptest.NewLogger(t))
	require.NoError(t, err)
	names := make([]string, 0, len(s.Campaigns))
	for _, c := range s.Campaigns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"TOP", "30", "99"}, names)

	got, err := s.HTML()
	require.NoError(t, err)
	assert.Contains(t, got, "<tr><td>17</td><td>TOP</td>")
}

func TestStagesPreferTimingVerdicts(t *testing.T) {
	s := build(t, memSource{"18": {
		"segmentos": `[{"segmento": 101, "etapas": {"status": "ERROR", "missing": ["CANJES"], "extra": []}}]`,
		"etapas": `[{"segmento": 101, "validaciones": [
			{"etapa": "RESULTADO", "regla": "Inicio según reglas de configuración",
			 "valor_esperado": "2024-01-05 08:00:00", "valor_encontrado": "2024-01-05 08:00:05", "estado": "ERROR"},
			{"etapa": "RESULTADO", "regla": "Fin según reglas de configuración",
			 "valor_esperado": "2024-01-05 09:00:00", "valor_encontrado": "2024-01-05 09:00:00", "estado": "OK"}
		]}]`,
	}})
	stages := s.Campaigns[0].Categories[4]
	assert.Equal(t, verdict.Error, stages.Status)
	assert.Equal(t, []string{
		"Seg 101 - RESULTADO: Inicio según reglas de configuración (esp 2024-01-05 08:00:00, obt 2024-01-05 08:00:05)",
	}, stages.Messages)
}

func TestStagesFallBackToNameSet(t *testing.T) {
	s := build(t, memSource{"18": {
		"segmentos": `[
			{"segmento": 101, "etapas": {"status": "ERROR", "missing": ["CANJES", "SORTEO"], "extra": ["EXTRA"]}},
			{"segmento": 102, "etapas": {"status": "ERROR", "missing": [], "extra": []}}
		]`,
		"etapas": `[
			{"segmento": 101, "validaciones": [{"etapa": "ACUMULACION", "regla": "r", "estado": "OK"}]},
			{"segmento": 102, "validaciones": [{"nombre_etapa": "X", "regla": "r", "estado": "SKIPPED"}]}
		]`,
	}})
	stages := s.Campaigns[0].Categories[4]
	assert.Equal(t, verdict.Error, stages.Status)
	assert.Equal(t, []string{
		"Seg 101: faltan CANJES, SORTEO y sobran EXTRA",
		"Seg 102: diferencias en etapas",
	}, stages.Messages)
}

func TestStagesTimingOnlyOK(t *testing.T) {
	s := build(t, memSource{"22": {
		"etapas": `[{"segmento": 5, "validaciones": [{"etapa": "SORTEO1", "estado": "OK"}]}]`,
	}})
	c := s.Campaigns[0]
	assert.Equal(t, verdict.OK, statuses(c)[verdict.Stages])
	assert.Equal(t, verdict.Skipped, statuses(c)[verdict.Multiplier])
	assert.Equal(t, verdict.OK, c.Status)
}

func TestMalformedDocumentsCountAsAbsent(t *testing.T) {
	s := build(t, memSource{"17": {
		"segmentos": `{"not": "a list"}`,
		"etapas":    `not json`,
	}})
	assert.Equal(t, verdict.Skipped, s.Campaigns[0].Status)
}

func TestSubjectListsFailedCampaigns(t *testing.T) {
	failing := `[{"segmento": 1, "premios": {"status": "ERROR"}}]`
	s := build(t, memSource{
		"22": {"segmentos": failing},
		"17": {"segmentos": failing},
		"18": {"segmentos": `[{"segmento": 1, "premios": {"status": "OK"}}]`},
	})
	assert.Equal(t, []string{"17", "22"}, s.Failed())
	assert.Equal(t, "BRIEF: 2 promociones con errores (17, 22)", s.Subject())
}

func TestHTML(t *testing.T) {
	s := &Summary{Campaigns: []Campaign{{
		ID:     "17",
		Name:   "TOP",
		Status: verdict.Error,
		Errors: 1,
		Categories: []CategoryResult{
			{Category: verdict.Multiplier, Status: verdict.Error, Messages: []string{"Seg 1: a", "Seg 2: b"}},
			{Category: verdict.Prizes, Status: verdict.OK, Messages: []string{}},
		},
	}, {
		ID:         "22",
		Name:       "Salta y Gana",
		Status:     verdict.Skipped,
		Categories: []CategoryResult{{Category: verdict.Stages, Status: verdict.Skipped}},
	}}}

	got, err := s.HTML()
	require.NoError(t, err)
	want := `<div style="font-family:Arial,Helvetica,sans-serif"><h3>Resumen de validaciones BRIEF</h3>` +
		`<table border="1" cellspacing="0" cellpadding="6">` +
		`<tr><th>Promoción</th><th>Nombre</th><th>Estado</th><th>Errores</th><th>Detalles</th></tr>` +
		`<tr><td>17</td><td>TOP</td><td>❌ ERROR</td><td style="text-align:center">1</td>` +
		`<td><ul style="margin:0;padding-left:18px">` +
		`<li><strong>Multiplicador:</strong> ERROR - Seg 1: a; Seg 2: b</li>` +
		`<li><strong>Premios:</strong> OK</li></ul></td></tr>` +
		`<tr><td>22</td><td>Salta y Gana</td><td>⏭️ SKIPPED</td><td style="text-align:center">0</td>` +
		`<td><ul style="margin:0;padding-left:18px"><li><strong>Etapas:</strong> SKIPPED</li></ul></td></tr>` +
		`</table></div>`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HTML mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLEscapesMessages(t *testing.T) {
	s := &Summary{Campaigns: []Campaign{{
		ID:         "17",
		Status:     verdict.Error,
		Categories: []CategoryResult{{Category: verdict.Prizes, Status: verdict.Error, Messages: []string{"<b>x</b>"}}},
	}}}
	got, err := s.HTML()
	require.NoError(t, err)
	assert.Contains(t, got, "&lt;b&gt;x&lt;/b&gt;")
}

func TestBuildFromFileSink(t *testing.T) {
	sink, err := report.NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	expected := 2.0

	seg := compare.SegmentReport{
		Segment:       101,
		SegmentName:   "Oro",
		Multiplier:    compare.Multiplier(&expected, []float64{2, 3}),
		Equivalences:  compare.Equivalences(nil, nil),
		Configuration: compare.Configuration(nil, nil),
		Prizes:        compare.Prizes(nil, nil),
		Stages:        compare.StageSet(nil, nil),
	}
	require.NoError(t, sink.Put(ctx, "17", report.CategorySegments, []compare.SegmentReport{seg}))
	require.NoError(t, sink.Put(ctx, "17", report.CategoryStages, []schedule.SegmentSchedule{
		{Segment: 101, SegmentName: "Oro", Checks: []schedule.Check{}},
	}))

	s := build(t, sink)
	c := s.Campaigns[0]
	assert.Equal(t, verdict.Error, c.Status)
	assert.Equal(t, []string{"Seg 101: esperado 2, encontrado [2.0, 3.0]"}, c.Categories[0].Messages)
	assert.Equal(t, verdict.Skipped, statuses(c)[verdict.Stages])
}
