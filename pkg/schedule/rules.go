package schedule

import (
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
)

// RefKind selects where a stage's reference instant comes from.
type RefKind int

const (
	AnchorStart RefKind = iota
	AnchorEnd
	// PredecessorStart and PredecessorEnd read the running expectation of the
	// first listed predecessor that has one, else the anchor end.
	PredecessorStart
	PredecessorEnd
)

// Reference is the reference policy of one stage rule.
type Reference struct {
	Kind   RefKind
	Stages []string
}

// Days is a day count resolved against a template: Const plus (or minus,
// with Neg) the template duration of Key.
type Days struct {
	Const float64
	Key   string
	Neg   bool
}

func (d Days) resolve(t *template.RuleTemplate) float64 {
	if d.Key == "" {
		return d.Const
	}
	v := t.Duration(d.Key)
	if d.Neg {
		v = -v
	}
	return d.Const + v
}

func fixed(n float64) Days     { return Days{Const: n} }
func duration(key string) Days { return Days{Key: key} }
func before(key string) Days   { return Days{Key: key, Neg: true} }

// StageRule maps recorded stage names to a template key and describes how
// its expected window is derived.
//
// The start is the reference date shifted by Offset days at the start clock;
// the end is the reference date shifted by Offset+Span days at the end clock.
type StageRule struct {
	Key     string
	Aliases []string
	Ref     Reference
	Offset  Days
	Span    Days
}

// CrossRule checks that the recorded length of Whole equals the summed
// recorded lengths of Parts. Expr is a CEL expression over the double
// variables parts, whole and tolerance (all in seconds).
type CrossRule struct {
	Stage string
	Rule  string
	Parts []string
	Whole string
	Expr  string
}

const sumWithinTolerance = "whole - parts <= tolerance && parts - whole <= tolerance"

// AnchorStage is the stage every schedule is computed from.
const AnchorStage = "ACUMULACION"

var (
	anchorStartRef = Reference{Kind: AnchorStart}
	anchorEndRef   = Reference{Kind: AnchorEnd}
)

func endOf(stages ...string) Reference   { return Reference{Kind: PredecessorEnd, Stages: stages} }
func startOf(stages ...string) Reference { return Reference{Kind: PredecessorStart, Stages: stages} }

// Result and closing stage policies. Ranking chains off the expected ends of
// the recalculation and result stages; both draw families chain off the
// expected starts of validation and result.
var (
	rankingResultRef    = endOf("RECALCULO")
	rankingFinalRef     = endOf("RESULTADO")
	drawResultRef       = startOf("VALIDACION")
	drawFinalRef        = startOf("RESULTADO")
	saltaYGanaResultRef = drawResultRef
	saltaYGanaFinalRef  = drawFinalRef
)

func leadingRules() []StageRule {
	return []StageRule{
		{Key: "planificacion", Aliases: []string{"PLANIFICADO", "PLANIFICACION"}, Ref: anchorStartRef, Offset: before("planificacion"), Span: duration("planificacion")},
		{Key: "preEjecucion", Aliases: []string{"PRE EJECUCION"}, Ref: anchorStartRef, Span: duration("preEjecucion")},
		{Key: "acumulacion", Aliases: []string{"ACUMULACION"}, Ref: anchorStartRef, Span: duration("acumulacion")},
	}
}

// Rules returns the ordered rule table of a family. Every predecessor a rule
// references appears earlier in the table.
func Rules(f template.Family) []StageRule {
	switch f {
	case template.FamilyRanking:
		return append(leadingRules(),
			StageRule{Key: "validacion", Aliases: []string{"VALIDACION"}, Ref: anchorEndRef, Offset: duration("validacion"), Span: duration("validacion")},
			StageRule{Key: "recalculo", Aliases: []string{"RECALCULO"}, Ref: anchorEndRef, Offset: duration("recalculo"), Span: duration("recalculo")},
			StageRule{Key: "resultado", Aliases: []string{"RESULTADO"}, Ref: rankingResultRef, Span: duration("resultado")},
			StageRule{Key: "resultadoIview", Aliases: []string{"RESULTADO IVIEW"}, Ref: anchorEndRef, Span: fixed(1)},
			StageRule{Key: "pago", Aliases: []string{"PAGOS FISICO"}, Ref: anchorEndRef, Span: fixed(1)},
			StageRule{Key: "vencido", Aliases: []string{"PAGOS FISICO VENCIDOS"}, Ref: anchorEndRef, Offset: fixed(1), Span: duration("vencido")},
			StageRule{Key: "finalizado", Aliases: []string{"FINALIZADO"}, Ref: rankingFinalRef, Span: duration("finalizado")},
		)
	case template.FamilyDraw:
		return append(leadingRules(),
			StageRule{Key: "recalculo", Aliases: []string{"RECALCULO"}, Ref: anchorEndRef, Offset: duration("recalculo"), Span: duration("recalculo")},
			StageRule{Key: "canjes", Aliases: []string{"CANJES", "CANJE"}, Ref: anchorEndRef, Span: duration("canjes")},
			StageRule{Key: "validacion", Aliases: []string{"VALIDACION"}, Ref: endOf("CANJES", "CANJE"), Offset: duration("validacion"), Span: duration("validacion")},
			StageRule{Key: "resultado", Aliases: []string{"RESULTADO"}, Ref: drawResultRef, Offset: duration("resultado"), Span: duration("resultado")},
			StageRule{Key: "finalizado", Aliases: []string{"FINALIZADO"}, Ref: drawFinalRef, Offset: duration("finalizado"), Span: duration("finalizado")},
		)
	case template.FamilySaltaYGana:
		return append(leadingRules(),
			StageRule{Key: "sorteo1", Aliases: []string{"SORTEO1", "SORTEO 1"}, Ref: anchorEndRef, Offset: fixed(1), Span: duration("sorteo1")},
			StageRule{Key: "sorteo2", Aliases: []string{"SORTEO2", "SORTEO 2"}, Ref: anchorEndRef, Offset: fixed(1), Span: duration("sorteo2")},
			StageRule{Key: "canje1", Aliases: []string{"CANJE1", "CANJE 1"}, Ref: anchorEndRef, Offset: duration("canje1"), Span: duration("canje1")},
			StageRule{Key: "canje", Aliases: []string{"CANJES"}, Ref: anchorEndRef, Offset: duration("canje1"), Span: duration("canje")},
			StageRule{Key: "canje2", Aliases: []string{"CANJE2", "CANJE 2"}, Ref: endOf("CANJE1", "CANJE 1", "CANJE"), Offset: duration("canje2"), Span: duration("canje2")},
			StageRule{Key: "recalculo", Aliases: []string{"RECALCULO"}, Ref: anchorEndRef, Offset: duration("recalculo"), Span: duration("recalculo")},
			StageRule{Key: "validacion", Aliases: []string{"VALIDACION"}, Ref: endOf("CANJE2", "CANJE 2", "CANJE"), Offset: duration("validacion"), Span: duration("validacion")},
			StageRule{Key: "resultado", Aliases: []string{"RESULTADO"}, Ref: saltaYGanaResultRef, Offset: duration("resultado"), Span: duration("resultado")},
			StageRule{Key: "finalizado", Aliases: []string{"FINALIZADO"}, Ref: saltaYGanaFinalRef, Offset: duration("finalizado"), Span: duration("finalizado")},
		)
	}
	return nil
}

// CrossRules returns the cross-stage checks of a family.
func CrossRules(f template.Family) []CrossRule {
	if f != template.FamilySaltaYGana {
		return nil
	}
	return []CrossRule{{
		Stage: "VALIDACION",
		Rule:  "Duración igual a la suma de los SORTEOS",
		Parts: []string{"SORTEO1", "SORTEO 1", "SORTEO2", "SORTEO 2"},
		Whole: "VALIDACION",
		Expr:  sumWithinTolerance,
	}}
}
