// Package template turns the promotion rule documents (position-ranked,
// multi-mode and single-mode shapes) into one canonical RuleTemplate per
// campaign.
//
// Loading never fails from the caller's point of view: a document that is
// absent, unparsable or rejected by its shape schema yields a nil template and
// a log line, which upstream code treats as "no rules declared".
package template

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Family selects the stage schedule rules and the document shape.
type Family string

const (
	FamilyRanking    Family = "ranking"
	FamilyDraw       Family = "draw"
	FamilySaltaYGana Family = "salta-y-gana"
)

// Shape is the layout of a rule document.
type Shape string

const (
	ShapeRanked     Shape = "ranked"
	ShapeMultiMode  Shape = "multi-mode"
	ShapeSingleMode Shape = "single-mode"
)

// Shape returns the document layout a family is written in.
func (f Family) Shape() Shape {
	switch f {
	case FamilyRanking:
		return ShapeRanked
	case FamilyDraw:
		return ShapeMultiMode
	default:
		return ShapeSingleMode
	}
}

var ErrNotFound = errors.New("template: document not found")

// Band is one equivalence band. Max is nil for an open-ended band.
type Band struct {
	Min   float64  `json:"min"`
	Max   *float64 `json:"max"`
	Score float64  `json:"puntaje"`
}

// PrizeTier is one row of a prize table.
type PrizeTier struct {
	ValueMin    float64 `json:"condicion_minima"`
	ValueMax    float64 `json:"condicion_maxima"`
	PrizeAmount float64 `json:"valor_premio"`
	WinnerCount float64 `json:"cantidad_ganadores"`
}

// ClockWindow holds the raw "HH:MM[:SS]" start and end clocks of a stage.
// Either half may be empty.
type ClockWindow struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// RuleTemplate is the canonical rule set for one campaign. A nil field means
// the document declares nothing for that category.
type RuleTemplate struct {
	Campaign string
	Family   Family
	Mode     string
	Version  string

	Multiplier *float64
	Bands      []Band
	FlatConfig map[string]any
	Prizes     []PrizeTier
	// StageNames are the stage names as derived from the document, before
	// normalization. Nil when the document declares none.
	StageNames []string

	Durations map[string]float64
	Windows   map[string]ClockWindow
}

// Duration returns the configured day count for a stage key, 0 when absent.
func (t *RuleTemplate) Duration(key string) float64 {
	if t == nil {
		return 0
	}
	return t.Durations[key]
}

// Window returns the clock window for a stage key.
func (t *RuleTemplate) Window(key string) (ClockWindow, bool) {
	if t == nil {
		return ClockWindow{}, false
	}
	w, ok := t.Windows[key]
	return w, ok
}

// number converts a decoded JSON scalar to float64. Numeric strings are
// accepted; anything else reports false.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// isNumeric reports whether v is a JSON number (not a numeric string).
func isNumeric(v any) bool {
	switch v.(type) {
	case json.Number, float64, int, int64:
		return true
	}
	return false
}

// truthy mirrors the loose "has a value" test the rule documents were
// written against: nil, zero, empty strings and empty containers are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	return true
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
