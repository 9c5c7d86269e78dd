// Package verdict holds the outcome vocabulary shared by the comparators, the
// schedule engine and the summary aggregator.
package verdict

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the three-way outcome of a single check.
type Status string

const (
	OK      Status = "OK"
	Error   Status = "ERROR"
	Skipped Status = "SKIPPED"
)

// Tolerance is the maximum absolute difference between an expected and a
// recorded instant (or duration) for a timing check to pass.
const Tolerance = time.Second

// TimestampLayout is how instants are rendered in reports.
const TimestampLayout = "2006-01-02 15:04:05"

// Category identifies one of the five static check families. The values are
// the keys used in report documents.
type Category string

const (
	Multiplier    Category = "multiplicador"
	Equivalences  Category = "equivalencias"
	Configuration Category = "configuraciones"
	Prizes        Category = "premios"
	Stages        Category = "etapas"
)

// Categories lists every category in report order.
var Categories = []Category{Multiplier, Equivalences, Configuration, Prizes, Stages}

// Label is the human readable category name used in summaries.
func (c Category) Label() string {
	switch c {
	case Multiplier:
		return "Multiplicador"
	case Equivalences:
		return "Equivalencias"
	case Configuration:
		return "Configuraciones"
	case Prizes:
		return "Premios"
	case Stages:
		return "Etapas"
	}
	return string(c)
}

// Of returns OK when ok is true and Error otherwise.
func Of(ok bool) Status {
	if ok {
		return OK
	}
	return Error
}

// WithinTolerance reports whether two instants differ by at most Tolerance.
func WithinTolerance(expected, found time.Time) bool {
	d := found.Sub(expected)
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}

// Skip is the document body written for a category without a declared rule.
type Skip struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// NoRule builds the Skip for a category absent from the rule template.
func NoRule(c Category) Skip {
	return Skip{Status: Skipped, Reason: `No "` + string(c) + `" in JSON`}
}

// FormatNumber renders a float the way the legacy report tooling did: integral
// values keep a trailing ".0" and very large or small magnitudes switch to
// exponent notation.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Text is the string form used when comparing loosely typed configuration
// values: integers print bare, floats through FormatNumber, booleans as
// True/False and missing values as None.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case json.Number:
		s := string(x)
		if strings.ContainsAny(s, ".eE") {
			if f, err := x.Float64(); err == nil {
				return FormatNumber(f)
			}
		}
		return s
	case float64:
		return FormatNumber(x)
	case float32:
		return FormatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case []byte:
		return string(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
