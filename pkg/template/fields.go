package template

import (
	"strconv"
	"strings"
)

// firstNumber returns the numeric value of the first key of m holding a
// truthy value, or 0.
func firstNumber(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || !truthy(v) {
			continue
		}
		f, _ := number(v)
		return f
	}
	return 0
}

// BandFromFields reads an equivalence band from a loosely keyed record.
// Precedence: min from minimo, min, condicion_minima; max from maximo when the
// key is present, else max; score from puntaje, valor_puntaje.
func BandFromFields(m map[string]any) Band {
	b := Band{
		Min:   firstNumber(m, "minimo", "min", "condicion_minima"),
		Score: firstNumber(m, "puntaje", "valor_puntaje"),
	}
	raw, ok := m["maximo"]
	if !ok {
		raw = m["max"]
	}
	if raw != nil {
		if f, ok := number(raw); ok {
			b.Max = &f
		}
	}
	return b
}

// PrizeFromFields reads a prize tier from a loosely keyed record, defaulting
// every missing field to 0.
func PrizeFromFields(m map[string]any) PrizeTier {
	return PrizeTier{
		ValueMin:    firstNumber(m, "condicion_minima", "minimo", "min"),
		ValueMax:    firstNumber(m, "condicion_maxima", "maximo", "max"),
		PrizeAmount: firstNumber(m, "valor_premio", "valor"),
		WinnerCount: firstNumber(m, "cantidad_ganadores", "cantidad"),
	}
}

// hasExplicitPrizeFields reports whether a prize entry already carries tier
// fields rather than a shape-specific position or winner count.
func hasExplicitPrizeFields(m map[string]any) bool {
	_, a := m["valor_premio"]
	_, b := m["valor"]
	return a || b
}

// ParsePosition converts a ranking position ("7") or inclusive position range
// ("11-20") into (valueMin, valueMax, winnerCount). A single position p yields
// (p, 0, 1) and a range a-b yields (a, b, b-a+1). Strings that are neither fall
// back to a whole-string integer, then to (0, 0, 1).
func ParsePosition(pos string) (int, int, int) {
	if i := strings.Index(pos, "-"); i >= 0 {
		start, err1 := atoi(pos[:i])
		end, err2 := atoi(pos[i+1:])
		if err1 == nil && err2 == nil {
			return start, end, end - start + 1
		}
	}
	if p, err := atoi(pos); err == nil {
		return p, 0, 1
	}
	return 0, 0, 1
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
