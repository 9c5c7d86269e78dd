// Package compare implements the static per-segment checks: multiplier,
// equivalence bands, flat configuration, prize tiers and the stage-name set.
//
// Every check is independent. A category the rule template does not declare
// is SKIPPED with a reason and never counts as an error.
package compare

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/stagename"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

// SegmentReport is the static verdict document entry for one segment.
type SegmentReport struct {
	Segment       int64           `json:"segmento"`
	SegmentName   string          `json:"nombreSegmento"`
	Multiplier    MultiplierCheck `json:"multiplicador"`
	Equivalences  BandCheck       `json:"equivalencias"`
	Configuration ConfigCheck     `json:"configuraciones"`
	Prizes        PrizeCheck      `json:"premios"`
	Stages        StageSetCheck   `json:"etapas"`
}

// Statuses returns the status of every category, keyed by category.
func (r SegmentReport) Statuses() map[verdict.Category]verdict.Status {
	return map[verdict.Category]verdict.Status{
		verdict.Multiplier:    r.Multiplier.Status,
		verdict.Equivalences:  r.Equivalences.Status,
		verdict.Configuration: r.Configuration.Status,
		verdict.Prizes:        r.Prizes.Status,
		verdict.Stages:        r.Stages.Status,
	}
}

type MultiplierCheck struct {
	Status   verdict.Status `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Expected *float64       `json:"expected"`
	Found    []float64      `json:"found"`
}

type BandCheck struct {
	Status   verdict.Status  `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Expected []template.Band `json:"expected"`
	Found    []template.Band `json:"found"`
}

type ConfigCheck struct {
	Status   verdict.Status        `json:"status"`
	Reason   string                `json:"reason,omitempty"`
	Expected map[string]any        `json:"expected"`
	Found    map[string]any        `json:"found"`
	Diffs    map[string]ConfigDiff `json:"diffs"`
}

// ConfigDiff is one mismatching configuration key. Found is nil when the key
// is not recorded.
type ConfigDiff struct {
	Expected any `json:"expected"`
	Found    any `json:"found"`
}

type PrizeCheck struct {
	Status   verdict.Status       `json:"status"`
	Reason   string               `json:"reason,omitempty"`
	Expected []template.PrizeTier `json:"expected"`
	Found    []template.PrizeTier `json:"found"`
}

type StageSetCheck struct {
	Status   verdict.Status `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Expected []string       `json:"expected"`
	Found    []string       `json:"found"`
	Missing  []string       `json:"missing"`
	Extra    []string       `json:"extra"`
}

func (c MultiplierCheck) MarshalJSON() ([]byte, error) {
	type plain MultiplierCheck
	return marshalCheck(c.Status, c.Reason, plain(c))
}

func (c BandCheck) MarshalJSON() ([]byte, error) {
	type plain BandCheck
	return marshalCheck(c.Status, c.Reason, plain(c))
}

func (c ConfigCheck) MarshalJSON() ([]byte, error) {
	type plain ConfigCheck
	return marshalCheck(c.Status, c.Reason, plain(c))
}

func (c PrizeCheck) MarshalJSON() ([]byte, error) {
	type plain PrizeCheck
	return marshalCheck(c.Status, c.Reason, plain(c))
}

func (c StageSetCheck) MarshalJSON() ([]byte, error) {
	type plain StageSetCheck
	return marshalCheck(c.Status, c.Reason, plain(c))
}

// marshalCheck writes a skipped check as {status, reason} and anything else
// in full.
func marshalCheck(status verdict.Status, reason string, body any) ([]byte, error) {
	if status == verdict.Skipped {
		body = verdict.Skip{Status: status, Reason: reason}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Multiplier checks that the segment records exactly one multiplier value and
// that it equals the expected one.
func Multiplier(expected *float64, recorded []float64) MultiplierCheck {
	if expected == nil {
		return MultiplierCheck{Status: verdict.Skipped, Reason: verdict.NoRule(verdict.Multiplier).Reason}
	}
	found := slices.Clone(recorded)
	slices.Sort(found)
	found = slices.Compact(found)
	if found == nil {
		found = []float64{}
	}
	return MultiplierCheck{
		Status:   verdict.Of(len(found) == 1 && found[0] == *expected),
		Expected: expected,
		Found:    found,
	}
}

// Equivalences compares equivalence bands after sorting both sides by
// (min, max with open bands last, score).
func Equivalences(expected, recorded []template.Band) BandCheck {
	if len(expected) == 0 {
		return BandCheck{Status: verdict.Skipped, Reason: verdict.NoRule(verdict.Equivalences).Reason}
	}
	exp := sortBands(expected)
	found := sortBands(recorded)
	return BandCheck{
		Status:   verdict.Of(sameCanonical(exp, found)),
		Expected: exp,
		Found:    found,
	}
}

func sortBands(in []template.Band) []template.Band {
	out := make([]template.Band, len(in))
	copy(out, in)
	slices.SortStableFunc(out, func(a, b template.Band) int {
		return cmp.Or(
			cmp.Compare(a.Min, b.Min),
			cmp.Compare(bandMax(a), bandMax(b)),
			cmp.Compare(a.Score, b.Score),
		)
	})
	return out
}

func bandMax(b template.Band) float64 {
	if b.Max == nil {
		return math.Inf(1)
	}
	return *b.Max
}

// Configuration checks every expected key against the recorded rows. Keys are
// compared uppercased and values by their string form.
func Configuration(expected map[string]any, rows []promo.ConfigRow) ConfigCheck {
	if len(expected) == 0 {
		return ConfigCheck{Status: verdict.Skipped, Reason: verdict.NoRule(verdict.Configuration).Reason}
	}
	found := make(map[string]any, len(rows))
	for _, r := range rows {
		found[strings.ToUpper(r.Code)] = r.Value
	}
	diffs := map[string]ConfigDiff{}
	for k, v := range expected {
		key := strings.ToUpper(k)
		got := found[key]
		if verdict.Text(got) != verdict.Text(v) {
			diffs[key] = ConfigDiff{Expected: v, Found: got}
		}
	}
	return ConfigCheck{
		Status:   verdict.Of(len(diffs) == 0),
		Expected: expected,
		Found:    found,
		Diffs:    diffs,
	}
}

// Prizes compares prize tables after sorting both sides by
// (prize amount, value min, winner count).
func Prizes(expected, recorded []template.PrizeTier) PrizeCheck {
	if len(expected) == 0 {
		return PrizeCheck{Status: verdict.Skipped, Reason: verdict.NoRule(verdict.Prizes).Reason}
	}
	exp := sortPrizes(expected)
	found := sortPrizes(recorded)
	return PrizeCheck{
		Status:   verdict.Of(sameCanonical(exp, found)),
		Expected: exp,
		Found:    found,
	}
}

func sortPrizes(in []template.PrizeTier) []template.PrizeTier {
	out := make([]template.PrizeTier, len(in))
	copy(out, in)
	slices.SortStableFunc(out, func(a, b template.PrizeTier) int {
		return cmp.Or(
			cmp.Compare(a.PrizeAmount, b.PrizeAmount),
			cmp.Compare(a.ValueMin, b.ValueMin),
			cmp.Compare(a.WinnerCount, b.WinnerCount),
		)
	})
	return out
}

// StageSet compares the normalized expected stage names with the normalized
// recorded ones.
func StageSet(expected, recorded []string) StageSetCheck {
	if len(expected) == 0 {
		return StageSetCheck{Status: verdict.Skipped, Reason: verdict.NoRule(verdict.Stages).Reason}
	}
	exp := stagename.Set(expected)
	found := stagename.Set(recorded)
	missing := difference(exp, found)
	extra := difference(found, exp)
	return StageSetCheck{
		Status:   verdict.Of(len(missing) == 0 && len(extra) == 0),
		Expected: exp,
		Found:    found,
		Missing:  missing,
		Extra:    extra,
	}
}

func difference(a, b []string) []string {
	out := []string{}
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}

// sameCanonical reports whether a and b serialize to the same canonical
// (RFC 8785) JSON.
func sameCanonical(a, b any) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
