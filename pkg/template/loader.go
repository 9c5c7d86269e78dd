package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

// rankingStageAliases maps ranking logic keys to the stage names used in the
// promotions database.
var rankingStageAliases = map[string]string{
	"planificacion":  "PLANIFICADO",
	"preEjecucion":   "PRE_EJECUCION",
	"validacion":     "VALIDACION",
	"recalculo":      "RECALCULO",
	"resultado":      "RESULTADO",
	"resultadoIview": "RESULTADO_IVIEW",
	"pago":           "PAGOS_FISICO",
	"vencido":        "PAGOS_FISICO_VENCIDOS",
	"finalizado":     "FINALIZADO",
	"acumulacion":    "ACUMULACION",
}

// drawStageAliases maps derived draw stage names to their stored names.
var drawStageAliases = map[string]string{
	"PLANIFICACION": "PLANIFICADO",
	"PREEJECUCION":  "PRE EJECUCION",
}

// drawStage is always part of a draw family's stage set.
const drawStage = "SORTEO"

// Loader reads rule documents from a template store.
type Loader struct {
	fsys    fs.FS
	logger  *zap.Logger
	schemas shapeSchemas
}

// NewLoader creates a loader over fsys, typically os.DirFS of the templates
// directory.
func NewLoader(fsys fs.FS, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schemas, err := compileShapeSchemas()
	if err != nil {
		return nil, err
	}
	return &Loader{fsys: fsys, logger: logger.Named("template"), schemas: schemas}, nil
}

// Load returns the rule template for one catalog entry, or nil when the
// document is missing or unusable.
func (l *Loader) Load(e Entry) *RuleTemplate {
	return l.loadWith(e, map[string]map[string]any{})
}

// LoadAll loads every entry, omitting campaigns without a usable template.
// Documents shared by several entries are read once.
func (l *Loader) LoadAll(entries []Entry) map[string]*RuleTemplate {
	docs := map[string]map[string]any{}
	out := make(map[string]*RuleTemplate, len(entries))
	for _, e := range entries {
		if t := l.loadWith(e, docs); t != nil {
			out[e.Campaign] = t
		}
	}
	return out
}

func (l *Loader) loadWith(e Entry, docs map[string]map[string]any) *RuleTemplate {
	t, err := l.load(e, docs)
	if err != nil {
		l.logger.Warn("rule template unavailable",
			zap.String("campaign", e.Campaign),
			zap.String("template", e.Template),
			zap.Error(err),
		)
		return nil
	}
	return t
}

func (l *Loader) load(e Entry, docs map[string]map[string]any) (*RuleTemplate, error) {
	doc, ok := docs[e.Template]
	if !ok {
		var err error
		doc, err = l.readDocument(e.Template)
		if err != nil {
			return nil, err
		}
		docs[e.Template] = doc
	}

	shape := e.Family.Shape()
	if err := l.schemas.validate(shape, doc); err != nil {
		return nil, fmt.Errorf("%s shape: %w", shape, err)
	}

	version, _ := doc["version"].(string)
	if err := checkVersion(version, e.VersionConstraint); err != nil {
		return nil, err
	}

	var t *RuleTemplate
	switch shape {
	case ShapeRanked:
		t = fromRanked(doc)
	case ShapeMultiMode:
		var err error
		if t, err = fromMultiMode(doc, e.Modes); err != nil {
			return nil, err
		}
	default:
		t = fromSingleMode(doc)
	}
	if err := checkDurations(t.Durations); err != nil {
		return nil, err
	}
	t.Campaign = e.Campaign
	t.Family = e.Family
	t.Version = version
	return t, nil
}

// MaxDurationDays bounds every stage duration a template may declare.
const MaxDurationDays = 3660

func checkDurations(durations map[string]float64) error {
	for _, k := range sortedKeys(durations) {
		d := durations[k]
		if math.IsNaN(d) || math.IsInf(d, 0) || math.Abs(d) > MaxDurationDays {
			return fmt.Errorf("duration %q: %v days is out of range", k, d)
		}
	}
	return nil
}

func checkVersion(version, constraint string) error {
	if constraint == "" || version == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid template version %q: %w", version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("template version %s does not satisfy %s", version, constraint)
	}
	return nil
}

// readDocument reads name as JSON, or as YAML when name has a YAML extension
// or only a YAML sibling with the same stem exists.
func (l *Loader) readDocument(name string) (map[string]any, error) {
	candidates := []string{name}
	if ext := path.Ext(name); ext == ".json" {
		stem := strings.TrimSuffix(name, ext)
		candidates = append(candidates, stem+".yaml", stem+".yml")
	}
	for _, c := range candidates {
		data, err := fs.ReadFile(l.fsys, c)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c, err)
		}
		switch path.Ext(c) {
		case ".yaml", ".yml":
			return decodeYAML(data)
		default:
			return decodeJSON(data)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func decodeJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root is %T, want object", v)
	}
	return m, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	// Round-trip through JSON so both formats share one value model.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml document is not json compatible: %w", err)
	}
	return decodeJSON(raw)
}

func fromRanked(doc map[string]any) *RuleTemplate {
	defaults, _ := object(doc["defaults"])
	t := &RuleTemplate{}
	applyStatic(t, defaults)

	var prizes []PrizeTier
	for _, raw := range list(defaults["premios"]) {
		m, ok := object(raw)
		if !ok {
			continue
		}
		pos, hasPos := m["posicion"]
		if (!hasPos || pos == nil) && hasExplicitPrizeFields(m) {
			prizes = append(prizes, PrizeFromFields(m))
			continue
		}
		amount, ok := number(m["premio"])
		if pos == nil || !ok {
			continue
		}
		lo, hi, winners := ParsePosition(verdict.Text(pos))
		prizes = append(prizes, PrizeTier{
			ValueMin:    float64(lo),
			ValueMax:    float64(hi),
			PrizeAmount: amount,
			WinnerCount: float64(winners),
		})
	}
	if len(prizes) > 0 {
		t.Prizes = prizes
	}

	t.Durations = numberMap(defaults["durations"])
	t.Windows = windowMap(defaults["hours"])

	if logic, ok := object(doc["logic"]); ok {
		for _, k := range sortedKeys(logic) {
			name, ok := rankingStageAliases[k]
			if !ok {
				name = strings.ToUpper(k)
			}
			t.StageNames = appendUnique(t.StageNames, name)
		}
	}
	return t
}

func fromMultiMode(doc map[string]any, accepted []string) (*RuleTemplate, error) {
	modes, _ := object(doc["modes"])
	name, def, ok := pickMode(modes, accepted)
	if !ok {
		return nil, fmt.Errorf("no mode matching %v", accepted)
	}
	defaults, _ := object(def["defaults"])

	t := &RuleTemplate{Mode: name}
	applyStatic(t, defaults)
	t.Prizes = drawPrizes(defaults)
	t.StageNames = drawStageNames(doc, "schema_et_sorteos", "logic_sorteos")

	t.Durations = numberMap(doc["durations_et_sorteos"])
	for k, v := range numberMap(defaults["durations"]) {
		if t.Durations == nil {
			t.Durations = map[string]float64{}
		}
		t.Durations[k] = v
	}
	t.Windows = windowMap(doc["hours_et_sorteos"])
	return t, nil
}

func fromSingleMode(doc map[string]any) *RuleTemplate {
	defaults, _ := object(doc["defaults"])
	t := &RuleTemplate{}
	applyStatic(t, defaults)
	t.Prizes = drawPrizes(defaults)
	t.Durations = numberMap(defaults["durations"])
	t.Windows = windowMap(defaults["hours"])
	t.StageNames = drawStageNames(doc, "schema", "logic")
	return t
}

// pickMode returns the first mode, in accepted order, whose lowercased name
// matches.
func pickMode(modes map[string]any, accepted []string) (string, map[string]any, bool) {
	names := sortedKeys(modes)
	for _, want := range accepted {
		for _, name := range names {
			if strings.ToLower(name) != strings.ToLower(want) {
				continue
			}
			def, ok := object(modes[name])
			if !ok {
				continue
			}
			return name, def, true
		}
	}
	return "", nil, false
}

func applyStatic(t *RuleTemplate, defaults map[string]any) {
	if v, ok := defaults["multiplicador"]; ok && isNumeric(v) {
		f, _ := number(v)
		t.Multiplier = &f
	}

	if raw := defaults["equivalencias"]; truthy(raw) {
		entries := list(raw)
		if m, ok := object(raw); ok {
			entries = []any{m}
		}
		bands := make([]Band, 0, len(entries))
		for _, e := range entries {
			if m, ok := object(e); ok {
				bands = append(bands, BandFromFields(m))
			}
		}
		t.Bands = bands
	}

	if cfg, ok := object(defaults["configuraciones"]); ok && len(cfg) > 0 {
		t.FlatConfig = cfg
	}
}

func drawPrizes(defaults map[string]any) []PrizeTier {
	var prizes []PrizeTier
	for _, raw := range list(defaults["premios"]) {
		m, ok := object(raw)
		if !ok {
			continue
		}
		if _, has := m["premio"]; !has && hasExplicitPrizeFields(m) {
			prizes = append(prizes, PrizeFromFields(m))
			continue
		}
		amount, ok1 := number(m["premio"])
		winners, ok2 := number(m["ganadores"])
		if !ok1 || !ok2 {
			continue
		}
		prizes = append(prizes, PrizeTier{PrizeAmount: amount, WinnerCount: winners})
	}
	return prizes
}

// drawStageNames derives the stage set of a draw document: state block keys
// without their "etapa" prefix, else the logic block keys, uppercased and
// passed through the draw alias map. SORTEO is always included.
func drawStageNames(doc map[string]any, schemaKey, logicKey string) []string {
	var keys []string
	state, hasState := map[string]any(nil), false
	if sch, ok := object(doc[schemaKey]); ok {
		state, hasState = object(sch["state"])
	}
	if hasState {
		for _, k := range sortedKeys(state) {
			if strings.HasPrefix(strings.ToLower(k), "etapa") {
				k = k[len("etapa"):]
			}
			keys = append(keys, strings.ToUpper(k))
		}
	} else if logic, ok := object(doc[logicKey]); ok {
		for _, k := range sortedKeys(logic) {
			keys = append(keys, strings.ToUpper(k))
		}
	}

	var names []string
	for _, k := range keys {
		if alias, ok := drawStageAliases[k]; ok {
			k = alias
		}
		names = appendUnique(names, k)
	}
	return appendUnique(names, drawStage)
}

func numberMap(v any) map[string]float64 {
	m, ok := object(v)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if f, ok := number(raw); ok {
			out[k] = f
		}
	}
	return out
}

func windowMap(v any) map[string]ClockWindow {
	m, ok := object(v)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]ClockWindow, len(m))
	for k, raw := range m {
		w, ok := object(raw)
		if !ok {
			continue
		}
		out[k] = ClockWindow{Start: clockText(w["start"]), End: clockText(w["end"])}
	}
	return out
}

func clockText(v any) string {
	if v == nil {
		return ""
	}
	return verdict.Text(v)
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
