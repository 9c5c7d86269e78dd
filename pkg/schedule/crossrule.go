package schedule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

// crossEvaluator compiles cross rule expressions once and caches the
// programs.
type crossEvaluator struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

func newCrossEvaluator() (*crossEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("parts", cel.DoubleType),
		cel.Variable("whole", cel.DoubleType),
		cel.Variable("tolerance", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &crossEvaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

func (ce *crossEvaluator) program(expression string) (cel.Program, error) {
	ce.mu.RLock()
	prg, hit := ce.prgCache[expression]
	ce.mu.RUnlock()
	if hit {
		return prg, nil
	}

	ce.mu.Lock()
	defer ce.mu.Unlock()
	if prg, hit = ce.prgCache[expression]; hit {
		return prg, nil
	}
	ast, issues := ce.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := ce.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	ce.prgCache[expression] = prg
	return prg, nil
}

// Evaluate runs expression against the given durations in seconds.
func (ce *crossEvaluator) Evaluate(expression string, parts, whole float64) (bool, error) {
	prg, err := ce.program(expression)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"parts":     parts,
		"whole":     whole,
		"tolerance": verdict.Tolerance.Seconds(),
	})
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("result not boolean")
	}
	return ok, nil
}

// check evaluates rule over the recorded windows. It reports false when the
// whole stage is not recorded or none of the parts has a positive length.
func (ce *crossEvaluator) check(rule CrossRule, recorded map[string]window) (Check, bool, error) {
	whole, ok := recorded[rule.Whole]
	if !ok {
		return Check{}, false, nil
	}
	var parts float64
	for _, name := range rule.Parts {
		if w, ok := recorded[name]; ok {
			parts += w.end.Sub(w.start).Seconds()
		}
	}
	if parts <= 0 {
		return Check{}, false, nil
	}
	wholeSecs := whole.end.Sub(whole.start).Seconds()
	pass, err := ce.Evaluate(rule.Expr, parts, wholeSecs)
	if err != nil {
		return Check{}, false, err
	}
	return Check{
		Stage:    rule.Stage,
		Rule:     rule.Rule,
		Expected: verdict.FormatNumber(parts) + " segundos",
		Found:    verdict.FormatNumber(wholeSecs) + " segundos",
		Status:   verdict.Of(pass),
	}, true, nil
}
