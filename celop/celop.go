// Package celop plugs CEL expressions into the criteria engine as a custom
// operator. A rule using the "cel" operator carries a CEL expression as its
// expected value; the expression sees the coerced field value as `value`
// and must yield a boolean.
package celop

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/tomharte/criteria/criteria"
)

// Operator is the identifier rules use to invoke CEL evaluation.
const Operator criteria.Operator = "cel"

// Evaluator compiles and caches CEL programs keyed by expression. The
// cache is guarded by an RWMutex so concurrent evaluations share compiled
// programs.
type Evaluator struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEvaluator creates an evaluator whose environment declares the single
// `value` variable.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Register installs the cel operator on an engine.
func Register(engine *criteria.Engine) (*Evaluator, error) {
	ev, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	engine.RegisterOperator(Operator, ev.Evaluate)
	return ev, nil
}

// compile returns the cached program for an expression, compiling on first
// use. A cost limit keeps runaway expressions from exhausting resources.
func (e *Evaluator) compile(expression string) (cel.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// Evaluate is the criteria.OperatorFunc for the cel operator. Non-boolean
// expression results are treated as false.
func (e *Evaluator) Evaluate(actual, expected criteria.Value) (bool, error) {
	if expected.Kind != criteria.KindString {
		return false, fmt.Errorf("cel operator requires a string expression, got %s", expected.Kind)
	}

	prog, err := e.compile(expected.Str)
	if err != nil {
		return false, err
	}

	out, _, err := prog.Eval(map[string]any{
		"value": actual.Interface(),
	})
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return false, nil
	}
	return passed, nil
}
