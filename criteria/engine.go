package criteria

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Engine evaluates criteria definitions against flat data snapshots. It is
// stateless per call: a single Engine is safe to share across goroutines,
// and independent evaluations never contend beyond the read lock on the
// operator and scorer registries.
type Engine struct {
	operators map[Operator]OperatorFunc
	scorers   map[ScoringMethod]Scorer
	builtin   map[Operator]bool
	mu        sync.RWMutex
}

// NewEngine creates an engine with the built-in operator set and the five
// built-in scoring methods installed.
func NewEngine() *Engine {
	ops := builtinOperators()
	builtin := make(map[Operator]bool, len(ops))
	for op := range ops {
		builtin[op] = true
	}
	return &Engine{
		operators: ops,
		scorers:   builtinScorers(),
		builtin:   builtin,
	}
}

// RegisterOperator installs a custom operator. Registering an existing
// identifier replaces its evaluation function. Custom operators receive
// inference-coerced operands; the expected value is passed through as-is
// when it is not comparable to the field value.
func (e *Engine) RegisterOperator(op Operator, fn OperatorFunc) {
	e.mu.Lock()
	e.operators[op] = fn
	e.mu.Unlock()
}

// RegisterScorer installs a custom scoring method, or replaces a built-in
// one.
func (e *Engine) RegisterScorer(method ScoringMethod, s Scorer) {
	e.mu.Lock()
	e.scorers[method] = s
	e.mu.Unlock()
}

// Evaluate computes a verdict for one data snapshot against a criteria
// definition. It either returns a fully populated EvaluationResult, whose
// trace may carry recovered per-rule errors, or a ConfigurationError with
// no result at all; never both.
//
// The criteria is read-only during evaluation and every result object is
// freshly constructed, so concurrent calls for independent inputs need no
// locking on the caller's side.
func (e *Engine) Evaluate(c *Criteria, data map[string]any) (*EvaluationResult, error) {
	start := time.Now()

	if err := e.Validate(c); err != nil {
		return nil, err
	}

	result := &EvaluationResult{
		CriteriaID: c.ID,
		Threshold:  c.Threshold,
		Method:     c.Method,
	}

	// Ungrouped rules, ascending order. Sorting a copy keeps the criteria
	// untouched.
	for _, rule := range sortedActive(c.Rules) {
		rr := e.evaluateRule(rule, data)
		result.RuleResults = append(result.RuleResults, rr)
		result.Trace = append(result.Trace, ruleStep(len(result.Trace)+1, rr))
	}

	for _, group := range c.Groups {
		groupStart := time.Now()
		gr := e.evaluateGroupRules(group, data)
		for _, rr := range gr.Results {
			result.Trace = append(result.Trace, ruleStep(len(result.Trace)+1, rr))
		}
		result.GroupResults = append(result.GroupResults, gr)
		result.Trace = append(result.Trace, groupStep(len(result.Trace)+1, gr, time.Since(groupStart)))
	}

	e.mu.RLock()
	scorer := e.scorers[c.Method]
	e.mu.RUnlock()

	scoreStart := time.Now()
	result.Score = scorer.Score(result.RuleResults, result.GroupResults)

	// The binary method takes its verdict from the all-pass computation
	// directly; every other method compares the score to the threshold.
	if c.Method == MethodPassFail {
		result.Passed = allPassed(result.RuleResults, result.GroupResults)
	} else {
		result.Passed = result.Score >= c.Threshold
	}

	result.Trace = append(result.Trace, TraceStep{
		Seq:      len(result.Trace) + 1,
		Kind:     StepScore,
		Expected: c.Threshold,
		Actual:   result.Score,
		Passed:   result.Passed,
		Duration: time.Since(scoreStart),
	})
	result.Duration = time.Since(start)

	return result, nil
}

// evaluateRule runs a single rule against the snapshot. All rule-local
// failures (missing field, coercion mismatch, operator error) are recorded
// on the result and never abort the evaluation.
func (e *Engine) evaluateRule(rule Rule, data map[string]any) RuleResult {
	start := time.Now()
	result := RuleResult{
		RuleID:   rule.ID,
		Field:    rule.Field,
		Op:       rule.Op,
		Expected: rule.Value,
		Weight:   rule.Weight,
	}

	raw, present := lookupField(data, rule.Field)

	e.mu.RLock()
	fn, known := e.operators[rule.Op]
	isBuiltin := e.builtin[rule.Op]
	e.mu.RUnlock()
	if !known {
		// Validation rejects unknown operators; this guards direct callers.
		result.Err = configErrf("", "unknown operator %q", rule.Op)
		result.Duration = time.Since(start)
		return result
	}

	switch rule.Op {
	case OpExists, OpNotExists:
		actual := Value{Kind: KindAbsent}
		if present {
			var err error
			actual, err = coerce(rule.Field, raw, "")
			if err != nil {
				// Uncomparable values still exist.
				actual = stringValue("")
			}
		}
		result.Passed, result.Err = fn(actual, Value{})
		result.Actual = actual.Interface()
		result.Duration = time.Since(start)
		return result
	}

	// Every other operator requires a present, non-null value.
	if !present {
		result.Err = ErrFieldNotFound
		result.Duration = time.Since(start)
		return result
	}
	if raw == nil {
		result.Err = ErrNullValue
		result.Duration = time.Since(start)
		return result
	}

	var actual, expected Value
	var err error
	if isBuiltin {
		actual, expected, err = coerceOperands(rule, raw)
	} else {
		// Custom operators interpret the expected value themselves.
		actual, err = coerce(rule.Field, raw, rule.Type)
		if err == nil {
			expected, err = coerce(rule.Field, rule.Value, "")
		}
	}
	if err != nil {
		result.Actual = raw
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	result.Actual = actual.Interface()
	result.Expected = expected.Interface()

	result.Passed, result.Err = fn(actual, expected)
	result.Duration = time.Since(start)
	return result
}

// evaluateGroupRules evaluates a group's active members and folds them
// through the combinator. The position index keeps boolean expression
// references (1-based over the configured member list) stable even when
// inactive members are skipped.
func (e *Engine) evaluateGroupRules(group RuleGroup, data map[string]any) GroupResult {
	index := make([]int, len(group.Rules))
	for i := range index {
		index[i] = -1
	}

	var results []RuleResult
	for _, pos := range sortedActivePositions(group.Rules) {
		rr := e.evaluateRule(group.Rules[pos], data)
		index[pos] = len(results)
		results = append(results, rr)
	}

	return evaluateGroup(group, results, index)
}

// lookupField resolves a field name against the snapshot. A literal key
// wins; otherwise dots descend nested maps, so "user.age" reads
// data["user"]["age"] when no top-level "user.age" key exists.
func lookupField(data map[string]any, field string) (any, bool) {
	if v, ok := data[field]; ok {
		return v, true
	}

	rest := field
	current := data
	for {
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			v, ok := current[rest]
			return v, ok
		}
		next, ok := current[rest[:dot]].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
		rest = rest[dot+1:]
	}
}

// sortedActive returns the active rules in ascending order, definition
// order breaking ties.
func sortedActive(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// sortedActivePositions is sortedActive over member positions, preserving
// the mapping back to the configured list.
func sortedActivePositions(rules []Rule) []int {
	out := make([]int, 0, len(rules))
	for i, r := range rules {
		if r.Active {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rules[out[i]].Order < rules[out[j]].Order })
	return out
}

func ruleStep(seq int, rr RuleResult) TraceStep {
	step := TraceStep{
		Seq:      seq,
		Kind:     StepRule,
		RuleID:   rr.RuleID,
		Field:    rr.Field,
		Op:       rr.Op,
		Expected: rr.Expected,
		Actual:   rr.Actual,
		Passed:   rr.Passed,
		Duration: rr.Duration,
	}
	if rr.Err != nil {
		step.Error = rr.Err.Error()
	}
	return step
}

func groupStep(seq int, gr GroupResult, d time.Duration) TraceStep {
	step := TraceStep{
		Seq:      seq,
		Kind:     StepGroup,
		GroupID:  gr.GroupID,
		Passed:   gr.Passed,
		Duration: d,
	}
	if gr.Err != nil {
		step.Error = gr.Err.Error()
	}
	return step
}

// IsConfigurationError reports whether err is a fatal definition error, as
// opposed to a rule-local error recovered in a trace.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
