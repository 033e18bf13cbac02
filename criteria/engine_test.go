package criteria

import (
	"strings"
	"sync"
	"testing"
)

func loanCriteria() *Criteria {
	return &Criteria{
		ID:        "loan-approval",
		Name:      "Loan Approval",
		Threshold: 65,
		Method:    MethodWeighted,
		Active:    true,
		Rules: []Rule{
			{ID: "r-income", Field: "income", Op: OpGreaterEqual, Value: 3000, Weight: 40, Order: 1, Active: true},
			{ID: "r-credit", Field: "credit_score", Op: OpGreaterEqual, Value: 650, Weight: 60, Order: 2, Active: true},
		},
	}
}

func TestEvaluateWeightedLoanScenario(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Evaluate(loanCriteria(), map[string]any{
		"income":       5000,
		"credit_score": 600,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Score != 40 {
		t.Errorf("score = %v, want 40", result.Score)
	}
	if result.Passed {
		t.Error("expected failed verdict at threshold 65")
	}
	if len(result.RuleResults) != 2 {
		t.Fatalf("rule results = %d, want 2", len(result.RuleResults))
	}
	if !result.RuleResults[0].Passed {
		t.Error("income rule should pass")
	}
	if result.RuleResults[1].Passed {
		t.Error("credit rule should fail")
	}
}

func TestEvaluatePassFail(t *testing.T) {
	engine := NewEngine()
	c := &Criteria{
		ID:        "gate",
		Threshold: 50,
		Method:    MethodPassFail,
		Active:    true,
		Rules: []Rule{
			{ID: "r1", Field: "status", Op: OpEqual, Value: "active", Weight: 1, Active: true},
			{ID: "r2", Field: "age", Op: OpBetween, Value: []any{18, 65}, Weight: 1, Active: true},
		},
	}

	result, err := engine.Evaluate(c, map[string]any{"status": "active", "age": 65})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Passed || result.Score != 100 {
		t.Errorf("passed=%v score=%v, want true/100", result.Passed, result.Score)
	}

	// Between is inclusive on both ends; 66 falls outside and the binary
	// method zeroes the score regardless of the other rule.
	result, err = engine.Evaluate(c, map[string]any{"status": "active", "age": 66})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Passed || result.Score != 0 {
		t.Errorf("passed=%v score=%v, want false/0", result.Passed, result.Score)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := NewEngine()
	c := loanCriteria()
	data := map[string]any{"income": 5000, "credit_score": 700}

	first, err := engine.Evaluate(c, data)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := engine.Evaluate(c, data)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if next.Score != first.Score || next.Passed != first.Passed {
			t.Fatalf("run %d diverged: score=%v passed=%v", i, next.Score, next.Passed)
		}
		if len(next.Trace) != len(first.Trace) {
			t.Fatalf("run %d trace length %d, want %d", i, len(next.Trace), len(first.Trace))
		}
	}
}

func TestEvaluateThresholdMonotonic(t *testing.T) {
	engine := NewEngine()
	data := map[string]any{"income": 5000, "credit_score": 600}

	// Score is 40 for this snapshot; the verdict must flip exactly once as
	// the threshold crosses it.
	lastPassed := true
	for _, threshold := range []float64{0, 20, 40, 40.1, 65, 100} {
		c := loanCriteria()
		c.Threshold = threshold
		result, err := engine.Evaluate(c, data)
		if err != nil {
			t.Fatalf("threshold %v: %v", threshold, err)
		}
		if result.Passed && !lastPassed {
			t.Fatalf("verdict went false->true as threshold rose to %v", threshold)
		}
		lastPassed = result.Passed
	}
}

func TestEvaluateRuleOrdering(t *testing.T) {
	engine := NewEngine()
	c := &Criteria{
		ID:        "ordered",
		Threshold: 50,
		Method:    MethodAverage,
		Active:    true,
		Rules: []Rule{
			{ID: "third", Field: "a", Op: OpExists, Order: 3, Active: true},
			{ID: "first", Field: "a", Op: OpExists, Order: 1, Active: true},
			{ID: "second", Field: "a", Op: OpExists, Order: 2, Active: true},
			{ID: "skipped", Field: "a", Op: OpExists, Order: 0, Active: false},
		},
	}

	result, err := engine.Evaluate(c, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(result.RuleResults) != len(want) {
		t.Fatalf("rule results = %d, want %d", len(result.RuleResults), len(want))
	}
	for i, id := range want {
		if result.RuleResults[i].RuleID != id {
			t.Errorf("result %d = %q, want %q", i, result.RuleResults[i].RuleID, id)
		}
	}
}

func TestLookupField(t *testing.T) {
	data := map[string]any{
		"income":   5000,
		"user.age": 30,
		"user": map[string]any{
			"age":  99,
			"name": "sam",
		},
	}

	testCases := []struct {
		field       string
		want        any
		wantPresent bool
	}{
		{"income", 5000, true},
		// A literal dot-path key always wins over nested traversal.
		{"user.age", 30, true},
		{"user.name", "sam", true},
		{"user.missing", nil, false},
		{"missing", nil, false},
		{"income.nested", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.field, func(t *testing.T) {
			got, present := lookupField(data, tc.field)
			if present != tc.wantPresent {
				t.Fatalf("present = %v, want %v", present, tc.wantPresent)
			}
			if present && got != tc.want {
				t.Errorf("value = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateConfigurationErrors(t *testing.T) {
	activeRule := Rule{ID: "r1", Field: "x", Op: OpExists, Active: true}

	testCases := []struct {
		name     string
		criteria *Criteria
		reason   string
	}{
		{
			"nil criteria",
			nil,
			"criteria is nil",
		},
		{
			"threshold out of range",
			&Criteria{ID: "c", Threshold: 101, Method: MethodWeighted, Rules: []Rule{activeRule}},
			"threshold",
		},
		{
			"unknown scoring method",
			&Criteria{ID: "c", Threshold: 50, Method: "median", Rules: []Rule{activeRule}},
			"scoring method",
		},
		{
			"no active rules",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted},
			"no active rules",
		},
		{
			"unknown operator",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Rules: []Rule{
				{ID: "r1", Field: "x", Op: "almost_eq", Value: 1, Active: true},
			}},
			"operator",
		},
		{
			"between needs two bounds",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Rules: []Rule{
				{ID: "r1", Field: "x", Op: OpBetween, Value: []any{1}, Active: true},
			}},
			"between",
		},
		{
			"min_n out of range",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Groups: []RuleGroup{
				{ID: "g1", Combinator: CombinatorMinN, MinRequired: 5, Rules: []Rule{activeRule}},
			}},
			"min_required",
		},
		{
			"malformed expression",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Groups: []RuleGroup{
				{ID: "g1", Combinator: CombinatorExpression, Expression: "r1 AND (", Rules: []Rule{activeRule}},
			}},
			"expression",
		},
		{
			"empty group",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Groups: []RuleGroup{
				{ID: "g1", Combinator: CombinatorAll},
			}},
			"no member rules",
		},
		{
			"group with only inactive members",
			&Criteria{ID: "c", Threshold: 50, Method: MethodWeighted, Groups: []RuleGroup{
				{ID: "g1", Combinator: CombinatorAll, Rules: []Rule{
					{ID: "r1", Field: "x", Op: OpExists, Weight: 1, Active: false},
				}},
			}},
			"no active member rules",
		},
	}

	engine := NewEngine()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Evaluate(tc.criteria, map[string]any{"x": 1})
			if err == nil {
				t.Fatal("expected configuration error")
			}
			if !IsConfigurationError(err) {
				t.Fatalf("error %v is not a ConfigurationError", err)
			}
			if result != nil {
				t.Error("configuration error should produce no result")
			}
			if !strings.Contains(err.Error(), tc.reason) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.reason)
			}
		})
	}
}

func TestEvaluateRecoversRuleErrors(t *testing.T) {
	engine := NewEngine()
	c := &Criteria{
		ID:        "mixed",
		Threshold: 30,
		Method:    MethodWeighted,
		Active:    true,
		Rules: []Rule{
			{ID: "missing", Field: "nope", Op: OpEqual, Value: 1, Weight: 1, Order: 1, Active: true},
			{ID: "uncoercible", Field: "word", Op: OpGreater, Value: 10, Weight: 1, Order: 2, Active: true},
			{ID: "ok", Field: "n", Op: OpEqual, Value: 7, Weight: 1, Order: 3, Active: true},
		},
	}

	result, err := engine.Evaluate(c, map[string]any{"word": "banana", "n": 7})
	if err != nil {
		t.Fatalf("rule-local errors must not abort evaluation: %v", err)
	}

	if result.RuleResults[0].Err != ErrFieldNotFound {
		t.Errorf("missing field err = %v, want ErrFieldNotFound", result.RuleResults[0].Err)
	}
	if result.RuleResults[1].Err == nil {
		t.Error("expected a coercion error for banana > 10")
	}
	if result.RuleResults[1].Passed {
		t.Error("errored rule must count as failed")
	}
	if !result.RuleResults[2].Passed {
		t.Error("healthy rule should still pass")
	}
	if want := 100.0 * 1 / 3; result.Score != want {
		t.Errorf("score = %v, want %v", result.Score, want)
	}
}

func TestEvaluateTraceShape(t *testing.T) {
	engine := NewEngine()
	c := loanCriteria()
	c.Groups = []RuleGroup{{
		ID:         "g1",
		Combinator: CombinatorAny,
		Weight:     1,
		Rules: []Rule{
			{ID: "g1r1", Field: "income", Op: OpGreater, Value: 0, Weight: 1, Active: true},
		},
	}}

	result, err := engine.Evaluate(c, map[string]any{"income": 5000, "credit_score": 700})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// Two ungrouped rule steps, one group member step, one group step, one
	// score step, sequenced 1..n.
	wantKinds := []StepKind{StepRule, StepRule, StepRule, StepGroup, StepScore}
	if len(result.Trace) != len(wantKinds) {
		t.Fatalf("trace length = %d, want %d", len(result.Trace), len(wantKinds))
	}
	for i, step := range result.Trace {
		if step.Seq != i+1 {
			t.Errorf("step %d seq = %d, want %d", i, step.Seq, i+1)
		}
		if step.Kind != wantKinds[i] {
			t.Errorf("step %d kind = %q, want %q", i, step.Kind, wantKinds[i])
		}
	}

	last := result.Trace[len(result.Trace)-1]
	if last.Actual != result.Score {
		t.Errorf("score step actual = %v, want %v", last.Actual, result.Score)
	}
	if last.Expected != c.Threshold {
		t.Errorf("score step expected = %v, want %v", last.Expected, c.Threshold)
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	engine := NewEngine()
	c := loanCriteria()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data := map[string]any{"income": 5000, "credit_score": 600 + n*10}
			result, err := engine.Evaluate(c, data)
			if err != nil {
				t.Errorf("Evaluate failed: %v", err)
				return
			}
			wantPassed := 600+n*10 >= 650
			if result.Passed != wantPassed {
				t.Errorf("credit %d: passed = %v, want %v", 600+n*10, result.Passed, wantPassed)
			}
		}(i)
	}
	wg.Wait()
}

func TestRegisterScorerOverride(t *testing.T) {
	engine := NewEngine()
	engine.RegisterScorer("fixed", scorerFunc(func([]RuleResult, []GroupResult) float64 { return 42 }))

	c := loanCriteria()
	c.Method = "fixed"
	result, err := engine.Evaluate(c, map[string]any{"income": 0, "credit_score": 0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Score != 42 {
		t.Errorf("score = %v, want 42", result.Score)
	}
	if result.Passed {
		t.Error("42 < 65 should fail")
	}
}

type scorerFunc func([]RuleResult, []GroupResult) float64

func (f scorerFunc) Score(rules []RuleResult, groups []GroupResult) float64 {
	return f(rules, groups)
}
