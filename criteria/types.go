package criteria

import "time"

// Operator identifies a comparison applied between a field value and the
// rule's expected value. The set is closed; custom operators are installed
// through Engine.RegisterOperator.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "neq"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpBetween      Operator = "between"
	OpNotBetween   Operator = "not_between"
	OpContains     Operator = "contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
	OpRegex        Operator = "regex"
)

// ScoringMethod selects the aggregation algorithm that converts rule and
// group outcomes into a score.
type ScoringMethod string

const (
	// MethodWeighted normalizes the passed weight over the total active weight to 0-100.
	MethodWeighted ScoringMethod = "weighted"
	// MethodPassFail yields 100 when everything passes, 0 otherwise.
	MethodPassFail ScoringMethod = "pass_fail"
	// MethodSum is the raw sum of passed weights, deliberately not normalized to 100.
	MethodSum ScoringMethod = "sum"
	// MethodAverage is the passed fraction of active units scaled to 0-100, ignoring weights.
	MethodAverage ScoringMethod = "average"
	// MethodPercentage is the same algorithm as MethodAverage, kept as a
	// distinct name for API compatibility.
	MethodPercentage ScoringMethod = "percentage"
)

// Combinator determines how the member rules of a group fold into the
// group's pass/fail outcome.
type Combinator string

const (
	CombinatorAll        Combinator = "all"
	CombinatorAny        Combinator = "any"
	CombinatorMinN       Combinator = "min_n"
	CombinatorMajority   Combinator = "majority"
	CombinatorExpression Combinator = "boolean_expression"
)

// TypeHint optionally pins the coercion strategy for a rule's field.
// When empty, the coercion layer infers the type from the runtime values.
type TypeHint string

const (
	TypeNumber TypeHint = "number"
	TypeString TypeHint = "string"
	TypeBool   TypeHint = "bool"
	TypeDate   TypeHint = "date"
	TypeArray  TypeHint = "array"
)

// DefaultThreshold is the pass threshold applied when a criteria definition
// omits one. Defaulting happens at the definition-loading boundary (stores,
// API), never inside the engine.
const DefaultThreshold = 65.0

// Rule is a single field/operator/value condition.
type Rule struct {
	ID    string   `json:"id" yaml:"id"`
	Alias string   `json:"alias,omitempty" yaml:"alias,omitempty"`
	Field string   `json:"field" yaml:"field"`
	Op    Operator `json:"operator" yaml:"operator"`
	Value any      `json:"value,omitempty" yaml:"value,omitempty"`

	// Weight is used by the weighted and sum scoring methods. A zero weight
	// is legal and excludes the rule from weighted scoring; loaders default
	// omitted weights to 1.
	Weight int `json:"weight" yaml:"weight"`

	// Order determines evaluation sequence within a criteria. Ties keep
	// definition order.
	Order int `json:"order" yaml:"order"`

	// Active rules participate in evaluation; inactive rules are skipped
	// entirely and excluded from scoring denominators.
	Active bool `json:"active" yaml:"active"`

	// Type pins the coercion strategy. Optional.
	Type TypeHint `json:"type,omitempty" yaml:"type,omitempty"`
}

// RuleGroup combines an ordered set of member rules under a combinator.
type RuleGroup struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Combinator Combinator `json:"combinator" yaml:"combinator"`
	Rules      []Rule     `json:"rules" yaml:"rules"`

	// MinRequired is the pass count needed by the min_n combinator.
	MinRequired int `json:"min_required,omitempty" yaml:"min_required,omitempty"`

	// Expression is the boolean expression over member rules used by the
	// boolean_expression combinator. References are rule aliases or 1-based
	// positions within Rules.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Weight is the group's contribution to scoring, as a single unit.
	Weight float64 `json:"weight" yaml:"weight"`
}

// Criteria is a named, weighted set of rules and rule groups evaluated
// against a data snapshot. It is read-only during evaluation, so a single
// Criteria value is safe to evaluate concurrently.
type Criteria struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Method    ScoringMethod `json:"method" yaml:"method"`
	Rules     []Rule        `json:"rules,omitempty" yaml:"rules,omitempty"`
	Groups    []RuleGroup   `json:"groups,omitempty" yaml:"groups,omitempty"`
	Active    bool          `json:"active" yaml:"active"`
	CreatedAt time.Time     `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time     `json:"updated_at,omitempty" yaml:"-"`
}

// RuleResult is the outcome of evaluating a single rule.
type RuleResult struct {
	RuleID   string        `json:"rule_id"`
	Field    string        `json:"field"`
	Op       Operator      `json:"operator"`
	Expected any           `json:"expected,omitempty"`
	Actual   any           `json:"actual,omitempty"`
	Passed   bool          `json:"passed"`
	Weight   int           `json:"weight"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// GroupResult is the outcome of folding a group's member rule results
// through its combinator.
type GroupResult struct {
	GroupID    string       `json:"group_id"`
	Combinator Combinator   `json:"combinator"`
	Results    []RuleResult `json:"results"`
	Passed     bool         `json:"passed"`

	// Score is the passed fraction of members regardless of combinator,
	// letting weighted scoring grant partial credit even when the binary
	// combinator fails.
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Err    error   `json:"-"`
}

// StepKind tags a trace step with the evaluation phase that produced it.
type StepKind string

const (
	StepRule  StepKind = "rule"
	StepGroup StepKind = "group"
	StepScore StepKind = "score"
)

// TraceStep is one entry in the ordered execution trace. Steps are plain
// data so external loggers can serialize them without re-deriving
// evaluation semantics.
type TraceStep struct {
	Seq      int           `json:"seq"`
	Kind     StepKind      `json:"kind"`
	RuleID   string        `json:"rule_id,omitempty"`
	GroupID  string        `json:"group_id,omitempty"`
	Field    string        `json:"field,omitempty"`
	Op       Operator      `json:"operator,omitempty"`
	Expected any           `json:"expected,omitempty"`
	Actual   any           `json:"actual,omitempty"`
	Passed   bool          `json:"passed"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// EvaluationResult is the complete outcome of one evaluation call. It is
// owned by the caller and never shared or mutated after return.
type EvaluationResult struct {
	CriteriaID   string        `json:"criteria_id"`
	Threshold    float64       `json:"threshold"`
	Method       ScoringMethod `json:"method"`
	Passed       bool          `json:"passed"`
	Score        float64       `json:"score"`
	RuleResults  []RuleResult  `json:"rule_results"`
	GroupResults []GroupResult `json:"group_results"`
	Trace        []TraceStep   `json:"trace"`
	Duration     time.Duration `json:"duration_ns"`
}
