package criteria

import (
	"errors"
	"fmt"
)

// ErrFieldNotFound marks a rule whose field is absent from the input map.
// It is recorded on the RuleResult and never aborts the evaluation.
var ErrFieldNotFound = errors.New("field not present in input")

// ErrNullValue marks a rule whose field is present but explicitly null.
// Distinct from an absent field: exists treats both as failures, but the
// trace reports them differently.
var ErrNullValue = errors.New("field value is null")

// ConfigurationError reports an invalid criteria definition. It is fatal:
// Evaluate returns it before touching any data, and no partial result is
// produced.
type ConfigurationError struct {
	CriteriaID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.CriteriaID == "" {
		return fmt.Sprintf("invalid criteria: %s", e.Reason)
	}
	return fmt.Sprintf("invalid criteria %s: %s", e.CriteriaID, e.Reason)
}

func configErrf(criteriaID, format string, args ...any) error {
	return &ConfigurationError{CriteriaID: criteriaID, Reason: fmt.Sprintf(format, args...)}
}

// CoercionError reports a type mismatch between a field's runtime value and
// the rule's expected value. Recovered per rule: the rule fails and the raw
// values are kept for diagnosis in the trace.
type CoercionError struct {
	Field string
	Raw   any
	Want  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce field %s value %v to %s", e.Field, e.Raw, e.Want)
}

// ExpressionError reports a boolean-expression group that could not be
// evaluated at runtime, such as a reference to a rule that produced no
// result. The group fails with the error attached; sibling rules and groups
// still evaluate.
type ExpressionError struct {
	GroupID    string
	Expression string
	Reason     string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("group %s expression %q: %s", e.GroupID, e.Expression, e.Reason)
}
