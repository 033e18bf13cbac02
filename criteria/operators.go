package criteria

import (
	"fmt"
	"regexp"
	"strings"
)

// OperatorFunc evaluates one comparison between a coerced field value and a
// coerced expected value. Implementations must be pure and safe for
// concurrent use.
type OperatorFunc func(actual, expected Value) (bool, error)

// builtinOperators returns the evaluation function for every operator in
// the closed set. Engine.RegisterOperator extends the returned registry.
func builtinOperators() map[Operator]OperatorFunc {
	return map[Operator]OperatorFunc{
		OpEqual:        opEqual,
		OpNotEqual:     negate(opEqual),
		OpGreater:      ordering(func(c int) bool { return c > 0 }),
		OpGreaterEqual: ordering(func(c int) bool { return c >= 0 }),
		OpLess:         ordering(func(c int) bool { return c < 0 }),
		OpLessEqual:    ordering(func(c int) bool { return c <= 0 }),
		OpIn:           opIn,
		OpNotIn:        negate(opIn),
		OpBetween:      opBetween,
		OpNotBetween:   negate(opBetween),
		OpContains:     stringOp(strings.Contains),
		OpStartsWith:   stringOp(strings.HasPrefix),
		OpEndsWith:     stringOp(strings.HasSuffix),
		OpExists:       opExists,
		OpNotExists:    negate(opExists),
		OpRegex:        opRegex,
	}
}

func negate(fn OperatorFunc) OperatorFunc {
	return func(actual, expected Value) (bool, error) {
		passed, err := fn(actual, expected)
		if err != nil {
			return false, err
		}
		return !passed, nil
	}
}

func opEqual(actual, expected Value) (bool, error) {
	return actual.Equal(expected), nil
}

// compareValues orders two values of the same kind. Only numbers, strings
// and times are ordered.
func compareValues(actual, expected Value) (int, error) {
	if actual.Kind != expected.Kind {
		return 0, fmt.Errorf("cannot order %s against %s", actual.Kind, expected.Kind)
	}
	switch actual.Kind {
	case KindNumber:
		switch {
		case actual.Num < expected.Num:
			return -1, nil
		case actual.Num > expected.Num:
			return 1, nil
		}
		return 0, nil
	case KindString:
		return strings.Compare(actual.Str, expected.Str), nil
	case KindTime:
		switch {
		case actual.Time.Before(expected.Time):
			return -1, nil
		case actual.Time.After(expected.Time):
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("values of kind %s are not ordered", actual.Kind)
	}
}

func ordering(accept func(int) bool) OperatorFunc {
	return func(actual, expected Value) (bool, error) {
		c, err := compareValues(actual, expected)
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}
}

func opIn(actual, expected Value) (bool, error) {
	if expected.Kind != KindList {
		return false, fmt.Errorf("in operator requires an array expected value, got %s", expected.Kind)
	}
	for _, member := range expected.List {
		if actual.Equal(member) {
			return true, nil
		}
	}
	return false, nil
}

// opBetween checks lo <= v <= hi. Bounds are inclusive on both ends.
func opBetween(actual, expected Value) (bool, error) {
	if expected.Kind != KindList || len(expected.List) != 2 {
		return false, fmt.Errorf("between operator requires a two-element array expected value")
	}
	lo, err := compareValues(actual, expected.List[0])
	if err != nil {
		return false, err
	}
	hi, err := compareValues(actual, expected.List[1])
	if err != nil {
		return false, err
	}
	return lo >= 0 && hi <= 0, nil
}

func stringOp(fn func(s, substr string) bool) OperatorFunc {
	return func(actual, expected Value) (bool, error) {
		if actual.Kind != KindString || expected.Kind != KindString {
			return false, fmt.Errorf("string operator requires string operands, got %s and %s", actual.Kind, expected.Kind)
		}
		// Case-sensitive by default.
		return fn(actual.Str, expected.Str), nil
	}
}

// opExists passes when the value is present and non-null. The rule
// evaluator hands absent fields to this operator instead of failing early.
func opExists(actual, _ Value) (bool, error) {
	return actual.Kind != KindAbsent && actual.Kind != KindNull, nil
}

func opRegex(actual, expected Value) (bool, error) {
	if actual.Kind != KindString {
		return false, fmt.Errorf("regex operator requires a string field value, got %s", actual.Kind)
	}
	if expected.Kind != KindString {
		return false, fmt.Errorf("regex operator requires a string pattern, got %s", expected.Kind)
	}
	re, err := regexp.Compile(expected.Str)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", expected.Str, err)
	}
	return re.MatchString(actual.Str), nil
}

// coerceOperands normalizes a rule's raw values for a given operator
// before dispatch.
func coerceOperands(rule Rule, rawActual any) (Value, Value, error) {
	switch rule.Op {
	case OpExists, OpNotExists:
		// No expected value; the actual may legitimately be absent or null.
		actual, err := coerce(rule.Field, rawActual, "")
		if err != nil {
			return Value{}, Value{}, err
		}
		return actual, Value{}, nil

	case OpIn, OpNotIn, OpBetween, OpNotBetween:
		actual, err := coerce(rule.Field, rawActual, scalarHint(rule.Type))
		if err != nil {
			return Value{}, Value{}, err
		}
		expected, err := coerceList(rule.Field, rule.Value, scalarHint(rule.Type))
		if err != nil {
			return Value{}, Value{}, err
		}
		// Per-element alignment: numeric strings bend toward a numeric
		// field value and vice versa, depending on contents.
		for i, member := range expected.List {
			if member.Kind == KindString && actual.Kind == KindNumber {
				if n, cerr := coerceNumber(rule.Field, member.Str); cerr == nil {
					expected.List[i] = n
				}
			}
		}
		return actual, expected, nil

	case OpContains, OpStartsWith, OpEndsWith, OpRegex:
		actual, err := coerce(rule.Field, rawActual, TypeString)
		if err != nil {
			return Value{}, Value{}, err
		}
		expected, err := coerce(rule.Field, rule.Value, TypeString)
		if err != nil {
			return Value{}, Value{}, err
		}
		return actual, expected, nil

	default:
		return coercePair(rule.Field, rawActual, rule.Value, rule.Type)
	}
}

// scalarHint strips the array hint so element coercion falls back to
// inference for membership and range operators.
func scalarHint(h TypeHint) TypeHint {
	if h == TypeArray {
		return ""
	}
	return h
}
