package criteria

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindNumber
	KindString
	KindBool
	KindTime
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged union produced by the coercion layer. Operator
// implementations only ever see Values; raw input types never reach
// operator logic.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	Time time.Time
	List []Value
}

func numberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func stringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func boolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func timeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func listValue(vs []Value) Value  { return Value{Kind: KindList, List: vs} }

// Interface returns the Value as a plain Go value, for traces and for
// handing to custom operators that work on native types.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports strict equality between two values of the same kind.
// Numeric equality is exact float64 equality with no epsilon tolerance;
// callers needing tolerance pre-round values before extraction.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	case KindTime:
		return v.Time.Equal(o.Time)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// dateLayouts are the accepted textual date forms, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerce normalizes a raw extracted value into a Value, guided by the
// optional type hint. With no hint the type is inferred from the runtime
// value. nil coerces to KindNull.
func coerce(field string, raw any, hint TypeHint) (Value, error) {
	if raw == nil {
		return Value{Kind: KindNull}, nil
	}

	switch hint {
	case TypeNumber:
		return coerceNumber(field, raw)
	case TypeString:
		return stringValue(fmt.Sprintf("%v", raw)), nil
	case TypeBool:
		return coerceBool(field, raw)
	case TypeDate:
		return coerceDate(field, raw)
	case TypeArray:
		return coerceList(field, raw, "")
	}

	return inferValue(field, raw)
}

// inferValue picks a Value kind from the runtime type alone.
func inferValue(field string, raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return boolValue(v), nil
	case string:
		return stringValue(v), nil
	case time.Time:
		return timeValue(v), nil
	case float64:
		return numberValue(v), nil
	case float32:
		return numberValue(float64(v)), nil
	case int:
		return numberValue(float64(v)), nil
	case int8:
		return numberValue(float64(v)), nil
	case int16:
		return numberValue(float64(v)), nil
	case int32:
		return numberValue(float64(v)), nil
	case int64:
		return numberValue(float64(v)), nil
	case uint:
		return numberValue(float64(v)), nil
	case uint8:
		return numberValue(float64(v)), nil
	case uint16:
		return numberValue(float64(v)), nil
	case uint32:
		return numberValue(float64(v)), nil
	case uint64:
		return numberValue(float64(v)), nil
	case []any:
		return coerceList(field, v, "")
	case []string:
		out := make([]Value, len(v))
		for i, s := range v {
			out[i] = stringValue(s)
		}
		return listValue(out), nil
	case []float64:
		out := make([]Value, len(v))
		for i, f := range v {
			out[i] = numberValue(f)
		}
		return listValue(out), nil
	case []int:
		out := make([]Value, len(v))
		for i, n := range v {
			out[i] = numberValue(float64(n))
		}
		return listValue(out), nil
	default:
		return Value{}, &CoercionError{Field: field, Raw: raw, Want: "comparable value"}
	}
}

// coerceNumber casts to float64, parsing numeric strings. Strings that fail
// to parse are a CoercionError, treated as rule failure rather than a fatal
// error.
func coerceNumber(field string, raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Value{}, &CoercionError{Field: field, Raw: raw, Want: "number"}
		}
		return numberValue(f), nil
	case bool:
		return Value{}, &CoercionError{Field: field, Raw: raw, Want: "number"}
	}

	val, err := inferValue(field, raw)
	if err != nil || val.Kind != KindNumber {
		return Value{}, &CoercionError{Field: field, Raw: raw, Want: "number"}
	}
	return val, nil
}

// coerceBool accepts literal booleans and the canonical truthy forms only.
// Arbitrary values carry no implicit truthiness.
func coerceBool(field string, raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return boolValue(v), nil
	case string:
		switch v {
		case "true", "1":
			return boolValue(true), nil
		case "false", "0":
			return boolValue(false), nil
		}
	case int:
		switch v {
		case 1:
			return boolValue(true), nil
		case 0:
			return boolValue(false), nil
		}
	case float64:
		switch v {
		case 1:
			return boolValue(true), nil
		case 0:
			return boolValue(false), nil
		}
	}
	return Value{}, &CoercionError{Field: field, Raw: raw, Want: "bool"}
}

// coerceDate parses both sides to a canonical instant so comparisons are
// instant-based, never string-based.
func coerceDate(field string, raw any) (Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return timeValue(v), nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return timeValue(t), nil
			}
		}
	case int64:
		return timeValue(time.Unix(v, 0).UTC()), nil
	case float64:
		return timeValue(time.Unix(int64(v), 0).UTC()), nil
	}
	return Value{}, &CoercionError{Field: field, Raw: raw, Want: "date"}
}

// coerceList normalizes an expected array, coercing each element with the
// supplied hint.
func coerceList(field string, raw any, hint TypeHint) (Value, error) {
	elems, ok := raw.([]any)
	if !ok {
		// Reuse inference for the concrete slice types it knows.
		val, err := inferValue(field, raw)
		if err != nil || val.Kind != KindList {
			return Value{}, &CoercionError{Field: field, Raw: raw, Want: "array"}
		}
		return val, nil
	}

	out := make([]Value, len(elems))
	for i, e := range elems {
		v, err := coerce(field, e, hint)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return listValue(out), nil
}

// coercePair normalizes both sides of a comparison to compatible kinds.
// The actual value's hint drives the strategy; when the sides disagree and
// one is a string, the string side is re-coerced toward the other.
func coercePair(field string, rawActual, rawExpected any, hint TypeHint) (Value, Value, error) {
	actual, err := coerce(field, rawActual, hint)
	if err != nil {
		return Value{}, Value{}, err
	}
	expected, err := coerce(field, rawExpected, hint)
	if err != nil {
		return Value{}, Value{}, err
	}
	if hint != "" || actual.Kind == expected.Kind {
		return actual, expected, nil
	}

	// No hint and the inferred kinds disagree. Numbers win over numeric
	// strings; everything else is a mismatch.
	if actual.Kind == KindNumber && expected.Kind == KindString {
		re, cerr := coerceNumber(field, expected.Str)
		if cerr != nil {
			return Value{}, Value{}, &CoercionError{Field: field, Raw: rawExpected, Want: "number"}
		}
		return actual, re, nil
	}
	if actual.Kind == KindString && expected.Kind == KindNumber {
		ra, cerr := coerceNumber(field, actual.Str)
		if cerr != nil {
			return Value{}, Value{}, &CoercionError{Field: field, Raw: rawActual, Want: "number"}
		}
		return ra, expected, nil
	}

	return Value{}, Value{}, &CoercionError{
		Field: field,
		Raw:   rawActual,
		Want:  fmt.Sprintf("value comparable with %s", expected.Kind),
	}
}
