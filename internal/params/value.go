package params

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the semantic type of a parameter value
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged-variant parameter value. The zero Value is a false bool.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Bool creates a bool Value
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int creates an int Value
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float creates a float Value
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String creates a string Value
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the value's kind tag
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the bool payload (false for non-bool kinds)
func (v Value) AsBool() bool { return v.b }

// AsInt returns the int payload (0 for non-int kinds)
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float payload; int values are widened
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// AsString returns the string payload ("" for non-string kinds)
func (v Value) AsString() string { return v.s }

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	default:
		return "<invalid>"
	}
}

// FromInterface converts a decoded JSON value into a Value. JSON numbers
// always arrive as float64; coercion to int happens against the target
// descriptor in Store.Apply.
func FromInterface(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case bool:
		return Bool(v), true
	case float64:
		return Float(v), true
	case int:
		return Int(int64(v)), true
	case int64:
		return Int(v), true
	case string:
		return String(v), true
	default:
		return Value{}, false
	}
}

// coerce adapts v to the target kind where the conversion is lossless.
// Integral floats convert to ints, ints widen to floats.
func coerce(v Value, target Kind) (Value, bool) {
	if v.kind == target {
		return v, true
	}
	switch {
	case v.kind == KindFloat && target == KindInt:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return Int(int64(v.f)), true
		}
	case v.kind == KindInt && target == KindFloat:
		return Float(float64(v.i)), true
	}
	return Value{}, false
}
