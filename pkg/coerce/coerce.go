// Package coerce maps loosely typed JSON values onto the four column types the
// output schemas declare. Coercion never fails: a value that cannot be read as
// its declared type becomes that type's null, so every row of a batch carries
// the same physical type per column.
//
// Integer nulls are tagged, never NaN. A float column may hold a null, an int
// column may hold a null, and the two are not interchangeable.
package coerce

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only accepted date_string format
const DateLayout = "2006-01-02"

// Type is a declared column type
type Type int

const (
	// String is a nullable UTF-8 column
	String Type = iota
	// DateString is a YYYY-MM-DD calendar date; anything else is null
	DateString
	// NullableInt64 is a signed 64-bit integer with a tagged null
	NullableInt64
	// NullableFloat64 is a double with a tagged null
	NullableFloat64
)

// String implements fmt.Stringer
func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case DateString:
		return "date_string"
	case NullableInt64:
		return "nullable_int64"
	case NullableFloat64:
		return "nullable_float64"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Value is a coerced cell. The zero Value is a null string.
type Value struct {
	typ   Type
	valid bool
	s     string
	i     int64
	f     float64
}

// Null returns the null sentinel of t
func Null(t Type) Value { return Value{typ: t} }

// StringValue returns a valid string cell
func StringValue(s string) Value { return Value{typ: String, valid: true, s: s} }

// Int64Value returns a valid integer cell
func Int64Value(i int64) Value { return Value{typ: NullableInt64, valid: true, i: i} }

// Float64Value returns a valid double cell; NaN and infinities are null
func Float64Value(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null(NullableFloat64)
	}
	return Value{typ: NullableFloat64, valid: true, f: f}
}

// Type returns the declared type the value was coerced to
func (v Value) Type() Type { return v.typ }

// Valid reports whether the value is not null
func (v Value) Valid() bool { return v.valid }

// Str returns the string payload of String and DateString values
func (v Value) Str() (string, bool) {
	if !v.valid || (v.typ != String && v.typ != DateString) {
		return "", false
	}
	return v.s, true
}

// Int64 returns the payload of a NullableInt64 value
func (v Value) Int64() (int64, bool) {
	if !v.valid || v.typ != NullableInt64 {
		return 0, false
	}
	return v.i, true
}

// Float64 returns the payload of a NullableFloat64 value
func (v Value) Float64() (float64, bool) {
	if !v.valid || v.typ != NullableFloat64 {
		return 0, false
	}
	return v.f, true
}

// Date returns the calendar date of a DateString value
func (v Value) Date() (time.Time, bool) {
	if !v.valid || v.typ != DateString {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v.s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Interface returns nil for nulls and the native Go payload otherwise
func (v Value) Interface() any {
	if !v.valid {
		return nil
	}
	switch v.typ {
	case NullableInt64:
		return v.i
	case NullableFloat64:
		return v.f
	default:
		return v.s
	}
}

// Coerce converts raw to declared type t
func Coerce(raw any, t Type) Value {
	switch t {
	case String:
		return ToString(raw)
	case DateString:
		return ToDate(raw)
	case NullableInt64:
		return ToInt64(raw)
	case NullableFloat64:
		return ToFloat64(raw)
	default:
		return Null(t)
	}
}

// ToString accepts strings, numbers and booleans; objects and arrays are null
func ToString(raw any) Value {
	switch v := raw.(type) {
	case string:
		return StringValue(v)
	case *string:
		if v == nil {
			return Null(String)
		}
		return StringValue(*v)
	case json.Number:
		return StringValue(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Null(String)
		}
		return StringValue(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return StringValue(strconv.Itoa(v))
	case int64:
		return StringValue(strconv.FormatInt(v, 10))
	case bool:
		return StringValue(strconv.FormatBool(v))
	default:
		return Null(String)
	}
}

// ToDate accepts YYYY-MM-DD strings and time.Time values
func ToDate(raw any) Value {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if len(s) != len(DateLayout) {
			return Null(DateString)
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return Null(DateString)
		}
		return Value{typ: DateString, valid: true, s: s}
	case time.Time:
		if v.IsZero() {
			return Null(DateString)
		}
		return Value{typ: DateString, valid: true, s: v.Format(DateLayout)}
	default:
		return Null(DateString)
	}
}

// ToInt64 accepts integral numbers and numeric strings. Fractional values are
// null rather than truncated.
func ToInt64(raw any) Value {
	switch v := raw.(type) {
	case int:
		return Int64Value(int64(v))
	case int32:
		return Int64Value(int64(v))
	case int64:
		return Int64Value(v)
	case float64:
		return int64FromFloat(v)
	case json.Number:
		return ToInt64(v.String())
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int64Value(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64FromFloat(f)
		}
		return Null(NullableInt64)
	default:
		return Null(NullableInt64)
	}
}

// ToFloat64 accepts numbers and numeric strings
func ToFloat64(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return Float64Value(v)
	case float32:
		return Float64Value(float64(v))
	case int:
		return Float64Value(float64(v))
	case int64:
		return Float64Value(float64(v))
	case json.Number:
		return ToFloat64(v.String())
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Null(NullableFloat64)
		}
		return Float64Value(f)
	default:
		return Null(NullableFloat64)
	}
}

// 2^63 is exactly representable; anything at or beyond it overflows int64
const maxInt64Float = 9223372036854775808.0

func int64FromFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Null(NullableInt64)
	}
	if f >= maxInt64Float || f < -maxInt64Float {
		return Null(NullableInt64)
	}
	return Int64Value(int64(f))
}
