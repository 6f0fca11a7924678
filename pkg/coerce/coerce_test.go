package coerce

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		want  string
		valid bool
	}{
		{"plain string", "Apple Inc.", "Apple Inc.", true},
		{"empty string stays valid", "", "", true},
		{"nil", nil, "", false},
		{"integral float", float64(3571), "3571", true},
		{"fractional float", 1.5, "1.5", true},
		{"json number", json.Number("320193"), "320193", true},
		{"bool", true, "true", true},
		{"object", map[string]any{"a": 1}, "", false},
		{"array", []any{"x"}, "", false},
		{"nan", math.NaN(), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ToString(tt.raw)
			assert.Equal(t, String, v.Type())
			s, ok := v.Str()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.valid, v.Valid())
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestToDate(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		want  string
		valid bool
	}{
		{"iso date", "2023-11-03", "2023-11-03", true},
		{"padded", " 2023-11-03 ", "2023-11-03", true},
		{"timestamp rejected", "2023-11-03T00:00:00Z", "", false},
		{"impossible day", "2023-02-30", "", false},
		{"slashes", "2023/11/03", "", false},
		{"number", float64(20231103), "", false},
		{"nil", nil, "", false},
		{"time value", time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), "2024-01-31", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ToDate(tt.raw)
			assert.Equal(t, DateString, v.Type())
			s, ok := v.Str()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, s)
		})
	}

	d, ok := ToDate("2023-09-30").Date()
	require.True(t, ok)
	assert.Equal(t, time.September, d.Month())
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		want  int64
		valid bool
	}{
		{"integral float", float64(2023), 2023, true},
		{"fractional float", 2023.5, 0, false},
		{"string", "2022", 2022, true},
		{"float string", "2022.0", 2022, true},
		{"garbage", "FY22", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"int", 7, 7, true},
		{"overflow", 1e19, 0, false},
		{"infinity", math.Inf(1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ToInt64(tt.raw)
			assert.Equal(t, NullableInt64, v.Type())
			i, ok := v.Int64()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, i)
		})
	}
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		want  float64
		valid bool
	}{
		{"float", 383285000000.0, 383285000000.0, true},
		{"int", 12, 12, true},
		{"string", "1.25", 1.25, true},
		{"garbage", "n/a", 0, false},
		{"nil", nil, 0, false},
		{"nan is null", math.NaN(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ToFloat64(tt.raw)
			assert.Equal(t, NullableFloat64, v.Type())
			f, ok := v.Float64()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestIntegerNullIsNotFloatNaN(t *testing.T) {
	v := Coerce(nil, NullableInt64)

	assert.Equal(t, NullableInt64, v.Type())
	assert.False(t, v.Valid())
	assert.Nil(t, v.Interface())

	_, isFloat := v.Float64()
	assert.False(t, isFloat, "an integer null must not read back as a float")
}

func TestCoerceKeepsDeclaredType(t *testing.T) {
	raws := []any{nil, "x", 1.0, "2020-01-01", []any{}, true}
	for _, typ := range []Type{String, DateString, NullableInt64, NullableFloat64} {
		for _, raw := range raws {
			assert.Equal(t, typ, Coerce(raw, typ).Type(), "type %s raw %#v", typ, raw)
		}
	}
}
