package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		scale    int32
		expected string
	}{
		{name: "tie rounds away from zero", a: "1.5", b: "1.3", scale: 1, expected: "2.0"},
		{name: "negative tie rounds away from zero", a: "-1.5", b: "1.3", scale: 1, expected: "-2.0"},
		{name: "exact product", a: "2.5", b: "4", scale: 2, expected: "10.00"},
		{name: "below half rounds down", a: "0.12344999", b: "1", scale: 4, expected: "0.1234"},
		{name: "above half rounds up", a: "0.12345", b: "1", scale: 4, expected: "0.1235"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewDec(decimal.RequireFromString(tt.a), 8)
			b := NewDec(decimal.RequireFromString(tt.b), 8)
			got := a.MulHalfUp(b, tt.scale)
			assert.Equal(t, tt.expected, got.String())
			assert.Equal(t, tt.scale, got.Scale())
		})
	}
}

func TestDivHalfUp(t *testing.T) {
	a := NewDec(decimal.NewFromInt(1), WadScale)
	b := NewDec(decimal.NewFromInt(3), WadScale)

	got, err := a.DivHalfUp(b, 4)
	require.NoError(t, err)
	assert.Equal(t, "0.3333", got.String())

	_, err = a.DivHalfUp(ZeroDec(WadScale), 4)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRescaleHalfUp(t *testing.T) {
	d := NewDec(decimal.RequireFromString("1.234567890123456789"), WadScale)

	narrowed := d.RescaleHalfUp(4)
	assert.Equal(t, "1.2346", narrowed.String())

	widened := narrowed.RescaleHalfUp(8)
	assert.Equal(t, "1.23460000", widened.String())
}

func TestScaleMismatchPanics(t *testing.T) {
	a := WadOne()
	b := RayOne()

	assert.Panics(t, func() { a.Add(b) })
	assert.Panics(t, func() { a.Sub(b) })
	assert.Panics(t, func() { a.Cmp(b) })
	assert.Panics(t, func() { a.Min(b) })
}

func TestNewDecFromInt(t *testing.T) {
	assert.Equal(t, "0.1500", NewDecFromInt(1500, BpsScale).String())
	assert.Equal(t, "15", NewDecFromInt(15, 0).String())
}

func TestBaseUnits(t *testing.T) {
	d := amt(1.5, 8)
	assert.True(t, d.BaseUnits().Equal(decimal.NewFromInt(150_000_000)))
}

func TestDecSQLRoundTrip(t *testing.T) {
	original := NewDec(decimal.RequireFromString("123.45678901"), 8)

	v, err := original.Value()
	require.NoError(t, err)

	var decoded Dec
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, original.Scale(), decoded.Scale())
	assert.True(t, original.Equal(decoded))
}

func TestDecJSONRoundTrip(t *testing.T) {
	original := NewDec(decimal.RequireFromString("1.050000000000000000"), WadScale)

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"1.050000000000000000"`, string(raw))

	var decoded Dec
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, WadScale, decoded.Scale())
	assert.True(t, original.Equal(decoded))
}

func TestRateCurveJSONRoundTrip(t *testing.T) {
	curve := testCurve()

	raw, err := json.Marshal(curve)
	require.NoError(t, err)

	var decoded RateCurve
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Validate())
	assert.True(t, curve.MaxRate.Equal(decoded.MaxRate))
	assert.True(t, curve.BorrowRate(rayF(0.5)).Equal(decoded.BorrowRate(rayF(0.5))))
}
