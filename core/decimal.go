package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Dec is a fixed-point decimal bound to an explicit scale (fractional digit
// count). Arithmetic never loses precision silently: addition and
// subtraction require equal scales, multiplication and division take an
// explicit target scale and round half-up (ties away from zero).
type Dec struct {
	value decimal.Decimal
	scale int32
}

func NewDec(value decimal.Decimal, scale int32) Dec {
	return Dec{value: value.Round(scale), scale: scale}
}

// NewDecFromInt interprets units as base units at the given scale,
// i.e. NewDecFromInt(1500, BpsScale) is 0.1500.
func NewDecFromInt(units int64, scale int32) Dec {
	return Dec{value: decimal.New(units, -scale), scale: scale}
}

func ZeroDec(scale int32) Dec {
	return Dec{value: decimal.Zero, scale: scale}
}

func OneDec(scale int32) Dec {
	return Dec{value: ONE, scale: scale}
}

func RayOne() Dec { return OneDec(RayScale) }
func WadOne() Dec { return OneDec(WadScale) }

func (d Dec) Decimal() decimal.Decimal { return d.value }
func (d Dec) Scale() int32             { return d.scale }

func (d Dec) String() string {
	return d.value.StringFixed(d.scale)
}

// RescaleHalfUp moves d to newScale. Widening is exact; narrowing rounds
// half-up, ties away from zero.
func (d Dec) RescaleHalfUp(newScale int32) Dec {
	if newScale >= d.scale {
		return Dec{value: d.value, scale: newScale}
	}
	return Dec{value: d.value.Round(newScale), scale: newScale}
}

func (d Dec) MulHalfUp(o Dec, targetScale int32) Dec {
	return Dec{value: d.value.Mul(o.value).Round(targetScale), scale: targetScale}
}

func (d Dec) DivHalfUp(o Dec, targetScale int32) (Dec, error) {
	if o.value.IsZero() {
		return ZeroDec(targetScale), ErrDivisionByZero
	}
	return Dec{value: d.value.DivRound(o.value, targetScale), scale: targetScale}, nil
}

func (d Dec) Add(o Dec) Dec {
	d.mustMatchScale(o)
	return Dec{value: d.value.Add(o.value), scale: d.scale}
}

func (d Dec) Sub(o Dec) Dec {
	d.mustMatchScale(o)
	return Dec{value: d.value.Sub(o.value), scale: d.scale}
}

func (d Dec) Neg() Dec {
	return Dec{value: d.value.Neg(), scale: d.scale}
}

func (d Dec) Min(o Dec) Dec {
	d.mustMatchScale(o)
	return Dec{value: decimal.Min(d.value, o.value), scale: d.scale}
}

func (d Dec) Max(o Dec) Dec {
	d.mustMatchScale(o)
	return Dec{value: decimal.Max(d.value, o.value), scale: d.scale}
}

func (d Dec) Cmp(o Dec) int {
	d.mustMatchScale(o)
	return d.value.Cmp(o.value)
}

func (d Dec) Equal(o Dec) bool              { return d.Cmp(o) == 0 }
func (d Dec) LessThan(o Dec) bool           { return d.Cmp(o) < 0 }
func (d Dec) LessThanOrEqual(o Dec) bool    { return d.Cmp(o) <= 0 }
func (d Dec) GreaterThan(o Dec) bool        { return d.Cmp(o) > 0 }
func (d Dec) GreaterThanOrEqual(o Dec) bool { return d.Cmp(o) >= 0 }

func (d Dec) IsZero() bool     { return d.value.IsZero() }
func (d Dec) IsPositive() bool { return d.value.IsPositive() }
func (d Dec) IsNegative() bool { return d.value.IsNegative() }

// BaseUnits returns the magnitude expressed in base units of d's scale.
// A WAD 1.5 becomes 1.5e18.
func (d Dec) BaseUnits() decimal.Decimal {
	return d.value.Shift(d.scale)
}

// Value serializes d for database storage in its fixed-point string form.
func (d Dec) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Dec) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Dec", value)
	}
	return d.fromString(s)
}

func (d *Dec) fromString(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	scale := -v.Exponent()
	if scale < 0 {
		scale = 0
	}
	*d = NewDec(v, scale)
	return nil
}

// MarshalJSON encodes d as its fixed-point string form; the scale rides
// along as the fractional digit count.
func (d Dec) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Dec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.fromString(s)
}

func (d Dec) mustMatchScale(o Dec) {
	if d.scale != o.scale {
		panic(fmt.Sprintf("decimal scale mismatch: %d vs %d", d.scale, o.scale))
	}
}
