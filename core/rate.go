package core

import (
	"github.com/shopspring/decimal"
)

// RateCurve is a piecewise-linear annual borrow rate over utilization.
// Slopes holds one entry per segment (two or three), Breakpoints the
// utilization bounds between segments (strictly increasing, below 1.0).
// All values are RAY-scaled annual rates.
type RateCurve struct {
	BaseRate    Dec   `json:"baseRate"`
	Slopes      []Dec `json:"slopes"`
	Breakpoints []Dec `json:"breakpoints"`
	MaxRate     Dec   `json:"maxRate"`
}

func (rc *RateCurve) Validate() error {
	if len(rc.Slopes) < 2 || len(rc.Slopes) > 3 {
		return InvalidConfig
	}
	if len(rc.Breakpoints) != len(rc.Slopes)-1 {
		return InvalidConfig
	}
	if rc.BaseRate.IsNegative() {
		return InvalidConfig
	}
	if !rc.MaxRate.GreaterThan(rc.BaseRate) {
		return InvalidConfig
	}
	prev := ZeroDec(RayScale)
	for _, bp := range rc.Breakpoints {
		if !bp.GreaterThan(prev) || !bp.LessThan(RayOne()) {
			return InvalidConfig
		}
		prev = bp
	}
	for _, slope := range rc.Slopes {
		if slope.IsNegative() {
			return InvalidConfig
		}
	}
	return nil
}

// BorrowRate returns the annual borrow rate at the given utilization,
// RAY-scaled, clamped to MaxRate. Above the highest breakpoint the rate
// keeps growing on the final slope.
func (rc *RateCurve) BorrowRate(utilization Dec) Dec {
	rate := rc.BaseRate
	lower := ZeroDec(RayScale)
	for i, slope := range rc.Slopes {
		upper := utilization
		if i < len(rc.Breakpoints) && rc.Breakpoints[i].LessThan(utilization) {
			upper = rc.Breakpoints[i]
		}
		if upper.GreaterThan(lower) {
			rate = rate.Add(slope.MulHalfUp(upper.Sub(lower), RayScale))
		}
		if i < len(rc.Breakpoints) {
			lower = rc.Breakpoints[i]
		}
		if utilization.LessThanOrEqual(lower) {
			break
		}
	}
	return rate.Min(rc.MaxRate)
}

// PerSecondRate converts an annual RAY rate to a per-second RAY rate.
func PerSecondRate(annual Dec) Dec {
	perSecond, _ := annual.DivHalfUp(NewDec(decimal.NewFromInt(SECONDS_PER_YEAR), 0), RayScale)
	return perSecond
}

// DepositRate is the utilization-weighted borrow rate net of the protocol
// reserve cut: u * borrowRate * (1 - reserveFactor).
func DepositRate(utilization, borrowRate, reserveFactor Dec) Dec {
	net := OneDec(BpsScale).Sub(reserveFactor)
	return utilization.MulHalfUp(borrowRate, RayScale).MulHalfUp(net, RayScale)
}
