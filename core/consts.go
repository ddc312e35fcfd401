package core

import (
	"github.com/shopspring/decimal"
)

// Canonical fixed-point scales. WAD carries numeraire-denominated values,
// RAY carries indices and rates, BPS carries percentages and fees.
const (
	WadScale int32 = 18
	RayScale int32 = 27
	BpsScale int32 = 4
)

const (
	SECONDS_PER_YEAR = 31_536_000
)

var (
	ONE = decimal.NewFromInt(1)

	// MAX_LIQUIDATION_BONUS caps the per-asset (or e-mode) bonus a
	// liquidator can earn, 15% in BPS terms.
	MAX_LIQUIDATION_BONUS = NewDecFromInt(1500, BpsScale)

	// SEIZURE_DUST_BOUND is the per-asset rounding slack tolerated when a
	// logical repayment is split across entries, in base units of the
	// seized asset.
	SEIZURE_DUST_BOUND = decimal.NewFromInt(10)

	// DEFAULT_PRICE_TOLERANCE widens the accepted band around the quoted
	// price before the unsafe-price condition trips.
	DEFAULT_PRICE_TOLERANCE = decimal.NewFromFloat(0.05)

	DEFAULT_FLASH_LOAN_FEE = NewDecFromInt(9, BpsScale)
)
