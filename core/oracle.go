package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	// PriceAdapter is the query contract of the external oracle. The
	// median-consensus protocol behind it is not the core's concern.
	PriceAdapter interface {
		Price(ctx context.Context, assetId uuid.UUID) (*PriceFeed, error)
	}

	// PriceFeed is one observation: a spot price and the time-weighted
	// reference it is checked against, both numeraire-denominated at WAD.
	PriceFeed struct {
		AssetId   uuid.UUID `json:"assetId"`
		Price     Dec       `json:"price"`     // WAD
		Reference Dec       `json:"reference"` // WAD, time-weighted
		Decimals  int32     `json:"decimals"`  // source decimals
		Timestamp int64     `json:"timestamp"`
	}
)

// PriceSafety is the staleness/tolerance band the core enforces on every
// feed. AllowUnsafe is the sole, owner-gated bypass.
type PriceSafety struct {
	MaxAge      int64           `json:"maxAge"` // seconds
	Tolerance   decimal.Decimal `json:"tolerance"`
	AllowUnsafe bool            `json:"allowUnsafe"`
}

func DefaultPriceSafety() PriceSafety {
	return PriceSafety{
		MaxAge:    90,
		Tolerance: DEFAULT_PRICE_TOLERANCE,
	}
}

// Check fails with UnsafePrice when the feed is stale or the spot price
// strays from its time-weighted reference beyond the tolerance.
func (s PriceSafety) Check(feed *PriceFeed, now int64) error {
	if s.AllowUnsafe {
		return nil
	}
	if feed.Price.IsZero() || feed.Price.IsNegative() {
		return UnsafePrice
	}
	if s.MaxAge > 0 && now-feed.Timestamp > s.MaxAge {
		return UnsafePrice
	}
	if feed.Reference.IsPositive() {
		deviation := feed.Price.Sub(feed.Reference)
		if deviation.IsNegative() {
			deviation = deviation.Neg()
		}
		band := feed.Reference.MulHalfUp(NewDec(s.Tolerance, WadScale), WadScale)
		if deviation.GreaterThan(band) {
			return UnsafePrice
		}
	}
	return nil
}
