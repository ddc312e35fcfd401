package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vegalend/core/utils"
)

type (
	MarketStore interface {
		CreateMarket(ctx context.Context, market *Market) error
		GetMarketByAssetId(ctx context.Context, assetId uuid.UUID) (*Market, error)
		ListMarkets(ctx context.Context) ([]*Market, error)
		UpsertMarket(ctx context.Context, market *Market) error
	}

	MarketParams struct {
		RateCurve     RateCurve `json:"rateCurve"`
		ReserveFactor Dec       `json:"reserveFactor"` // BPS
		AssetDecimals int32     `json:"assetDecimals"`
	}

	// Market is the per-asset pool state. Principal totals are tracked in
	// the asset's native scale; indices are RAY and start at 1.0. The
	// state is mutated only by Accrue, InjectReward and the pool flows.
	Market struct {
		Id      uuid.UUID `json:"id"`
		AssetId uuid.UUID `json:"assetId"`

		Params MarketParams `json:"params"`

		OperationalState MarketOperationalState `json:"operationalState"`

		Supplied       Dec `json:"supplied"`
		Borrowed       Dec `json:"borrowed"`
		Reserves       Dec `json:"reserves"`
		AccruedRevenue Dec `json:"accruedRevenue"`
		BadDebt        Dec `json:"badDebt"`

		// IsolatedDebt is the cumulative numeraire-denominated debt drawn
		// by accounts whose sole collateral is this (isolated) asset,
		// capped by the asset's isolation debt ceiling.
		IsolatedDebt Dec `json:"isolatedDebt"` // WAD

		BorrowIndex Dec `json:"borrowIndex"` // RAY
		SupplyIndex Dec `json:"supplyIndex"` // RAY

		LastSync  int64 `json:"lastSync"`
		CreatedAt int64 `json:"createdAt"`
	}
)

type MarketOperationalState uint8

const (
	MarketStatePaused MarketOperationalState = iota
	MarketStateOperational
	MarketStateReduceOnly
)

func (s MarketOperationalState) String() string {
	switch s {
	case MarketStatePaused:
		return "Paused"
	case MarketStateOperational:
		return "Operational"
	case MarketStateReduceOnly:
		return "Reduce Only"
	default:
		return "Unknown"
	}
}

func (p *MarketParams) Validate() error {
	if err := p.RateCurve.Validate(); err != nil {
		return err
	}
	if p.ReserveFactor.IsNegative() || !p.ReserveFactor.LessThan(OneDec(BpsScale)) {
		return InvalidConfig
	}
	if p.AssetDecimals < 0 {
		return InvalidConfig
	}
	return nil
}

func NewMarket(clk clock.Clock, assetId uuid.UUID, params MarketParams) (*Market, error) {
	return NewMarketWithCreateTime(assetId, params, clk.Now())
}

func NewMarketWithCreateTime(assetId uuid.UUID, params MarketParams, createTime time.Time) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	scale := params.AssetDecimals
	return &Market{
		Id:               uuid.Must(uuid.FromString(utils.GenUuidFromStrings("market", assetId.String()))),
		AssetId:          assetId,
		Params:           params,
		OperationalState: MarketStateOperational,
		Supplied:         ZeroDec(scale),
		Borrowed:         ZeroDec(scale),
		Reserves:         ZeroDec(scale),
		AccruedRevenue:   ZeroDec(scale),
		BadDebt:          ZeroDec(scale),
		IsolatedDebt:     ZeroDec(WadScale),
		BorrowIndex:      RayOne(),
		SupplyIndex:      RayOne(),
		LastSync:         createTime.Unix(),
		CreatedAt:        createTime.Unix(),
	}, nil
}

func (m *Market) AssetScale() int32 {
	return m.Params.AssetDecimals
}

// Utilization is borrowed/supplied at RAY, defined as zero for an empty
// market.
func (m *Market) Utilization() Dec {
	if m.Supplied.IsZero() {
		return ZeroDec(RayScale)
	}
	u, _ := m.Borrowed.DivHalfUp(m.Supplied, RayScale)
	return u
}

// AvailableLiquidity is the cash the market can pay out right now.
func (m *Market) AvailableLiquidity() Dec {
	return m.Supplied.Sub(m.Borrowed)
}

// Accrue advances both indices and capitalizes interest accumulated since
// the last sync. A zero elapsed time is a no-op; a negative one means the
// caller's clock is broken.
func (m *Market) Accrue(log Log, now int64) error {
	dt := now - m.LastSync
	if dt < 0 {
		return InvalidTimeOrdering
	}
	if dt == 0 {
		return nil
	}
	m.LastSync = now

	if m.Borrowed.IsZero() {
		return nil
	}

	scale := m.AssetScale()

	annualRate := m.Params.RateCurve.BorrowRate(m.Utilization())
	rate := PerSecondRate(annualRate)

	elapsed := NewDec(decimal.NewFromInt(dt), 0)
	interestFactor := RayOne().Add(rate.MulHalfUp(elapsed, RayScale))

	interestAccrued := m.Borrowed.MulHalfUp(interestFactor.Sub(RayOne()), scale)
	reserveCut := interestAccrued.MulHalfUp(m.Params.ReserveFactor, scale)

	m.AccruedRevenue = m.AccruedRevenue.Add(reserveCut)
	m.Borrowed = m.Borrowed.Add(interestAccrued)
	m.BorrowIndex = m.BorrowIndex.MulHalfUp(interestFactor, RayScale)

	supplierGain := interestAccrued.Sub(reserveCut)
	if m.Supplied.IsPositive() {
		gainRatio, err := supplierGain.DivHalfUp(m.Supplied, RayScale)
		if err != nil {
			return err
		}
		m.SupplyIndex = m.SupplyIndex.MulHalfUp(RayOne().Add(gainRatio), RayScale)
		m.Supplied = m.Supplied.Add(supplierGain)
	}

	log.Debug().
		Str("assetId", m.AssetId.String()).
		Int64("dt", dt).
		Str("rate", annualRate.String()).
		Str("interestAccrued", interestAccrued.String()).
		Msg("market accrued")

	return nil
}

// InjectReward distributes a protocol-funded yield top-up to suppliers,
// following the same supply-index rule as interest capitalization.
func (m *Market) InjectReward(amount Dec) error {
	if !amount.IsPositive() {
		return NonPositiveAmount
	}
	if !m.Supplied.IsPositive() {
		return InsufficientLiquidity
	}
	gainRatio, err := amount.DivHalfUp(m.Supplied, RayScale)
	if err != nil {
		return err
	}
	m.SupplyIndex = m.SupplyIndex.MulHalfUp(RayOne().Add(gainRatio), RayScale)
	m.Supplied = m.Supplied.Add(amount)
	return nil
}

// AssertOperationalMode rejects the operation when the market is paused,
// or when it is reduce-only and the operation grows exposure.
func (m *Market) AssertOperationalMode(isExposureIncreasing bool) error {
	switch m.OperationalState {
	case MarketStatePaused:
		return MarketPaused
	case MarketStateReduceOnly:
		if isExposureIncreasing {
			return MarketReduceOnly
		}
	}
	return nil
}
