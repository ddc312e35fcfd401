package core

import (
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarket(t *testing.T, decimals int32) (*Market, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Add(1_700_000_000 * time.Second)

	market, err := NewMarket(clk, uuid.Must(uuid.NewV4()), MarketParams{
		RateCurve:     testCurve(),
		ReserveFactor: bps(1000),
		AssetDecimals: decimals,
	})
	require.NoError(t, err)
	return market, clk
}

func TestNewMarketDeterministicId(t *testing.T) {
	clk := clock.NewMock()
	assetId := uuid.Must(uuid.NewV4())
	params := MarketParams{RateCurve: testCurve(), ReserveFactor: bps(1000), AssetDecimals: 8}

	m1, err := NewMarket(clk, assetId, params)
	require.NoError(t, err)
	m2, err := NewMarket(clk, assetId, params)
	require.NoError(t, err)
	assert.Equal(t, m1.Id, m2.Id)
}

func TestMarketParamsValidate(t *testing.T) {
	params := MarketParams{RateCurve: testCurve(), ReserveFactor: OneDec(BpsScale), AssetDecimals: 8}
	assert.ErrorIs(t, params.Validate(), InvalidConfig)

	params.ReserveFactor = bps(-100)
	assert.ErrorIs(t, params.Validate(), InvalidConfig)

	params.ReserveFactor = bps(1000)
	params.AssetDecimals = -1
	assert.ErrorIs(t, params.Validate(), InvalidConfig)
}

func TestUtilization(t *testing.T) {
	market, _ := newTestMarket(t, 8)
	assert.True(t, market.Utilization().IsZero())

	market.Supplied = amt(1000, 8)
	market.Borrowed = amt(500, 8)
	assert.True(t, market.Utilization().Equal(rayF(0.5)))
	assert.True(t, market.AvailableLiquidity().Equal(amt(500, 8)))
}

func TestAccrueTimeOrdering(t *testing.T) {
	market, clk := newTestMarket(t, 8)

	// Zero elapsed time is a no-op.
	require.NoError(t, market.Accrue(testLog(), clk.Now().Unix()))
	assert.True(t, market.BorrowIndex.Equal(RayOne()))

	// A clock behind the last sync is an error.
	assert.ErrorIs(t, market.Accrue(testLog(), clk.Now().Unix()-10), InvalidTimeOrdering)
}

func TestAccrueWithoutBorrowsMovesOnlyTheClock(t *testing.T) {
	market, clk := newTestMarket(t, 8)
	market.Supplied = amt(1000, 8)

	clk.Add(time.Hour)
	require.NoError(t, market.Accrue(testLog(), clk.Now().Unix()))

	assert.Equal(t, clk.Now().Unix(), market.LastSync)
	assert.True(t, market.BorrowIndex.Equal(RayOne()))
	assert.True(t, market.SupplyIndex.Equal(RayOne()))
	assert.True(t, market.Supplied.Equal(amt(1000, 8)))
}

func TestAccrueConservation(t *testing.T) {
	market, clk := newTestMarket(t, 8)
	market.Supplied = amt(1000, 8)
	market.Borrowed = amt(500, 8)

	suppliedBefore := market.Supplied
	borrowedBefore := market.Borrowed
	revenueBefore := market.AccruedRevenue

	clk.Add(365 * 24 * time.Hour)
	require.NoError(t, market.Accrue(testLog(), clk.Now().Unix()))

	interest := market.Borrowed.Sub(borrowedBefore)
	assert.True(t, interest.IsPositive())

	// Every unit of accrued interest lands either with suppliers or in
	// protocol revenue.
	supplierGain := market.Supplied.Sub(suppliedBefore)
	reserveCut := market.AccruedRevenue.Sub(revenueBefore)
	assert.True(t, interest.Equal(supplierGain.Add(reserveCut)))
	assert.True(t, reserveCut.IsPositive())

	assert.True(t, market.BorrowIndex.GreaterThan(RayOne()))
	assert.True(t, market.SupplyIndex.GreaterThan(RayOne()))
	assert.True(t, market.BorrowIndex.GreaterThan(market.SupplyIndex))
}

func TestAccrueDustBorrow(t *testing.T) {
	market, clk := newTestMarket(t, 8)
	market.Supplied = amt(1000, 8)
	market.Borrowed = NewDecFromInt(1, 8) // one base unit

	clk.Add(365 * 24 * time.Hour)
	require.NoError(t, market.Accrue(testLog(), clk.Now().Unix()))

	// A year of interest on one base unit rounds to nothing; the index
	// still advances for future, larger positions.
	assert.True(t, market.Borrowed.Equal(NewDecFromInt(1, 8)))
	assert.True(t, market.BorrowIndex.GreaterThan(RayOne()))
	assert.True(t, market.AccruedRevenue.IsZero())
}

func TestAccrueStepInsensitivity(t *testing.T) {
	single, singleClk := newTestMarket(t, 8)
	stepped, steppedClk := newTestMarket(t, 8)
	for _, m := range []*Market{single, stepped} {
		m.Supplied = amt(1000, 8)
		m.Borrowed = amt(500, 8)
	}

	singleClk.Add(100 * time.Second)
	require.NoError(t, single.Accrue(testLog(), singleClk.Now().Unix()))

	for i := 0; i < 100; i++ {
		steppedClk.Add(time.Second)
		require.NoError(t, stepped.Accrue(testLog(), steppedClk.Now().Unix()))
	}

	diff := single.Borrowed.Sub(stepped.Borrowed)
	if diff.IsNegative() {
		diff = diff.Neg()
	}
	assert.True(t, diff.LessThanOrEqual(amt(0.000001, 8)),
		"single=%s stepped=%s", single.Borrowed, stepped.Borrowed)
}

func TestInjectReward(t *testing.T) {
	market, _ := newTestMarket(t, 8)
	market.Supplied = amt(1000, 8)

	indexBefore := market.SupplyIndex
	require.NoError(t, market.InjectReward(amt(100, 8)))

	assert.True(t, market.Supplied.Equal(amt(1100, 8)))
	assert.True(t, market.SupplyIndex.Equal(indexBefore.MulHalfUp(rayF(1.1), RayScale)))
}

func TestInjectRewardRejections(t *testing.T) {
	market, _ := newTestMarket(t, 8)

	assert.ErrorIs(t, market.InjectReward(ZeroDec(8)), NonPositiveAmount)
	assert.ErrorIs(t, market.InjectReward(amt(-1, 8)), NonPositiveAmount)

	// No suppliers to credit.
	assert.ErrorIs(t, market.InjectReward(amt(100, 8)), InsufficientLiquidity)
}

func TestAssertOperationalMode(t *testing.T) {
	market, _ := newTestMarket(t, 8)

	market.OperationalState = MarketStatePaused
	assert.ErrorIs(t, market.AssertOperationalMode(false), MarketPaused)
	assert.ErrorIs(t, market.AssertOperationalMode(true), MarketPaused)

	market.OperationalState = MarketStateReduceOnly
	assert.NoError(t, market.AssertOperationalMode(false))
	assert.ErrorIs(t, market.AssertOperationalMode(true), MarketReduceOnly)

	market.OperationalState = MarketStateOperational
	assert.NoError(t, market.AssertOperationalMode(true))
}
