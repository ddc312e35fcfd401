package core

import (
	"context"
	"sort"

	"github.com/gofrs/uuid"
)

type (
	// RepaymentEntry is one leg of a liquidator's repayment. A logical
	// repayment may be split across any number of entries.
	RepaymentEntry struct {
		AssetId uuid.UUID `json:"assetId"`
		Amount  Dec       `json:"amount"` // asset scale
	}

	SeizedCollateral struct {
		AssetId          uuid.UUID `json:"assetId"`
		Amount           Dec       `json:"amount"`           // taken from the liquidatee
		LiquidatorAmount Dec       `json:"liquidatorAmount"` // after the protocol fee
		FeeAmount        Dec       `json:"feeAmount"`        // routed to reserves
	}

	LiquidateResult struct {
		AccountId uuid.UUID `json:"accountId"`

		PreHealth  Dec `json:"preHealth"`  // RAY
		PostHealth Dec `json:"postHealth"` // RAY

		Repaid []RepaymentEntry   `json:"repaid"`
		Seized []SeizedCollateral `json:"seized"`

		ReceiptValue Dec `json:"receiptValue"` // WAD, to the liquidator
		BadDebtValue Dec `json:"badDebtValue"` // WAD
	}
)

// LiquidationEngine resolves under-collateralized accounts. It operates on
// the same OpContext as the health engine, so every valuation uses the one
// pinned price snapshot and the freshly-synced indices.
type LiquidationEngine struct {
	opc    *OpContext
	health *HealthEngine
	log    Log
}

func NewLiquidationEngine(opc *OpContext, health *HealthEngine, log Log) *LiquidationEngine {
	return &LiquidationEngine{opc: opc, health: health, log: log}
}

// Liquidate applies the ordered repayment entries against an unhealthy
// account. Collateral is seized proportionally to each deposit's share of
// total collateral value, so splitting one repayment across entries moves
// the outcome only within rounding dust. minReceiptValue is the
// liquidator's declared minimum acceptable receipt, WAD; zero disables it.
func (e *LiquidationEngine) Liquidate(ctx context.Context, account *Account, entries []RepaymentEntry, minReceiptValue Dec) (*LiquidateResult, error) {
	if len(entries) == 0 {
		return nil, MalformedRepayment
	}
	for _, entry := range entries {
		if !entry.Amount.IsPositive() {
			return nil, NonPositiveAmount
		}
	}

	// Fresh snapshot: positions touched and prices pinned right before the
	// first repayment is applied.
	components, err := e.health.Components(ctx, account)
	if err != nil {
		return nil, err
	}
	if !components.IsLiquidatable() {
		return nil, AccountNotUnhealthy
	}
	preHealth, _ := components.HealthFactor()

	result := &LiquidateResult{
		AccountId:    account.Id,
		PreHealth:    preHealth,
		ReceiptValue: ZeroDec(WadScale),
		BadDebtValue: ZeroDec(WadScale),
	}
	seizedByAsset := make(map[uuid.UUID]*SeizedCollateral)

	for _, entry := range entries {
		if err := e.applyEntry(ctx, account, entry, result, seizedByAsset); err != nil {
			return nil, err
		}
	}

	if minReceiptValue.IsPositive() && result.ReceiptValue.LessThan(minReceiptValue) {
		return nil, ReceiptBelowMinimum
	}

	postComponents, err := e.health.Components(ctx, account)
	if err != nil {
		return nil, err
	}
	result.PostHealth, _ = postComponents.HealthFactor()

	for _, s := range seizedByAsset {
		result.Seized = append(result.Seized, *s)
	}
	sort.Slice(result.Seized, func(i, j int) bool {
		return result.Seized[i].AssetId.String() < result.Seized[j].AssetId.String()
	})

	e.log.Info().
		Str("accountId", account.Id.String()).
		Str("preHealth", result.PreHealth.String()).
		Str("postHealth", result.PostHealth.String()).
		Str("receiptValue", result.ReceiptValue.String()).
		Str("badDebtValue", result.BadDebtValue.String()).
		Msg("liquidation applied")

	return result, nil
}

func (e *LiquidationEngine) applyEntry(ctx context.Context, account *Account, entry RepaymentEntry, result *LiquidateResult, seizedByAsset map[uuid.UUID]*SeizedCollateral) error {
	debtMarket, err := e.opc.Market(ctx, entry.AssetId)
	if err != nil {
		return err
	}
	scale := debtMarket.AssetScale()

	debtPos, err := e.opc.Position(ctx, account.Id, entry.AssetId, PositionBorrow)
	if err != nil {
		return err
	}
	if debtPos == nil || debtPos.IsEmpty() {
		return NoDebtPosition
	}

	// No overpay accepted: the entry is clamped to the outstanding debt.
	clamped := entry.Amount.RescaleHalfUp(scale).Min(debtPos.Principal)

	feed, err := e.opc.PriceOf(ctx, entry.AssetId)
	if err != nil {
		return err
	}
	repayValue := clamped.MulHalfUp(feed.Price, WadScale)

	bonus, err := e.health.liquidationBonus(ctx, account, entry.AssetId)
	if err != nil {
		return err
	}
	seizeValue := repayValue.MulHalfUp(OneDec(BpsScale).Add(bonus), WadScale)

	seizedValue, err := e.seizeProportionally(ctx, account, bonus, seizeValue, result, seizedByAsset)
	if err != nil {
		return err
	}

	// Whatever collateral could not cover becomes bad debt on the repaid
	// market instead of aborting the liquidation.
	shortfall := seizeValue.Sub(seizedValue)
	if shortfall.IsPositive() {
		shortfallUnits, err := shortfall.DivHalfUp(feed.Price, scale)
		if err != nil {
			return err
		}
		debtMarket.BadDebt = debtMarket.BadDebt.Add(shortfallUnits)
		result.BadDebtValue = result.BadDebtValue.Add(shortfall)
	}

	if err := debtPos.DecreasePrincipal(clamped); err != nil {
		return err
	}
	e.opc.MarkPositionDirty(debtPos)

	debtMarket.Borrowed = debtMarket.Borrowed.Sub(clamped)
	e.opc.MarkMarketDirty(debtMarket)

	if account.GetFlag(AccountIsolatedFlag) {
		if err := refundIsolationDebt(ctx, e.opc, account, repayValue); err != nil {
			return err
		}
	}

	result.Repaid = append(result.Repaid, RepaymentEntry{AssetId: entry.AssetId, Amount: clamped})
	return nil
}

// seizeProportionally takes seizeValue worth of collateral across the
// account's deposit positions, each contributing its share of total
// collateral value. Returns the value actually seized.
func (e *LiquidationEngine) seizeProportionally(ctx context.Context, account *Account, bonus, seizeValue Dec, result *LiquidateResult, seizedByAsset map[uuid.UUID]*SeizedCollateral) (Dec, error) {
	positions, err := e.opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return ZeroDec(WadScale), err
	}

	type collateralLeg struct {
		pos   *Position
		value Dec
	}
	var legs []collateralLeg
	totalValue := ZeroDec(WadScale)
	for _, p := range positions {
		if p.Kind != PositionDeposit || p.IsEmpty() {
			continue
		}
		feed, err := e.opc.PriceOf(ctx, p.AssetId)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		value := p.Principal.MulHalfUp(feed.Price, WadScale)
		legs = append(legs, collateralLeg{pos: p, value: value})
		totalValue = totalValue.Add(value)
	}
	if len(legs) == 0 || totalValue.IsZero() {
		return ZeroDec(WadScale), NoCollateralToSeize
	}

	seizedValue := ZeroDec(WadScale)
	grossBonus := OneDec(BpsScale).Add(bonus)

	for _, leg := range legs {
		proportion, err := leg.value.DivHalfUp(totalValue, RayScale)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		targetValue := seizeValue.MulHalfUp(proportion, WadScale)

		feed, err := e.opc.PriceOf(ctx, leg.pos.AssetId)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		market, err := e.opc.Market(ctx, leg.pos.AssetId)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		scale := market.AssetScale()

		units, err := targetValue.DivHalfUp(feed.Price, scale)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		units = units.Min(leg.pos.Principal)
		if !units.IsPositive() {
			continue
		}

		if err := leg.pos.DecreasePrincipal(units); err != nil {
			return ZeroDec(WadScale), err
		}
		e.opc.MarkPositionDirty(leg.pos)

		unitValue := units.MulHalfUp(feed.Price, WadScale)
		seizedValue = seizedValue.Add(unitValue)

		// The protocol fee applies to the bonus portion of the seizure
		// and stays in the collateral market as reserves.
		base, err := unitValue.DivHalfUp(grossBonus, WadScale)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		bonusValue := unitValue.Sub(base)

		cfg, err := e.opc.Config(ctx, leg.pos.AssetId)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		feeValue := bonusValue.MulHalfUp(cfg.LiquidationFee, WadScale)
		feeUnits, err := feeValue.DivHalfUp(feed.Price, scale)
		if err != nil {
			return ZeroDec(WadScale), err
		}
		feeUnits = feeUnits.Min(units)
		liquidatorUnits := units.Sub(feeUnits)

		// Vault deposits sit outside the interest-bearing supply total, so
		// seizing them does not move the market's lendable liquidity.
		if !leg.pos.IsVault {
			market.Supplied = market.Supplied.Sub(units)
		}
		market.Reserves = market.Reserves.Add(feeUnits)
		e.opc.MarkMarketDirty(market)

		result.ReceiptValue = result.ReceiptValue.Add(liquidatorUnits.MulHalfUp(feed.Price, WadScale))

		record, ok := seizedByAsset[leg.pos.AssetId]
		if !ok {
			record = &SeizedCollateral{
				AssetId:          leg.pos.AssetId,
				Amount:           ZeroDec(scale),
				LiquidatorAmount: ZeroDec(scale),
				FeeAmount:        ZeroDec(scale),
			}
			seizedByAsset[leg.pos.AssetId] = record
		}
		record.Amount = record.Amount.Add(units)
		record.LiquidatorAmount = record.LiquidatorAmount.Add(liquidatorUnits)
		record.FeeAmount = record.FeeAmount.Add(feeUnits)
	}

	return seizedValue, nil
}
