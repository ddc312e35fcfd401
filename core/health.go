package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// MaxHealthFactor is the sentinel health factor reported for accounts with
// no debt; no division ever produces it.
var MaxHealthFactor = NewDec(decimal.New(1, 18), RayScale)

type HealthComponents struct {
	Collateral        Dec `json:"collateral"`        // WAD
	WeightedThreshold Dec `json:"weightedThreshold"` // WAD
	Debt              Dec `json:"debt"`              // WAD
}

// HealthFactor is threshold-weighted collateral over debt at RAY. The
// second return reports whether the account has any debt; without debt the
// factor is the MaxHealthFactor sentinel.
func (c *HealthComponents) HealthFactor() (Dec, bool) {
	if c.Debt.IsZero() {
		return MaxHealthFactor, false
	}
	hf, _ := c.WeightedThreshold.DivHalfUp(c.Debt, RayScale)
	return hf, true
}

func (c *HealthComponents) IsLiquidatable() bool {
	hf, hasDebt := c.HealthFactor()
	return hasDebt && hf.LessThan(RayOne())
}

// HealthEngine values an account's positions against the operation's
// pinned price snapshot.
type HealthEngine struct {
	opc *OpContext
	log Log
}

func NewHealthEngine(opc *OpContext, log Log) *HealthEngine {
	return &HealthEngine{opc: opc, log: log}
}

// RefreshPositions re-syncs every market the account touches and lazily
// revalues each position, so health is computed on fresh indices.
func (h *HealthEngine) RefreshPositions(ctx context.Context, account *Account) ([]*Position, error) {
	positions, err := h.opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return nil, err
	}
	now := h.opc.Now()
	for _, p := range positions {
		if p.IsEmpty() {
			continue
		}
		market, err := h.opc.Market(ctx, p.AssetId)
		if err != nil {
			return nil, err
		}
		if err := market.Accrue(h.log, now); err != nil {
			return nil, err
		}
		h.opc.MarkMarketDirty(market)

		index := market.SupplyIndex
		if p.Kind == PositionBorrow {
			index = market.BorrowIndex
		}
		if _, err := p.Touch(index, now); err != nil {
			return nil, err
		}
		h.opc.MarkPositionDirty(p)
	}
	return positions, nil
}

// Components aggregates the freshly-touched positions into collateral
// value, threshold-weighted collateral value and debt value, all WAD.
func (h *HealthEngine) Components(ctx context.Context, account *Account) (*HealthComponents, error) {
	positions, err := h.RefreshPositions(ctx, account)
	if err != nil {
		return nil, err
	}

	components := &HealthComponents{
		Collateral:        ZeroDec(WadScale),
		WeightedThreshold: ZeroDec(WadScale),
		Debt:              ZeroDec(WadScale),
	}

	for _, p := range positions {
		if p.IsEmpty() {
			continue
		}
		feed, err := h.opc.PriceOf(ctx, p.AssetId)
		if err != nil {
			return nil, err
		}
		value := p.Principal.MulHalfUp(feed.Price, WadScale)

		switch p.Kind {
		case PositionDeposit:
			threshold, err := h.liquidationThreshold(ctx, account, p.AssetId)
			if err != nil {
				return nil, err
			}
			components.Collateral = components.Collateral.Add(value)
			components.WeightedThreshold = components.WeightedThreshold.Add(value.MulHalfUp(threshold, WadScale))
		case PositionBorrow:
			components.Debt = components.Debt.Add(value)
		}
	}
	return components, nil
}

// CheckHealthy gates mutating operations: the account must remain at or
// above a health factor of 1 afterwards.
func (h *HealthEngine) CheckHealthy(ctx context.Context, account *Account) error {
	components, err := h.Components(ctx, account)
	if err != nil {
		return err
	}
	hf, hasDebt := components.HealthFactor()
	if hasDebt && hf.LessThan(RayOne()) {
		return RiskRejected
	}
	return nil
}

// liquidationThreshold resolves the e-mode override when the account has a
// category selected and the asset participates in it.
func (h *HealthEngine) liquidationThreshold(ctx context.Context, account *Account, assetId uuid.UUID) (Dec, error) {
	cfg, err := h.opc.Config(ctx, assetId)
	if err != nil {
		return ZeroDec(BpsScale), err
	}
	if account.EModeCategory == 0 || !cfg.GetFlag(AssetFlagEModeEligible) {
		return cfg.LiquidationThreshold, nil
	}
	override, err := h.opc.EModeAssetConfig(ctx, account.EModeCategory, assetId)
	if err != nil {
		return ZeroDec(BpsScale), err
	}
	if override == nil || !override.Collateralizable {
		return cfg.LiquidationThreshold, nil
	}
	category, err := h.opc.EModeCategory(ctx, account.EModeCategory)
	if err != nil {
		return ZeroDec(BpsScale), err
	}
	return category.LiquidationThreshold, nil
}

// liquidationBonus resolves the bonus the liquidator earns on a debt
// asset, e-mode override included, capped at the protocol maximum.
func (h *HealthEngine) liquidationBonus(ctx context.Context, account *Account, assetId uuid.UUID) (Dec, error) {
	cfg, err := h.opc.Config(ctx, assetId)
	if err != nil {
		return ZeroDec(BpsScale), err
	}
	bonus := cfg.LiquidationBonus
	if account.EModeCategory != 0 && cfg.GetFlag(AssetFlagEModeEligible) {
		override, err := h.opc.EModeAssetConfig(ctx, account.EModeCategory, assetId)
		if err != nil {
			return ZeroDec(BpsScale), err
		}
		if override != nil {
			category, err := h.opc.EModeCategory(ctx, account.EModeCategory)
			if err != nil {
				return ZeroDec(BpsScale), err
			}
			bonus = category.LiquidationBonus
		}
	}
	return bonus.Min(MAX_LIQUIDATION_BONUS), nil
}

// CheckSupplyGates enforces the collateral-side policy overlays for a
// pending deposit of amount into the asset's market.
func (h *HealthEngine) CheckSupplyGates(ctx context.Context, account *Account, cfg *AssetConfig, market *Market, amount Dec) error {
	if !cfg.GetFlag(AssetFlagCollateral) {
		return AssetNotCollateralizable
	}

	positions, err := h.opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return err
	}

	if cfg.GetFlag(AssetFlagIsolated) {
		if account.EModeCategory != 0 {
			return EModeIsolationConflict
		}
		for _, p := range positions {
			if p.Kind == PositionDeposit && !p.IsEmpty() && p.AssetId != cfg.AssetId {
				return IsolatedCollateralConflict
			}
		}
	} else {
		for _, p := range positions {
			if p.Kind != PositionDeposit || p.IsEmpty() || p.AssetId == cfg.AssetId {
				continue
			}
			other, err := h.opc.Config(ctx, p.AssetId)
			if err != nil {
				return err
			}
			if other.GetFlag(AssetFlagIsolated) {
				return IsolatedCollateralConflict
			}
		}
	}

	if account.EModeCategory != 0 && cfg.GetFlag(AssetFlagEModeEligible) {
		if err := h.checkEModeParticipation(ctx, account.EModeCategory, cfg.AssetId, PositionDeposit); err != nil {
			return err
		}
	}

	if cfg.SupplyCap.IsPositive() && market.Supplied.Add(amount).GreaterThan(cfg.SupplyCap) {
		return SupplyCapExceeded
	}
	return nil
}

// CheckBorrowGates enforces the debt-side policy overlays for a pending
// borrow of amount from the asset's market.
func (h *HealthEngine) CheckBorrowGates(ctx context.Context, account *Account, cfg *AssetConfig, market *Market, amount Dec) error {
	if !cfg.GetFlag(AssetFlagBorrowable) {
		return AssetNotBorrowable
	}

	positions, err := h.opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return err
	}

	for _, p := range positions {
		if p.Kind != PositionBorrow || p.IsEmpty() || p.AssetId == cfg.AssetId {
			continue
		}
		if cfg.GetFlag(AssetFlagSiloed) {
			return SiloedBorrowConflict
		}
		other, err := h.opc.Config(ctx, p.AssetId)
		if err != nil {
			return err
		}
		if other.GetFlag(AssetFlagSiloed) {
			return SiloedBorrowConflict
		}
	}

	if account.EModeCategory != 0 && cfg.GetFlag(AssetFlagEModeEligible) {
		if err := h.checkEModeParticipation(ctx, account.EModeCategory, cfg.AssetId, PositionBorrow); err != nil {
			return err
		}
	}

	if cfg.BorrowCap.IsPositive() && market.Borrowed.Add(amount).GreaterThan(cfg.BorrowCap) {
		return BorrowCapExceeded
	}
	return nil
}

func (h *HealthEngine) checkEModeParticipation(ctx context.Context, categoryId uint8, assetId uuid.UUID, kind PositionKind) error {
	category, err := h.opc.EModeCategory(ctx, categoryId)
	if err != nil {
		return err
	}
	if category.Deprecated {
		return EModeCategoryDeprecated
	}
	override, err := h.opc.EModeAssetConfig(ctx, categoryId, assetId)
	if err != nil {
		return err
	}
	if kind == PositionBorrow {
		if override == nil || !override.Borrowable {
			return EModeCategoryMismatch
		}
		return nil
	}
	if override == nil || !override.Collateralizable {
		return EModeCategoryMismatch
	}
	return nil
}
