package core

import (
	"context"

	"github.com/gofrs/uuid"
)

type (
	AssetStore interface {
		GetAsset(ctx context.Context, assetId uuid.UUID) (*Asset, error)
		ListAssets(ctx context.Context) ([]*Asset, error)
		UpsertAsset(ctx context.Context, asset *Asset) error
	}

	// Asset is the registry record for a supported token. Decimals is the
	// native fixed-point scale all principal amounts of this asset carry.
	Asset struct {
		AssetId      uuid.UUID `json:"assetId"`
		ChainAssetId string    `json:"chainAssetId,omitempty"`
		Symbol       string    `json:"symbol"`
		Name         string    `json:"name"`
		Decimals     int32     `json:"decimals"`
	}
)

type (
	AssetConfigStore interface {
		GetAssetConfig(ctx context.Context, assetId uuid.UUID) (*AssetConfig, error)
		UpsertAssetConfig(ctx context.Context, config *AssetConfig) error
	}

	// AssetConfig carries the per-asset risk policy. Ltv, the liquidation
	// parameters and the flags gate every supply/borrow/liquidation path.
	AssetConfig struct {
		AssetId uuid.UUID `json:"assetId"`

		Ltv                  Dec `json:"ltv"`                  // BPS
		LiquidationThreshold Dec `json:"liquidationThreshold"` // BPS
		LiquidationBonus     Dec `json:"liquidationBonus"`     // BPS
		LiquidationFee       Dec `json:"liquidationFee"`       // BPS

		Flags AssetFlags `json:"flags"`

		IsolationDebtCeiling Dec `json:"isolationDebtCeiling"` // WAD, numeraire
		SupplyCap            Dec `json:"supplyCap"`            // asset scale
		BorrowCap            Dec `json:"borrowCap"`            // asset scale
	}
)

type AssetFlags uint8

const (
	AssetFlagCollateral AssetFlags = 1 << iota
	AssetFlagBorrowable
	AssetFlagIsolated
	AssetFlagSiloed
	AssetFlagFlashloanable
	AssetFlagEModeEligible
)

func (f AssetFlags) Has(flag AssetFlags) bool {
	return f&flag == flag
}

func (c *AssetConfig) GetFlag(flag AssetFlags) bool {
	return c.Flags.Has(flag)
}

func (c *AssetConfig) Validate() error {
	bpsOne := OneDec(BpsScale)
	if c.Ltv.IsNegative() || c.Ltv.GreaterThan(bpsOne) {
		return InvalidConfig
	}
	if c.LiquidationThreshold.LessThan(c.Ltv) || c.LiquidationThreshold.GreaterThan(bpsOne) {
		return InvalidConfig
	}
	if c.LiquidationBonus.IsNegative() || c.LiquidationFee.IsNegative() {
		return InvalidConfig
	}
	if c.LiquidationFee.GreaterThan(bpsOne) {
		return InvalidConfig
	}
	if c.GetFlag(AssetFlagIsolated) && c.IsolationDebtCeiling.IsNegative() {
		return InvalidConfig
	}
	if c.SupplyCap.IsNegative() || c.BorrowCap.IsNegative() {
		return InvalidConfig
	}
	return nil
}

type (
	EModeStore interface {
		GetEModeCategory(ctx context.Context, categoryId uint8) (*EModeCategory, error)
		GetEModeAssetConfig(ctx context.Context, categoryId uint8, assetId uuid.UUID) (*EModeAssetConfig, error)
		UpsertEModeCategory(ctx context.Context, category *EModeCategory) error
		UpsertEModeAssetConfig(ctx context.Context, config *EModeAssetConfig) error
	}

	// EModeCategory grants overriding risk parameters to a restricted,
	// mutually-compatible asset set. Category 0 means no category selected.
	EModeCategory struct {
		Id                   uint8  `json:"id"`
		Label                string `json:"label"`
		Ltv                  Dec    `json:"ltv"`                  // BPS
		LiquidationThreshold Dec    `json:"liquidationThreshold"` // BPS
		LiquidationBonus     Dec    `json:"liquidationBonus"`     // BPS
		Deprecated           bool   `json:"deprecated"`
	}

	EModeAssetConfig struct {
		CategoryId       uint8     `json:"categoryId"`
		AssetId          uuid.UUID `json:"assetId"`
		Collateralizable bool      `json:"collateralizable"`
		Borrowable       bool      `json:"borrowable"`
	}
)

func (c *EModeCategory) Validate() error {
	if c.Id == 0 {
		return InvalidConfig
	}
	bpsOne := OneDec(BpsScale)
	if c.Ltv.IsNegative() || c.Ltv.GreaterThan(bpsOne) {
		return InvalidConfig
	}
	if c.LiquidationThreshold.LessThan(c.Ltv) || c.LiquidationThreshold.GreaterThan(bpsOne) {
		return InvalidConfig
	}
	if c.LiquidationBonus.IsNegative() {
		return InvalidConfig
	}
	return nil
}
