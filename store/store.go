package store

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vegalend/core/core"
)

// Store backs every core store interface with a single gorm database.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate performs all schema migrations for the pool.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Asset{},
		&AssetConfig{},
		&EModeCategory{},
		&EModeAssetConfig{},
		&Market{},
		&Account{},
		&Position{},
		&Operation{},
	)
}

type Asset struct {
	AssetId      uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChainAssetId string    `gorm:"index"`
	Symbol       string
	Name         string
	Decimals     int32
}

type AssetConfig struct {
	AssetId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Ltv                  core.Dec `gorm:"type:varchar(64)"`
	LiquidationThreshold core.Dec `gorm:"type:varchar(64)"`
	LiquidationBonus     core.Dec `gorm:"type:varchar(64)"`
	LiquidationFee       core.Dec `gorm:"type:varchar(64)"`

	Flags uint8

	IsolationDebtCeiling core.Dec `gorm:"type:varchar(64)"`
	SupplyCap            core.Dec `gorm:"type:varchar(64)"`
	BorrowCap            core.Dec `gorm:"type:varchar(64)"`
}

type EModeCategory struct {
	Id    uint8 `gorm:"primaryKey"`
	Label string

	Ltv                  core.Dec `gorm:"type:varchar(64)"`
	LiquidationThreshold core.Dec `gorm:"type:varchar(64)"`
	LiquidationBonus     core.Dec `gorm:"type:varchar(64)"`

	Deprecated bool
}

type EModeAssetConfig struct {
	CategoryId uint8     `gorm:"primaryKey"`
	AssetId    uuid.UUID `gorm:"type:uuid;primaryKey"`

	Collateralizable bool
	Borrowable       bool
}

type Market struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetId uuid.UUID `gorm:"type:uuid;uniqueIndex"`

	RateCurve     string   `gorm:"type:text"`
	ReserveFactor core.Dec `gorm:"type:varchar(64)"`
	AssetDecimals int32

	OperationalState uint8

	Supplied       core.Dec `gorm:"type:varchar(64)"`
	Borrowed       core.Dec `gorm:"type:varchar(64)"`
	Reserves       core.Dec `gorm:"type:varchar(64)"`
	AccruedRevenue core.Dec `gorm:"type:varchar(64)"`
	BadDebt        core.Dec `gorm:"type:varchar(64)"`
	IsolatedDebt   core.Dec `gorm:"type:varchar(64)"`

	BorrowIndex core.Dec `gorm:"type:varchar(64)"`
	SupplyIndex core.Dec `gorm:"type:varchar(64)"`

	LastSync  int64
	CreatedAt int64
}

type Account struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Nonce uint64    `gorm:"uniqueIndex"`

	Flags         uint8
	EModeCategory uint8

	CreatedAt int64
	UpdatedAt int64
}

type Position struct {
	AccountId uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      uint8     `gorm:"primaryKey"`

	Principal     core.Dec `gorm:"type:varchar(64)"`
	IndexSnapshot core.Dec `gorm:"type:varchar(64)"`
	IsVault       bool

	LastUpdate int64
}

type Operation struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountId uuid.UUID `gorm:"type:uuid;index"`
	AssetId   uuid.UUID `gorm:"type:uuid"`
	Kind      uint8
	Amount    core.Dec `gorm:"type:varchar(64)"`
	CreatedAt int64    `gorm:"index"`
}

func (m *Asset) toCore() *core.Asset {
	return &core.Asset{
		AssetId:      m.AssetId,
		ChainAssetId: m.ChainAssetId,
		Symbol:       m.Symbol,
		Name:         m.Name,
		Decimals:     m.Decimals,
	}
}

func assetModel(a *core.Asset) *Asset {
	return &Asset{
		AssetId:      a.AssetId,
		ChainAssetId: a.ChainAssetId,
		Symbol:       a.Symbol,
		Name:         a.Name,
		Decimals:     a.Decimals,
	}
}

func (m *AssetConfig) toCore() *core.AssetConfig {
	return &core.AssetConfig{
		AssetId:              m.AssetId,
		Ltv:                  m.Ltv,
		LiquidationThreshold: m.LiquidationThreshold,
		LiquidationBonus:     m.LiquidationBonus,
		LiquidationFee:       m.LiquidationFee,
		Flags:                core.AssetFlags(m.Flags),
		IsolationDebtCeiling: m.IsolationDebtCeiling,
		SupplyCap:            m.SupplyCap,
		BorrowCap:            m.BorrowCap,
	}
}

func assetConfigModel(c *core.AssetConfig) *AssetConfig {
	return &AssetConfig{
		AssetId:              c.AssetId,
		Ltv:                  c.Ltv,
		LiquidationThreshold: c.LiquidationThreshold,
		LiquidationBonus:     c.LiquidationBonus,
		LiquidationFee:       c.LiquidationFee,
		Flags:                uint8(c.Flags),
		IsolationDebtCeiling: c.IsolationDebtCeiling,
		SupplyCap:            c.SupplyCap,
		BorrowCap:            c.BorrowCap,
	}
}

func (m *EModeCategory) toCore() *core.EModeCategory {
	return &core.EModeCategory{
		Id:                   m.Id,
		Label:                m.Label,
		Ltv:                  m.Ltv,
		LiquidationThreshold: m.LiquidationThreshold,
		LiquidationBonus:     m.LiquidationBonus,
		Deprecated:           m.Deprecated,
	}
}

func emodeCategoryModel(c *core.EModeCategory) *EModeCategory {
	return &EModeCategory{
		Id:                   c.Id,
		Label:                c.Label,
		Ltv:                  c.Ltv,
		LiquidationThreshold: c.LiquidationThreshold,
		LiquidationBonus:     c.LiquidationBonus,
		Deprecated:           c.Deprecated,
	}
}

func (m *EModeAssetConfig) toCore() *core.EModeAssetConfig {
	return &core.EModeAssetConfig{
		CategoryId:       m.CategoryId,
		AssetId:          m.AssetId,
		Collateralizable: m.Collateralizable,
		Borrowable:       m.Borrowable,
	}
}

func emodeAssetConfigModel(c *core.EModeAssetConfig) *EModeAssetConfig {
	return &EModeAssetConfig{
		CategoryId:       c.CategoryId,
		AssetId:          c.AssetId,
		Collateralizable: c.Collateralizable,
		Borrowable:       c.Borrowable,
	}
}

func (m *Market) toCore() (*core.Market, error) {
	var curve core.RateCurve
	if err := json.Unmarshal([]byte(m.RateCurve), &curve); err != nil {
		return nil, errors.Wrap(err, "decode rate curve")
	}
	return &core.Market{
		Id:      m.Id,
		AssetId: m.AssetId,
		Params: core.MarketParams{
			RateCurve:     curve,
			ReserveFactor: m.ReserveFactor,
			AssetDecimals: m.AssetDecimals,
		},
		OperationalState: core.MarketOperationalState(m.OperationalState),
		Supplied:         m.Supplied,
		Borrowed:         m.Borrowed,
		Reserves:         m.Reserves,
		AccruedRevenue:   m.AccruedRevenue,
		BadDebt:          m.BadDebt,
		IsolatedDebt:     m.IsolatedDebt,
		BorrowIndex:      m.BorrowIndex,
		SupplyIndex:      m.SupplyIndex,
		LastSync:         m.LastSync,
		CreatedAt:        m.CreatedAt,
	}, nil
}

func marketModel(m *core.Market) (*Market, error) {
	curve, err := json.Marshal(m.Params.RateCurve)
	if err != nil {
		return nil, errors.Wrap(err, "encode rate curve")
	}
	return &Market{
		Id:               m.Id,
		AssetId:          m.AssetId,
		RateCurve:        string(curve),
		ReserveFactor:    m.Params.ReserveFactor,
		AssetDecimals:    m.Params.AssetDecimals,
		OperationalState: uint8(m.OperationalState),
		Supplied:         m.Supplied,
		Borrowed:         m.Borrowed,
		Reserves:         m.Reserves,
		AccruedRevenue:   m.AccruedRevenue,
		BadDebt:          m.BadDebt,
		IsolatedDebt:     m.IsolatedDebt,
		BorrowIndex:      m.BorrowIndex,
		SupplyIndex:      m.SupplyIndex,
		LastSync:         m.LastSync,
		CreatedAt:        m.CreatedAt,
	}, nil
}

func (m *Account) toCore() *core.Account {
	return &core.Account{
		Id:            m.Id,
		Nonce:         m.Nonce,
		Flags:         core.AccountFlags(m.Flags),
		EModeCategory: m.EModeCategory,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func accountModel(a *core.Account) *Account {
	return &Account{
		Id:            a.Id,
		Nonce:         a.Nonce,
		Flags:         uint8(a.Flags),
		EModeCategory: a.EModeCategory,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (m *Position) toCore() *core.Position {
	return &core.Position{
		AccountId:     m.AccountId,
		AssetId:       m.AssetId,
		Kind:          core.PositionKind(m.Kind),
		Principal:     m.Principal,
		IndexSnapshot: m.IndexSnapshot,
		IsVault:       m.IsVault,
		LastUpdate:    m.LastUpdate,
	}
}

func positionModel(p *core.Position) *Position {
	return &Position{
		AccountId:     p.AccountId,
		AssetId:       p.AssetId,
		Kind:          uint8(p.Kind),
		Principal:     p.Principal,
		IndexSnapshot: p.IndexSnapshot,
		IsVault:       p.IsVault,
		LastUpdate:    p.LastUpdate,
	}
}

func (m *Operation) toCore() *core.Operation {
	return &core.Operation{
		Id:        m.Id,
		AccountId: m.AccountId,
		AssetId:   m.AssetId,
		Kind:      core.OperationKind(m.Kind),
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt,
	}
}

func operationModel(op *core.Operation) *Operation {
	return &Operation{
		Id:        op.Id,
		AccountId: op.AccountId,
		AssetId:   op.AssetId,
		Kind:      uint8(op.Kind),
		Amount:    op.Amount,
		CreatedAt: op.CreatedAt,
	}
}

func (s *Store) GetAsset(ctx context.Context, assetId uuid.UUID) (*core.Asset, error) {
	var m Asset
	if err := s.db.WithContext(ctx).First(&m, "asset_id = ?", assetId).Error; err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) ListAssets(ctx context.Context) ([]*core.Asset, error) {
	var ms []*Asset
	if err := s.db.WithContext(ctx).Find(&ms).Error; err != nil {
		return nil, err
	}
	assets := make([]*core.Asset, 0, len(ms))
	for _, m := range ms {
		assets = append(assets, m.toCore())
	}
	return assets, nil
}

func (s *Store) UpsertAsset(ctx context.Context, asset *core.Asset) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(assetModel(asset)).Error
}

func (s *Store) GetAssetConfig(ctx context.Context, assetId uuid.UUID) (*core.AssetConfig, error) {
	var m AssetConfig
	if err := s.db.WithContext(ctx).First(&m, "asset_id = ?", assetId).Error; err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) UpsertAssetConfig(ctx context.Context, config *core.AssetConfig) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(assetConfigModel(config)).Error
}

func (s *Store) GetEModeCategory(ctx context.Context, categoryId uint8) (*core.EModeCategory, error) {
	var m EModeCategory
	if err := s.db.WithContext(ctx).First(&m, "id = ?", categoryId).Error; err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) GetEModeAssetConfig(ctx context.Context, categoryId uint8, assetId uuid.UUID) (*core.EModeAssetConfig, error) {
	var m EModeAssetConfig
	err := s.db.WithContext(ctx).
		First(&m, "category_id = ? AND asset_id = ?", categoryId, assetId).Error
	if err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) UpsertEModeCategory(ctx context.Context, category *core.EModeCategory) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(emodeCategoryModel(category)).Error
}

func (s *Store) UpsertEModeAssetConfig(ctx context.Context, config *core.EModeAssetConfig) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(emodeAssetConfigModel(config)).Error
}

func (s *Store) CreateMarket(ctx context.Context, market *core.Market) error {
	m, err := marketModel(market)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) GetMarketByAssetId(ctx context.Context, assetId uuid.UUID) (*core.Market, error) {
	var m Market
	if err := s.db.WithContext(ctx).First(&m, "asset_id = ?", assetId).Error; err != nil {
		return nil, err
	}
	return m.toCore()
}

func (s *Store) ListMarkets(ctx context.Context) ([]*core.Market, error) {
	var ms []*Market
	if err := s.db.WithContext(ctx).Find(&ms).Error; err != nil {
		return nil, err
	}
	markets := make([]*core.Market, 0, len(ms))
	for _, m := range ms {
		market, err := m.toCore()
		if err != nil {
			return nil, err
		}
		markets = append(markets, market)
	}
	return markets, nil
}

func (s *Store) UpsertMarket(ctx context.Context, market *core.Market) error {
	m, err := marketModel(market)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error
}

func (s *Store) GetAccountById(ctx context.Context, accountId uuid.UUID) (*core.Account, error) {
	var m Account
	if err := s.db.WithContext(ctx).First(&m, "id = ?", accountId).Error; err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) GetAccountByNonce(ctx context.Context, nonce uint64) (*core.Account, error) {
	var m Account
	if err := s.db.WithContext(ctx).First(&m, "nonce = ?", nonce).Error; err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) CreateAccount(ctx context.Context, account *core.Account) error {
	return s.db.WithContext(ctx).Create(accountModel(account)).Error
}

func (s *Store) UpsertAccount(ctx context.Context, account *core.Account) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(accountModel(account)).Error
}

func (s *Store) FindPosition(ctx context.Context, accountId, assetId uuid.UUID, kind core.PositionKind) (*core.Position, error) {
	var m Position
	err := s.db.WithContext(ctx).
		First(&m, "account_id = ? AND asset_id = ? AND kind = ?", accountId, assetId, uint8(kind)).Error
	if err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (s *Store) ListPositions(ctx context.Context, accountId uuid.UUID) ([]*core.Position, error) {
	var ms []*Position
	if err := s.db.WithContext(ctx).Find(&ms, "account_id = ?", accountId).Error; err != nil {
		return nil, err
	}
	positions := make([]*core.Position, 0, len(ms))
	for _, m := range ms {
		positions = append(positions, m.toCore())
	}
	return positions, nil
}

func (s *Store) UpsertPosition(ctx context.Context, position *core.Position) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(positionModel(position)).Error
}

func (s *Store) DeletePosition(ctx context.Context, accountId, assetId uuid.UUID, kind core.PositionKind) error {
	return s.db.WithContext(ctx).
		Delete(&Position{}, "account_id = ? AND asset_id = ? AND kind = ?", accountId, assetId, uint8(kind)).Error
}

func (s *Store) CreateOperation(ctx context.Context, op *core.Operation) error {
	return s.db.WithContext(ctx).Create(operationModel(op)).Error
}

func (s *Store) ListOperations(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]*core.Operation, error) {
	var ms []*Operation
	q := s.db.WithContext(ctx).
		Where("account_id = ?", accountId).
		Order("created_at DESC").
		Limit(int(limit))
	if createdBeforeAt > 0 {
		q = q.Where("created_at < ?", createdBeforeAt)
	}
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	ops := make([]*core.Operation, 0, len(ms))
	for _, m := range ms {
		ops = append(ops, m.toCore())
	}
	return ops, nil
}
