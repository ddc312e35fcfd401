package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func testLog() Log {
	l := zerolog.Nop()
	return &l
}

func rayF(f float64) Dec { return NewDec(decimal.NewFromFloat(f), RayScale) }
func wadF(f float64) Dec { return NewDec(decimal.NewFromFloat(f), WadScale) }
func bps(units int64) Dec {
	return NewDecFromInt(units, BpsScale)
}
func amt(f float64, scale int32) Dec {
	return NewDec(decimal.NewFromFloat(f), scale)
}

func testCurve() RateCurve {
	return RateCurve{
		BaseRate:    rayF(0.02),
		Slopes:      []Dec{rayF(0.1), rayF(3.0)},
		Breakpoints: []Dec{rayF(0.8)},
		MaxRate:     rayF(2.0),
	}
}

// memStores is an in-memory double for every store interface. Reads hand
// out copies so uncommitted mutations never leak back, mirroring a real
// database round trip.
type memStores struct {
	assets      map[uuid.UUID]*Asset
	configs     map[uuid.UUID]*AssetConfig
	emodeCats   map[uint8]*EModeCategory
	emodeAssets map[emodeAssetKey]*EModeAssetConfig
	markets     map[uuid.UUID]*Market
	accounts    map[uuid.UUID]*Account
	positions   map[positionKey]*Position
	operations  []*Operation
}

func newMemStores() *memStores {
	return &memStores{
		assets:      make(map[uuid.UUID]*Asset),
		configs:     make(map[uuid.UUID]*AssetConfig),
		emodeCats:   make(map[uint8]*EModeCategory),
		emodeAssets: make(map[emodeAssetKey]*EModeAssetConfig),
		markets:     make(map[uuid.UUID]*Market),
		accounts:    make(map[uuid.UUID]*Account),
		positions:   make(map[positionKey]*Position),
	}
}

func (s *memStores) Stores() Stores {
	return Stores{
		AssetStore:       s,
		AssetConfigStore: s,
		EModeStore:       s,
		MarketStore:      s,
		PositionStore:    s,
		AccountStore:     s,
		OperationStore:   s,
	}
}

func (s *memStores) GetAsset(_ context.Context, assetId uuid.UUID) (*Asset, error) {
	a, ok := s.assets[assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStores) ListAssets(_ context.Context) ([]*Asset, error) {
	out := make([]*Asset, 0, len(s.assets))
	for _, a := range s.assets {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStores) UpsertAsset(_ context.Context, asset *Asset) error {
	cp := *asset
	s.assets[asset.AssetId] = &cp
	return nil
}

func (s *memStores) GetAssetConfig(_ context.Context, assetId uuid.UUID) (*AssetConfig, error) {
	c, ok := s.configs[assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStores) UpsertAssetConfig(_ context.Context, config *AssetConfig) error {
	cp := *config
	s.configs[config.AssetId] = &cp
	return nil
}

func (s *memStores) GetEModeCategory(_ context.Context, categoryId uint8) (*EModeCategory, error) {
	c, ok := s.emodeCats[categoryId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStores) GetEModeAssetConfig(_ context.Context, categoryId uint8, assetId uuid.UUID) (*EModeAssetConfig, error) {
	c, ok := s.emodeAssets[emodeAssetKey{categoryId: categoryId, assetId: assetId}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStores) UpsertEModeCategory(_ context.Context, category *EModeCategory) error {
	cp := *category
	s.emodeCats[category.Id] = &cp
	return nil
}

func (s *memStores) UpsertEModeAssetConfig(_ context.Context, config *EModeAssetConfig) error {
	cp := *config
	s.emodeAssets[emodeAssetKey{categoryId: config.CategoryId, assetId: config.AssetId}] = &cp
	return nil
}

func (s *memStores) CreateMarket(_ context.Context, market *Market) error {
	cp := *market
	s.markets[market.AssetId] = &cp
	return nil
}

func (s *memStores) GetMarketByAssetId(_ context.Context, assetId uuid.UUID) (*Market, error) {
	m, ok := s.markets[assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStores) ListMarkets(_ context.Context) ([]*Market, error) {
	out := make([]*Market, 0, len(s.markets))
	for _, m := range s.markets {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStores) UpsertMarket(_ context.Context, market *Market) error {
	cp := *market
	s.markets[market.AssetId] = &cp
	return nil
}

func (s *memStores) GetAccountById(_ context.Context, accountId uuid.UUID) (*Account, error) {
	a, ok := s.accounts[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStores) GetAccountByNonce(_ context.Context, nonce uint64) (*Account, error) {
	for _, a := range s.accounts {
		if a.Nonce == nonce {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStores) CreateAccount(_ context.Context, account *Account) error {
	cp := *account
	s.accounts[account.Id] = &cp
	return nil
}

func (s *memStores) UpsertAccount(_ context.Context, account *Account) error {
	cp := *account
	s.accounts[account.Id] = &cp
	return nil
}

func (s *memStores) FindPosition(_ context.Context, accountId, assetId uuid.UUID, kind PositionKind) (*Position, error) {
	p, ok := s.positions[positionKey{accountId: accountId, assetId: assetId, kind: kind}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStores) ListPositions(_ context.Context, accountId uuid.UUID) ([]*Position, error) {
	var out []*Position
	for key, p := range s.positions {
		if key.accountId != accountId {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStores) UpsertPosition(_ context.Context, position *Position) error {
	cp := *position
	s.positions[positionKey{accountId: position.AccountId, assetId: position.AssetId, kind: position.Kind}] = &cp
	return nil
}

func (s *memStores) DeletePosition(_ context.Context, accountId, assetId uuid.UUID, kind PositionKind) error {
	delete(s.positions, positionKey{accountId: accountId, assetId: assetId, kind: kind})
	return nil
}

func (s *memStores) CreateOperation(_ context.Context, op *Operation) error {
	cp := *op
	s.operations = append(s.operations, &cp)
	return nil
}

func (s *memStores) ListOperations(_ context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]*Operation, error) {
	var out []*Operation
	for _, op := range s.operations {
		if op.AccountId != accountId {
			continue
		}
		if createdBeforeAt > 0 && op.CreatedAt >= createdBeforeAt {
			continue
		}
		out = append(out, op)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// fakeOracle serves configured prices stamped at the mock clock's current
// time, so advancing time never makes a feed stale.
type fakeOracle struct {
	clk    clock.Clock
	prices map[uuid.UUID]decimal.Decimal
}

func (f *fakeOracle) Price(_ context.Context, assetId uuid.UUID) (*PriceFeed, error) {
	p, ok := f.prices[assetId]
	if !ok {
		return nil, errors.Errorf("no feed for %s", assetId)
	}
	price := NewDec(p, WadScale)
	return &PriceFeed{
		AssetId:   assetId,
		Price:     price,
		Reference: price,
		Timestamp: f.clk.Now().Unix(),
	}, nil
}

type fakeToken struct {
	minted  int
	updated int
}

func (t *fakeToken) Mint(_ context.Context, _ *Account) error { t.minted++; return nil }
func (t *fakeToken) UpdateAttributes(_ context.Context, _ *Account) error {
	t.updated++
	return nil
}
func (t *fakeToken) Burn(_ context.Context, _ uuid.UUID) error { return nil }

// fixture wires a pool over in-memory stores with one mock clock shared by
// the pool and the oracle.
type fixture struct {
	clk    *clock.Mock
	stores *memStores
	oracle *fakeOracle
	token  *fakeToken
	pool   *Pool
}

func newFixture() *fixture {
	clk := clock.NewMock()
	clk.Add(1_700_000_000 * time.Second)

	stores := newMemStores()
	oracle := &fakeOracle{clk: clk, prices: make(map[uuid.UUID]decimal.Decimal)}
	token := &fakeToken{}
	pool := NewPool(stores.Stores(), oracle, testLog(),
		WithClock(clk),
		WithPositionToken(token),
	)
	return &fixture{clk: clk, stores: stores, oracle: oracle, token: token, pool: pool}
}

// addMarket registers an asset with a price, a default risk config and a
// live market, and returns its id. Mutate the config via mutators.
func (f *fixture) addMarket(symbol string, decimals int32, price float64, mutators ...func(*AssetConfig)) uuid.UUID {
	assetId := uuid.Must(uuid.NewV4())
	f.stores.assets[assetId] = &Asset{
		AssetId:  assetId,
		Symbol:   symbol,
		Name:     symbol,
		Decimals: decimals,
	}

	cfg := &AssetConfig{
		AssetId:              assetId,
		Ltv:                  bps(7000),
		LiquidationThreshold: bps(8000),
		LiquidationBonus:     bps(500),
		LiquidationFee:       bps(1000),
		Flags:                AssetFlagCollateral | AssetFlagBorrowable,
		IsolationDebtCeiling: ZeroDec(WadScale),
		SupplyCap:            ZeroDec(decimals),
		BorrowCap:            ZeroDec(decimals),
	}
	for _, mutate := range mutators {
		mutate(cfg)
	}
	f.stores.configs[assetId] = cfg

	market, err := NewMarket(f.clk, assetId, MarketParams{
		RateCurve:     testCurve(),
		ReserveFactor: bps(1000),
		AssetDecimals: decimals,
	})
	if err != nil {
		panic(err)
	}
	f.stores.markets[assetId] = market

	f.oracle.prices[assetId] = decimal.NewFromFloat(price)
	return assetId
}

func (f *fixture) seedAccount(nonce uint64) *Account {
	account := NewAccount(f.clk, nonce)
	f.stores.accounts[account.Id] = account
	return account
}

// seedPosition plants a live position directly, bypassing the entry
// points, and keeps the market totals consistent with it.
func (f *fixture) seedPosition(account *Account, assetId uuid.UUID, kind PositionKind, principal float64) *Position {
	market := f.stores.markets[assetId]
	index := market.SupplyIndex
	if kind == PositionBorrow {
		index = market.BorrowIndex
	}
	pos := NewPosition(account.Id, assetId, kind, index, market.AssetScale(), account.GetFlag(AccountVaultFlag), f.clk.Now())
	if err := pos.IncreasePrincipal(amt(principal, market.AssetScale())); err != nil {
		panic(err)
	}
	f.stores.positions[positionKey{accountId: account.Id, assetId: assetId, kind: kind}] = pos

	units := amt(principal, market.AssetScale())
	switch kind {
	case PositionDeposit:
		if !pos.IsVault {
			market.Supplied = market.Supplied.Add(units)
		}
	case PositionBorrow:
		market.Borrowed = market.Borrowed.Add(units)
	}
	return pos
}

func (f *fixture) newOpContext() *OpContext {
	return NewOpContext(f.clk, testLog(), f.stores.Stores(), f.oracle, DefaultPriceSafety())
}

func (f *fixture) market(assetId uuid.UUID) *Market {
	return f.stores.markets[assetId]
}

func (f *fixture) position(nonce uint64, assetId uuid.UUID, kind PositionKind) *Position {
	account, err := f.stores.GetAccountByNonce(context.Background(), nonce)
	if err != nil {
		return nil
	}
	return f.stores.positions[positionKey{accountId: account.Id, assetId: assetId, kind: kind}]
}
