package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Stores bundles the durable collaborators an entry point needs.
type Stores struct {
	AssetStore
	AssetConfigStore
	EModeStore
	MarketStore
	PositionStore
	AccountStore
	OperationStore
}

type positionKey struct {
	accountId uuid.UUID
	assetId   uuid.UUID
	kind      PositionKind
}

type emodeAssetKey struct {
	categoryId uint8
	assetId    uuid.UUID
}

// OpContext is the request-scoped snapshot threaded through one external
// entry point. It memoizes prices, configs, markets and positions so a
// multi-asset operation observes a single consistent view, and it buffers
// every mutation until Commit. Nothing is flushed on an aborted path.
type OpContext struct {
	clk    clock.Clock
	log    Log
	stores Stores
	oracle PriceAdapter
	safety PriceSafety

	prices      map[uuid.UUID]*PriceFeed
	configs     map[uuid.UUID]*AssetConfig
	emodeCats   map[uint8]*EModeCategory
	emodeAssets map[emodeAssetKey]*EModeAssetConfig
	markets     map[uuid.UUID]*Market
	accounts    map[uuid.UUID]*Account
	positions   map[positionKey]*Position
	listed      map[uuid.UUID][]*Position

	dirtyMarkets     map[uuid.UUID]*Market
	dirtyAccounts    map[uuid.UUID]*Account
	dirtyPositions   map[positionKey]*Position
	removedPositions map[positionKey]*Position
	operations       []*Operation
}

func NewOpContext(clk clock.Clock, log Log, stores Stores, oracle PriceAdapter, safety PriceSafety) *OpContext {
	return &OpContext{
		clk:    clk,
		log:    log,
		stores: stores,
		oracle: oracle,
		safety: safety,

		prices:      make(map[uuid.UUID]*PriceFeed),
		configs:     make(map[uuid.UUID]*AssetConfig),
		emodeCats:   make(map[uint8]*EModeCategory),
		emodeAssets: make(map[emodeAssetKey]*EModeAssetConfig),
		markets:     make(map[uuid.UUID]*Market),
		accounts:    make(map[uuid.UUID]*Account),
		positions:   make(map[positionKey]*Position),
		listed:      make(map[uuid.UUID][]*Position),

		dirtyMarkets:     make(map[uuid.UUID]*Market),
		dirtyAccounts:    make(map[uuid.UUID]*Account),
		dirtyPositions:   make(map[positionKey]*Position),
		removedPositions: make(map[positionKey]*Position),
	}
}

func (o *OpContext) Now() int64 {
	return o.clk.Now().Unix()
}

// PriceOf returns the memoized, safety-checked feed for an asset. The
// first lookup pins the price every later use in this operation sees.
func (o *OpContext) PriceOf(ctx context.Context, assetId uuid.UUID) (*PriceFeed, error) {
	if feed, ok := o.prices[assetId]; ok {
		return feed, nil
	}
	if o.oracle == nil {
		return nil, PriceAdapterUnset
	}
	feed, err := o.oracle.Price(ctx, assetId)
	if err != nil {
		return nil, errors.Wrapf(err, "price %s", assetId)
	}
	if err := o.safety.Check(feed, o.Now()); err != nil {
		return nil, err
	}
	o.prices[assetId] = feed
	return feed, nil
}

func (o *OpContext) Config(ctx context.Context, assetId uuid.UUID) (*AssetConfig, error) {
	if cfg, ok := o.configs[assetId]; ok {
		return cfg, nil
	}
	cfg, err := o.stores.GetAssetConfig(ctx, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, UnsupportedAsset
		}
		return nil, err
	}
	o.configs[assetId] = cfg
	return cfg, nil
}

func (o *OpContext) EModeCategory(ctx context.Context, categoryId uint8) (*EModeCategory, error) {
	if cat, ok := o.emodeCats[categoryId]; ok {
		return cat, nil
	}
	cat, err := o.stores.GetEModeCategory(ctx, categoryId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, EModeCategoryNotFound
		}
		return nil, err
	}
	o.emodeCats[categoryId] = cat
	return cat, nil
}

// EModeAssetConfig returns the per-(category, asset) override, or nil when
// the asset does not participate in the category.
func (o *OpContext) EModeAssetConfig(ctx context.Context, categoryId uint8, assetId uuid.UUID) (*EModeAssetConfig, error) {
	key := emodeAssetKey{categoryId: categoryId, assetId: assetId}
	if cfg, ok := o.emodeAssets[key]; ok {
		return cfg, nil
	}
	cfg, err := o.stores.GetEModeAssetConfig(ctx, categoryId, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			o.emodeAssets[key] = nil
			return nil, nil
		}
		return nil, err
	}
	o.emodeAssets[key] = cfg
	return cfg, nil
}

func (o *OpContext) Market(ctx context.Context, assetId uuid.UUID) (*Market, error) {
	if m, ok := o.markets[assetId]; ok {
		return m, nil
	}
	m, err := o.stores.GetMarketByAssetId(ctx, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, MarketNotFound
		}
		return nil, err
	}
	o.markets[assetId] = m
	return m, nil
}

func (o *OpContext) Account(ctx context.Context, accountId uuid.UUID) (*Account, error) {
	if a, ok := o.accounts[accountId]; ok {
		return a, nil
	}
	a, err := o.stores.GetAccountById(ctx, accountId)
	if err != nil {
		return nil, err
	}
	o.accounts[accountId] = a
	return a, nil
}

// AccountPositions lists the account's positions, overlaying any created
// in this operation over the stored set.
func (o *OpContext) AccountPositions(ctx context.Context, accountId uuid.UUID) ([]*Position, error) {
	if list, ok := o.listed[accountId]; ok {
		return list, nil
	}
	stored, err := o.stores.ListPositions(ctx, accountId)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	list := make([]*Position, 0, len(stored))
	for _, p := range stored {
		key := positionKey{accountId: p.AccountId, assetId: p.AssetId, kind: p.Kind}
		if cached, ok := o.positions[key]; ok {
			list = append(list, cached)
			continue
		}
		o.positions[key] = p
		list = append(list, p)
	}
	for key, p := range o.positions {
		if key.accountId != accountId {
			continue
		}
		found := false
		for _, existing := range list {
			if existing == p {
				found = true
				break
			}
		}
		if !found {
			list = append(list, p)
		}
	}
	o.listed[accountId] = list
	return list, nil
}

// Position returns the cached or stored position, or nil when absent.
func (o *OpContext) Position(ctx context.Context, accountId, assetId uuid.UUID, kind PositionKind) (*Position, error) {
	key := positionKey{accountId: accountId, assetId: assetId, kind: kind}
	if p, ok := o.positions[key]; ok {
		if _, removed := o.removedPositions[key]; removed {
			return nil, nil
		}
		return p, nil
	}
	p, err := o.stores.FindPosition(ctx, accountId, assetId, kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	o.positions[key] = p
	return p, nil
}

// FindOrCreatePosition returns the live position, creating a zero one
// bound to the market's current index on first touch.
func (o *OpContext) FindOrCreatePosition(ctx context.Context, account *Account, market *Market, kind PositionKind) (*Position, error) {
	key := positionKey{accountId: account.Id, assetId: market.AssetId, kind: kind}
	p, err := o.Position(ctx, account.Id, market.AssetId, kind)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	index := market.SupplyIndex
	if kind == PositionBorrow {
		index = market.BorrowIndex
	}
	isVault := kind == PositionDeposit && account.GetFlag(AccountVaultFlag)
	p = NewPosition(account.Id, market.AssetId, kind, index, market.AssetScale(), isVault, o.clk.Now())

	o.positions[key] = p
	delete(o.removedPositions, key)
	if list, ok := o.listed[account.Id]; ok {
		o.listed[account.Id] = append(list, p)
	}
	return p, nil
}

func (o *OpContext) MarkMarketDirty(m *Market) {
	o.dirtyMarkets[m.AssetId] = m
}

func (o *OpContext) MarkAccountDirty(a *Account) {
	a.UpdatedAt = o.Now()
	o.dirtyAccounts[a.Id] = a
}

func (o *OpContext) MarkPositionDirty(p *Position) {
	key := positionKey{accountId: p.AccountId, assetId: p.AssetId, kind: p.Kind}
	if p.IsEmpty() {
		o.removedPositions[key] = p
		delete(o.dirtyPositions, key)
		return
	}
	delete(o.removedPositions, key)
	o.dirtyPositions[key] = p
}

func (o *OpContext) RecordOperation(accountId, assetId uuid.UUID, kind OperationKind, amount Dec) {
	o.operations = append(o.operations, NewOperation(accountId, assetId, kind, amount, o.clk.Now()))
}

// Commit flushes every buffered mutation. It is called only on the
// success path; an aborted operation simply drops the context.
func (o *OpContext) Commit(ctx context.Context) error {
	for _, a := range o.dirtyAccounts {
		if err := o.stores.UpsertAccount(ctx, a); err != nil {
			return errors.Wrap(err, "commit account")
		}
	}
	for _, m := range o.dirtyMarkets {
		if err := o.stores.UpsertMarket(ctx, m); err != nil {
			return errors.Wrap(err, "commit market")
		}
	}
	for _, p := range o.dirtyPositions {
		if err := o.stores.UpsertPosition(ctx, p); err != nil {
			return errors.Wrap(err, "commit position")
		}
	}
	for key := range o.removedPositions {
		if err := o.stores.DeletePosition(ctx, key.accountId, key.assetId, key.kind); err != nil {
			return errors.Wrap(err, "remove position")
		}
	}
	for _, op := range o.operations {
		if err := o.stores.CreateOperation(ctx, op); err != nil {
			return errors.Wrap(err, "record operation")
		}
	}
	return nil
}
