package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Pool is the set of transactional entry points over the accounting core.
// Every operation builds a fresh OpContext, runs to completion and commits,
// or aborts with no mutation visible to later calls.
type Pool struct {
	clk    clock.Clock
	log    Log
	stores Stores
	oracle PriceAdapter
	safety PriceSafety
	token  PositionToken

	flashFee    Dec // BPS
	inFlashLoan bool
}

type PoolOption func(p *Pool)

func WithClock(clk clock.Clock) PoolOption {
	return func(p *Pool) { p.clk = clk }
}

func WithPriceSafety(safety PriceSafety) PoolOption {
	return func(p *Pool) { p.safety = safety }
}

func WithPositionToken(token PositionToken) PoolOption {
	return func(p *Pool) { p.token = token }
}

func WithFlashLoanFee(fee Dec) PoolOption {
	return func(p *Pool) { p.flashFee = fee }
}

func NewPool(stores Stores, oracle PriceAdapter, log Log, opts ...PoolOption) *Pool {
	p := &Pool{
		clk:      clock.New(),
		log:      log,
		stores:   stores,
		oracle:   oracle,
		safety:   DefaultPriceSafety(),
		flashFee: DEFAULT_FLASH_LOAN_FEE,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) newOp() *OpContext {
	return NewOpContext(p.clk, p.log, p.stores, p.oracle, p.safety)
}

// findOrCreateAccount resolves the account behind a position-token nonce,
// minting the token on first supply.
func (p *Pool) findOrCreateAccount(ctx context.Context, opc *OpContext, nonce uint64) (*Account, error) {
	account, err := p.stores.GetAccountByNonce(ctx, nonce)
	if err == nil {
		opc.accounts[account.Id] = account
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = NewAccount(p.clk, nonce)
	if p.token != nil {
		if err := p.token.Mint(ctx, account); err != nil {
			return nil, errors.Wrap(err, "mint position token")
		}
	}
	opc.accounts[account.Id] = account
	opc.MarkAccountDirty(account)
	return account, nil
}

func (p *Pool) account(ctx context.Context, opc *OpContext, nonce uint64) (*Account, error) {
	account, err := p.stores.GetAccountByNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	opc.accounts[account.Id] = account
	return account, nil
}

// Supply deposits amount of the asset for the account, minting its
// position token on first touch.
func (p *Pool) Supply(ctx context.Context, nonce uint64, assetId uuid.UUID, amount Dec) error {
	if !amount.IsPositive() {
		return NonPositiveAmount
	}

	opc := p.newOp()
	account, err := p.findOrCreateAccount(ctx, opc, nonce)
	if err != nil {
		return err
	}
	cfg, err := opc.Config(ctx, assetId)
	if err != nil {
		return err
	}
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.AssertOperationalMode(true); err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}
	amount = amount.RescaleHalfUp(market.AssetScale())

	health := NewHealthEngine(opc, p.log)
	if err := health.CheckSupplyGates(ctx, account, cfg, market, amount); err != nil {
		return err
	}

	pos, err := opc.FindOrCreatePosition(ctx, account, market, PositionDeposit)
	if err != nil {
		return err
	}
	if _, err := pos.Touch(market.SupplyIndex, opc.Now()); err != nil {
		return err
	}
	if err := pos.IncreasePrincipal(amount); err != nil {
		return err
	}
	if !pos.IsVault {
		market.Supplied = market.Supplied.Add(amount)
	}

	if cfg.GetFlag(AssetFlagIsolated) && !account.GetFlag(AccountIsolatedFlag) {
		account.SetFlag(AccountIsolatedFlag)
		if err := p.updateTokenAttributes(ctx, account); err != nil {
			return err
		}
		opc.MarkAccountDirty(account)
	}

	opc.MarkPositionDirty(pos)
	opc.MarkMarketDirty(market)
	opc.RecordOperation(account.Id, assetId, OpSupply, amount)
	return opc.Commit(ctx)
}

// Withdraw takes amount of the asset back out; withdrawAll drains the
// position. The account must stay healthy afterwards.
func (p *Pool) Withdraw(ctx context.Context, nonce uint64, assetId uuid.UUID, amount Dec, withdrawAll bool) error {
	opc := p.newOp()
	account, err := p.account(ctx, opc, nonce)
	if err != nil {
		return err
	}
	cfg, err := opc.Config(ctx, assetId)
	if err != nil {
		return err
	}
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.AssertOperationalMode(false); err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}

	pos, err := opc.Position(ctx, account.Id, assetId, PositionDeposit)
	if err != nil {
		return err
	}
	if pos == nil || pos.IsEmpty() {
		return PositionNotFound
	}
	if _, err := pos.Touch(market.SupplyIndex, opc.Now()); err != nil {
		return err
	}

	if withdrawAll {
		amount = pos.Principal
	} else {
		amount = amount.RescaleHalfUp(market.AssetScale())
	}
	if !amount.IsPositive() {
		return NonPositiveAmount
	}

	if !pos.IsVault {
		if amount.GreaterThan(market.AvailableLiquidity()) {
			return InsufficientLiquidity
		}
		market.Supplied = market.Supplied.Sub(amount)
	}
	if err := pos.DecreasePrincipal(amount); err != nil {
		return err
	}

	if cfg.GetFlag(AssetFlagIsolated) && pos.IsEmpty() && account.GetFlag(AccountIsolatedFlag) {
		account.UnsetFlag(AccountIsolatedFlag)
		if err := p.updateTokenAttributes(ctx, account); err != nil {
			return err
		}
		opc.MarkAccountDirty(account)
	}

	opc.MarkPositionDirty(pos)
	opc.MarkMarketDirty(market)

	health := NewHealthEngine(opc, p.log)
	if err := health.CheckHealthy(ctx, account); err != nil {
		return err
	}

	opc.RecordOperation(account.Id, assetId, OpWithdraw, amount)
	return opc.Commit(ctx)
}

// Borrow draws amount of the asset against the account's collateral.
func (p *Pool) Borrow(ctx context.Context, nonce uint64, assetId uuid.UUID, amount Dec) error {
	if !amount.IsPositive() {
		return NonPositiveAmount
	}

	opc := p.newOp()
	account, err := p.account(ctx, opc, nonce)
	if err != nil {
		return err
	}
	cfg, err := opc.Config(ctx, assetId)
	if err != nil {
		return err
	}
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.AssertOperationalMode(true); err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}
	amount = amount.RescaleHalfUp(market.AssetScale())

	health := NewHealthEngine(opc, p.log)
	if err := health.CheckBorrowGates(ctx, account, cfg, market, amount); err != nil {
		return err
	}
	if amount.GreaterThan(market.AvailableLiquidity()) {
		return InsufficientLiquidity
	}

	pos, err := opc.FindOrCreatePosition(ctx, account, market, PositionBorrow)
	if err != nil {
		return err
	}
	if _, err := pos.Touch(market.BorrowIndex, opc.Now()); err != nil {
		return err
	}
	if err := pos.IncreasePrincipal(amount); err != nil {
		return err
	}
	market.Borrowed = market.Borrowed.Add(amount)

	if account.GetFlag(AccountIsolatedFlag) {
		feed, err := opc.PriceOf(ctx, assetId)
		if err != nil {
			return err
		}
		value := amount.MulHalfUp(feed.Price, WadScale)
		if err := chargeIsolationDebt(ctx, opc, account, value); err != nil {
			return err
		}
	}

	opc.MarkPositionDirty(pos)
	opc.MarkMarketDirty(market)

	if err := health.CheckHealthy(ctx, account); err != nil {
		return err
	}

	opc.RecordOperation(account.Id, assetId, OpBorrow, amount)
	return opc.Commit(ctx)
}

// Repay pays amount back into the account's borrow position; repayAll
// clears it. Paying more than is owed is a negative-debt attempt.
func (p *Pool) Repay(ctx context.Context, nonce uint64, assetId uuid.UUID, amount Dec, repayAll bool) error {
	opc := p.newOp()
	account, err := p.account(ctx, opc, nonce)
	if err != nil {
		return err
	}
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.AssertOperationalMode(false); err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}

	pos, err := opc.Position(ctx, account.Id, assetId, PositionBorrow)
	if err != nil {
		return err
	}
	if pos == nil || pos.IsEmpty() {
		return NoDebtPosition
	}
	if _, err := pos.Touch(market.BorrowIndex, opc.Now()); err != nil {
		return err
	}

	if repayAll {
		amount = pos.Principal
	} else {
		amount = amount.RescaleHalfUp(market.AssetScale())
	}
	if !amount.IsPositive() {
		return NonPositiveAmount
	}

	if err := pos.DecreasePrincipal(amount); err != nil {
		return err
	}
	market.Borrowed = market.Borrowed.Sub(amount)

	if account.GetFlag(AccountIsolatedFlag) {
		feed, err := opc.PriceOf(ctx, assetId)
		if err != nil {
			return err
		}
		value := amount.MulHalfUp(feed.Price, WadScale)
		if err := refundIsolationDebt(ctx, opc, account, value); err != nil {
			return err
		}
	}

	opc.MarkPositionDirty(pos)
	opc.MarkMarketDirty(market)
	opc.RecordOperation(account.Id, assetId, OpRepay, amount)
	return opc.Commit(ctx)
}

// InjectReward tops up supplier yield with protocol funds, after first
// capitalizing interest at the pre-injection rate.
func (p *Pool) InjectReward(ctx context.Context, assetId uuid.UUID, amount Dec) error {
	opc := p.newOp()
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}
	amount = amount.RescaleHalfUp(market.AssetScale())
	if err := market.InjectReward(amount); err != nil {
		return err
	}
	opc.MarkMarketDirty(market)
	opc.RecordOperation(uuid.Nil, assetId, OpInjectReward, amount)
	return opc.Commit(ctx)
}

// Liquidate resolves an unhealthy account with the given ordered
// repayment entries.
func (p *Pool) Liquidate(ctx context.Context, liquidateeNonce uint64, entries []RepaymentEntry, minReceiptValue Dec) (*LiquidateResult, error) {
	opc := p.newOp()
	account, err := p.account(ctx, opc, liquidateeNonce)
	if err != nil {
		return nil, err
	}

	health := NewHealthEngine(opc, p.log)
	engine := NewLiquidationEngine(opc, health, p.log)
	result, err := engine.Liquidate(ctx, account, entries, minReceiptValue)
	if err != nil {
		return nil, err
	}

	for _, repaid := range result.Repaid {
		opc.RecordOperation(account.Id, repaid.AssetId, OpLiquidate, repaid.Amount)
	}
	if err := opc.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// FlashLoanHandler receives the loaned amount and owed fee, and returns
// the amount handed back to the pool.
type FlashLoanHandler func(amount, fee Dec) (Dec, error)

// FlashLoan lends amount for the duration of fn. The whole call fails
// unless fn returns at least amount plus fee. A second flash loan while
// one is in flight fails immediately.
func (p *Pool) FlashLoan(ctx context.Context, assetId uuid.UUID, amount Dec, fn FlashLoanHandler) error {
	if p.inFlashLoan {
		return ReentrantFlashLoan
	}
	if !amount.IsPositive() {
		return NonPositiveAmount
	}

	opc := p.newOp()
	cfg, err := opc.Config(ctx, assetId)
	if err != nil {
		return err
	}
	if !cfg.GetFlag(AssetFlagFlashloanable) {
		return FlashLoanNotEnabled
	}
	market, err := opc.Market(ctx, assetId)
	if err != nil {
		return err
	}
	if err := market.AssertOperationalMode(false); err != nil {
		return err
	}
	if err := market.Accrue(p.log, opc.Now()); err != nil {
		return err
	}
	amount = amount.RescaleHalfUp(market.AssetScale())
	if amount.GreaterThan(market.AvailableLiquidity()) {
		return InsufficientLiquidity
	}

	fee := amount.MulHalfUp(p.flashFee, market.AssetScale())

	p.inFlashLoan = true
	defer func() { p.inFlashLoan = false }()
	repaid, err := fn(amount, fee)
	if err != nil {
		return errors.Wrap(err, "flash loan callback")
	}
	repaid = repaid.RescaleHalfUp(market.AssetScale())
	if repaid.LessThan(amount.Add(fee)) {
		return FlashLoanNotRepaid
	}

	market.Reserves = market.Reserves.Add(repaid.Sub(amount))
	opc.MarkMarketDirty(market)
	opc.RecordOperation(uuid.Nil, assetId, OpFlashLoan, amount)
	return opc.Commit(ctx)
}

// SetVault toggles the vault attribute; subsequent deposits are frozen
// out of interest accrual. Existing positions keep their vault flag.
func (p *Pool) SetVault(ctx context.Context, nonce uint64, enabled bool) error {
	opc := p.newOp()
	account, err := p.account(ctx, opc, nonce)
	if err != nil {
		return err
	}
	if enabled {
		account.SetFlag(AccountVaultFlag)
	} else {
		account.UnsetFlag(AccountVaultFlag)
	}
	if err := p.updateTokenAttributes(ctx, account); err != nil {
		return err
	}
	opc.MarkAccountDirty(account)
	opc.RecordOperation(account.Id, uuid.Nil, OpSetVault, ZeroDec(0))
	return opc.Commit(ctx)
}

// SelectEModeCategory binds the account to an efficiency-mode category.
// The category constrains every later operation, so it can only change
// while the account has no open positions.
func (p *Pool) SelectEModeCategory(ctx context.Context, nonce uint64, categoryId uint8) error {
	opc := p.newOp()
	account, err := p.account(ctx, opc, nonce)
	if err != nil {
		return err
	}
	if account.GetFlag(AccountIsolatedFlag) {
		return EModeIsolationConflict
	}

	if categoryId != 0 {
		category, err := opc.EModeCategory(ctx, categoryId)
		if err != nil {
			return err
		}
		if category.Deprecated {
			return EModeCategoryDeprecated
		}
	}

	positions, err := opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if !pos.IsEmpty() {
			return EModeSelectionLocked
		}
	}

	account.EModeCategory = categoryId
	if err := p.updateTokenAttributes(ctx, account); err != nil {
		return err
	}
	opc.MarkAccountDirty(account)
	opc.RecordOperation(account.Id, uuid.Nil, OpSelectEMode, ZeroDec(0))
	return opc.Commit(ctx)
}

// SetUnsafePriceOverride toggles the staleness/tolerance bypass applied to
// every subsequent price read. Enabling it requires owner authority;
// disabling never does.
func (p *Pool) SetUnsafePriceOverride(enabled, ownerAuthorized bool) error {
	if enabled && !ownerAuthorized {
		return UnsafePriceForbidden
	}
	p.safety.AllowUnsafe = enabled
	return nil
}

func (p *Pool) updateTokenAttributes(ctx context.Context, account *Account) error {
	if p.token == nil {
		return nil
	}
	return p.token.UpdateAttributes(ctx, account)
}

// isolatedCollateral finds the account's isolated collateral leg, if any.
func isolatedCollateral(ctx context.Context, opc *OpContext, account *Account) (*AssetConfig, *Market, error) {
	positions, err := opc.AccountPositions(ctx, account.Id)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range positions {
		if p.Kind != PositionDeposit || p.IsEmpty() {
			continue
		}
		cfg, err := opc.Config(ctx, p.AssetId)
		if err != nil {
			return nil, nil, err
		}
		if cfg.GetFlag(AssetFlagIsolated) {
			market, err := opc.Market(ctx, p.AssetId)
			if err != nil {
				return nil, nil, err
			}
			return cfg, market, nil
		}
	}
	return nil, nil, nil
}

// chargeIsolationDebt books newly drawn debt value against the isolated
// collateral's ceiling.
func chargeIsolationDebt(ctx context.Context, opc *OpContext, account *Account, value Dec) error {
	cfg, market, err := isolatedCollateral(ctx, opc, account)
	if err != nil || cfg == nil {
		return err
	}
	newDebt := market.IsolatedDebt.Add(value)
	if cfg.IsolationDebtCeiling.IsPositive() && newDebt.GreaterThan(cfg.IsolationDebtCeiling) {
		return IsolationDebtCeilingExceeded
	}
	market.IsolatedDebt = newDebt
	opc.MarkMarketDirty(market)
	return nil
}

func refundIsolationDebt(ctx context.Context, opc *OpContext, account *Account, value Dec) error {
	_, market, err := isolatedCollateral(ctx, opc, account)
	if err != nil || market == nil {
		return err
	}
	market.IsolatedDebt = market.IsolatedDebt.Sub(value).Max(ZeroDec(WadScale))
	opc.MarkMarketDirty(market)
	return nil
}
