package core

import "github.com/pkg/errors"

// Validation
var (
	UnsupportedAsset   = errors.New("unsupported asset")
	NonPositiveAmount  = errors.New("amount must be positive")
	MalformedRepayment = errors.New("malformed repayment entries")
	InvalidConfig      = errors.New("invalid config")
)

// Capacity
var (
	SupplyCapExceeded = errors.New("market supply cap exceeded")
	BorrowCapExceeded = errors.New("market borrow cap exceeded")
)

// Solvency
var (
	InsufficientLiquidity = errors.New("insufficient market liquidity")
	InsufficientDeposit   = errors.New("insufficient deposit balance")
	RiskRejected          = errors.New("operation would leave account undercollateralized")
	AccountNotUnhealthy   = errors.New("account health factor not below liquidation threshold")
	NoDebtPosition        = errors.New("account has no borrow position in this asset")
	NoCollateralToSeize   = errors.New("account has no collateral to seize")
	ReceiptBelowMinimum   = errors.New("liquidated amount below liquidator minimum receipt")
)

// Policy
var (
	IsolatedCollateralConflict   = errors.New("isolated collateral must be the account's sole collateral")
	IsolationDebtCeilingExceeded = errors.New("isolation mode debt ceiling exceeded")
	SiloedBorrowConflict         = errors.New("siloed borrow must be the account's sole debt")
	EModeCategoryNotFound        = errors.New("e-mode category not registered")
	EModeCategoryDeprecated      = errors.New("e-mode category deprecated")
	EModeCategoryMismatch        = errors.New("asset does not participate in the account's e-mode category")
	EModeIsolationConflict       = errors.New("e-mode and isolated collateral are mutually exclusive")
	EModeSelectionLocked         = errors.New("e-mode category can only change while the account has no open positions")
	AssetNotCollateralizable     = errors.New("asset cannot be used as collateral")
	AssetNotBorrowable           = errors.New("asset cannot be borrowed")
	MarketPaused                 = errors.New("market paused")
	MarketReduceOnly             = errors.New("market is reduce-only")
	PositionNotFound             = errors.New("position not found")
	MarketNotFound               = errors.New("market not found")
)

// Pricing
var (
	PriceAdapterUnset = errors.New("price adapter unset")
	UnsafePrice       = errors.New("price outside safety tolerance")
)

// Arithmetic
var (
	ErrDivisionByZero   = errors.New("division by zero")
	NegativeDebt        = errors.New("debt cannot go negative")
	InvalidTimeOrdering = errors.New("clock moved backwards since last sync")
)

// Access
var (
	ReentrantFlashLoan   = errors.New("flash loan reentrancy")
	FlashLoanNotEnabled  = errors.New("asset not flashloanable")
	FlashLoanNotRepaid   = errors.New("flash loan not repaid with fee")
	UnsafePriceForbidden = errors.New("unsafe price override requires owner authority")
)
