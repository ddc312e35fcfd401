package core

import (
	"context"
	"strconv"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/vegalend/core/utils"
)

type (
	AccountStore interface {
		GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error)
		GetAccountByNonce(ctx context.Context, nonce uint64) (*Account, error)
		CreateAccount(ctx context.Context, account *Account) error
		UpsertAccount(ctx context.Context, account *Account) error
	}

	// Account identity is keyed by the position token's nonce. The
	// attribute flags and the e-mode category are written onto the token
	// at mint time and mutated only by explicit attribute updates.
	Account struct {
		Id    uuid.UUID `json:"id"`
		Nonce uint64    `json:"nonce"`

		Flags         AccountFlags `json:"flags"`
		EModeCategory uint8        `json:"eModeCategory"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	// PositionToken is the non-fungible ownership receipt collaborator.
	PositionToken interface {
		Mint(ctx context.Context, account *Account) error
		UpdateAttributes(ctx context.Context, account *Account) error
		Burn(ctx context.Context, accountId uuid.UUID) error
	}
)

type AccountFlags uint8

const (
	// AccountIsolatedFlag marks an account whose sole collateral is an
	// isolated asset.
	AccountIsolatedFlag AccountFlags = 1 << iota
	// AccountVaultFlag makes subsequent deposits vault deposits.
	AccountVaultFlag
)

func (a *Account) SetFlag(flag AccountFlags) {
	a.Flags |= flag
}

func (a *Account) UnsetFlag(flag AccountFlags) {
	a.Flags &= ^flag
}

func (a *Account) GetFlag(flag AccountFlags) bool {
	return a.Flags&flag != 0
}

func NewAccount(clk clock.Clock, nonce uint64) *Account {
	return &Account{
		Id:        uuid.Must(uuid.FromString(utils.GenUuidFromStrings("account", strconv.FormatUint(nonce, 10)))),
		Nonce:     nonce,
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
}
