package core

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type (
	PositionStore interface {
		FindPosition(ctx context.Context, accountId, assetId uuid.UUID, kind PositionKind) (*Position, error)
		ListPositions(ctx context.Context, accountId uuid.UUID) ([]*Position, error)
		UpsertPosition(ctx context.Context, position *Position) error
		DeletePosition(ctx context.Context, accountId, assetId uuid.UUID, kind PositionKind) error
	}

	// Position is an account's stake in one market, tracked in the asset's
	// native units against an index snapshot. A position exists only while
	// its principal is non-zero.
	Position struct {
		AccountId uuid.UUID `json:"accountId"`
		AssetId   uuid.UUID `json:"assetId"`

		Kind          PositionKind `json:"kind"`
		Principal     Dec          `json:"principal"`     // asset scale
		IndexSnapshot Dec          `json:"indexSnapshot"` // RAY

		// Vault deposits are frozen: they never accrue interest and are
		// excluded from the interest-bearing supply total.
		IsVault bool `json:"isVault"`

		LastUpdate int64 `json:"lastUpdate"`
	}
)

// PositionKind has exactly two variants; there is no empty state, a
// position that would be empty is removed instead.
type PositionKind uint8

const (
	PositionDeposit PositionKind = iota
	PositionBorrow
)

func (k PositionKind) String() string {
	switch k {
	case PositionDeposit:
		return "Deposit"
	case PositionBorrow:
		return "Borrow"
	default:
		return "Unknown"
	}
}

func NewPosition(accountId, assetId uuid.UUID, kind PositionKind, index Dec, assetScale int32, isVault bool, createTime time.Time) *Position {
	return &Position{
		AccountId:     accountId,
		AssetId:       assetId,
		Kind:          kind,
		Principal:     ZeroDec(assetScale),
		IndexSnapshot: index,
		IsVault:       isVault && kind == PositionDeposit,
		LastUpdate:    createTime.Unix(),
	}
}

// Touch lazily revalues the principal against the market's current index
// and moves the snapshot forward. Returns the interest accrued since the
// last touch, in asset units. Vault deposits are left untouched.
func (p *Position) Touch(currentIndex Dec, now int64) (Dec, error) {
	scale := p.Principal.Scale()
	if p.IsVault {
		return ZeroDec(scale), nil
	}
	if p.Principal.IsZero() {
		p.IndexSnapshot = currentIndex
		p.LastUpdate = now
		return ZeroDec(scale), nil
	}

	ratio, err := currentIndex.DivHalfUp(p.IndexSnapshot, RayScale)
	if err != nil {
		return ZeroDec(scale), err
	}
	newPrincipal := p.Principal.MulHalfUp(ratio, scale)
	accrued := newPrincipal.Sub(p.Principal)

	p.Principal = newPrincipal
	p.IndexSnapshot = currentIndex
	p.LastUpdate = now

	return accrued, nil
}

// IncreasePrincipal grows the position after it has been touched.
func (p *Position) IncreasePrincipal(amount Dec) error {
	if !amount.IsPositive() {
		return NonPositiveAmount
	}
	p.Principal = p.Principal.Add(amount)
	return nil
}

// DecreasePrincipal shrinks the position after it has been touched. It
// never clamps: overshooting a borrow position is a negative-debt attempt
// and overshooting a deposit exceeds the balance.
func (p *Position) DecreasePrincipal(amount Dec) error {
	if !amount.IsPositive() {
		return NonPositiveAmount
	}
	if amount.GreaterThan(p.Principal) {
		if p.Kind == PositionBorrow {
			return NegativeDebt
		}
		return InsufficientDeposit
	}
	p.Principal = p.Principal.Sub(amount)
	return nil
}

func (p *Position) IsEmpty() bool {
	return p.Principal.IsZero()
}
