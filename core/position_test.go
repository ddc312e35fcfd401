package core

import (
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPosition(kind PositionKind, isVault bool) *Position {
	return NewPosition(
		uuid.Must(uuid.NewV4()),
		uuid.Must(uuid.NewV4()),
		kind,
		RayOne(),
		8,
		isVault,
		time.Unix(1_700_000_000, 0),
	)
}

func TestTouchGrowsPrincipalWithIndex(t *testing.T) {
	pos := newTestPosition(PositionBorrow, false)
	require.NoError(t, pos.IncreasePrincipal(amt(100, 8)))

	accrued, err := pos.Touch(rayF(1.05), 1_700_000_100)
	require.NoError(t, err)

	assert.True(t, pos.Principal.Equal(amt(105, 8)))
	assert.True(t, accrued.Equal(amt(5, 8)))
	assert.True(t, pos.IndexSnapshot.Equal(rayF(1.05)))
	assert.Equal(t, int64(1_700_000_100), pos.LastUpdate)

	// Touching again at the same index accrues nothing.
	accrued, err = pos.Touch(rayF(1.05), 1_700_000_200)
	require.NoError(t, err)
	assert.True(t, accrued.IsZero())
	assert.True(t, pos.Principal.Equal(amt(105, 8)))
}

func TestTouchEmptyPositionMovesSnapshotOnly(t *testing.T) {
	pos := newTestPosition(PositionDeposit, false)

	accrued, err := pos.Touch(rayF(1.2), 1_700_000_100)
	require.NoError(t, err)

	assert.True(t, accrued.IsZero())
	assert.True(t, pos.Principal.IsZero())
	assert.True(t, pos.IndexSnapshot.Equal(rayF(1.2)))
}

func TestVaultDepositIsFrozen(t *testing.T) {
	pos := newTestPosition(PositionDeposit, true)
	require.NoError(t, pos.IncreasePrincipal(amt(100, 8)))

	accrued, err := pos.Touch(rayF(1.5), 1_700_000_100)
	require.NoError(t, err)

	assert.True(t, accrued.IsZero())
	assert.True(t, pos.Principal.Equal(amt(100, 8)))
	assert.True(t, pos.IndexSnapshot.Equal(RayOne()))
}

func TestVaultFlagOnlyAppliesToDeposits(t *testing.T) {
	pos := newTestPosition(PositionBorrow, true)
	assert.False(t, pos.IsVault)
}

func TestDecreasePrincipalOvershoot(t *testing.T) {
	borrow := newTestPosition(PositionBorrow, false)
	require.NoError(t, borrow.IncreasePrincipal(amt(100, 8)))
	assert.ErrorIs(t, borrow.DecreasePrincipal(amt(100.00000001, 8)), NegativeDebt)

	deposit := newTestPosition(PositionDeposit, false)
	require.NoError(t, deposit.IncreasePrincipal(amt(100, 8)))
	assert.ErrorIs(t, deposit.DecreasePrincipal(amt(100.00000001, 8)), InsufficientDeposit)

	// Exact drain is fine and empties the position.
	require.NoError(t, deposit.DecreasePrincipal(amt(100, 8)))
	assert.True(t, deposit.IsEmpty())
}

func TestPrincipalMutationRejectsNonPositive(t *testing.T) {
	pos := newTestPosition(PositionDeposit, false)
	assert.ErrorIs(t, pos.IncreasePrincipal(ZeroDec(8)), NonPositiveAmount)
	assert.ErrorIs(t, pos.IncreasePrincipal(amt(-1, 8)), NonPositiveAmount)
	assert.ErrorIs(t, pos.DecreasePrincipal(ZeroDec(8)), NonPositiveAmount)
}
