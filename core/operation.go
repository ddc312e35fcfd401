package core

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type (
	OperationStore interface {
		CreateOperation(ctx context.Context, op *Operation) error
		ListOperations(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]*Operation, error)
	}

	// Operation is the audit record written for every committed entry
	// point.
	Operation struct {
		Id        uuid.UUID     `json:"id"`
		AccountId uuid.UUID     `json:"accountId"`
		AssetId   uuid.UUID     `json:"assetId"`
		Kind      OperationKind `json:"kind"`
		Amount    Dec           `json:"amount"`
		CreatedAt int64         `json:"createdAt"`
	}
)

type OperationKind uint8

const (
	OpSupply OperationKind = iota + 1
	OpWithdraw
	OpBorrow
	OpRepay
	OpLiquidate
	OpInjectReward
	OpFlashLoan
	OpSetVault
	OpSelectEMode
)

func (k OperationKind) String() string {
	switch k {
	case OpSupply:
		return "Supply"
	case OpWithdraw:
		return "Withdraw"
	case OpBorrow:
		return "Borrow"
	case OpRepay:
		return "Repay"
	case OpLiquidate:
		return "Liquidate"
	case OpInjectReward:
		return "InjectReward"
	case OpFlashLoan:
		return "FlashLoan"
	case OpSetVault:
		return "SetVault"
	case OpSelectEMode:
		return "SelectEMode"
	default:
		return "Unknown"
	}
}

func NewOperation(accountId, assetId uuid.UUID, kind OperationKind, amount Dec, createTime time.Time) *Operation {
	return &Operation{
		Id:        uuid.Must(uuid.NewV4()),
		AccountId: accountId,
		AssetId:   assetId,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: createTime.Unix(),
	}
}
