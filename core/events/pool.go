package events

import (
	"math/big"
	"strconv"
)

const (
	// TypePoolStatusChanged is emitted when a pool's status gate changes.
	TypePoolStatusChanged = "pool.status_changed"
	// TypePoolAccrualUpdated is emitted when a pool's accrual index advances.
	TypePoolAccrualUpdated = "pool.accrual_updated"
	// TypePoolDeposited is emitted when a lender supplies liquidity.
	TypePoolDeposited = "pool.deposited"
	// TypePoolWithdrawn is emitted when a lender redeems shares.
	TypePoolWithdrawn = "pool.withdrawn"
)

// PoolStatusChanged captures a pool status transition.
type PoolStatusChanged struct {
	PoolID string
	Status string
}

func (PoolStatusChanged) EventType() string { return TypePoolStatusChanged }

func (e PoolStatusChanged) Record() *Record {
	return &Record{Type: TypePoolStatusChanged, Attributes: map[string]string{
		"poolId": e.PoolID,
		"status": e.Status,
	}}
}

// PoolDeposited captures a liquidity supply into a pool.
type PoolDeposited struct {
	PoolID  string
	Account string
	Amount  *big.Int
	Shares  *big.Int
}

func (PoolDeposited) EventType() string { return TypePoolDeposited }

func (e PoolDeposited) Record() *Record {
	attrs := map[string]string{
		"poolId":  e.PoolID,
		"account": e.Account,
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if e.Shares != nil {
		attrs["shares"] = e.Shares.String()
	}
	return &Record{Type: TypePoolDeposited, Attributes: attrs}
}

// PoolWithdrawn captures a share redemption from a pool.
type PoolWithdrawn struct {
	PoolID  string
	Account string
	Amount  *big.Int
	Shares  *big.Int
}

func (PoolWithdrawn) EventType() string { return TypePoolWithdrawn }

func (e PoolWithdrawn) Record() *Record {
	attrs := map[string]string{
		"poolId":  e.PoolID,
		"account": e.Account,
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if e.Shares != nil {
		attrs["shares"] = e.Shares.String()
	}
	return &Record{Type: TypePoolWithdrawn, Attributes: attrs}
}

// PoolAccrualUpdated captures an advance of the pool's interest accrual index.
type PoolAccrualUpdated struct {
	PoolID    string
	Accrual   *big.Int
	Timestamp uint64
}

func (PoolAccrualUpdated) EventType() string { return TypePoolAccrualUpdated }

func (e PoolAccrualUpdated) Record() *Record {
	attrs := map[string]string{
		"poolId":    e.PoolID,
		"timestamp": strconv.FormatUint(e.Timestamp, 10),
	}
	if e.Accrual != nil {
		attrs["accrual"] = e.Accrual.String()
	}
	return &Record{Type: TypePoolAccrualUpdated, Attributes: attrs}
}
