package pool

import (
	"math/big"
	"strings"

	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/fixedpoint"
	"github.com/laina-defi/laina/native/token"
)

// MinimumFirstDeposit is the smallest deposit accepted into an empty pool.
// Seeding the share price with dust would let an attacker inflate the
// exchange rate against later depositors.
const MinimumFirstDeposit = 100_000

type engineState interface {
	GetPool(poolID string) (*State, error)
	PutPool(poolID string, st *State) error
	GetPositions(poolID string, addr crypto.Address) (*Positions, error)
	PutPositions(poolID string, addr crypto.Address, pos *Positions) error
}

// Engine orchestrates the share accounting and interest accrual for a single
// asset pool. Privileged operations (borrow, repay, liquidate, collateral
// movement) are reachable only through the loan manager, which holds the
// engine reference.
type Engine struct {
	state       engineState
	tokens      token.Ledger
	emitter     events.Emitter
	poolID      string
	currency    Currency
	poolAddress crypto.Address
	managerAddr crypto.Address
	timestamp   uint64
}

// NewEngine constructs a pool engine holding funds at poolAddr and routing
// admin revenue to managerAddr.
func NewEngine(poolAddr, managerAddr crypto.Address) *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		poolAddress: poolAddr,
		managerAddr: managerAddr,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the engine to the host token ledger.
func (e *Engine) SetTokens(ledger token.Ledger) { e.tokens = ledger }

// SetEmitter configures the event sink. A nil emitter discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPoolID assigns the pool identifier subsequent operations act against.
func (e *Engine) SetPoolID(poolID string) {
	if e == nil {
		return
	}
	e.poolID = strings.TrimSpace(poolID)
}

// PoolID returns the configured pool identifier.
func (e *Engine) PoolID() string {
	if e == nil {
		return ""
	}
	return e.poolID
}

// SetCurrency assigns the asset the pool accounts for. Initialize records it
// too; this exists for engines rebuilt against already initialised state.
func (e *Engine) SetCurrency(currency Currency) {
	if e == nil {
		return
	}
	e.currency = currency
}

// SetTimestamp records the ledger time used for interest accrual deltas.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil {
		return
	}
	e.timestamp = ts
}

// PoolAddress returns the account the pool settles transfers through.
func (e *Engine) PoolAddress() crypto.Address { return e.poolAddress }

// Initialize writes the pool's genesis state: no shares, no balance, accrual
// index at 1.0 and a healthy status. The liquidation threshold doubles as the
// pool's collateral factor.
func (e *Engine) Initialize(currency Currency, liquidationThreshold *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if liquidationThreshold == nil {
		return fixedpoint.ErrOverOrUnderFlow
	}
	e.currency = currency
	st := &State{
		TotalShares:        big.NewInt(0),
		TotalBalance:       big.NewInt(0),
		AvailableBalance:   big.NewInt(0),
		AccrualIndex:       fixedpoint.One(),
		AccrualLastUpdated: e.timestamp,
		CollateralFactor:   new(big.Int).Set(liquidationThreshold),
		InterestMultiplier: big.NewInt(1),
		Status:             StatusHealthy,
	}
	return e.state.PutPool(e.poolID, st)
}

func (e *Engine) loadState() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.GetPool(e.poolID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNotInitialised
	}
	return st.clone(), nil
}

// SetStatus changes the pool's operation gate. Manager-only.
func (e *Engine) SetStatus(status Status) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.Status = status
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolStatusChanged{PoolID: e.poolID, Status: status.String()})
	return nil
}

// SetInterestMultiplier scales the utilization-derived annual rate. Manager-only.
func (e *Engine) SetInterestMultiplier(multiplier *big.Int) error {
	if multiplier == nil || multiplier.Sign() <= 0 {
		return fixedpoint.ErrOverOrUnderFlow
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.InterestMultiplier = new(big.Int).Set(multiplier)
	return e.state.PutPool(e.poolID, st)
}

// AddInterestToAccrual advances the accrual index by elapsed ledger time at
// the pool's current utilization-derived rate. Idempotent within a single
// timestamp.
func (e *Engine) AddInterestToAccrual() error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if err := e.accrue(st); err != nil {
		return err
	}
	return e.state.PutPool(e.poolID, st)
}

func (e *Engine) accrue(st *State) error {
	if e.timestamp < st.AccrualLastUpdated {
		return fixedpoint.ErrOverOrUnderFlow
	}
	elapsed := new(big.Int).SetUint64(e.timestamp - st.AccrualLastUpdated)
	ledgerRatio, err := fixedpoint.MulDiv(elapsed, fixedpoint.One(), big.NewInt(SecondsInYear))
	if err != nil {
		return err
	}
	rate, err := AnnualInterestRate(st)
	if err != nil {
		return err
	}
	interestInYear, err := fixedpoint.MulDiv(st.AccrualIndex, rate, fixedpoint.One())
	if err != nil {
		return err
	}
	interestSinceUpdate, err := fixedpoint.MulDiv(interestInYear, ledgerRatio, fixedpoint.One())
	if err != nil {
		return err
	}
	if st.AccrualIndex, err = fixedpoint.Add(st.AccrualIndex, interestSinceUpdate); err != nil {
		return err
	}
	st.AccrualLastUpdated = e.timestamp
	if interestSinceUpdate.Sign() > 0 {
		e.emitter.Emit(events.PoolAccrualUpdated{
			PoolID:    e.poolID,
			Accrual:   new(big.Int).Set(st.AccrualIndex),
			Timestamp: e.timestamp,
		})
	}
	return nil
}

// Deposit moves amount of the pool's currency from user into the pool and
// mints receivable shares at the current exchange rate. Returns the share
// amount issued.
func (e *Engine) Deposit(user crypto.Address, amount *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokenLedger
	}
	if st.Status == StatusRestricted || st.Status == StatusFrozen {
		return nil, ErrWrongStatus
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return nil, err
	}
	if st.TotalShares.Sign() == 0 && amount.Cmp(big.NewInt(MinimumFirstDeposit)) < 0 {
		return nil, ErrBelowMinimumDeposit
	}

	if err := e.tokens.Transfer(e.currency.TokenID, user, e.poolAddress, amount); err != nil {
		return nil, err
	}

	var sharesIssued *big.Int
	if st.TotalBalance.Sign() == 0 {
		sharesIssued = new(big.Int).Set(amount)
	} else {
		sharesIssued, err = SharesFromTokens(amount, st.TotalBalance, st.TotalShares)
		if err != nil {
			return nil, err
		}
	}

	zero := big.NewInt(0)
	if err := e.increasePositions(user, sharesIssued, zero, zero); err != nil {
		return nil, err
	}
	if st.AvailableBalance, err = fixedpoint.Add(st.AvailableBalance, amount); err != nil {
		return nil, err
	}
	if st.TotalShares, err = fixedpoint.Add(st.TotalShares, sharesIssued); err != nil {
		return nil, err
	}
	if st.TotalBalance, err = fixedpoint.Add(st.TotalBalance, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PoolDeposited{
		PoolID:  e.poolID,
		Account: user.String(),
		Amount:  new(big.Int).Set(amount),
		Shares:  new(big.Int).Set(sharesIssued),
	})
	return sharesIssued, nil
}

// Withdraw burns the shares backing amount tokens and transfers the tokens
// back to user. Returns the resulting pool state.
func (e *Engine) Withdraw(user crypto.Address, amount *big.Int) (*Snapshot, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if st.Status == StatusFrozen {
		return nil, ErrWrongStatus
	}
	return e.withdrawInternal(st, user, amount)
}

func (e *Engine) withdrawInternal(st *State, user crypto.Address, amount *big.Int) (*Snapshot, error) {
	if e.tokens == nil {
		return nil, errNilTokenLedger
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return nil, err
	}

	pos, err := e.loadPositions(user)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(st.AvailableBalance) > 0 {
		return nil, ErrWithdrawOverBalance
	}
	sharesToDecrease, err := SharesFromTokens(amount, st.TotalBalance, st.TotalShares)
	if err != nil {
		return nil, err
	}
	if sharesToDecrease.Cmp(pos.ReceivableShares) > 0 {
		return nil, ErrWithdrawIsNegative
	}

	if st.AvailableBalance, err = fixedpoint.Sub(st.AvailableBalance, amount); err != nil {
		return nil, err
	}
	if st.TotalBalance, err = fixedpoint.Sub(st.TotalBalance, amount); err != nil {
		return nil, err
	}
	if st.TotalShares, err = fixedpoint.Sub(st.TotalShares, sharesToDecrease); err != nil {
		return nil, err
	}
	zero := big.NewInt(0)
	if err := e.decreasePositions(user, sharesToDecrease, zero, zero); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.currency.TokenID, e.poolAddress, user, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PoolWithdrawn{
		PoolID:  e.poolID,
		Account: user.String(),
		Amount:  new(big.Int).Set(amount),
		Shares:  new(big.Int).Set(sharesToDecrease),
	})
	return e.snapshot(st)
}

// Borrow draws amount from the pool's available balance into the borrower's
// account and books it against their liabilities. Manager-only; the manager
// performs the health checks before calling.
func (e *Engine) Borrow(borrower crypto.Address, amount *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokenLedger
	}
	if st.Status != StatusHealthy {
		return nil, ErrWrongStatus
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return nil, err
	}
	// Strict: the pool is never fully drained.
	if amount.Cmp(st.AvailableBalance) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if st.AvailableBalance, err = fixedpoint.Sub(st.AvailableBalance, amount); err != nil {
		return nil, err
	}
	zero := big.NewInt(0)
	if err := e.increasePositions(borrower, zero, amount, zero); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.currency.TokenID, e.poolAddress, borrower, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// DepositCollateral moves tokens from user into the pool and books the
// corresponding share amount (computed by the manager at the current exchange
// rate) as collateral. Manager-only.
func (e *Engine) DepositCollateral(user crypto.Address, tokens, shares *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokenLedger
	}
	if tokens == nil || tokens.Sign() <= 0 || shares == nil || shares.Sign() <= 0 {
		return nil, ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.currency.TokenID, user, e.poolAddress, tokens); err != nil {
		return nil, err
	}
	zero := big.NewInt(0)
	if err := e.increasePositions(user, zero, zero, shares); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return nil, err
	}
	return new(big.Int).Set(tokens), nil
}

// WithdrawCollateral releases tokens from the pool back to user and removes
// the matching share amount from their collateral position. Manager-only.
func (e *Engine) WithdrawCollateral(user crypto.Address, tokens, shares *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokenLedger
	}
	if tokens == nil || tokens.Sign() <= 0 || shares == nil || shares.Sign() <= 0 {
		return nil, ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return nil, err
	}
	zero := big.NewInt(0)
	if err := e.decreasePositions(user, zero, zero, shares); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.currency.TokenID, e.poolAddress, user, tokens); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(e.poolID, st); err != nil {
		return nil, err
	}
	return new(big.Int).Set(tokens), nil
}

// IncreaseLiabilities books additional debt against user without moving
// tokens. The manager uses it to keep pool accounting aligned with loan-level
// interest. Manager-only.
func (e *Engine) IncreaseLiabilities(user crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrNegativeDeposit
	}
	zero := big.NewInt(0)
	return e.increasePositions(user, zero, amount, zero)
}

// adminSplit computes the revenue skim on a repayment: a tenth of whichever
// of the repaid amount and the unpaid interest is smaller.
func adminSplit(amount, unpaidInterest *big.Int) *big.Int {
	smaller := amount
	if unpaidInterest.Cmp(amount) < 0 {
		smaller = unpaidInterest
	}
	return new(big.Int).Quo(smaller, big.NewInt(10))
}

// Repay settles amount of user's debt. A tenth of the interest portion is
// skimmed to the manager's revenue account; the remainder returns to the
// pool. Manager-only.
func (e *Engine) Repay(user crypto.Address, amount, unpaidInterest *big.Int) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokenLedger
	}
	if st.Status == StatusFrozen {
		return ErrWrongStatus
	}
	if amount == nil || amount.Sign() <= 0 || unpaidInterest == nil || unpaidInterest.Sign() < 0 {
		return ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return err
	}

	amountToAdmin := adminSplit(amount, unpaidInterest)
	amountToPool, err := fixedpoint.Sub(amount, amountToAdmin)
	if err != nil {
		return err
	}

	if err := e.tokens.Transfer(e.currency.TokenID, user, e.poolAddress, amountToPool); err != nil {
		return err
	}
	if amountToAdmin.Sign() > 0 {
		if err := e.tokens.Transfer(e.currency.TokenID, user, e.managerAddr, amountToAdmin); err != nil {
			return err
		}
	}

	zero := big.NewInt(0)
	if err := e.decreasePositions(user, zero, amount, zero); err != nil {
		return err
	}
	if st.AvailableBalance, err = fixedpoint.Add(st.AvailableBalance, amountToPool); err != nil {
		return err
	}
	interestToPool, err := fixedpoint.Sub(unpaidInterest, amountToAdmin)
	if err != nil {
		return err
	}
	if st.TotalBalance, err = fixedpoint.Add(st.TotalBalance, interestToPool); err != nil {
		return err
	}
	return e.state.PutPool(e.poolID, st)
}

// RepayAndClose settles user's entire debt, pulling at most maxAllowedAmount
// and refunding the excess over borrowedAmount. The caller deletes the loan
// record afterwards. Manager-only.
func (e *Engine) RepayAndClose(user crypto.Address, borrowedAmount, maxAllowedAmount, unpaidInterest *big.Int) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokenLedger
	}
	if st.Status == StatusFrozen {
		return ErrWrongStatus
	}
	if borrowedAmount == nil || borrowedAmount.Sign() <= 0 ||
		maxAllowedAmount == nil || unpaidInterest == nil || unpaidInterest.Sign() < 0 {
		return ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return err
	}

	amountToAdmin := adminSplit(borrowedAmount, unpaidInterest)
	amountToUser, err := fixedpoint.Sub(maxAllowedAmount, borrowedAmount)
	if err != nil {
		return err
	}
	if amountToUser.Sign() < 0 {
		return ErrNegativeDeposit
	}

	if err := e.tokens.Transfer(e.currency.TokenID, user, e.poolAddress, maxAllowedAmount); err != nil {
		return err
	}
	if amountToAdmin.Sign() > 0 {
		if err := e.tokens.Transfer(e.currency.TokenID, e.poolAddress, e.managerAddr, amountToAdmin); err != nil {
			return err
		}
	}
	if amountToUser.Sign() > 0 {
		if err := e.tokens.Transfer(e.currency.TokenID, e.poolAddress, user, amountToUser); err != nil {
			return err
		}
	}

	pos, err := e.loadPositions(user)
	if err != nil {
		return err
	}
	zero := big.NewInt(0)
	if err := e.decreasePositions(user, zero, pos.Liabilities, zero); err != nil {
		return err
	}
	poolShare, err := fixedpoint.Sub(borrowedAmount, amountToAdmin)
	if err != nil {
		return err
	}
	if st.AvailableBalance, err = fixedpoint.Add(st.AvailableBalance, poolShare); err != nil {
		return err
	}
	interestToPool, err := fixedpoint.Sub(unpaidInterest, amountToAdmin)
	if err != nil {
		return err
	}
	if st.TotalBalance, err = fixedpoint.Add(st.TotalBalance, interestToPool); err != nil {
		return err
	}
	return e.state.PutPool(e.poolID, st)
}

// Liquidate settles part of loanOwner's debt with tokens supplied by the
// liquidator. Manager-only; the manager enforces the health-factor gate and
// the liquidation bounds before calling.
func (e *Engine) Liquidate(liquidator crypto.Address, amount, unpaidInterest *big.Int, loanOwner crypto.Address) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokenLedger
	}
	if st.Status == StatusFrozen {
		return ErrWrongStatus
	}
	if amount == nil || amount.Sign() <= 0 || unpaidInterest == nil || unpaidInterest.Sign() < 0 {
		return ErrNegativeDeposit
	}
	if err := e.accrue(st); err != nil {
		return err
	}

	amountToAdmin := adminSplit(amount, unpaidInterest)
	amountToPool, err := fixedpoint.Sub(amount, amountToAdmin)
	if err != nil {
		return err
	}

	if err := e.tokens.Transfer(e.currency.TokenID, liquidator, e.poolAddress, amountToPool); err != nil {
		return err
	}
	if amountToAdmin.Sign() > 0 {
		if err := e.tokens.Transfer(e.currency.TokenID, liquidator, e.managerAddr, amountToAdmin); err != nil {
			return err
		}
	}

	zero := big.NewInt(0)
	if err := e.decreasePositions(loanOwner, zero, amount, zero); err != nil {
		return err
	}
	if st.AvailableBalance, err = fixedpoint.Add(st.AvailableBalance, amount); err != nil {
		return err
	}
	if st.TotalBalance, err = fixedpoint.Add(st.TotalBalance, amount); err != nil {
		return err
	}
	return e.state.PutPool(e.poolID, st)
}

// LiquidateTransferCollateral releases seized collateral tokens to the
// liquidator and removes the matching shares from loanOwner's collateral
// position. Manager-only.
func (e *Engine) LiquidateTransferCollateral(liquidator crypto.Address, tokens, shares *big.Int, loanOwner crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokenLedger
	}
	if tokens == nil || tokens.Sign() <= 0 || shares == nil || shares.Sign() <= 0 {
		return ErrNegativeDeposit
	}
	zero := big.NewInt(0)
	if err := e.decreasePositions(loanOwner, zero, zero, shares); err != nil {
		return err
	}
	return e.tokens.Transfer(e.currency.TokenID, e.poolAddress, liquidator, tokens)
}

// Accrual returns the pool's current accrual index.
func (e *Engine) Accrual() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.AccrualIndex, nil
}

// CollateralFactor returns the weight applied to this pool's asset when
// pledged as collateral.
func (e *Engine) CollateralFactor() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.CollateralFactor, nil
}

// UserPositions returns addr's positions, zeroed when the account has none.
func (e *Engine) UserPositions(addr crypto.Address) (*Positions, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPositions(addr)
}

// TotalBalance returns the underlying the pool accounts for, lent or not.
func (e *Engine) TotalBalance() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.TotalBalance, nil
}

// TotalShares returns the outstanding receivable share supply.
func (e *Engine) TotalShares() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.TotalShares, nil
}

// AvailableBalance returns the underlying not currently lent out.
func (e *Engine) AvailableBalance() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.AvailableBalance, nil
}

// Currency returns the pool's immutable asset metadata.
func (e *Engine) Currency() Currency { return e.currency }

// GetSharesFromTokens converts tokens to shares at the pool's current
// exchange rate.
func (e *Engine) GetSharesFromTokens(tokens *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return SharesFromTokens(tokens, st.TotalBalance, st.TotalShares)
}

// GetTokensFromShares converts shares to tokens at the pool's current
// exchange rate.
func (e *Engine) GetTokensFromShares(shares *big.Int) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return TokensFromShares(shares, st.TotalBalance, st.TotalShares)
}

// Status returns the pool's current operation gate.
func (e *Engine) Status() (Status, error) {
	st, err := e.loadState()
	if err != nil {
		return StatusFrozen, err
	}
	return st.Status, nil
}

// AnnualRate returns the pool's current annualized borrow rate.
func (e *Engine) AnnualRate() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return AnnualInterestRate(st)
}

// PoolState returns the externally visible pool state.
func (e *Engine) PoolState() (*Snapshot, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return e.snapshot(st)
}

func (e *Engine) snapshot(st *State) (*Snapshot, error) {
	rate, err := AnnualInterestRate(st)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		TotalBalanceTokens:     new(big.Int).Set(st.TotalBalance),
		AvailableBalanceTokens: new(big.Int).Set(st.AvailableBalance),
		TotalBalanceShares:     new(big.Int).Set(st.TotalShares),
		AnnualInterestRate:     rate,
	}, nil
}
