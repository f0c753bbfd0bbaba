package loan

import (
	"math/big"
	"sort"

	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/fixedpoint"
	"github.com/laina-defi/laina/native/pool"
	"github.com/laina-defi/laina/native/token"
)

type managerState interface {
	GetLoan(id ID) (*Loan, error)
	PutLoan(loan *Loan) error
	DeleteLoan(id ID) error
	NextLoanNonce(borrower crypto.Address) (uint64, error)
	LoanNonces(borrower crypto.Address) ([]uint64, error)
	AddLoanNonce(borrower crypto.Address, nonce uint64) error
	RemoveLoanNonce(borrower crypto.Address, nonce uint64) error
}

// PoolHandle is the surface the manager needs from a registered pool. The
// pool engine satisfies it; tests may substitute their own.
type PoolHandle interface {
	PoolID() string
	Currency() pool.Currency
	Accrual() (*big.Int, error)
	CollateralFactor() (*big.Int, error)
	AddInterestToAccrual() error
	GetSharesFromTokens(tokens *big.Int) (*big.Int, error)
	GetTokensFromShares(shares *big.Int) (*big.Int, error)
	Borrow(borrower crypto.Address, amount *big.Int) (*big.Int, error)
	DepositCollateral(user crypto.Address, tokens, shares *big.Int) (*big.Int, error)
	WithdrawCollateral(user crypto.Address, tokens, shares *big.Int) (*big.Int, error)
	IncreaseLiabilities(user crypto.Address, amount *big.Int) error
	Repay(user crypto.Address, amount, unpaidInterest *big.Int) error
	RepayAndClose(user crypto.Address, borrowedAmount, maxAllowedAmount, unpaidInterest *big.Int) error
	Liquidate(liquidator crypto.Address, amount, unpaidInterest *big.Int, loanOwner crypto.Address) error
	LiquidateTransferCollateral(liquidator crypto.Address, tokens, shares *big.Int, loanOwner crypto.Address) error
	SetStatus(status pool.Status) error
	SetInterestMultiplier(multiplier *big.Int) error
	PoolState() (*pool.Snapshot, error)
	UserPositions(addr crypto.Address) (*pool.Positions, error)
}

// Manager orchestrates the loan lifecycle across one borrow pool and one
// collateral pool per loan: creation behind the health-factor gate, interest
// synchronization, repayment and liquidation. It exclusively owns loan
// records; pools only see aggregate position changes.
type Manager struct {
	state           managerState
	oracle          PriceOracle
	emitter         events.Emitter
	tokens          token.Ledger
	pools           map[string]PoolHandle
	adminAddr       crypto.Address
	revenueAddr     crypto.Address
	healthThreshold *big.Int
}

// NewManager constructs a loan manager routing admin revenue to revenueAddr
// and controlled by adminAddr. The loan-creation health threshold defaults to
// parity.
func NewManager(adminAddr, revenueAddr crypto.Address) *Manager {
	return &Manager{
		emitter:         events.NoopEmitter{},
		pools:           make(map[string]PoolHandle),
		adminAddr:       adminAddr,
		revenueAddr:     revenueAddr,
		healthThreshold: fixedpoint.One(),
	}
}

// SetState wires the manager to the external persistence layer.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetOracle wires the price feed used for health-factor math.
func (m *Manager) SetOracle(oracle PriceOracle) { m.oracle = oracle }

// SetTokens wires the host token ledger used for revenue withdrawal.
func (m *Manager) SetTokens(ledger token.Ledger) { m.tokens = ledger }

// SetEmitter configures the event sink. A nil emitter discards events.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// SetHealthFactorThreshold overrides the minimum health factor required to
// open a loan.
func (m *Manager) SetHealthFactorThreshold(threshold *big.Int) {
	if threshold == nil || threshold.Sign() <= 0 {
		return
	}
	m.healthThreshold = new(big.Int).Set(threshold)
}

// RevenueAddress returns the account repayment skims accumulate on.
func (m *Manager) RevenueAddress() crypto.Address { return m.revenueAddr }

// RegisterPool adds a pool engine to the trusted registry. Loans may only
// reference registered pools.
func (m *Manager) RegisterPool(engine PoolHandle) error {
	if engine == nil || engine.PoolID() == "" {
		return ErrInvalidLoanToken
	}
	m.pools[engine.PoolID()] = engine
	return nil
}

// Pool returns the registered engine for poolID, nil when unknown.
func (m *Manager) Pool(poolID string) PoolHandle {
	return m.pools[poolID]
}

// PoolIDs lists the registered pool identifiers in stable order.
func (m *Manager) PoolIDs() []string {
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateLoan opens a new loan: collateralTokens are pledged into the
// collateral pool (converted to shares at the current exchange rate) and
// borrowed is drawn from the borrow pool, provided the resulting health
// factor clears the creation threshold.
func (m *Manager) CreateLoan(user crypto.Address, borrowed *big.Int, borrowedFrom string, collateralTokens *big.Int, collateralFrom string) (*Loan, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if borrowed == nil || borrowed.Sign() <= 0 || collateralTokens == nil || collateralTokens.Sign() <= 0 {
		return nil, errInvalidInput
	}
	borrowPool, ok := m.pools[borrowedFrom]
	if !ok {
		return nil, ErrInvalidLoanToken
	}
	collateralPool, ok := m.pools[collateralFrom]
	if !ok {
		return nil, ErrInvalidCollateralToken
	}

	collateralShares, err := collateralPool.GetSharesFromTokens(collateralTokens)
	if err != nil {
		return nil, err
	}
	healthFactor, err := m.CalculateHealthFactor(
		borrowPool.Currency().Ticker, borrowed,
		collateralPool.Currency().Ticker, collateralTokens, collateralFrom)
	if err != nil {
		return nil, err
	}
	if healthFactor.Cmp(m.healthThreshold) <= 0 {
		return nil, ErrHealthFactorTooLow
	}

	if _, err := collateralPool.DepositCollateral(user, collateralTokens, collateralShares); err != nil {
		return nil, err
	}
	borrowedAmount, err := borrowPool.Borrow(user, borrowed)
	if err != nil {
		return nil, err
	}
	lastAccrual, err := borrowPool.Accrual()
	if err != nil {
		return nil, err
	}

	nonce, err := m.state.NextLoanNonce(user)
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:               ID{Borrower: user, Nonce: nonce},
		BorrowedAmount:   borrowedAmount,
		BorrowedFrom:     borrowedFrom,
		CollateralAmount: collateralShares,
		CollateralFrom:   collateralFrom,
		HealthFactor:     healthFactor,
		UnpaidInterest:   big.NewInt(0),
		LastAccrual:      new(big.Int).Set(lastAccrual),
	}
	if err := m.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := m.state.AddLoanNonce(user, nonce); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.LoanCreated{
		Borrower:       user.String(),
		Nonce:          nonce,
		BorrowedAmount: loan.BorrowedAmount,
		BorrowedFrom:   borrowedFrom,
		CollateralFrom: collateralFrom,
		HealthFactor:   loan.HealthFactor,
	})
	return loan.clone(), nil
}

// AddInterest synchronizes a loan with its borrow pool's accrual index:
// the borrowed amount scales by the index ratio since the loan's last touch,
// the pool's liability record grows by the same delta and the health factor
// is recomputed against the collateral's current token value.
func (m *Manager) AddInterest(id ID) (*Loan, error) {
	loan, err := m.GetLoan(id)
	if err != nil {
		return nil, err
	}
	borrowPool, ok := m.pools[loan.BorrowedFrom]
	if !ok {
		return nil, ErrInvalidLoanToken
	}
	collateralPool, ok := m.pools[loan.CollateralFrom]
	if !ok {
		return nil, ErrInvalidCollateralToken
	}

	if err := borrowPool.AddInterestToAccrual(); err != nil {
		return nil, err
	}
	currentAccrual, err := borrowPool.Accrual()
	if err != nil {
		return nil, err
	}
	multiplier, err := fixedpoint.MulDiv(currentAccrual, fixedpoint.One(), loan.LastAccrual)
	if err != nil {
		return nil, err
	}
	newBorrowed, err := fixedpoint.MulDiv(loan.BorrowedAmount, multiplier, fixedpoint.One())
	if err != nil {
		return nil, err
	}

	collateralTokens, err := collateralPool.GetTokensFromShares(loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	healthFactor, err := m.CalculateHealthFactor(
		borrowPool.Currency().Ticker, newBorrowed,
		collateralPool.Currency().Ticker, collateralTokens, loan.CollateralFrom)
	if err != nil {
		return nil, err
	}

	interestDelta, err := fixedpoint.Sub(newBorrowed, loan.BorrowedAmount)
	if err != nil {
		return nil, err
	}
	if interestDelta.Sign() > 0 {
		if err := borrowPool.IncreaseLiabilities(id.Borrower, interestDelta); err != nil {
			return nil, err
		}
	}

	loan.BorrowedAmount = newBorrowed
	loan.HealthFactor = healthFactor
	if loan.UnpaidInterest, err = fixedpoint.Add(loan.UnpaidInterest, interestDelta); err != nil {
		return nil, err
	}
	loan.LastAccrual = new(big.Int).Set(currentAccrual)
	if err := m.persistLoan(loan); err != nil {
		return nil, err
	}
	return loan.clone(), nil
}

// Repay settles amount of the loan's debt after synchronizing interest.
// Returns the borrowed amount before and after the repayment. A loan is
// never closed here; full closure goes through RepayAndClose.
func (m *Manager) Repay(id ID, amount *big.Int) (*big.Int, *big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, errInvalidInput
	}
	loan, err := m.AddInterest(id)
	if err != nil {
		return nil, nil, err
	}
	if amount.Cmp(loan.BorrowedAmount) > 0 {
		return nil, nil, ErrRepayOverBorrowed
	}
	borrowPool := m.pools[loan.BorrowedFrom]
	collateralPool := m.pools[loan.CollateralFrom]

	if err := borrowPool.Repay(id.Borrower, amount, loan.UnpaidInterest); err != nil {
		return nil, nil, err
	}

	previousBorrowed := new(big.Int).Set(loan.BorrowedAmount)
	if amount.Cmp(loan.UnpaidInterest) < 0 {
		loan.UnpaidInterest = new(big.Int).Sub(loan.UnpaidInterest, amount)
	} else {
		loan.UnpaidInterest = big.NewInt(0)
	}
	if loan.BorrowedAmount, err = fixedpoint.Sub(loan.BorrowedAmount, amount); err != nil {
		return nil, nil, err
	}

	collateralTokens, err := collateralPool.GetTokensFromShares(loan.CollateralAmount)
	if err != nil {
		return nil, nil, err
	}
	if loan.HealthFactor, err = m.CalculateHealthFactor(
		borrowPool.Currency().Ticker, loan.BorrowedAmount,
		collateralPool.Currency().Ticker, collateralTokens, loan.CollateralFrom); err != nil {
		return nil, nil, err
	}
	if err := m.persistLoan(loan); err != nil {
		return nil, nil, err
	}
	return previousBorrowed, new(big.Int).Set(loan.BorrowedAmount), nil
}

// RepayAndClose settles the loan's entire debt (bounded by maxAllowedAmount,
// refunding the excess), returns the full collateral to the borrower and
// deletes the loan record. Returns the settled borrowed amount.
func (m *Manager) RepayAndClose(id ID, maxAllowedAmount *big.Int) (*big.Int, error) {
	if maxAllowedAmount == nil || maxAllowedAmount.Sign() <= 0 {
		return nil, errInvalidInput
	}
	loan, err := m.AddInterest(id)
	if err != nil {
		return nil, err
	}
	borrowPool := m.pools[loan.BorrowedFrom]
	collateralPool := m.pools[loan.CollateralFrom]

	if err := borrowPool.RepayAndClose(id.Borrower, loan.BorrowedAmount, maxAllowedAmount, loan.UnpaidInterest); err != nil {
		return nil, err
	}

	collateralTokens, err := collateralPool.GetTokensFromShares(loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	if _, err := collateralPool.WithdrawCollateral(id.Borrower, collateralTokens, loan.CollateralAmount); err != nil {
		return nil, err
	}

	if err := m.state.DeleteLoan(id); err != nil {
		return nil, err
	}
	if err := m.state.RemoveLoanNonce(id.Borrower, id.Nonce); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.LoanDeleted{Borrower: id.Borrower.String(), Nonce: id.Nonce})
	return new(big.Int).Set(loan.BorrowedAmount), nil
}

// Liquidate lets a third party settle part of an undercollateralized loan in
// exchange for collateral worth the settled value plus a bonus. The loan must
// be below parity, the amount must be between 1% and 50% of the debt, and the
// liquidation must not leave the loan less healthy than it started.
func (m *Manager) Liquidate(liquidator crypto.Address, id ID, amount *big.Int) (*Loan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidInput
	}
	loan, err := m.AddInterest(id)
	if err != nil {
		return nil, err
	}
	borrowPool := m.pools[loan.BorrowedFrom]
	collateralPool := m.pools[loan.CollateralFrom]
	borrowedTicker := borrowPool.Currency().Ticker
	collateralTicker := collateralPool.Currency().Ticker

	collateralTokens, err := collateralPool.GetTokensFromShares(loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	healthBefore, err := m.CalculateHealthFactor(
		borrowedTicker, loan.BorrowedAmount,
		collateralTicker, collateralTokens, loan.CollateralFrom)
	if err != nil {
		return nil, err
	}
	if healthBefore.Cmp(fixedpoint.One()) >= 0 {
		return nil, ErrNotLiquidatable
	}
	if amount.Cmp(new(big.Int).Quo(loan.BorrowedAmount, big.NewInt(2))) >= 0 {
		return nil, ErrLiquidationTooLarge
	}
	if amount.Cmp(new(big.Int).Quo(loan.BorrowedAmount, big.NewInt(100))) <= 0 {
		return nil, ErrLiquidationTooSmall
	}

	borrowedPrice, err := m.GetPrice(borrowedTicker)
	if err != nil {
		return nil, err
	}
	collateralPrice, err := m.GetPrice(collateralTicker)
	if err != nil {
		return nil, err
	}
	collateralFactor, err := collateralPool.CollateralFactor()
	if err != nil {
		return nil, err
	}

	// bonus multiplier = 1 + (1 - collateral_factor)/2, e.g. 2.5%-10%.
	bonus, err := fixedpoint.Sub(fixedpoint.One(), collateralFactor)
	if err != nil {
		return nil, err
	}
	bonus = bonus.Quo(bonus, big.NewInt(2))
	if bonus, err = fixedpoint.Add(bonus, fixedpoint.One()); err != nil {
		return nil, err
	}

	liquidationValue, err := fixedpoint.Mul(amount, borrowedPrice)
	if err != nil {
		return nil, err
	}
	seizedTokens, err := fixedpoint.MulDiv(liquidationValue, bonus, collateralPrice)
	if err != nil {
		return nil, err
	}
	if seizedTokens, err = fixedpoint.Div(seizedTokens, fixedpoint.One()); err != nil {
		return nil, err
	}
	seizedShares, err := collateralPool.GetSharesFromTokens(seizedTokens)
	if err != nil {
		return nil, err
	}

	if err := borrowPool.Liquidate(liquidator, amount, loan.UnpaidInterest, id.Borrower); err != nil {
		return nil, err
	}
	if err := collateralPool.LiquidateTransferCollateral(liquidator, seizedTokens, seizedShares, id.Borrower); err != nil {
		return nil, err
	}

	if loan.BorrowedAmount, err = fixedpoint.Sub(loan.BorrowedAmount, amount); err != nil {
		return nil, err
	}
	if loan.CollateralAmount, err = fixedpoint.Sub(loan.CollateralAmount, seizedShares); err != nil {
		return nil, err
	}

	remainingTokens, err := collateralPool.GetTokensFromShares(loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	healthAfter, err := m.CalculateHealthFactor(
		borrowedTicker, loan.BorrowedAmount,
		collateralTicker, remainingTokens, loan.CollateralFrom)
	if err != nil {
		return nil, err
	}
	if healthAfter.Cmp(healthBefore) < 0 {
		return nil, ErrInvalidLiquidation
	}
	loan.HealthFactor = healthAfter

	if err := m.persistLoan(loan); err != nil {
		return nil, err
	}
	return loan.clone(), nil
}

// GetLoan returns the loan record for id.
func (m *Manager) GetLoan(id ID) (*Loan, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	loan, err := m.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan.clone(), nil
}

// GetLoans returns every active loan held by borrower.
func (m *Manager) GetLoans(borrower crypto.Address) ([]*Loan, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	nonces, err := m.state.LoanNonces(borrower)
	if err != nil {
		return nil, err
	}
	loans := make([]*Loan, 0, len(nonces))
	for _, nonce := range nonces {
		loan, err := m.state.GetLoan(ID{Borrower: borrower, Nonce: nonce})
		if err != nil {
			return nil, err
		}
		if loan != nil {
			loans = append(loans, loan.clone())
		}
	}
	return loans, nil
}

// GetPrice returns the most recent oracle price for ticker.
func (m *Manager) GetPrice(ticker string) (*big.Int, error) {
	if m.oracle == nil {
		return nil, errNilOracle
	}
	return m.oracle.LastPrice(ticker)
}

// WithdrawRevenue moves accumulated repayment skims from the revenue account
// to the admin. Admin-only.
func (m *Manager) WithdrawRevenue(tokenID string, amount *big.Int) error {
	if m.tokens == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidInput
	}
	return m.tokens.Transfer(tokenID, m.revenueAddr, m.adminAddr, amount)
}

// SetPoolStatus changes a registered pool's operation gate. Admin-only.
func (m *Manager) SetPoolStatus(poolID string, status pool.Status) error {
	engine, ok := m.pools[poolID]
	if !ok {
		return ErrInvalidLoanToken
	}
	return engine.SetStatus(status)
}

// SetPoolInterestMultiplier scales a registered pool's interest rate.
// Admin-only.
func (m *Manager) SetPoolInterestMultiplier(poolID string, multiplier *big.Int) error {
	engine, ok := m.pools[poolID]
	if !ok {
		return ErrInvalidLoanToken
	}
	return engine.SetInterestMultiplier(multiplier)
}

func (m *Manager) persistLoan(loan *Loan) error {
	if err := m.state.PutLoan(loan); err != nil {
		return err
	}
	m.emitter.Emit(events.LoanUpdated{
		Borrower:       loan.ID.Borrower.String(),
		Nonce:          loan.ID.Nonce,
		BorrowedAmount: loan.BorrowedAmount,
		BorrowedFrom:   loan.BorrowedFrom,
		CollateralFrom: loan.CollateralFrom,
		HealthFactor:   loan.HealthFactor,
	})
	return nil
}
