package loan

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/fixedpoint"
	"github.com/laina-defi/laina/native/pool"
	"github.com/laina-defi/laina/native/token"
)

type mockManagerState struct {
	loans  map[string]*Loan
	nonces map[string][]uint64
	next   map[string]uint64
}

func newMockManagerState() *mockManagerState {
	return &mockManagerState{
		loans:  make(map[string]*Loan),
		nonces: make(map[string][]uint64),
		next:   make(map[string]uint64),
	}
}

func loanKey(id ID) string {
	return fmt.Sprintf("%s/%d", id.Borrower.String(), id.Nonce)
}

func (m *mockManagerState) GetLoan(id ID) (*Loan, error) {
	return m.loans[loanKey(id)], nil
}

func (m *mockManagerState) PutLoan(loan *Loan) error {
	m.loans[loanKey(loan.ID)] = loan
	return nil
}

func (m *mockManagerState) DeleteLoan(id ID) error {
	delete(m.loans, loanKey(id))
	return nil
}

func (m *mockManagerState) NextLoanNonce(borrower crypto.Address) (uint64, error) {
	key := borrower.String()
	m.next[key]++
	return m.next[key], nil
}

func (m *mockManagerState) LoanNonces(borrower crypto.Address) ([]uint64, error) {
	return m.nonces[borrower.String()], nil
}

func (m *mockManagerState) AddLoanNonce(borrower crypto.Address, nonce uint64) error {
	key := borrower.String()
	m.nonces[key] = append(m.nonces[key], nonce)
	return nil
}

func (m *mockManagerState) RemoveLoanNonce(borrower crypto.Address, nonce uint64) error {
	key := borrower.String()
	kept := m.nonces[key][:0]
	for _, n := range m.nonces[key] {
		if n != nonce {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		delete(m.nonces, key)
	} else {
		m.nonces[key] = kept
	}
	return nil
}

type mockPoolState struct {
	pool      *pool.State
	positions map[string]*pool.Positions
}

func newMockPoolState() *mockPoolState {
	return &mockPoolState{positions: make(map[string]*pool.Positions)}
}

func (m *mockPoolState) GetPool(string) (*pool.State, error) { return m.pool, nil }

func (m *mockPoolState) PutPool(_ string, st *pool.State) error {
	m.pool = st
	return nil
}

func (m *mockPoolState) GetPositions(_ string, addr crypto.Address) (*pool.Positions, error) {
	return m.positions[string(addr.Bytes())], nil
}

func (m *mockPoolState) PutPositions(_ string, addr crypto.Address, pos *pool.Positions) error {
	m.positions[string(addr.Bytes())] = pos
	return nil
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testFixture struct {
	manager        *Manager
	borrowPool     *pool.Engine
	collateralPool *pool.Engine
	book           *token.Book
	oracle         *MemoryOracle
	state          *mockManagerState
}

var (
	adminAddr          = makeAddress(0x01)
	revenueAddr        = makeAddress(0x02)
	borrowPoolAddr     = makeAddress(0x03)
	collateralPoolAddr = makeAddress(0x04)
	depositorAddr      = makeAddress(0x10)
	borrowerAddr       = makeAddress(0x11)
	liquidatorAddr     = makeAddress(0x12)
)

// Both pools price at 1.0 and weigh collateral at 0.8 unless a test moves the
// oracle.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	book := token.NewBook(token.NewMemoryState())

	newPool := func(poolAddr crypto.Address, id, ticker string) *pool.Engine {
		engine := pool.NewEngine(poolAddr, revenueAddr)
		engine.SetState(newMockPoolState())
		engine.SetTokens(book)
		engine.SetPoolID(id)
		engine.SetTimestamp(1)
		if err := engine.Initialize(pool.Currency{TokenID: ticker, Ticker: ticker}, big.NewInt(8_000_000)); err != nil {
			t.Fatalf("initialize %s pool: %v", id, err)
		}
		return engine
	}
	borrowPool := newPool(borrowPoolAddr, "xlm", "XLM")
	collateralPool := newPool(collateralPoolAddr, "usdc", "USDC")

	oracle := NewMemoryOracle()
	oracle.SetPrice("XLM", fixedpoint.One())
	oracle.SetPrice("USDC", fixedpoint.One())

	state := newMockManagerState()
	manager := NewManager(adminAddr, revenueAddr)
	manager.SetState(state)
	manager.SetOracle(oracle)
	manager.SetTokens(book)
	if err := manager.RegisterPool(borrowPool); err != nil {
		t.Fatalf("register borrow pool: %v", err)
	}
	if err := manager.RegisterPool(collateralPool); err != nil {
		t.Fatalf("register collateral pool: %v", err)
	}

	mint := func(addr crypto.Address, tokenID string, amount int64) {
		if err := book.Mint(tokenID, addr, big.NewInt(amount)); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	mint(depositorAddr, "XLM", 10_000_000)
	mint(depositorAddr, "USDC", 10_000_000)
	mint(borrowerAddr, "XLM", 1_000_000)
	mint(borrowerAddr, "USDC", 1_000_000)
	mint(liquidatorAddr, "XLM", 1_000_000)

	if _, err := borrowPool.Deposit(depositorAddr, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed borrow pool: %v", err)
	}
	if _, err := collateralPool.Deposit(depositorAddr, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed collateral pool: %v", err)
	}

	return &testFixture{
		manager:        manager,
		borrowPool:     borrowPool,
		collateralPool: collateralPool,
		book:           book,
		oracle:         oracle,
		state:          state,
	}
}

func TestCreateLoanPersistsAndMovesFunds(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if loan.ID.Nonce != 1 {
		t.Fatalf("first loan nonce = %d, want 1", loan.ID.Nonce)
	}
	if loan.BorrowedAmount.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("borrowed = %s, want 10000", loan.BorrowedAmount)
	}
	// 30_000 * 0.8 / 10_000 = 2.4x parity.
	if loan.HealthFactor.Cmp(big.NewInt(24_000_000)) != 0 {
		t.Fatalf("health factor = %s, want 24000000", loan.HealthFactor)
	}
	if loan.UnpaidInterest.Sign() != 0 {
		t.Fatalf("fresh loan unpaid interest = %s", loan.UnpaidInterest)
	}

	pos, err := f.collateralPool.UserPositions(borrowerAddr)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if pos.Collateral.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("collateral shares = %s, want 30000", pos.Collateral)
	}
	loans, err := f.manager.GetLoans(borrowerAddr)
	if err != nil {
		t.Fatalf("get loans: %v", err)
	}
	if len(loans) != 1 {
		t.Fatalf("loan count = %d, want 1", len(loans))
	}
}

func TestCreateLoanHealthGate(t *testing.T) {
	f := newTestFixture(t)

	// 10_000 * 0.8 / 10_000 = 0.8 < parity.
	_, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(10_000), "usdc")
	if !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("undercollateralized create error = %v, want ErrHealthFactorTooLow", err)
	}
	// The gate fires before any mutation: no collateral may be pledged.
	pos, err := f.collateralPool.UserPositions(borrowerAddr)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if pos.Collateral.Sign() != 0 {
		t.Fatalf("collateral after rejected create = %s, want 0", pos.Collateral)
	}

	// Exactly at parity is still rejected; the factor must exceed it.
	// 12_500 * 0.8 / 10_000 = 1.0.
	_, err = f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(12_500), "usdc")
	if !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("parity create error = %v, want ErrHealthFactorTooLow", err)
	}
}

func TestCreateLoanRejectsUnknownPools(t *testing.T) {
	f := newTestFixture(t)

	if _, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "doge", big.NewInt(30_000), "usdc"); !errors.Is(err, ErrInvalidLoanToken) {
		t.Fatalf("unknown borrow pool error = %v, want ErrInvalidLoanToken", err)
	}
	if _, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "doge"); !errors.Is(err, ErrInvalidCollateralToken) {
		t.Fatalf("unknown collateral pool error = %v, want ErrInvalidCollateralToken", err)
	}
}

func TestCreateLoanFailsWithoutOraclePrice(t *testing.T) {
	f := newTestFixture(t)
	f.manager.SetOracle(NewMemoryOracle())

	if _, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc"); !errors.Is(err, ErrNoLastPrice) {
		t.Fatalf("missing price error = %v, want ErrNoLastPrice", err)
	}
}

func TestAddInterestTwoPercentYear(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(100), "xlm", big.NewInt(300), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}

	// Utilization of 100 against a 1_000_000 pool keeps the annual rate at
	// the 2% base.
	f.borrowPool.SetTimestamp(1 + pool.SecondsInYear)
	updated, err := f.manager.AddInterest(loan.ID)
	if err != nil {
		t.Fatalf("add interest: %v", err)
	}
	if updated.BorrowedAmount.Cmp(big.NewInt(102)) != 0 {
		t.Fatalf("borrowed after a year at 2%% = %s, want 102", updated.BorrowedAmount)
	}
	if updated.UnpaidInterest.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("unpaid interest = %s, want 2", updated.UnpaidInterest)
	}
	accrual, err := f.borrowPool.Accrual()
	if err != nil {
		t.Fatalf("accrual: %v", err)
	}
	if updated.LastAccrual.Cmp(accrual) != 0 {
		t.Fatalf("last accrual %s not synchronized to pool index %s", updated.LastAccrual, accrual)
	}

	// The pool's liability record tracks loan-level interest.
	pos, err := f.borrowPool.UserPositions(borrowerAddr)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if pos.Liabilities.Cmp(big.NewInt(102)) != 0 {
		t.Fatalf("liabilities = %s, want 102", pos.Liabilities)
	}
}

func TestAddInterestIdempotentSameTimestamp(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	updated, err := f.manager.AddInterest(loan.ID)
	if err != nil {
		t.Fatalf("add interest: %v", err)
	}
	if updated.BorrowedAmount.Cmp(loan.BorrowedAmount) != 0 {
		t.Fatalf("borrowed moved without elapsed time: %s -> %s", loan.BorrowedAmount, updated.BorrowedAmount)
	}
}

func TestRepayReducesDebt(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	previous, remaining, err := f.manager.Repay(loan.ID, big.NewInt(4_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if previous.Cmp(big.NewInt(10_000)) != 0 || remaining.Cmp(big.NewInt(6_000)) != 0 {
		t.Fatalf("repay returned %s -> %s, want 10000 -> 6000", previous, remaining)
	}
	if _, _, err := f.manager.Repay(loan.ID, big.NewInt(7_000)); !errors.Is(err, ErrRepayOverBorrowed) {
		t.Fatalf("over-repay error = %v, want ErrRepayOverBorrowed", err)
	}
	// Partial repayment never closes the loan.
	if _, err := f.manager.GetLoan(loan.ID); err != nil {
		t.Fatalf("loan gone after partial repay: %v", err)
	}
}

func TestRepayAndCloseRemovesRecord(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	collateralBefore, err := f.book.BalanceOf("USDC", borrowerAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	settled, err := f.manager.RepayAndClose(loan.ID, big.NewInt(11_000))
	if err != nil {
		t.Fatalf("repay and close: %v", err)
	}
	if settled.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("settled = %s, want 10000", settled)
	}
	if _, err := f.manager.GetLoan(loan.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("closed loan lookup error = %v, want ErrLoanNotFound", err)
	}
	loans, err := f.manager.GetLoans(borrowerAddr)
	if err != nil {
		t.Fatalf("get loans: %v", err)
	}
	if len(loans) != 0 {
		t.Fatalf("loan list after close has %d entries", len(loans))
	}

	// The pledged collateral came back.
	collateralAfter, err := f.book.BalanceOf("USDC", borrowerAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	returned := new(big.Int).Sub(collateralAfter, collateralBefore)
	if returned.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("collateral returned = %s, want 30000", returned)
	}
	pos, err := f.collateralPool.UserPositions(borrowerAddr)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if pos.Collateral.Sign() != 0 {
		t.Fatalf("collateral position after close = %s, want 0", pos.Collateral)
	}
}

// seedUnderwaterLoan installs a loan that is already below parity: borrowed
// 100_732 against 125_050 collateral shares at factor 0.8 and unit prices
// scores 9_931_302.
func seedUnderwaterLoan(t *testing.T, f *testFixture) ID {
	t.Helper()
	if _, err := f.collateralPool.DepositCollateral(borrowerAddr, big.NewInt(125_050), big.NewInt(125_050)); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if _, err := f.borrowPool.Borrow(borrowerAddr, big.NewInt(100_732)); err != nil {
		t.Fatalf("seed borrow: %v", err)
	}
	accrual, err := f.borrowPool.Accrual()
	if err != nil {
		t.Fatalf("accrual: %v", err)
	}
	id := ID{Borrower: borrowerAddr, Nonce: 1}
	if err := f.state.PutLoan(&Loan{
		ID:               id,
		BorrowedAmount:   big.NewInt(100_732),
		BorrowedFrom:     "xlm",
		CollateralAmount: big.NewInt(125_050),
		CollateralFrom:   "usdc",
		HealthFactor:     big.NewInt(9_931_302),
		UnpaidInterest:   big.NewInt(0),
		LastAccrual:      accrual,
	}); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	if err := f.state.AddLoanNonce(borrowerAddr, 1); err != nil {
		t.Fatalf("seed nonce: %v", err)
	}
	return id
}

func TestLiquidateScenario(t *testing.T) {
	f := newTestFixture(t)
	id := seedUnderwaterLoan(t, f)

	loan, err := f.manager.Liquidate(liquidatorAddr, id, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if loan.BorrowedAmount.Cmp(big.NewInt(95_732)) != 0 {
		t.Fatalf("borrowed after liquidation = %s, want 95732", loan.BorrowedAmount)
	}
	// Bonus multiplier at factor 0.8 is 1.1, so 5_000 of debt seizes 5_500
	// of collateral.
	if loan.CollateralAmount.Cmp(big.NewInt(119_550)) != 0 {
		t.Fatalf("collateral after liquidation = %s, want 119550", loan.CollateralAmount)
	}
	if loan.HealthFactor.Cmp(big.NewInt(9_931_302)) < 0 {
		t.Fatalf("health factor fell to %s", loan.HealthFactor)
	}
	// Partial liquidation leaves the record in place.
	if _, err := f.manager.GetLoan(id); err != nil {
		t.Fatalf("loan gone after partial liquidation: %v", err)
	}
	seized, err := f.book.BalanceOf("USDC", liquidatorAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if seized.Cmp(big.NewInt(5_500)) != 0 {
		t.Fatalf("liquidator seized = %s, want 5500", seized)
	}
}

func TestLiquidateBounds(t *testing.T) {
	f := newTestFixture(t)
	id := seedUnderwaterLoan(t, f)

	// 100_732/100 = 1_007; at or below is too small.
	if _, err := f.manager.Liquidate(liquidatorAddr, id, big.NewInt(1_007)); !errors.Is(err, ErrLiquidationTooSmall) {
		t.Fatalf("small liquidation error = %v, want ErrLiquidationTooSmall", err)
	}
	// 100_732/2 = 50_366; at or above is too large.
	if _, err := f.manager.Liquidate(liquidatorAddr, id, big.NewInt(50_366)); !errors.Is(err, ErrLiquidationTooLarge) {
		t.Fatalf("large liquidation error = %v, want ErrLiquidationTooLarge", err)
	}
}

func TestLiquidateRejectsHealthyLoan(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if _, err := f.manager.Liquidate(liquidatorAddr, loan.ID, big.NewInt(500)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("healthy liquidation error = %v, want ErrNotLiquidatable", err)
	}
}

func TestWithdrawRevenue(t *testing.T) {
	f := newTestFixture(t)

	loan, err := f.manager.CreateLoan(borrowerAddr, big.NewInt(10_000), "xlm", big.NewInt(30_000), "usdc")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	f.borrowPool.SetTimestamp(1 + pool.SecondsInYear)
	if _, _, err := f.manager.Repay(loan.ID, big.NewInt(5_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	revenue, err := f.book.BalanceOf("XLM", revenueAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if revenue.Sign() <= 0 {
		t.Fatalf("no revenue accumulated from interest skim")
	}
	if err := f.manager.WithdrawRevenue("XLM", revenue); err != nil {
		t.Fatalf("withdraw revenue: %v", err)
	}
	adminBalance, err := f.book.BalanceOf("XLM", adminAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if adminBalance.Cmp(revenue) != 0 {
		t.Fatalf("admin received %s, want %s", adminBalance, revenue)
	}
}

func TestGetPriceUsesLastSample(t *testing.T) {
	f := newTestFixture(t)
	f.oracle.SetPrice("XLM", big.NewInt(12_000_000))

	price, err := f.manager.GetPrice("XLM")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(12_000_000)) != 0 {
		t.Fatalf("price = %s, want 12000000", price)
	}
	if _, err := f.manager.GetPrice("DOGE"); !errors.Is(err, ErrNoLastPrice) {
		t.Fatalf("unknown asset price error = %v, want ErrNoLastPrice", err)
	}
}
