package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laina-defi/laina/config"
	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/storage"
)

func testConfig(lender, borrower crypto.Address) *config.Config {
	return &config.Config{
		RPCAddress:  "127.0.0.1:0",
		Environment: "local",
		LogLevel:    "error",
		Pools: []config.PoolConfig{
			{ID: "xlm", TokenID: "XLM", Ticker: "XLM", LiquidationThreshold: 8_000_000},
			{ID: "usdc", TokenID: "USDC", Ticker: "USDC", LiquidationThreshold: 8_000_000},
		},
		Genesis: []config.GenesisBalance{
			{Address: lender.String(), TokenID: "XLM", Amount: 5_000_000},
			{Address: lender.String(), TokenID: "USDC", Amount: 5_000_000},
			{Address: borrower.String(), TokenID: "XLM", Amount: 1_000_000},
		},
		Oracle: []config.OraclePrice{
			{Ticker: "XLM", Price: 10_000_000},
			{Ticker: "USDC", Price: 10_000_000},
		},
	}
}

func nodeTestAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestNode(t *testing.T, db storage.Database) *Node {
	t.Helper()
	lender := nodeTestAddress(0x10)
	borrower := nodeTestAddress(0x11)
	// Clock is injected at construction so bootstrap stamps pool accrual
	// with the same deterministic time the tests advance from.
	node, err := NewNode(db, testConfig(lender, borrower), nil,
		WithClock(func() time.Time { return time.Unix(1_000, 0) }))
	require.NoError(t, err)
	return node
}

func TestNodeBootstrapInitialisesPools(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())

	snap, err := node.PoolSnapshot("xlm")
	require.NoError(t, err)
	require.Zero(t, snap.TotalBalanceTokens.Sign())

	_, err = node.PoolSnapshot("doge")
	require.ErrorIs(t, err, ErrUnknownPool)

	balance, err := node.Balance("XLM", nodeTestAddress(0x10))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000), balance)
}

func TestNodeGenesisAppliedOnce(t *testing.T) {
	db := storage.NewMemDB()
	newTestNode(t, db)

	// Re-opening the node over the same database must not double-mint.
	node := newTestNode(t, db)
	balance, err := node.Balance("XLM", nodeTestAddress(0x10))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000), balance)
}

func TestNodeLendingFlow(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())
	lender := nodeTestAddress(0x10)
	borrower := nodeTestAddress(0x11)

	shares, err := node.Deposit("usdc", lender, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), shares)

	created, err := node.CreateLoan(borrower, big.NewInt(100_000), "usdc", big.NewInt(200_000), "xlm")
	require.NoError(t, err)
	require.Equal(t, uint64(1), created.ID.Nonce)
	require.Equal(t, big.NewInt(100_000), created.BorrowedAmount)

	// Borrower received the funds and pledged the collateral.
	usdcBalance, err := node.Balance("USDC", borrower)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100_000), usdcBalance)
	positions, err := node.UserPositions("xlm", borrower)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(200_000), positions.Collateral)

	loans, err := node.GetLoans(borrower)
	require.NoError(t, err)
	require.Len(t, loans, 1)

	prev, remaining, err := node.Repay(created.ID, big.NewInt(40_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100_000), prev)
	require.Equal(t, big.NewInt(60_000), remaining)

	settled, err := node.RepayAndClose(created.ID, big.NewInt(60_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60_000), settled)

	gone, err := node.GetLoan(created.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	// Collateral returned in full.
	xlmBalance, err := node.Balance("XLM", borrower)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), xlmBalance)
}

func TestNodeGetLoanAbsent(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())

	record, err := node.GetLoan(loan.ID{Borrower: nodeTestAddress(0x11), Nonce: 42})
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestNodeTransactionRollsBackFailedLoan(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())
	lender := nodeTestAddress(0x10)
	borrower := nodeTestAddress(0x11)

	_, err := node.Deposit("usdc", lender, big.NewInt(1_000_000))
	require.NoError(t, err)

	// Collateral too thin: health factor at parity is rejected and nothing
	// moves, the collateral deposit included.
	_, err = node.CreateLoan(borrower, big.NewInt(100_000), "usdc", big.NewInt(125_000), "xlm")
	require.ErrorIs(t, err, loan.ErrHealthFactorTooLow)

	positions, err := node.UserPositions("xlm", borrower)
	require.NoError(t, err)
	require.Zero(t, positions.Collateral.Sign())
	balance, err := node.Balance("XLM", borrower)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), balance)
}

func TestNodeFaucetGatedByEnvironment(t *testing.T) {
	lender := nodeTestAddress(0x10)
	borrower := nodeTestAddress(0x11)
	cfg := testConfig(lender, borrower)
	cfg.Environment = "production"
	node, err := NewNode(storage.NewMemDB(), cfg, nil)
	require.NoError(t, err)

	err = node.FaucetMint("XLM", borrower, big.NewInt(100))
	require.ErrorIs(t, err, ErrFaucetDisabled)
}

func TestNodeAccrualAdvancesWithClock(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())
	lender := nodeTestAddress(0x10)
	borrower := nodeTestAddress(0x11)

	_, err := node.Deposit("usdc", lender, big.NewInt(1_000_000))
	require.NoError(t, err)
	created, err := node.CreateLoan(borrower, big.NewInt(100_000), "usdc", big.NewInt(200_000), "xlm")
	require.NoError(t, err)

	node.SetClock(func() time.Time { return time.Unix(1_000+31_556_926, 0) })
	updated, err := node.AddInterest(created.ID)
	require.NoError(t, err)
	require.Positive(t, updated.BorrowedAmount.Cmp(created.BorrowedAmount))
	require.Positive(t, updated.UnpaidInterest.Sign())
}
