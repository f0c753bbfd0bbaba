package liquidator

import (
	"context"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/services/liquidator/client"
	"github.com/laina-defi/laina/services/liquidator/config"
	"github.com/laina-defi/laina/services/liquidator/store"
)

type fakeClient struct {
	loans        map[string]*client.Loan
	liquidations []struct {
		Borrower string
		Nonce    uint64
		Amount   *big.Int
	}
}

func loanKey(borrower string, nonce uint64) string {
	return borrower + "/" + strconv.FormatUint(nonce, 10)
}

func (f *fakeClient) GetLoan(_ context.Context, borrower string, nonce uint64) (*client.Loan, error) {
	return f.loans[loanKey(borrower, nonce)], nil
}

func (f *fakeClient) Liquidate(_ context.Context, _, borrower string, nonce uint64, amount *big.Int) (*client.Loan, error) {
	f.liquidations = append(f.liquidations, struct {
		Borrower string
		Nonce    uint64
		Amount   *big.Int
	}{borrower, nonce, amount})
	return f.loans[loanKey(borrower, nonce)], nil
}

func newTestBot(t *testing.T, fc *fakeClient, dryRun bool) (*Bot, *store.Store) {
	t.Helper()
	st, err := store.Open("file::memory:")
	require.NoError(t, err)
	cfg := config.Config{
		RPCURL:            "http://127.0.0.1:8545",
		LiquidatorAddress: "laina1liquidator",
		PollInterval:      time.Second,
		DryRun:            dryRun,
	}
	return New(cfg, fc, st, nil), st
}

func TestHandleEventTracksLoans(t *testing.T) {
	bot, st := newTestBot(t, &fakeClient{}, false)

	bot.handleEvent(&events.Record{Type: events.TypeLoanCreated, Attributes: map[string]string{
		"borrower":       "laina1abc",
		"nonce":          "1",
		"borrowedAmount": "100000",
		"borrowedFrom":   "usdc",
		"collateralFrom": "xlm",
		"healthFactor":   "16000000",
	}})

	all, err := st.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, int64(16_000_000), all[0].HealthFactorFP)

	bot.handleEvent(&events.Record{Type: events.TypeLoanDeleted, Attributes: map[string]string{
		"borrower": "laina1abc",
		"nonce":    "1",
	}})
	all, err = st.All()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestScanLiquidatesUnderwaterLoan(t *testing.T) {
	fc := &fakeClient{loans: map[string]*client.Loan{
		loanKey("laina1abc", 1): {
			Borrower:       "laina1abc",
			Nonce:          1,
			BorrowedAmount: "100000",
			BorrowedFrom:   "usdc",
			HealthFactor:   "9500000",
		},
		loanKey("laina1def", 1): {
			Borrower:       "laina1def",
			Nonce:          1,
			BorrowedAmount: "100000",
			BorrowedFrom:   "usdc",
			HealthFactor:   "16000000",
		},
	}}
	bot, st := newTestBot(t, fc, false)
	require.NoError(t, st.Upsert(&store.TrackedLoan{Borrower: "laina1abc", Nonce: 1}))
	require.NoError(t, st.Upsert(&store.TrackedLoan{Borrower: "laina1def", Nonce: 1}))

	require.NoError(t, bot.Scan(context.Background()))

	require.Len(t, fc.liquidations, 1)
	require.Equal(t, "laina1abc", fc.liquidations[0].Borrower)
	// A quarter of the outstanding debt, inside the protocol bounds.
	require.Equal(t, big.NewInt(25_000), fc.liquidations[0].Amount)
}

func TestScanDropsClosedLoans(t *testing.T) {
	fc := &fakeClient{loans: map[string]*client.Loan{}}
	bot, st := newTestBot(t, fc, false)
	require.NoError(t, st.Upsert(&store.TrackedLoan{Borrower: "laina1abc", Nonce: 1}))

	require.NoError(t, bot.Scan(context.Background()))

	all, err := st.All()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDryRunSkipsExecution(t *testing.T) {
	fc := &fakeClient{loans: map[string]*client.Loan{
		loanKey("laina1abc", 1): {
			Borrower:       "laina1abc",
			Nonce:          1,
			BorrowedAmount: "100000",
			BorrowedFrom:   "usdc",
			HealthFactor:   "9000000",
		},
	}}
	bot, st := newTestBot(t, fc, true)
	require.NoError(t, st.Upsert(&store.TrackedLoan{Borrower: "laina1abc", Nonce: 1}))

	require.NoError(t, bot.Scan(context.Background()))
	require.Empty(t, fc.liquidations)
}
