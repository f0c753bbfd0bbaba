package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open("file::memory:")
	require.NoError(t, err)
	return st
}

func TestUpsertAndList(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Upsert(&TrackedLoan{
		Borrower:       "laina1abc",
		Nonce:          1,
		BorrowedAmount: "100000",
		BorrowedFrom:   "usdc",
		HealthFactor:   "16000000",
		HealthFactorFP: 16_000_000,
	}))
	require.NoError(t, st.Upsert(&TrackedLoan{
		Borrower:       "laina1abc",
		Nonce:          2,
		BorrowedAmount: "50000",
		BorrowedFrom:   "usdc",
		HealthFactor:   "9000000",
		HealthFactorFP: 9_000_000,
	}))

	all, err := st.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Upsert on the same key refreshes instead of duplicating.
	require.NoError(t, st.Upsert(&TrackedLoan{
		Borrower:       "laina1abc",
		Nonce:          2,
		BorrowedAmount: "48000",
		BorrowedFrom:   "usdc",
		HealthFactor:   "9900000",
		HealthFactorFP: 9_900_000,
	}))
	all, err = st.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "48000", all[1].BorrowedAmount)
}

func TestUnderwaterSelection(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Upsert(&TrackedLoan{Borrower: "laina1a", Nonce: 1, HealthFactorFP: 16_000_000}))
	require.NoError(t, st.Upsert(&TrackedLoan{Borrower: "laina1b", Nonce: 1, HealthFactorFP: 9_000_000}))
	require.NoError(t, st.Upsert(&TrackedLoan{Borrower: "laina1c", Nonce: 1, HealthFactorFP: 9_500_000}))

	underwater, err := st.Underwater(10_000_000)
	require.NoError(t, err)
	require.Len(t, underwater, 2)
	require.Equal(t, "laina1b", underwater[0].Borrower)
}

func TestDelete(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Upsert(&TrackedLoan{Borrower: "laina1a", Nonce: 1}))
	require.NoError(t, st.Delete("laina1a", 1))

	all, err := st.All()
	require.NoError(t, err)
	require.Empty(t, all)
}
