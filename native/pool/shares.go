package pool

import (
	"math/big"

	"github.com/laina-defi/laina/native/fixedpoint"
)

// TokensFromShares converts a share amount to its current token value using
// the pool's exchange rate. When no shares exist the conversion is the
// identity. Truncation rounds down so conversions never create value.
func TokensFromShares(shares, totalBalance, totalShares *big.Int) (*big.Int, error) {
	if shares == nil || totalBalance == nil || totalShares == nil {
		return nil, fixedpoint.ErrOverOrUnderFlow
	}
	if totalShares.Sign() == 0 {
		return new(big.Int).Set(shares), nil
	}
	return fixedpoint.MulDiv(shares, totalBalance, totalShares)
}

// SharesFromTokens converts a token amount to the share amount it currently
// represents. Inverse of TokensFromShares up to integer truncation, with
// truncation always favouring the pool.
func SharesFromTokens(tokens, totalBalance, totalShares *big.Int) (*big.Int, error) {
	if tokens == nil || totalBalance == nil || totalShares == nil {
		return nil, fixedpoint.ErrOverOrUnderFlow
	}
	if totalShares.Sign() == 0 {
		return new(big.Int).Set(tokens), nil
	}
	return fixedpoint.MulDiv(tokens, totalShares, totalBalance)
}
