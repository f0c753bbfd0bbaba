package loan

import (
	"math/big"

	"github.com/laina-defi/laina/native/fixedpoint"
)

// CalculateHealthFactor scores a position as risk-weighted collateral value
// over debt value, in fixed point where Decimal is parity. The collateral
// amount is in tokens; the factor weighting it comes from the collateral
// pool. A zero-debt position never reaches this calculation.
func (m *Manager) CalculateHealthFactor(borrowTicker string, borrowedAmount *big.Int, collateralTicker string, collateralTokens *big.Int, collateralPoolID string) (*big.Int, error) {
	if m.oracle == nil {
		return nil, errNilOracle
	}
	collateralPool, ok := m.pools[collateralPoolID]
	if !ok {
		return nil, ErrInvalidCollateralToken
	}
	collateralFactor, err := collateralPool.CollateralFactor()
	if err != nil {
		return nil, err
	}

	collateralPrice, err := m.oracle.Twap(collateralTicker, TwapRecords)
	if err != nil {
		return nil, err
	}
	collateralValue, err := fixedpoint.Mul(collateralPrice, collateralTokens)
	if err != nil {
		return nil, err
	}
	if collateralValue, err = fixedpoint.MulDiv(collateralValue, collateralFactor, fixedpoint.One()); err != nil {
		return nil, err
	}

	borrowPrice, err := m.oracle.Twap(borrowTicker, TwapRecords)
	if err != nil {
		return nil, err
	}
	borrowedValue, err := fixedpoint.Mul(borrowPrice, borrowedAmount)
	if err != nil {
		return nil, err
	}
	if borrowedValue.Sign() == 0 {
		return nil, errZeroDebt
	}
	return fixedpoint.MulDiv(collateralValue, fixedpoint.One(), borrowedValue)
}
