package pool

import (
	"math/big"

	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/fixedpoint"
)

func newPositions() *Positions {
	return &Positions{
		ReceivableShares: big.NewInt(0),
		Liabilities:      big.NewInt(0),
		Collateral:       big.NewInt(0),
	}
}

func (p *Positions) clone() *Positions {
	if p == nil {
		return newPositions()
	}
	clone := newPositions()
	if p.ReceivableShares != nil {
		clone.ReceivableShares = new(big.Int).Set(p.ReceivableShares)
	}
	if p.Liabilities != nil {
		clone.Liabilities = new(big.Int).Set(p.Liabilities)
	}
	if p.Collateral != nil {
		clone.Collateral = new(big.Int).Set(p.Collateral)
	}
	return clone
}

func (e *Engine) loadPositions(addr crypto.Address) (*Positions, error) {
	pos, err := e.state.GetPositions(e.poolID, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return newPositions(), nil
	}
	return pos.clone(), nil
}

func (e *Engine) increasePositions(addr crypto.Address, receivables, liabilities, collateral *big.Int) error {
	pos, err := e.loadPositions(addr)
	if err != nil {
		return err
	}
	if pos.ReceivableShares, err = fixedpoint.Add(pos.ReceivableShares, receivables); err != nil {
		return err
	}
	if pos.Liabilities, err = fixedpoint.Add(pos.Liabilities, liabilities); err != nil {
		return err
	}
	if pos.Collateral, err = fixedpoint.Add(pos.Collateral, collateral); err != nil {
		return err
	}
	return e.state.PutPositions(e.poolID, addr, pos)
}

// decreasePositions rejects any decrease that would take a field negative. A
// caller hitting ErrPositionUnderflow holds accounting that disagrees with the
// pool's, which indicates corrupted prior state rather than user error.
func (e *Engine) decreasePositions(addr crypto.Address, receivables, liabilities, collateral *big.Int) error {
	pos, err := e.loadPositions(addr)
	if err != nil {
		return err
	}
	if pos.ReceivableShares.Cmp(receivables) < 0 ||
		pos.Liabilities.Cmp(liabilities) < 0 ||
		pos.Collateral.Cmp(collateral) < 0 {
		return ErrPositionUnderflow
	}
	if pos.ReceivableShares, err = fixedpoint.Sub(pos.ReceivableShares, receivables); err != nil {
		return err
	}
	if pos.Liabilities, err = fixedpoint.Sub(pos.Liabilities, liabilities); err != nil {
		return err
	}
	if pos.Collateral, err = fixedpoint.Sub(pos.Collateral, collateral); err != nil {
		return err
	}
	return e.state.PutPositions(e.poolID, addr, pos)
}
