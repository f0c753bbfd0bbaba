package rpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/native/pool"
)

func decodeParams(params []json.RawMessage, out interface{}) *rpcError {
	if len(params) != 1 {
		return &rpcError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func parseAddress(value string) (crypto.Address, *rpcError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, &rpcError{Code: codeInvalidParams, Message: "invalid address: " + err.Error()}
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, *rpcError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid amount: " + value}
	}
	return amount, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type loanPayload struct {
	Borrower         string `json:"borrower"`
	Nonce            uint64 `json:"nonce"`
	BorrowedAmount   string `json:"borrowedAmount"`
	BorrowedFrom     string `json:"borrowedFrom"`
	CollateralAmount string `json:"collateralAmount"`
	CollateralFrom   string `json:"collateralFrom"`
	HealthFactor     string `json:"healthFactor"`
	UnpaidInterest   string `json:"unpaidInterest"`
	LastAccrual      string `json:"lastAccrual"`
}

func loanToPayload(l *loan.Loan) *loanPayload {
	if l == nil {
		return nil
	}
	return &loanPayload{
		Borrower:         l.ID.Borrower.String(),
		Nonce:            l.ID.Nonce,
		BorrowedAmount:   bigString(l.BorrowedAmount),
		BorrowedFrom:     l.BorrowedFrom,
		CollateralAmount: bigString(l.CollateralAmount),
		CollateralFrom:   l.CollateralFrom,
		HealthFactor:     bigString(l.HealthFactor),
		UnpaidInterest:   bigString(l.UnpaidInterest),
		LastAccrual:      bigString(l.LastAccrual),
	}
}

type poolStatePayload struct {
	TotalBalanceTokens     string `json:"totalBalanceTokens"`
	AvailableBalanceTokens string `json:"availableBalanceTokens"`
	TotalBalanceShares     string `json:"totalBalanceShares"`
	AnnualInterestRate     string `json:"annualInterestRate"`
}

type positionsPayload struct {
	ReceivableShares string `json:"receivableShares"`
	Liabilities      string `json:"liabilities"`
	Collateral       string `json:"collateral"`
}

type poolParams struct {
	Pool string `json:"pool"`
}

type poolAddressParams struct {
	Pool    string `json:"pool"`
	Address string `json:"address"`
}

type amountParams struct {
	Pool    string `json:"pool"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type loanIDParams struct {
	Borrower string `json:"borrower"`
	Nonce    uint64 `json:"nonce"`
}

func (p loanIDParams) id() (loan.ID, *rpcError) {
	addr, rpcErr := parseAddress(p.Borrower)
	if rpcErr != nil {
		return loan.ID{}, rpcErr
	}
	return loan.ID{Borrower: addr, Nonce: p.Nonce}, nil
}

func (s *Server) listPools(_ []json.RawMessage) (interface{}, *rpcError) {
	return s.node.PoolIDs(), nil
}

func (s *Server) getPoolState(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	snap, err := s.node.PoolSnapshot(p.Pool)
	if err != nil {
		return nil, mapError(err)
	}
	return &poolStatePayload{
		TotalBalanceTokens:     bigString(snap.TotalBalanceTokens),
		AvailableBalanceTokens: bigString(snap.AvailableBalanceTokens),
		TotalBalanceShares:     bigString(snap.TotalBalanceShares),
		AnnualInterestRate:     bigString(snap.AnnualInterestRate),
	}, nil
}

func (s *Server) getUserPositions(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolAddressParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	positions, err := s.node.UserPositions(p.Pool, addr)
	if err != nil {
		return nil, mapError(err)
	}
	return &positionsPayload{
		ReceivableShares: bigString(positions.ReceivableShares),
		Liabilities:      bigString(positions.Liabilities),
		Collateral:       bigString(positions.Collateral),
	}, nil
}

func (s *Server) getCurrency(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	currency, err := s.node.PoolCurrency(p.Pool)
	if err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"tokenId": currency.TokenID, "ticker": currency.Ticker}, nil
}

func (s *Server) getCollateralFactor(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	factor, err := s.node.PoolCollateralFactor(p.Pool)
	if err != nil {
		return nil, mapError(err)
	}
	return bigString(factor), nil
}

func (s *Server) getAccrual(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	accrual, err := s.node.PoolAccrual(p.Pool)
	if err != nil {
		return nil, mapError(err)
	}
	return bigString(accrual), nil
}

func (s *Server) getAnnualRate(params []json.RawMessage) (interface{}, *rpcError) {
	var p poolParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	rate, err := s.node.PoolAnnualRate(p.Pool)
	if err != nil {
		return nil, mapError(err)
	}
	return bigString(rate), nil
}

func (s *Server) getBalance(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Token   string `json:"token"`
		Address string `json:"address"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(p.Token, addr)
	if err != nil {
		return nil, mapError(err)
	}
	return bigString(balance), nil
}

func (s *Server) getLoan(params []json.RawMessage) (interface{}, *rpcError) {
	var p loanIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := p.id()
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.GetLoan(id)
	if err != nil {
		return nil, mapError(err)
	}
	if record == nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: loan.ErrLoanNotFound.Error()}
	}
	return loanToPayload(record), nil
}

func (s *Server) getLoans(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Borrower string `json:"borrower"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Borrower)
	if rpcErr != nil {
		return nil, rpcErr
	}
	records, err := s.node.GetLoans(addr)
	if err != nil {
		return nil, mapError(err)
	}
	payloads := make([]*loanPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, loanToPayload(record))
	}
	return payloads, nil
}

func (s *Server) getPrice(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Ticker string `json:"ticker"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	price, err := s.node.GetPrice(p.Ticker)
	if err != nil {
		return nil, mapError(err)
	}
	return bigString(price), nil
}

func (s *Server) deposit(params []json.RawMessage) (interface{}, *rpcError) {
	var p amountParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	shares, err := s.node.Deposit(p.Pool, addr, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"sharesIssued": bigString(shares)}, nil
}

func (s *Server) withdraw(params []json.RawMessage) (interface{}, *rpcError) {
	var p amountParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	snap, err := s.node.Withdraw(p.Pool, addr, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return &poolStatePayload{
		TotalBalanceTokens:     bigString(snap.TotalBalanceTokens),
		AvailableBalanceTokens: bigString(snap.AvailableBalanceTokens),
		TotalBalanceShares:     bigString(snap.TotalBalanceShares),
		AnnualInterestRate:     bigString(snap.AnnualInterestRate),
	}, nil
}

func (s *Server) createLoan(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Borrower         string `json:"borrower"`
		BorrowedAmount   string `json:"borrowedAmount"`
		BorrowedFrom     string `json:"borrowedFrom"`
		CollateralAmount string `json:"collateralAmount"`
		CollateralFrom   string `json:"collateralFrom"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Borrower)
	if rpcErr != nil {
		return nil, rpcErr
	}
	borrowed, rpcErr := parseAmount(p.BorrowedAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	collateral, rpcErr := parseAmount(p.CollateralAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.CreateLoan(addr, borrowed, p.BorrowedFrom, collateral, p.CollateralFrom)
	if err != nil {
		return nil, mapError(err)
	}
	return loanToPayload(record), nil
}

func (s *Server) addInterest(params []json.RawMessage) (interface{}, *rpcError) {
	var p loanIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := p.id()
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.AddInterest(id)
	if err != nil {
		return nil, mapError(err)
	}
	return loanToPayload(record), nil
}

func (s *Server) repay(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Borrower string `json:"borrower"`
		Nonce    uint64 `json:"nonce"`
		Amount   string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := loanIDParams{Borrower: p.Borrower, Nonce: p.Nonce}.id()
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, remaining, err := s.node.Repay(id, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return map[string]string{
		"previousBorrowed":  bigString(prev),
		"remainingBorrowed": bigString(remaining),
	}, nil
}

func (s *Server) repayAndClose(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Borrower   string `json:"borrower"`
		Nonce      uint64 `json:"nonce"`
		MaxAllowed string `json:"maxAllowed"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := loanIDParams{Borrower: p.Borrower, Nonce: p.Nonce}.id()
	if rpcErr != nil {
		return nil, rpcErr
	}
	maxAllowed, rpcErr := parseAmount(p.MaxAllowed)
	if rpcErr != nil {
		return nil, rpcErr
	}
	settled, err := s.node.RepayAndClose(id, maxAllowed)
	if err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"settled": bigString(settled)}, nil
}

func (s *Server) liquidate(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Liquidator string `json:"liquidator"`
		Borrower   string `json:"borrower"`
		Nonce      uint64 `json:"nonce"`
		Amount     string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	liquidator, rpcErr := parseAddress(p.Liquidator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := loanIDParams{Borrower: p.Borrower, Nonce: p.Nonce}.id()
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.Liquidate(liquidator, id, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return loanToPayload(record), nil
}

func (s *Server) faucetMint(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Token   string `json:"token"`
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.FaucetMint(p.Token, addr, amount); err != nil {
		return nil, mapError(err)
	}
	return true, nil
}

func (s *Server) setPoolStatus(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Pool   string `json:"pool"`
		Status string `json:"status"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	status, ok := parsePoolStatus(p.Status)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "unknown status: " + p.Status}
	}
	if err := s.node.SetPoolStatus(p.Pool, status); err != nil {
		return nil, mapError(err)
	}
	return true, nil
}

func parsePoolStatus(value string) (pool.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "healthy":
		return pool.StatusHealthy, true
	case "caution":
		return pool.StatusCaution, true
	case "restricted":
		return pool.StatusRestricted, true
	case "frozen":
		return pool.StatusFrozen, true
	}
	return pool.StatusHealthy, false
}

func (s *Server) setInterestMultiplier(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Pool       string `json:"pool"`
		Multiplier string `json:"multiplier"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	multiplier, rpcErr := parseAmount(p.Multiplier)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.SetPoolInterestMultiplier(p.Pool, multiplier); err != nil {
		return nil, mapError(err)
	}
	return true, nil
}

func (s *Server) withdrawRevenue(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.WithdrawRevenue(p.Token, amount); err != nil {
		return nil, mapError(err)
	}
	return true, nil
}

func (s *Server) setOraclePrice(params []json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Ticker string `json:"ticker"`
		Price  string `json:"price"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(p.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.SetOraclePrice(p.Ticker, price); err != nil {
		return nil, mapError(err)
	}
	return true, nil
}
