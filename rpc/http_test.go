package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/laina-defi/laina/config"
	"github.com/laina-defi/laina/core"
	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/storage"
)

func rpcTestAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	lender := rpcTestAddress(0x10)
	borrower := rpcTestAddress(0x11)
	cfg := &config.Config{
		RPCAddress:  "127.0.0.1:0",
		Environment: "local",
		Pools: []config.PoolConfig{
			{ID: "xlm", TokenID: "XLM", Ticker: "XLM", LiquidationThreshold: 8_000_000},
			{ID: "usdc", TokenID: "USDC", Ticker: "USDC", LiquidationThreshold: 8_000_000},
		},
		Genesis: []config.GenesisBalance{
			{Address: lender.String(), TokenID: "USDC", Amount: 5_000_000},
			{Address: borrower.String(), TokenID: "XLM", Amount: 1_000_000},
		},
		Oracle: []config.OraclePrice{
			{Ticker: "XLM", Price: 10_000_000},
			{Ticker: "USDC", Price: 10_000_000},
		},
	}
	node, err := core.NewNode(storage.NewMemDB(), cfg, nil)
	require.NoError(t, err)

	server := NewServer(node, nil)
	server.authToken = "test-secret"
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts
}

func call(t *testing.T, url, method string, params interface{}, headers map[string]string) rpcResponse {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func resultInto(t *testing.T, resp rpcResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestMethodNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp := call(t, ts.URL, "laina_noSuchMethod", nil, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestListPoolsAndPoolState(t *testing.T) {
	_, ts := newTestServer(t)

	var pools []string
	resultInto(t, call(t, ts.URL, "laina_listPools", nil, nil), &pools)
	require.Equal(t, []string{"xlm", "usdc"}, pools)

	var state poolStatePayload
	resultInto(t, call(t, ts.URL, "laina_getPoolState", map[string]string{"pool": "usdc"}, nil), &state)
	require.Equal(t, "0", state.TotalBalanceTokens)

	resp := call(t, ts.URL, "laina_getPoolState", map[string]string{"pool": "doge"}, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestDepositAndLoanLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	lender := rpcTestAddress(0x10)
	borrower := rpcTestAddress(0x11)

	var deposited map[string]string
	resultInto(t, call(t, ts.URL, "laina_deposit", map[string]string{
		"pool": "usdc", "address": lender.String(), "amount": "1000000",
	}, nil), &deposited)
	require.Equal(t, "1000000", deposited["sharesIssued"])

	var created loanPayload
	resultInto(t, call(t, ts.URL, "laina_createLoan", map[string]string{
		"borrower":         borrower.String(),
		"borrowedAmount":   "100000",
		"borrowedFrom":     "usdc",
		"collateralAmount": "200000",
		"collateralFrom":   "xlm",
	}, nil), &created)
	require.Equal(t, uint64(1), created.Nonce)
	require.Equal(t, "100000", created.BorrowedAmount)

	var loans []loanPayload
	resultInto(t, call(t, ts.URL, "laina_getLoans", map[string]string{"borrower": borrower.String()}, nil), &loans)
	require.Len(t, loans, 1)

	var repaid map[string]string
	resultInto(t, call(t, ts.URL, "laina_repay", map[string]interface{}{
		"borrower": borrower.String(), "nonce": 1, "amount": "40000",
	}, nil), &repaid)
	require.Equal(t, "60000", repaid["remainingBorrowed"])

	var settled map[string]string
	resultInto(t, call(t, ts.URL, "laina_repayAndClose", map[string]interface{}{
		"borrower": borrower.String(), "nonce": 1, "maxAllowed": "60000",
	}, nil), &settled)
	require.Equal(t, "60000", settled["settled"])

	resp := call(t, ts.URL, "laina_getLoan", map[string]interface{}{
		"borrower": borrower.String(), "nonce": 1,
	}, nil)
	require.NotNil(t, resp.Error)
	require.Contains(t, resp.Error.Message, "loan not found")
}

func TestRejectedRiskChecksAreInvalidParams(t *testing.T) {
	_, ts := newTestServer(t)
	lender := rpcTestAddress(0x10)
	borrower := rpcTestAddress(0x11)

	var deposited map[string]string
	resultInto(t, call(t, ts.URL, "laina_deposit", map[string]string{
		"pool": "usdc", "address": lender.String(), "amount": "1000000",
	}, nil), &deposited)

	// Collateral at exact parity fails the creation gate; the caller made a
	// bad request, not the server.
	resp := call(t, ts.URL, "laina_createLoan", map[string]string{
		"borrower":         borrower.String(),
		"borrowedAmount":   "100000",
		"borrowedFrom":     "usdc",
		"collateralAmount": "125000",
		"collateralFrom":   "xlm",
	}, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	for _, domainErr := range []error{
		loan.ErrHealthFactorTooLow,
		loan.ErrNotLiquidatable,
		loan.ErrInvalidLiquidation,
		loan.ErrNoLastPrice,
	} {
		mapped := mapError(domainErr)
		require.NotNil(t, mapped)
		require.Equal(t, codeInvalidParams, mapped.Code)
	}
}

func TestAdminMethodsRequireToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts.URL, "laina_setOraclePrice", map[string]string{"ticker": "XLM", "price": "20000000"}, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	headers := map[string]string{"Authorization": "Bearer test-secret"}
	var ok bool
	resultInto(t, call(t, ts.URL, "laina_setOraclePrice", map[string]string{"ticker": "XLM", "price": "20000000"}, headers), &ok)
	require.True(t, ok)

	var price string
	resultInto(t, call(t, ts.URL, "laina_getPrice", map[string]string{"ticker": "XLM"}, nil), &price)
	require.Equal(t, "20000000", price)
}

func TestSetPoolStatusGatesDeposits(t *testing.T) {
	_, ts := newTestServer(t)
	lender := rpcTestAddress(0x10)
	headers := map[string]string{"Authorization": "Bearer test-secret"}

	var ok bool
	resultInto(t, call(t, ts.URL, "laina_setPoolStatus", map[string]string{"pool": "usdc", "status": "frozen"}, headers), &ok)
	require.True(t, ok)

	resp := call(t, ts.URL, "laina_deposit", map[string]string{
		"pool": "usdc", "address": lender.String(), "amount": "1000000",
	}, nil)
	require.NotNil(t, resp.Error)
	require.Contains(t, resp.Error.Message, "not allowed in current status")
}

func TestEventStreamDeliversDeposit(t *testing.T) {
	_, ts := newTestServer(t)
	lender := rpcTestAddress(0x10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the stream goroutine time to subscribe before emitting.
	time.Sleep(100 * time.Millisecond)

	var deposited map[string]string
	resultInto(t, call(t, ts.URL, "laina_deposit", map[string]string{
		"pool": "usdc", "address": lender.String(), "amount": "1000000",
	}, nil), &deposited)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var record events.Record
	require.NoError(t, json.Unmarshal(data, &record))
	require.NotEmpty(t, record.Type)
}
