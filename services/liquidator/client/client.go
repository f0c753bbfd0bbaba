// Package client is a thin JSON-RPC client for the lending node, covering
// the methods the liquidation bot needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// Loan mirrors the node's loan payload with amounts as decimal strings.
type Loan struct {
	Borrower         string `json:"borrower"`
	Nonce            uint64 `json:"nonce"`
	BorrowedAmount   string `json:"borrowedAmount"`
	BorrowedFrom     string `json:"borrowedFrom"`
	CollateralAmount string `json:"collateralAmount"`
	CollateralFrom   string `json:"collateralFrom"`
	HealthFactor     string `json:"healthFactor"`
	UnpaidInterest   string `json:"unpaidInterest"`
}

// Client speaks JSON-RPC 2.0 to the node.
type Client struct {
	url  string
	http *http.Client
}

// New constructs a client against the given RPC endpoint.
func New(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1}
	if params != nil {
		req.Params = []interface{}{params}
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// GetLoan fetches one loan record. Returns nil without error when the node
// reports the loan as gone.
func (c *Client) GetLoan(ctx context.Context, borrower string, nonce uint64) (*Loan, error) {
	var loan Loan
	err := c.call(ctx, "laina_getLoan", map[string]interface{}{
		"borrower": borrower,
		"nonce":    nonce,
	}, &loan)
	if err != nil {
		if rpcErr, ok := err.(*rpcError); ok && strings.Contains(rpcErr.Message, "loan not found") {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

// GetLoans fetches a borrower's open loans.
func (c *Client) GetLoans(ctx context.Context, borrower string) ([]Loan, error) {
	var loans []Loan
	if err := c.call(ctx, "laina_getLoans", map[string]interface{}{"borrower": borrower}, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// Liquidate executes a liquidation from the liquidator's account.
func (c *Client) Liquidate(ctx context.Context, liquidator, borrower string, nonce uint64, amount *big.Int) (*Loan, error) {
	var updated Loan
	err := c.call(ctx, "laina_liquidate", map[string]interface{}{
		"liquidator": liquidator,
		"borrower":   borrower,
		"nonce":      nonce,
		"amount":     amount.String(),
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
