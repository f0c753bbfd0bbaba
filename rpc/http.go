package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laina-defi/laina/core"
	"github.com/laina-defi/laina/native/fixedpoint"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/native/pool"
	"github.com/laina-defi/laina/native/token"
	"github.com/laina-defi/laina/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the node over JSON-RPC, a websocket event stream and a
// Prometheus scrape endpoint.
type Server struct {
	node      *core.Node
	log       *slog.Logger
	authToken string
}

// NewServer wraps a node. Admin methods require the bearer token from
// LAINA_RPC_TOKEN; when unset they are rejected outright.
func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		node:      node,
		log:       log,
		authToken: strings.TrimSpace(os.Getenv("LAINA_RPC_TOKEN")),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Serve runs the server until ctx is cancelled, then drains connections.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return header == "Bearer "+s.authToken
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, req.ID, codeMethodNotFound, "method not found: "+req.Method)
		return
	}
	if adminMethods[req.Method] && !s.authorized(r) {
		writeError(w, req.ID, codeUnauthorized, "unauthorized")
		return
	}

	started := time.Now()
	result, rpcErr := handler(req.Params)
	observability.Protocol().ObserveRPCDuration(req.Method, time.Since(started).Seconds())
	if rpcErr != nil {
		s.log.Warn("rpc request failed", "method", req.Method, "error", rpcErr.Message)
		writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	writeResult(w, req.ID, result)
}

type methodFunc func(params []json.RawMessage) (interface{}, *rpcError)

var adminMethods = map[string]bool{
	"laina_setPoolStatus":         true,
	"laina_setInterestMultiplier": true,
	"laina_withdrawRevenue":       true,
	"laina_setOraclePrice":        true,
}

func (s *Server) methods() map[string]methodFunc {
	return map[string]methodFunc{
		"laina_listPools":           s.listPools,
		"laina_getPoolState":        s.getPoolState,
		"laina_getUserPositions":    s.getUserPositions,
		"laina_getCurrency":         s.getCurrency,
		"laina_getCollateralFactor": s.getCollateralFactor,
		"laina_getAccrual":          s.getAccrual,
		"laina_getAnnualRate":       s.getAnnualRate,
		"laina_getBalance":          s.getBalance,
		"laina_getLoan":             s.getLoan,
		"laina_getLoans":            s.getLoans,
		"laina_getPrice":            s.getPrice,

		"laina_deposit":       s.deposit,
		"laina_withdraw":      s.withdraw,
		"laina_createLoan":    s.createLoan,
		"laina_addInterest":   s.addInterest,
		"laina_repay":         s.repay,
		"laina_repayAndClose": s.repayAndClose,
		"laina_liquidate":     s.liquidate,
		"laina_faucetMint":    s.faucetMint,

		"laina_setPoolStatus":         s.setPoolStatus,
		"laina_setInterestMultiplier": s.setInterestMultiplier,
		"laina_withdrawRevenue":       s.withdrawRevenue,
		"laina_setOraclePrice":        s.setOraclePrice,
	}
}

// mapError translates domain errors into JSON-RPC error objects. Validation
// failures surface as invalid params; everything else is a server error.
func mapError(err error) *rpcError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrUnknownPool),
		errors.Is(err, loan.ErrLoanNotFound),
		errors.Is(err, loan.ErrInvalidLoanToken),
		errors.Is(err, loan.ErrInvalidCollateralToken),
		errors.Is(err, loan.ErrRepayOverBorrowed),
		errors.Is(err, loan.ErrLiquidationTooSmall),
		errors.Is(err, loan.ErrLiquidationTooLarge),
		errors.Is(err, loan.ErrHealthFactorTooLow),
		errors.Is(err, loan.ErrNotLiquidatable),
		errors.Is(err, loan.ErrInvalidLiquidation),
		errors.Is(err, loan.ErrNoLastPrice),
		errors.Is(err, pool.ErrNegativeDeposit),
		errors.Is(err, pool.ErrWithdrawIsNegative),
		errors.Is(err, pool.ErrWithdrawOverBalance),
		errors.Is(err, fixedpoint.ErrOverOrUnderFlow),
		errors.Is(err, token.ErrInsufficientBalance):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &rpcError{Code: codeServerError, Message: err.Error()}
	}
}
