// Package liquidator watches the node's loan book and repays underwater
// positions in exchange for discounted collateral.
package liquidator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/native/fixedpoint"
	"github.com/laina-defi/laina/services/liquidator/client"
	"github.com/laina-defi/laina/services/liquidator/config"
	"github.com/laina-defi/laina/services/liquidator/store"
)

// nodeClient is the slice of the RPC client the bot depends on. Tests swap in
// a fake.
type nodeClient interface {
	GetLoan(ctx context.Context, borrower string, nonce uint64) (*client.Loan, error)
	Liquidate(ctx context.Context, liquidator, borrower string, nonce uint64, amount *big.Int) (*client.Loan, error)
}

// Bot tracks loans observed on the event stream and liquidates the ones whose
// health factor drops below parity.
type Bot struct {
	cfg    config.Config
	client nodeClient
	store  *store.Store
	log    *slog.Logger
}

// New assembles a bot from its dependencies.
func New(cfg config.Config, rpcClient nodeClient, st *store.Store, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{cfg: cfg, client: rpcClient, store: st, log: log}
}

// Run ingests the event stream and scans tracked loans until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	go b.ingestLoop(ctx)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.Scan(ctx); err != nil {
				b.log.Error("scan failed", "error", err)
			}
		}
	}
}

func (b *Bot) ingestLoop(ctx context.Context) {
	for {
		if err := b.ingestOnce(ctx); err != nil && ctx.Err() == nil {
			b.log.Warn("event stream disconnected", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (b *Bot) ingestOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, b.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var record events.Record
		if err := json.Unmarshal(data, &record); err != nil {
			b.log.Warn("undecodable event", "error", err)
			continue
		}
		b.handleEvent(&record)
	}
}

func (b *Bot) handleEvent(record *events.Record) {
	switch record.Type {
	case events.TypeLoanCreated, events.TypeLoanUpdated:
		borrower := record.Attributes["borrower"]
		nonce, err := strconv.ParseUint(record.Attributes["nonce"], 10, 64)
		if err != nil || borrower == "" {
			return
		}
		tracked := &store.TrackedLoan{
			Borrower:       borrower,
			Nonce:          nonce,
			BorrowedAmount: record.Attributes["borrowedAmount"],
			BorrowedFrom:   record.Attributes["borrowedFrom"],
			CollateralFrom: record.Attributes["collateralFrom"],
			HealthFactor:   record.Attributes["healthFactor"],
			HealthFactorFP: clampHealthFactor(record.Attributes["healthFactor"]),
		}
		if err := b.store.Upsert(tracked); err != nil {
			b.log.Error("tracking upsert failed", "borrower", borrower, "nonce", nonce, "error", err)
		}
	case events.TypeLoanDeleted:
		borrower := record.Attributes["borrower"]
		nonce, err := strconv.ParseUint(record.Attributes["nonce"], 10, 64)
		if err != nil || borrower == "" {
			return
		}
		if err := b.store.Delete(borrower, nonce); err != nil {
			b.log.Error("tracking delete failed", "borrower", borrower, "nonce", nonce, "error", err)
		}
	}
}

func clampHealthFactor(value string) int64 {
	hf, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return math.MaxInt64
	}
	if !hf.IsInt64() {
		return math.MaxInt64
	}
	return hf.Int64()
}

// Scan refreshes every tracked loan against the node and liquidates the
// underwater ones.
func (b *Bot) Scan(ctx context.Context) error {
	tracked, err := b.store.All()
	if err != nil {
		return err
	}
	for _, t := range tracked {
		latest, err := b.client.GetLoan(ctx, t.Borrower, t.Nonce)
		if err != nil {
			b.log.Warn("loan refresh failed", "borrower", t.Borrower, "nonce", t.Nonce, "error", err)
			continue
		}
		if latest == nil {
			if err := b.store.Delete(t.Borrower, t.Nonce); err != nil {
				b.log.Error("tracking delete failed", "borrower", t.Borrower, "error", err)
			}
			continue
		}
		refreshed := &store.TrackedLoan{
			Borrower:         latest.Borrower,
			Nonce:            latest.Nonce,
			BorrowedAmount:   latest.BorrowedAmount,
			BorrowedFrom:     latest.BorrowedFrom,
			CollateralAmount: latest.CollateralAmount,
			CollateralFrom:   latest.CollateralFrom,
			HealthFactor:     latest.HealthFactor,
			HealthFactorFP:   clampHealthFactor(latest.HealthFactor),
		}
		if err := b.store.Upsert(refreshed); err != nil {
			b.log.Error("tracking upsert failed", "borrower", t.Borrower, "error", err)
			continue
		}
		if refreshed.HealthFactorFP < fixedpoint.Decimal {
			b.tryLiquidate(ctx, latest)
		}
	}
	return nil
}

// tryLiquidate repays a quarter of the outstanding debt, comfortably inside
// the protocol's one-percent floor and fifty-percent ceiling.
func (b *Bot) tryLiquidate(ctx context.Context, target *client.Loan) {
	borrowed, ok := new(big.Int).SetString(target.BorrowedAmount, 10)
	if !ok || borrowed.Sign() <= 0 {
		return
	}
	amount := new(big.Int).Div(borrowed, big.NewInt(4))
	if amount.Sign() <= 0 {
		return
	}
	if b.cfg.DryRun {
		b.log.Info("dry run: would liquidate",
			"borrower", target.Borrower,
			"nonce", target.Nonce,
			"amount", amount.String(),
			"healthFactor", target.HealthFactor)
		return
	}
	updated, err := b.client.Liquidate(ctx, b.cfg.LiquidatorAddress, target.Borrower, target.Nonce, amount)
	if err != nil {
		b.log.Warn("liquidation rejected",
			"borrower", target.Borrower,
			"nonce", target.Nonce,
			"amount", amount.String(),
			"error", err)
		return
	}
	b.log.Info("liquidated",
		"borrower", updated.Borrower,
		"nonce", updated.Nonce,
		"repaid", amount.String(),
		"healthFactor", updated.HealthFactor)
}
