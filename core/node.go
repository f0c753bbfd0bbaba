package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/laina-defi/laina/config"
	"github.com/laina-defi/laina/core/events"
	"github.com/laina-defi/laina/core/state"
	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/native/pool"
	"github.com/laina-defi/laina/native/token"
	"github.com/laina-defi/laina/observability"
	"github.com/laina-defi/laina/storage"
)

var (
	// ErrUnknownPool is returned when an operation names a pool the node does
	// not operate.
	ErrUnknownPool = errors.New("node: unknown pool")
	// ErrFaucetDisabled is returned when minting is requested outside a local
	// environment.
	ErrFaucetDisabled = errors.New("node: faucet only available in local environment")
)

const genesisFlag = "genesis-applied"

// ModuleAddress derives the deterministic ledger address a protocol module
// holds funds at.
func ModuleAddress(name string) crypto.Address {
	digest := ethcrypto.Keccak256([]byte("laina/module/" + name))
	return crypto.NewAddress(crypto.AccountPrefix, digest[12:])
}

// Node wires storage, the token book, the pool engines and the loan manager
// into one process. Every mutating operation runs inside a state transaction
// so multi-pool moves land whole or not at all.
type Node struct {
	mu sync.Mutex

	cfg    *config.Config
	log    *slog.Logger
	store  *state.Store
	broker *events.Broker
	oracle *loan.MemoryOracle

	adminAddr   crypto.Address
	revenueAddr crypto.Address
	managerAddr crypto.Address

	now func() time.Time
}

// Option customises a node before bootstrap runs.
type Option func(*Node)

// WithClock sets the ledger time source. Bootstrap stamps pool accrual with
// this clock, so it must be wired at construction rather than after.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNode constructs a node over the opened database and bootstraps genesis
// state on first run.
func NewNode(db storage.Database, cfg *config.Config, log *slog.Logger, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("node: nil config")
	}
	if log == nil {
		log = slog.Default()
	}

	adminAddr := ModuleAddress("admin")
	if strings.TrimSpace(cfg.AdminAddress) != "" {
		decoded, err := crypto.DecodeAddress(cfg.AdminAddress)
		if err != nil {
			return nil, fmt.Errorf("node: admin address: %w", err)
		}
		adminAddr = decoded
	}
	revenueAddr := ModuleAddress("revenue")
	if strings.TrimSpace(cfg.RevenueAddress) != "" {
		decoded, err := crypto.DecodeAddress(cfg.RevenueAddress)
		if err != nil {
			return nil, fmt.Errorf("node: revenue address: %w", err)
		}
		revenueAddr = decoded
	}

	n := &Node{
		cfg:         cfg,
		log:         log,
		store:       state.NewStore(db),
		broker:      events.NewBroker(),
		oracle:      loan.NewMemoryOracle(),
		adminAddr:   adminAddr,
		revenueAddr: revenueAddr,
		managerAddr: ModuleAddress("loan-manager"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	for _, sample := range cfg.Oracle {
		n.oracle.SetPrice(sample.Ticker, big.NewInt(sample.Price))
	}
	if err := n.bootstrap(); err != nil {
		return nil, err
	}
	return n, nil
}

// SetClock overrides the ledger clock. Tests use this for deterministic
// accrual.
func (n *Node) SetClock(now func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now != nil {
		n.now = now
	}
}

// Events exposes the broker downstream consumers subscribe through.
func (n *Node) Events() *events.Broker { return n.broker }

// Oracle exposes the price oracle for external price submission.
func (n *Node) Oracle() *loan.MemoryOracle { return n.oracle }

// AdminAddress returns the account privileged operations settle against.
func (n *Node) AdminAddress() crypto.Address { return n.adminAddr }

// PoolIDs lists the pools the node operates, in configuration order.
func (n *Node) PoolIDs() []string {
	ids := make([]string, 0, len(n.cfg.Pools))
	for _, p := range n.cfg.Pools {
		ids = append(ids, p.ID)
	}
	return ids
}

func (n *Node) poolConfig(poolID string) (config.PoolConfig, bool) {
	for _, p := range n.cfg.Pools {
		if p.ID == poolID {
			return p, true
		}
	}
	return config.PoolConfig{}, false
}

// buildManager assembles the loan manager and its pool engines against one
// state view. Engines and manager are cheap to construct; they carry no state
// of their own beyond wiring.
func (n *Node) buildManager(mgr *state.Manager, timestamp uint64) (*loan.Manager, map[string]*pool.Engine, *token.Book, error) {
	book := token.NewBook(mgr)
	manager := loan.NewManager(n.adminAddr, n.revenueAddr)
	manager.SetState(mgr)
	manager.SetOracle(n.oracle)
	manager.SetTokens(book)
	manager.SetEmitter(n.broker)

	engines := make(map[string]*pool.Engine, len(n.cfg.Pools))
	for _, p := range n.cfg.Pools {
		engine := pool.NewEngine(ModuleAddress("pool/"+p.ID), n.managerAddr)
		engine.SetState(mgr)
		engine.SetTokens(book)
		engine.SetEmitter(n.broker)
		engine.SetPoolID(p.ID)
		engine.SetCurrency(pool.Currency{TokenID: p.TokenID, Ticker: p.Ticker})
		engine.SetTimestamp(timestamp)
		if err := manager.RegisterPool(engine); err != nil {
			return nil, nil, nil, err
		}
		engines[p.ID] = engine
	}
	return manager, engines, book, nil
}

func (n *Node) bootstrap() error {
	timestamp := uint64(n.now().Unix())
	return n.store.Transaction(func(mgr *state.Manager) error {
		_, engines, book, err := n.buildManager(mgr, timestamp)
		if err != nil {
			return err
		}
		for _, p := range n.cfg.Pools {
			record, err := mgr.GetPool(p.ID)
			if err != nil {
				return err
			}
			if record != nil {
				continue
			}
			currency := pool.Currency{TokenID: p.TokenID, Ticker: p.Ticker}
			if err := engines[p.ID].Initialize(currency, big.NewInt(p.LiquidationThreshold)); err != nil {
				return err
			}
			n.log.Info("initialised pool", "pool", p.ID, "token", p.TokenID)
		}

		applied, err := mgr.GetFlag(genesisFlag)
		if err != nil {
			return err
		}
		if !applied {
			for _, g := range n.cfg.Genesis {
				addr, err := crypto.DecodeAddress(g.Address)
				if err != nil {
					return err
				}
				if err := book.Mint(g.TokenID, addr, big.NewInt(g.Amount)); err != nil {
					return err
				}
			}
			if err := mgr.SetFlag(genesisFlag); err != nil {
				return err
			}
			if len(n.cfg.Genesis) > 0 {
				n.log.Info("applied genesis allocation", "entries", len(n.cfg.Genesis))
			}
		}
		return nil
	})
}

// transact runs fn with a freshly wired manager inside one state transaction,
// serialized against other mutating operations.
func (n *Node) transact(fn func(manager *loan.Manager, engines map[string]*pool.Engine, book *token.Book) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	timestamp := uint64(n.now().Unix())
	return n.store.Transaction(func(mgr *state.Manager) error {
		manager, engines, book, err := n.buildManager(mgr, timestamp)
		if err != nil {
			return err
		}
		return fn(manager, engines, book)
	})
}

// query wires a manager against the live store for read-only access.
func (n *Node) query() (*loan.Manager, map[string]*pool.Engine, error) {
	timestamp := uint64(n.now().Unix())
	manager, engines, _, err := n.buildManager(n.store.Manager(), timestamp)
	return manager, engines, err
}

// Deposit supplies amount of a pool's currency from user and returns the
// receivable shares issued.
func (n *Node) Deposit(poolID string, user crypto.Address, amount *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := n.transact(func(_ *loan.Manager, engines map[string]*pool.Engine, _ *token.Book) error {
		engine, ok := engines[poolID]
		if !ok {
			return ErrUnknownPool
		}
		issued, err := engine.Deposit(user, amount)
		if err != nil {
			return err
		}
		shares = issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Protocol().RecordDeposit(poolID)
	return shares, nil
}

// Withdraw redeems amount of underlying from user's receivable shares.
func (n *Node) Withdraw(poolID string, user crypto.Address, amount *big.Int) (*pool.Snapshot, error) {
	var snapshot *pool.Snapshot
	err := n.transact(func(_ *loan.Manager, engines map[string]*pool.Engine, _ *token.Book) error {
		engine, ok := engines[poolID]
		if !ok {
			return ErrUnknownPool
		}
		snap, err := engine.Withdraw(user, amount)
		if err != nil {
			return err
		}
		snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Protocol().RecordWithdrawal(poolID)
	return snapshot, nil
}

// CreateLoan opens a loan for user borrowing from one pool against collateral
// pledged into another.
func (n *Node) CreateLoan(user crypto.Address, borrowed *big.Int, borrowedFrom string, collateral *big.Int, collateralFrom string) (*loan.Loan, error) {
	var created *loan.Loan
	err := n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		record, err := manager.CreateLoan(user, borrowed, borrowedFrom, collateral, collateralFrom)
		if err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Protocol().RecordLoanCreated(borrowedFrom)
	return created, nil
}

// AddInterest accrues a loan's pool and rolls accrued interest into the
// loan's principal.
func (n *Node) AddInterest(id loan.ID) (*loan.Loan, error) {
	var updated *loan.Loan
	err := n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		record, err := manager.AddInterest(id)
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Repay pays amount toward a loan and returns the borrowed amount before and
// after the payment.
func (n *Node) Repay(id loan.ID, amount *big.Int) (*big.Int, *big.Int, error) {
	var prev, remaining *big.Int
	var borrowPool string
	err := n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		record, err := manager.GetLoan(id)
		if err != nil {
			return err
		}
		if record != nil {
			borrowPool = record.BorrowedFrom
		}
		before, after, err := manager.Repay(id, amount)
		if err != nil {
			return err
		}
		prev, remaining = before, after
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	observability.Protocol().RecordLoanRepaid(borrowPool)
	return prev, remaining, nil
}

// RepayAndClose settles a loan in full, returns the collateral and deletes
// the record. Returns the amount actually paid.
func (n *Node) RepayAndClose(id loan.ID, maxAllowed *big.Int) (*big.Int, error) {
	var settled *big.Int
	var borrowPool string
	err := n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		record, err := manager.GetLoan(id)
		if err != nil {
			return err
		}
		if record != nil {
			borrowPool = record.BorrowedFrom
		}
		paid, err := manager.RepayAndClose(id, maxAllowed)
		if err != nil {
			return err
		}
		settled = paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Protocol().RecordLoanClosed(borrowPool)
	return settled, nil
}

// Liquidate repays part of an undercollateralized loan from liquidator's
// funds in exchange for a discounted slice of the collateral.
func (n *Node) Liquidate(liquidator crypto.Address, id loan.ID, amount *big.Int) (*loan.Loan, error) {
	var updated *loan.Loan
	err := n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		record, err := manager.Liquidate(liquidator, id, amount)
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Protocol().RecordLiquidation(updated.BorrowedFrom)
	return updated, nil
}

// SetPoolStatus gates a pool's operations. Admin-only at the RPC layer.
func (n *Node) SetPoolStatus(poolID string, status pool.Status) error {
	return n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		return manager.SetPoolStatus(poolID, status)
	})
}

// SetPoolInterestMultiplier scales a pool's annual rate. Admin-only at the
// RPC layer.
func (n *Node) SetPoolInterestMultiplier(poolID string, multiplier *big.Int) error {
	return n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		return manager.SetPoolInterestMultiplier(poolID, multiplier)
	})
}

// WithdrawRevenue moves accumulated admin fees to the admin account.
func (n *Node) WithdrawRevenue(tokenID string, amount *big.Int) error {
	return n.transact(func(manager *loan.Manager, _ map[string]*pool.Engine, _ *token.Book) error {
		return manager.WithdrawRevenue(tokenID, amount)
	})
}

// FaucetMint credits tokens to an account. Local environments only.
func (n *Node) FaucetMint(tokenID string, addr crypto.Address, amount *big.Int) error {
	if n.cfg.Environment != "local" {
		return ErrFaucetDisabled
	}
	return n.transact(func(_ *loan.Manager, _ map[string]*pool.Engine, book *token.Book) error {
		return book.Mint(tokenID, addr, amount)
	})
}

// SetOraclePrice records a fresh price sample for a ticker.
func (n *Node) SetOraclePrice(ticker string, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return errors.New("node: price must be positive")
	}
	n.oracle.SetPrice(ticker, price)
	return nil
}

// GetLoan returns a loan record, nil when absent.
func (n *Node) GetLoan(id loan.ID) (*loan.Loan, error) {
	manager, _, err := n.query()
	if err != nil {
		return nil, err
	}
	record, err := manager.GetLoan(id)
	if errors.Is(err, loan.ErrLoanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetLoans returns the borrower's open loans.
func (n *Node) GetLoans(borrower crypto.Address) ([]*loan.Loan, error) {
	manager, _, err := n.query()
	if err != nil {
		return nil, err
	}
	return manager.GetLoans(borrower)
}

// GetPrice returns the most recent oracle sample for a ticker.
func (n *Node) GetPrice(ticker string) (*big.Int, error) {
	manager, _, err := n.query()
	if err != nil {
		return nil, err
	}
	return manager.GetPrice(ticker)
}

// PoolSnapshot returns the externally visible state of one pool and
// refreshes its balance gauges.
func (n *Node) PoolSnapshot(poolID string) (*pool.Snapshot, error) {
	_, engines, err := n.query()
	if err != nil {
		return nil, err
	}
	engine, ok := engines[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	snap, err := engine.PoolState()
	if err != nil {
		return nil, err
	}
	total, _ := new(big.Float).SetInt(snap.TotalBalanceTokens).Float64()
	available, _ := new(big.Float).SetInt(snap.AvailableBalanceTokens).Float64()
	rate, _ := new(big.Float).SetInt(snap.AnnualInterestRate).Float64()
	observability.Protocol().SetPoolBalances(poolID, total, available)
	observability.Protocol().SetPoolAnnualRate(poolID, rate)
	return snap, nil
}

// PoolCurrency returns the asset a pool accounts for.
func (n *Node) PoolCurrency(poolID string) (pool.Currency, error) {
	p, ok := n.poolConfig(poolID)
	if !ok {
		return pool.Currency{}, ErrUnknownPool
	}
	return pool.Currency{TokenID: p.TokenID, Ticker: p.Ticker}, nil
}

// PoolCollateralFactor returns a pool's collateral factor.
func (n *Node) PoolCollateralFactor(poolID string) (*big.Int, error) {
	_, engines, err := n.query()
	if err != nil {
		return nil, err
	}
	engine, ok := engines[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	return engine.CollateralFactor()
}

// PoolAccrual returns a pool's current cumulative interest index.
func (n *Node) PoolAccrual(poolID string) (*big.Int, error) {
	_, engines, err := n.query()
	if err != nil {
		return nil, err
	}
	engine, ok := engines[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	return engine.Accrual()
}

// PoolAnnualRate returns a pool's current annual interest rate.
func (n *Node) PoolAnnualRate(poolID string) (*big.Int, error) {
	_, engines, err := n.query()
	if err != nil {
		return nil, err
	}
	engine, ok := engines[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	return engine.AnnualRate()
}

// UserPositions returns an account's stake in one pool.
func (n *Node) UserPositions(poolID string, addr crypto.Address) (*pool.Positions, error) {
	_, engines, err := n.query()
	if err != nil {
		return nil, err
	}
	engine, ok := engines[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	return engine.UserPositions(addr)
}

// Balance returns an account's token balance.
func (n *Node) Balance(tokenID string, addr crypto.Address) (*big.Int, error) {
	return token.NewBook(n.store.Manager()).BalanceOf(tokenID, addr)
}
