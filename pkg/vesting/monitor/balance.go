package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

type Config interface {
	BalancePollPeriod() time.Duration
}

// Accounts lists the addresses to watch. It is consulted on every poll.
type Accounts interface {
	Accounts(ctx context.Context) ([]solana.PublicKey, error)
}

// StaticAccounts is a fixed set of watched addresses.
type StaticAccounts []solana.PublicKey

func (s StaticAccounts) Accounts(context.Context) ([]solana.PublicKey, error) { return s, nil }

type BalanceClient interface {
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
}

// NewBalanceMonitor returns a balance monitor which reports each account's balance
// as the vesting_balance gauge every BalancePollPeriod.
func NewBalanceMonitor(cfg Config, lggr logger.Logger, accounts Accounts, reader BalanceClient) *BalanceMonitor {
	b := &BalanceMonitor{
		cfg:      cfg,
		lggr:     logger.Named(lggr, "BalanceMonitor"),
		accounts: accounts,
		reader:   reader,
	}
	b.updateFn = b.updateProm
	return b
}

type BalanceMonitor struct {
	cfg      Config
	lggr     logger.Logger
	accounts Accounts
	reader   BalanceClient
	updateFn func(acc solana.PublicKey, lamports uint64) // overridable for testing

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start polls once immediately and then every period until Close.
func (b *BalanceMonitor) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("balance monitor already started")
	}
	ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.done = make(chan struct{})
	go b.monitor(ctx)
	return nil
}

func (b *BalanceMonitor) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	return nil
}

func (b *BalanceMonitor) monitor(ctx context.Context) {
	defer close(b.done)
	b.updateBalances(ctx)
	tick := time.NewTicker(b.cfg.BalancePollPeriod())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			b.updateBalances(ctx)
		}
	}
}

func (b *BalanceMonitor) updateBalances(ctx context.Context) {
	keys, err := b.accounts.Accounts(ctx)
	if err != nil {
		b.lggr.Errorw("Failed to get accounts", "err", err)
		return
	}
	for _, k := range keys {
		select {
		case <-ctx.Done():
			return
		default:
		}
		lamports, err := b.reader.Balance(ctx, k)
		if err != nil {
			b.lggr.Errorw("Failed to get balance", "account", k.String(), "err", err)
			continue
		}
		b.updateFn(k, lamports)
	}
}
