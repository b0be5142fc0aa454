package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

// Context returns a context with the test's deadline, if available.
func Context(tb testing.TB) context.Context {
	ctx := context.Background()
	var cancel func()
	switch t := tb.(type) {
	case *testing.T:
		if d, ok := t.Deadline(); ok {
			ctx, cancel = context.WithDeadline(ctx, d)
		}
	}
	if cancel == nil {
		ctx, cancel = context.WithCancel(ctx)
	}
	tb.Cleanup(cancel)
	return ctx
}

// DefaultWaitTimeout is the default wait timeout. If you have a *testing.T, use WaitTimeout instead.
const DefaultWaitTimeout = 30 * time.Second

// WaitTimeout returns a timeout based on the test's Deadline, if available.
// Especially important to use in parallel tests, as their individual execution
// can get paused for arbitrary amounts of time.
func WaitTimeout(t *testing.T) time.Duration {
	if d, ok := t.Deadline(); ok {
		// 10% buffer for cleanup and scheduling delay
		return time.Until(d) * 9 / 10
	}
	return DefaultWaitTimeout
}

// TestInterval is just a sensible poll interval that gives fast tests without
// risk of spamming
const TestInterval = 10 * time.Millisecond

// NewConfig returns a config with short polling periods, applying overrideFn on top.
func NewConfig(t testing.TB, overrideFn func(*config.ChainCfg)) config.Config {
	cfg := config.ChainCfg{
		ConfirmPollPeriod:  config.MustNewDuration(TestInterval),
		AirdropRetryPeriod: config.MustNewDuration(TestInterval),
		TxConfirmTimeout:   config.MustNewDuration(5 * time.Second),
		HealthCheckPeriod:  config.MustNewDuration(TestInterval),
		BalancePollPeriod:  config.MustNewDuration(TestInterval),
	}
	if overrideFn != nil {
		overrideFn(&cfg)
	}
	return config.NewConfig(cfg, logger.Test(t))
}

// RandomKeys generates n fresh keypairs.
func RandomKeys(t testing.TB, n int) []solana.PrivateKey {
	keys := make([]solana.PrivateKey, n)
	for i := range keys {
		k, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}
