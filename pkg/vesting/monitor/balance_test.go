package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/mocks"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

type config struct {
	balancePollPeriod time.Duration
}

func (c *config) BalancePollPeriod() time.Duration {
	return c.balancePollPeriod
}

func TestBalanceMonitor(t *testing.T) {
	ks := StaticAccounts{}
	for _, k := range testutils.RandomKeys(t, 3) {
		ks = append(ks, k.PublicKey())
	}

	bals := []uint64{0, 1, 1_000_000_000}
	expBals := []string{
		"0.000000000",
		"0.000000001",
		"1.000000000",
	}

	client := mocks.NewReaderWriter(t)
	type update struct{ acc, bal string }
	var exp []update
	for i := range bals {
		acc := ks[i]
		client.On("Balance", mock.Anything, acc).Return(bals[i], nil)
		exp = append(exp, update{acc.String(), expBals[i]})
	}
	cfg := &config{balancePollPeriod: time.Second}
	b := NewBalanceMonitor(cfg, logger.Test(t), ks, client)
	var got []update
	done := make(chan struct{})
	b.updateFn = func(acc solana.PublicKey, lamports uint64) {
		select {
		case <-done:
			return
		default:
		}
		v := LamportsToSol(lamports)
		got = append(got, update{acc.String(), fmt.Sprintf("%.9f", v)})
		if len(got) == len(exp) {
			close(done)
		}
	}

	require.NoError(t, b.Start(testutils.Context(t)))
	t.Cleanup(func() {
		assert.NoError(t, b.Close())
	})
	select {
	case <-time.After(testutils.WaitTimeout(t)):
		t.Fatal("timed out waiting for balance monitor")
	case <-done:
	}

	assert.EqualValues(t, exp, got)
}

func TestBalanceMonitor_Prom(t *testing.T) {
	keys := testutils.RandomKeys(t, 2)
	good, bad := keys[0].PublicKey(), keys[1].PublicKey()

	client := mocks.NewReaderWriter(t)
	client.On("Balance", mock.Anything, bad).Return(uint64(0), errors.New("connection refused")).Maybe()
	client.On("Balance", mock.Anything, good).Return(uint64(2_500_000_000), nil)

	b := NewBalanceMonitor(&config{balancePollPeriod: testutils.TestInterval}, logger.Test(t), StaticAccounts{bad, good}, client)
	require.NoError(t, b.Start(testutils.Context(t)))
	assert.Error(t, b.Start(testutils.Context(t)))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(promBalance.WithLabelValues(good.String(), "SOL")) == 2.5
	}, testutils.WaitTimeout(t), testutils.TestInterval)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

type failingAccounts struct {
	mu    sync.Mutex
	calls int
}

func (f *failingAccounts) Accounts(context.Context) ([]solana.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, errors.New("keystore locked")
}

func (f *failingAccounts) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBalanceMonitor_AccountsError(t *testing.T) {
	accounts := &failingAccounts{}
	client := mocks.NewReaderWriter(t) // no balance calls expected
	b := NewBalanceMonitor(&config{balancePollPeriod: testutils.TestInterval}, logger.Test(t), accounts, client)
	require.NoError(t, b.Start(testutils.Context(t)))
	require.Eventually(t, func() bool { return accounts.Calls() >= 2 }, testutils.WaitTimeout(t), testutils.TestInterval)
	require.NoError(t, b.Close())
}
