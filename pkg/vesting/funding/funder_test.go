package funding

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/guregu/null.v4"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/fakeledger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/mocks"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

func newFakeFunder(t *testing.T, ledger *fakeledger.Ledger, overrideFn func(*config.ChainCfg)) *Funder {
	cfg := testutils.NewConfig(t, overrideFn)
	c, err := client.NewClient(ledger.URL(), cfg, logger.Test(t))
	require.NoError(t, err)
	return NewFunder(c, cfg, logger.Test(t))
}

func TestFunder_Fund(t *testing.T) {
	for _, amount := range []uint64{0, 1, solana.LAMPORTS_PER_SOL} {
		ctx := testutils.Context(t)
		ledger := fakeledger.New(t)
		f := newFakeFunder(t, ledger, nil)
		addr := testutils.RandomKeys(t, 1)[0].PublicKey()
		ledger.SetAccount(addr, fakeledger.Account{Lamports: 7, Owner: solana.SystemProgramID})

		sig, err := f.Fund(ctx, addr, amount)
		require.NoError(t, err)
		assert.NotEqual(t, solana.Signature{}, sig)
		assert.Equal(t, 7+amount, ledger.Balance(addr))
	}
}

func TestFunder_Fund_RetriesUntilAvailable(t *testing.T) {
	ctx := testutils.Context(t)
	ledger := fakeledger.New(t)
	f := newFakeFunder(t, ledger, nil)
	addr := testutils.RandomKeys(t, 1)[0].PublicKey()

	t.Run("rejected", func(t *testing.T) {
		ledger.FailAirdrops(3)
		before := testutil.ToFloat64(promAirdropAttempts.WithLabelValues(resultFailure))

		_, err := f.Fund(ctx, addr, solana.LAMPORTS_PER_SOL)
		require.NoError(t, err)
		assert.Equal(t, 4, ledger.Calls("requestAirdrop"))
		assert.Equal(t, before+3, testutil.ToFloat64(promAirdropAttempts.WithLabelValues(resultFailure)))
		assert.Equal(t, solana.LAMPORTS_PER_SOL, ledger.Balance(addr))
	})

	t.Run("warmingUp", func(t *testing.T) {
		ledger.SetDown(true)
		go func() {
			time.Sleep(100 * time.Millisecond)
			ledger.SetDown(false)
		}()

		_, err := f.Fund(ctx, addr, solana.LAMPORTS_PER_SOL)
		require.NoError(t, err)
		assert.Equal(t, 2*solana.LAMPORTS_PER_SOL, ledger.Balance(addr))
	})
}

func TestFunder_Fund_Exhausted(t *testing.T) {
	ctx := testutils.Context(t)
	ledger := fakeledger.New(t)
	f := newFakeFunder(t, ledger, func(cfg *config.ChainCfg) {
		cfg.AirdropMaxAttempts = null.IntFrom(2)
	})
	ledger.FailAirdrops(5)
	addr := testutils.RandomKeys(t, 1)[0].PublicKey()

	_, err := f.Fund(ctx, addr, 1)
	require.ErrorIs(t, err, ErrFundingExhausted)
	assert.NotErrorIs(t, err, ErrFundingTimeout)
	// sentinel plus one error per attempt
	assert.Len(t, multierr.Errors(err), 3)
	assert.Equal(t, 2, ledger.Calls("requestAirdrop"))
	assert.Zero(t, ledger.Balance(addr))
}

func TestFunder_Fund_Cancelled(t *testing.T) {
	c := mocks.NewReaderWriter(t)
	c.On("RequestAirdrop", mock.Anything, mock.Anything, uint64(5)).Return(solana.Signature{}, errors.New("connection refused"))
	cfg := testutils.NewConfig(t, nil)
	f := NewFunder(c, cfg, logger.Test(t))

	ctx, cancel := context.WithTimeout(testutils.Context(t), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fund(ctx, solana.PublicKey{1}, 5)
	require.ErrorIs(t, err, ErrFundingTimeout)
	assert.ErrorContains(t, err, "connection refused")
	assert.GreaterOrEqual(t, len(c.Calls), 2)
}

func TestFunder_Fund_ConfirmsLatestAttempt(t *testing.T) {
	c := mocks.NewReaderWriter(t)
	first, second := solana.Signature{1}, solana.Signature{2}
	c.On("RequestAirdrop", mock.Anything, mock.Anything, uint64(9)).Return(first, nil).Once()
	c.On("RequestAirdrop", mock.Anything, mock.Anything, uint64(9)).Return(second, nil).Once()
	c.On("ConfirmTx", mock.Anything, first, rpc.CommitmentFinalized).Return(client.ErrConfirmationTimeout).Once()
	c.On("ConfirmTx", mock.Anything, second, rpc.CommitmentFinalized).Return(nil).Once()

	f := NewFunder(c, testutils.NewConfig(t, nil), logger.Test(t))
	sig, err := f.Fund(testutils.Context(t), solana.PublicKey{1}, 9)
	require.NoError(t, err)
	assert.Equal(t, second, sig)
}

func TestFunder_FundAll(t *testing.T) {
	ctx := testutils.Context(t)
	ledger := fakeledger.New(t)
	f := newFakeFunder(t, ledger, nil)
	keys := testutils.RandomKeys(t, 3)
	addrs := []solana.PublicKey{keys[0].PublicKey(), keys[1].PublicKey(), keys[2].PublicKey()}

	require.NoError(t, f.FundAll(ctx, addrs, 100))
	for _, a := range addrs {
		assert.Equal(t, uint64(100), ledger.Balance(a))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ledger.SetDown(true)
	assert.ErrorIs(t, f.FundAll(cancelled, addrs, 100), ErrFundingTimeout)
}
