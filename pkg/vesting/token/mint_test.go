package token

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/fakeledger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/txm"
)

func setup(t *testing.T) (*fakeledger.Ledger, *client.Client, *txm.Txm) {
	ledger := fakeledger.New(t)
	ledger.InstallTokenPrograms()
	cfg := testutils.NewConfig(t, nil)
	c, err := client.NewClient(ledger.URL(), cfg, logger.Test(t))
	require.NoError(t, err)
	return ledger, c, txm.NewTxm(c, cfg, logger.Test(t))
}

func TestMint(t *testing.T) {
	ctx := testutils.Context(t)
	ledger, c, tm := setup(t)
	keys := testutils.RandomKeys(t, 2)
	payer, wallet := keys[0], keys[1].PublicKey()
	ledger.SetAccount(payer.PublicKey(), fakeledger.Account{Lamports: solana.LAMPORTS_PER_SOL, Owner: solana.SystemProgramID})

	m, err := NewMint(ctx, tm, c, payer, 6, logger.Test(t))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals())

	acc, ok := ledger.Account(m.Address())
	require.True(t, ok)
	assert.Equal(t, tokenprog.ProgramID, acc.Owner)
	assert.Len(t, acc.Data, MintAccountSize)
	assert.Equal(t, fakeledger.RentExemptMinimum(MintAccountSize), acc.Lamports)

	ata, err := m.AssociatedAccount(ctx, wallet)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(wallet, m.Address())
	require.NoError(t, err)
	assert.Equal(t, want, ata)

	balance, err := m.Balance(ctx, ata)
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = m.MintTo(ctx, ata, 1_000)
	require.NoError(t, err)
	_, err = m.MintTo(ctx, ata, 234)
	require.NoError(t, err)

	balance, err = m.Balance(ctx, ata)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_234), balance)
	supply, err := m.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_234), supply)

	t.Run("existing associated account", func(t *testing.T) {
		sends := ledger.Calls("sendTransaction")
		again, err := m.AssociatedAccount(ctx, wallet)
		require.NoError(t, err)
		assert.Equal(t, ata, again)
		assert.Equal(t, sends, ledger.Calls("sendTransaction"))
	})

	t.Run("foreign token account", func(t *testing.T) {
		other, err := NewMint(ctx, tm, c, payer, 0, logger.Test(t))
		require.NoError(t, err)
		_, err = other.Balance(ctx, ata)
		assert.ErrorContains(t, err, "belongs to mint")
		_, err = other.MintTo(ctx, ata, 1)
		var subErr *txm.SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.True(t, subErr.Landed)
	})
}

func TestNewMint_Unfunded(t *testing.T) {
	ctx := testutils.Context(t)
	_, c, tm := setup(t)
	payer := testutils.RandomKeys(t, 1)[0]

	_, err := NewMint(ctx, tm, c, payer, 9, logger.Test(t))
	var subErr *txm.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.False(t, subErr.Landed)
}
