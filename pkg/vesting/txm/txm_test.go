package txm

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/fakeledger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/mocks"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

type env struct {
	ledger *fakeledger.Ledger
	txm    *Txm
}

func setup(t *testing.T, overrideFn func(*config.ChainCfg)) env {
	ledger := fakeledger.New(t)
	cfg := testutils.NewConfig(t, overrideFn)
	c, err := client.NewClient(ledger.URL(), cfg, logger.Test(t))
	require.NoError(t, err)
	return env{ledger: ledger, txm: NewTxm(c, cfg, logger.Test(t))}
}

func (e env) fund(keys ...solana.PrivateKey) {
	for _, k := range keys {
		e.ledger.SetAccount(k.PublicKey(), fakeledger.Account{Lamports: solana.LAMPORTS_PER_SOL, Owner: solana.SystemProgramID})
	}
}

func transfer(lamports uint64, from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

func TestTxm_Submit(t *testing.T) {
	ctx := testutils.Context(t)
	e := setup(t, nil)
	keys := testutils.RandomKeys(t, 3)
	payer, sender, receiver := keys[0], keys[1], keys[2].PublicKey()
	e.fund(payer, sender)

	before := testutil.ToFloat64(promSubmissions.WithLabelValues(outcomeSuccess))

	// payer listed again as a signer is deduplicated
	sig, err := e.txm.Submit(ctx, []solana.PrivateKey{sender, payer}, payer,
		transfer(100, sender.PublicKey(), receiver),
		transfer(200, sender.PublicKey(), receiver),
	)
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, sig)

	assert.Equal(t, uint64(300), e.ledger.Balance(receiver))
	assert.Equal(t, solana.LAMPORTS_PER_SOL-300, e.ledger.Balance(sender.PublicKey()))
	// two signatures, both charged to the fee payer
	assert.Equal(t, solana.LAMPORTS_PER_SOL-2*fakeledger.LamportsPerSignature, e.ledger.Balance(payer.PublicKey()))
	assert.Equal(t, before+1, testutil.ToFloat64(promSubmissions.WithLabelValues(outcomeSuccess)))
}

func TestTxm_Submit_NoInstructions(t *testing.T) {
	c := mocks.NewReaderWriter(t)
	txm := NewTxm(c, config.NewDefault(), logger.Test(t))
	_, err := txm.Submit(testutils.Context(t), nil, testutils.RandomKeys(t, 1)[0])
	assert.ErrorIs(t, err, ErrNoInstructions)
}

func TestTxm_Submit_SignerMissing(t *testing.T) {
	keys := testutils.RandomKeys(t, 3)
	payer, sender, receiver := keys[0], keys[1], keys[2].PublicKey()

	t.Run("noNetworkCall", func(t *testing.T) {
		// no expectations: any RPC fails the test
		c := mocks.NewReaderWriter(t)
		txm := NewTxm(c, config.NewDefault(), logger.Test(t))
		before := testutil.ToFloat64(promSubmissions.WithLabelValues(outcomeSignerMissing))

		_, err := txm.Submit(testutils.Context(t), nil, payer, transfer(1, sender.PublicKey(), receiver))
		require.ErrorIs(t, err, ErrSignerMissing)
		var missing *SignerMissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []solana.PublicKey{sender.PublicKey()}, missing.Missing)
		assert.Contains(t, err.Error(), sender.PublicKey().String())
		assert.Equal(t, before+1, testutil.ToFloat64(promSubmissions.WithLabelValues(outcomeSignerMissing)))
	})

	t.Run("ledgerUntouched", func(t *testing.T) {
		e := setup(t, nil)
		e.fund(payer, sender)
		_, err := e.txm.Submit(testutils.Context(t), []solana.PrivateKey{keys[2]}, payer, transfer(1, sender.PublicKey(), receiver))
		require.ErrorIs(t, err, ErrSignerMissing)
		assert.Zero(t, e.ledger.TotalCalls())
		assert.Equal(t, solana.LAMPORTS_PER_SOL, e.ledger.Balance(payer.PublicKey()))
	})
}

func TestTxm_Submit_Rejected(t *testing.T) {
	ctx := testutils.Context(t)
	e := setup(t, nil)
	keys := testutils.RandomKeys(t, 2)
	payer := keys[0] // never funded

	_, err := e.txm.Submit(ctx, nil, payer, transfer(1, payer.PublicKey(), keys[1].PublicKey()))
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.False(t, subErr.Landed)
	assert.Equal(t, client.InsufficientFunds, subErr.Code)
	assert.Contains(t, err.Error(), "no record of a prior credit")
	assert.Zero(t, e.ledger.Calls("getSignatureStatuses"))
}

func TestTxm_Submit_ExecutionFailure(t *testing.T) {
	ctx := testutils.Context(t)
	e := setup(t, nil)
	keys := testutils.RandomKeys(t, 2)
	payer, receiver := keys[0], keys[1].PublicKey()
	e.fund(payer)

	// the second transfer overdraws so the first must be rolled back too
	sig, err := e.txm.Submit(ctx, nil, payer,
		transfer(1_000, payer.PublicKey(), receiver),
		transfer(2*solana.LAMPORTS_PER_SOL, payer.PublicKey(), receiver),
	)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.Landed)
	assert.Equal(t, client.InstructionFailed, subErr.Code)
	assert.Equal(t, sig, subErr.Signature)

	var failed *client.TxFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Error(), "InstructionError")

	assert.Zero(t, e.ledger.Balance(receiver))
	assert.Equal(t, solana.LAMPORTS_PER_SOL-fakeledger.LamportsPerSignature, e.ledger.Balance(payer.PublicKey()))
}

func TestTxm_Submit_ConfirmationTimeout(t *testing.T) {
	ctx := testutils.Context(t)
	e := setup(t, func(cfg *config.ChainCfg) {
		cfg.TxConfirmTimeout = config.MustNewDuration(100 * time.Millisecond)
	})
	e.ledger.Stall(true)
	keys := testutils.RandomKeys(t, 2)
	payer := keys[0]
	e.fund(payer)

	sig, err := e.txm.Submit(ctx, nil, payer, transfer(1, payer.PublicKey(), keys[1].PublicKey()))
	require.ErrorIs(t, err, client.ErrConfirmationTimeout)
	var subErr *SubmissionError
	assert.False(t, errors.As(err, &subErr), "timeout must be distinct from a rejection")
	assert.NotEqual(t, solana.Signature{}, sig)
}

func TestTxm_Submit_ComputeBudget(t *testing.T) {
	ctx := testutils.Context(t)
	keys := testutils.RandomKeys(t, 2)
	payer, receiver := keys[0], keys[1].PublicKey()

	cfg := testutils.NewConfig(t, func(cfg *config.ChainCfg) {
		cfg.ComputeUnitLimit = null.IntFrom(300_000)
		cfg.ComputeUnitPrice = null.IntFrom(5)
	})
	c := mocks.NewReaderWriter(t)
	hash := solana.Hash{1, 2, 3}
	c.On("LatestBlockhash", mock.Anything).Return(&rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: hash},
	}, nil).Once()

	var sent *solana.Transaction
	c.On("SendTx", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*solana.Transaction)
	}).Return(func(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
		return tx.Signatures[0], nil
	}).Once()
	c.On("ConfirmTx", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).Return(nil).Once()

	txm := NewTxm(c, cfg, logger.Test(t))
	sig, err := txm.Submit(ctx, nil, payer, transfer(7, payer.PublicKey(), receiver))
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, sent.Signatures[0], sig)
	assert.Equal(t, hash, sent.Message.RecentBlockhash)
	require.NoError(t, sent.VerifySignatures())

	require.Len(t, sent.Message.Instructions, 3)
	program := func(i int) solana.PublicKey {
		return sent.Message.AccountKeys[sent.Message.Instructions[i].ProgramIDIndex]
	}
	assert.Equal(t, ComputeBudgetProgram, program(0))
	assert.Equal(t, ComputeBudgetProgram, program(1))
	assert.Equal(t, solana.SystemProgramID, program(2))

	limit, err := ParseComputeUnitLimit(sent.Message.Instructions[0].Data)
	require.NoError(t, err)
	assert.Equal(t, ComputeUnitLimit(300_000), limit)
	price, err := ParseComputeUnitPrice(sent.Message.Instructions[1].Data)
	require.NoError(t, err)
	assert.Equal(t, ComputeUnitPrice(5), price)
}
