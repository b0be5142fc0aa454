package txm

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

// Txm builds, signs, sends and confirms one transaction per Submit call.
// It keeps no queue; ordering across calls is up to the caller.
type Txm struct {
	lggr   logger.Logger
	cfg    config.Config
	client client.ReaderWriter
}

func NewTxm(c client.ReaderWriter, cfg config.Config, lggr logger.Logger) *Txm {
	return &Txm{
		lggr:   logger.Named(lggr, "Txm"),
		cfg:    cfg,
		client: c,
	}
}

// Submit sends instructions as one atomic transaction paid by feePayer and waits
// for the configured commitment. signers are deduplicated with the fee payer.
func (txm *Txm) Submit(ctx context.Context, signers []solana.PrivateKey, feePayer solana.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	if len(instructions) == 0 {
		return solana.Signature{}, ErrNoInstructions
	}
	id := uuid.New()

	keys := map[solana.PublicKey]solana.PrivateKey{feePayer.PublicKey(): feePayer}
	for _, s := range signers {
		keys[s.PublicKey()] = s
	}

	budget, err := computeBudget(ComputeUnitLimit(txm.cfg.ComputeUnitLimit()), ComputeUnitPrice(txm.cfg.ComputeUnitPrice()))
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to build compute budget instructions")
	}

	// blockhash is filled in after the signer check so a malformed tx never reaches the network
	tx, err := solana.NewTransaction(append(budget, instructions...), solana.Hash{}, solana.TransactionPayer(feePayer.PublicKey()))
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to build transaction")
	}
	if err := checkSigners(tx, keys); err != nil {
		promSubmissions.WithLabelValues(outcomeSignerMissing).Inc()
		return solana.Signature{}, err
	}

	hash, err := txm.client.LatestBlockhash(ctx)
	if err != nil {
		promSubmissions.WithLabelValues(outcomeRPCError).Inc()
		return solana.Signature{}, errors.Wrap(err, "failed to get latest blockhash")
	}
	tx.Message.RecentBlockhash = hash.Value.Blockhash

	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[pub]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	lggr := txm.lggr.With("id", id, "signature", tx.Signatures[0], "instructions", len(instructions))
	lggr.Debugw("sending transaction", "feePayer", feePayer.PublicKey(), "signers", len(keys))

	sig, err := txm.client.SendTx(ctx, tx)
	if err != nil {
		code := client.ClassifySendError(err)
		promSubmissions.WithLabelValues(outcomeRejected).Inc()
		lggr.Errorw("transaction rejected", "code", code, "error", err)
		return solana.Signature{}, &SubmissionError{Signature: tx.Signatures[0], Code: code, Err: err}
	}

	commitment := txm.cfg.Commitment()
	if err := txm.client.ConfirmTx(ctx, sig, commitment); err != nil {
		var failed *client.TxFailedError
		if errors.As(err, &failed) {
			promSubmissions.WithLabelValues(outcomeFailed).Inc()
			lggr.Errorw("transaction failed", "detail", failed.Err)
			return sig, &SubmissionError{Signature: sig, Code: client.InstructionFailed, Landed: true, Err: err}
		}
		if errors.Is(err, client.ErrConfirmationTimeout) {
			promSubmissions.WithLabelValues(outcomeConfirmTimeout).Inc()
			lggr.Warnw("transaction not confirmed", "commitment", commitment, "error", err)
			return sig, err
		}
		promSubmissions.WithLabelValues(outcomeRPCError).Inc()
		return sig, errors.Wrapf(err, "failed to confirm transaction %s", sig)
	}

	promSubmissions.WithLabelValues(outcomeSuccess).Inc()
	lggr.Debugw("transaction confirmed", "commitment", commitment)
	return sig, nil
}

// checkSigners compares the message's required signer keys with the available keys.
func checkSigners(tx *solana.Transaction, keys map[solana.PublicKey]solana.PrivateKey) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return errors.Errorf("malformed message: %d required signatures for %d accounts", required, len(tx.Message.AccountKeys))
	}
	var missing []solana.PublicKey
	for _, k := range tx.Message.AccountKeys[:required] {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &SignerMissingError{Missing: missing}
	}
	return nil
}
