package funding

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

var (
	// ErrFundingTimeout is returned when ctx ends before an airdrop is confirmed.
	ErrFundingTimeout = errors.New("funding timed out")
	// ErrFundingExhausted is returned after AirdropMaxAttempts failed attempts.
	ErrFundingExhausted = errors.New("funding attempts exhausted")
)

// Funder credits accounts through the ledger faucet, retrying at a fixed interval.
type Funder struct {
	client client.Writer
	cfg    config.Config
	lggr   logger.Logger
}

func NewFunder(c client.Writer, cfg config.Config, lggr logger.Logger) *Funder {
	return &Funder{client: c, cfg: cfg, lggr: logger.Named(lggr, "Funder")}
}

// Fund requests an airdrop of lamports to addr until one reaches the airdrop commitment.
// Failures are retried every AirdropRetryPeriod; with AirdropMaxAttempts = 0 only ctx
// stops the loop. The returned error combines every attempt's error and matches
// ErrFundingTimeout or ErrFundingExhausted.
func (f *Funder) Fund(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	maxAttempts := f.cfg.AirdropMaxAttempts()
	period := f.cfg.AirdropRetryPeriod()
	commitment := f.cfg.AirdropCommitment()

	var errs error
	for attempt := uint(1); ; attempt++ {
		sig, err := f.attempt(ctx, addr, lamports, commitment)
		if err == nil {
			promAirdropAttempts.WithLabelValues(resultSuccess).Inc()
			f.lggr.Infow("airdrop confirmed", "address", addr, "lamports", lamports, "signature", sig, "attempt", attempt)
			return sig, nil
		}
		promAirdropAttempts.WithLabelValues(resultFailure).Inc()
		errs = multierr.Append(errs, errors.Wrapf(err, "attempt %d", attempt))
		f.lggr.Infow("airdrop attempt failed", "address", addr, "attempt", attempt, "error", err)

		if maxAttempts > 0 && attempt >= maxAttempts {
			return solana.Signature{}, multierr.Append(errors.Wrapf(ErrFundingExhausted, "%s after %d attempts", addr, attempt), errs)
		}

		select {
		case <-ctx.Done():
			return solana.Signature{}, multierr.Append(errors.Wrapf(ErrFundingTimeout, "%s after %d attempts: %v", addr, attempt, ctx.Err()), errs)
		case <-time.After(period):
		}
	}
}

func (f *Funder) attempt(ctx context.Context, addr solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	sig, err := f.client.RequestAirdrop(ctx, addr, lamports)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "airdrop request failed")
	}
	if err := f.client.ConfirmTx(ctx, sig, commitment); err != nil {
		return sig, errors.Wrapf(err, "airdrop %s did not reach %s", sig, commitment)
	}
	return sig, nil
}

// FundAll funds each address in turn and stops at the first failure.
func (f *Funder) FundAll(ctx context.Context, addrs []solana.PublicKey, lamports uint64) error {
	for _, addr := range addrs {
		if _, err := f.Fund(ctx, addr, lamports); err != nil {
			return err
		}
	}
	return nil
}
