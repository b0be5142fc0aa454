package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// ErrConfirmationTimeout means the signature never reached the requested commitment.
// The transaction may or may not have landed.
var ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

// TxFailedError means the transaction landed but the ledger rejected its execution.
type TxFailedError struct {
	Signature solana.Signature
	// Err is the ledger's native error payload, e.g. {"InstructionError":[0,{"Custom":1}]}
	Err interface{}
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

var (
	confirmationRank = map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	commitmentRank = map[rpc.CommitmentType]int{
		rpc.CommitmentProcessed: 1,
		rpc.CommitmentConfirmed: 2,
		rpc.CommitmentFinalized: 3,
	}
)

// CommitmentReached reports whether status is at or above the requested commitment.
// Ordering: processed < confirmed < finalized. Unknown commitments are treated as finalized.
func CommitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	have, ok := confirmationRank[status]
	if !ok {
		return false
	}
	need, ok := commitmentRank[want]
	if !ok {
		need = commitmentRank[rpc.CommitmentFinalized]
	}
	return have >= need
}

// ConfirmTx blocks until sig reaches commitment, the ledger reports an execution error,
// or the configured confirmation timeout elapses.
func (c *Client) ConfirmTx(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error {
	ctx, cancel := context.WithTimeout(ctx, c.txConfirmTimeout)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.SignatureStatuses(ctx, []solana.Signature{sig})
		switch {
		case err != nil:
			c.log.Debugw("failed to fetch signature status", "signature", sig, "error", err)
		case len(statuses) == 0 || statuses[0] == nil:
			// sig not found could mean the tx was dropped or not picked up yet
			c.log.Debugw("tx state: not found", "signature", sig)
		case statuses[0].Err != nil:
			return &TxFailedError{Signature: sig, Err: statuses[0].Err}
		case CommitmentReached(statuses[0].ConfirmationStatus, commitment):
			c.log.Debugw(fmt.Sprintf("tx state: %s", statuses[0].ConfirmationStatus), "signature", sig, "elapsed", time.Since(start))
			return nil
		default:
			c.log.Debugw(fmt.Sprintf("tx state: %s", statuses[0].ConfirmationStatus), "signature", sig, "want", commitment)
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ErrConfirmationTimeout, "signature %s did not reach %q after %s (%v)", sig, commitment, time.Since(start).Round(time.Millisecond), ctx.Err())
		case <-ticker.C:
		}
	}
}
