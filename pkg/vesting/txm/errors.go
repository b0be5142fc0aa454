package txm

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
)

var (
	ErrNoInstructions = errors.New("transaction needs at least one instruction")
	ErrSignerMissing  = errors.New("required signer missing")
)

// SignerMissingError lists required signers without a key. It is returned before any RPC is made.
type SignerMissingError struct {
	Missing []solana.PublicKey
}

func (e *SignerMissingError) Error() string {
	keys := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		keys[i] = k.String()
	}
	return fmt.Sprintf("%s: %s", ErrSignerMissing, strings.Join(keys, ", "))
}

func (e *SignerMissingError) Is(target error) bool { return target == ErrSignerMissing }

// SubmissionError is a rejection by the ledger. Landed is false when the send itself
// was refused and true when the transaction executed and failed.
type SubmissionError struct {
	Signature solana.Signature
	Code      client.SendTxReturnCode
	Landed    bool
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Landed {
		return fmt.Sprintf("transaction %s landed but failed: %v", e.Signature, e.Err)
	}
	return fmt.Sprintf("transaction %s rejected (%s): %v", e.Signature, e.Code, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
