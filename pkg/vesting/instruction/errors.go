package instruction

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
)

// ErrorCode is a custom program error returned as {"Custom": code}.
type ErrorCode uint32

const (
	ErrAlreadyInitialized ErrorCode = iota
	ErrDataTypeMismatch
	ErrWrongOwner
	ErrUninitialized
	ErrInvalidVaultAccount
	ErrBorsh
)

func (c ErrorCode) Error() string {
	switch c {
	case ErrAlreadyInitialized:
		return "This account is already initialized"
	case ErrDataTypeMismatch:
		return "Data type mismatch"
	case ErrWrongOwner:
		return "Wrong account owner"
	case ErrUninitialized:
		return "Account is uninitialized"
	case ErrInvalidVaultAccount:
		return "The provided vault account is invalid"
	case ErrBorsh:
		return "Borsh Error"
	default:
		return fmt.Sprintf("unknown program error %d", uint32(c))
	}
}

// ProgramError extracts the failing instruction index and custom error code from a
// failed transaction, e.g. {"InstructionError":[1,{"Custom":4}]}.
func ProgramError(err error) (int, ErrorCode, bool) {
	var failed *client.TxFailedError
	if !errors.As(err, &failed) {
		return 0, 0, false
	}
	raw, mErr := json.Marshal(failed.Err)
	if mErr != nil {
		return 0, 0, false
	}
	var payload struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if json.Unmarshal(raw, &payload) != nil || len(payload.InstructionError) != 2 {
		return 0, 0, false
	}
	var idx int
	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	if json.Unmarshal(payload.InstructionError[0], &idx) != nil ||
		json.Unmarshal(payload.InstructionError[1], &custom) != nil || custom.Custom == nil {
		return 0, 0, false
	}
	return idx, ErrorCode(*custom.Custom), true
}
