package txm

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var ComputeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// BudgetInstruction is the leading discriminator byte of a compute budget instruction.
type BudgetInstruction uint8

const (
	BudgetRequestUnitsDeprecated BudgetInstruction = iota
	BudgetRequestHeapFrame
	BudgetSetComputeUnitLimit
	BudgetSetComputeUnitPrice
)

var budgetInstructionNames = map[BudgetInstruction]string{
	BudgetRequestUnitsDeprecated: "RequestUnitsDeprecated",
	BudgetRequestHeapFrame:       "RequestHeapFrame",
	BudgetSetComputeUnitLimit:    "SetComputeUnitLimit",
	BudgetSetComputeUnitPrice:    "SetComputeUnitPrice",
}

func (b BudgetInstruction) String() string {
	if n, ok := budgetInstructionNames[b]; ok {
		return n
	}
	return fmt.Sprintf("BudgetInstruction(%d)", uint8(b))
}

// ComputeUnitLimit caps the compute units the transaction may consume.
type ComputeUnitLimit uint32

// ComputeUnitPrice is the priority fee in micro-lamports per compute unit.
type ComputeUnitPrice uint64

func (l ComputeUnitLimit) Instruction() (solana.Instruction, error) {
	return budgetInstruction(BudgetSetComputeUnitLimit, uint32(l))
}

func (p ComputeUnitPrice) Instruction() (solana.Instruction, error) {
	return budgetInstruction(BudgetSetComputeUnitPrice, uint64(p))
}

func budgetInstruction(kind BudgetInstruction, value interface{}) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint8(uint8(kind)); err != nil {
		return nil, err
	}
	if err := enc.Encode(value); err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", kind)
	}
	return solana.NewInstruction(ComputeBudgetProgram, solana.AccountMetaSlice{}, buf.Bytes()), nil
}

func ParseComputeUnitLimit(data []byte) (ComputeUnitLimit, error) {
	var v uint32
	err := parseBudget(BudgetSetComputeUnitLimit, data, 4, &v)
	return ComputeUnitLimit(v), err
}

func ParseComputeUnitPrice(data []byte) (ComputeUnitPrice, error) {
	var v uint64
	err := parseBudget(BudgetSetComputeUnitPrice, data, 8, &v)
	return ComputeUnitPrice(v), err
}

func parseBudget(kind BudgetInstruction, data []byte, size int, v interface{}) error {
	if len(data) != 1+size {
		return errors.Errorf("invalid length: %d", len(data))
	}
	if BudgetInstruction(data[0]) != kind {
		return errors.Errorf("not %s identifier: %d", kind, data[0])
	}
	return bin.NewBinDecoder(data[1:]).Decode(v)
}

// computeBudget returns the budget instructions to place ahead of the caller's
// instructions. Zero values are skipped.
func computeBudget(limit ComputeUnitLimit, price ComputeUnitPrice) ([]solana.Instruction, error) {
	var out []solana.Instruction
	if limit != 0 {
		ix, err := limit.Instruction()
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	if price != 0 {
		ix, err := price.Instruction()
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}
