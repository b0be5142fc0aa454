package state

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// VestingSchedule is one unlock step.
type VestingSchedule struct {
	UnlockTimestamp uint64 // unix seconds
	Quantity        uint64
}

// VestingContract is the borsh state stored after the 8 byte tag.
type VestingContract struct {
	Owner                solana.PublicKey // eventual token receiver
	Vault                solana.PublicKey
	CurrentScheduleIndex uint64
	SignerNonce          uint8
	Schedule             []VestingSchedule
}

// tag (8), owner (32), vault (32), current index (8), nonce (1), vec length (4)
const vestingContractHeaderLen uint64 = 8 + 32 + 32 + 8 + 1 + 4

// ComputeAllocationSize is the exact account size the program accepts for n schedules.
func ComputeAllocationSize(n int) uint64 {
	return vestingContractHeaderLen + uint64(n)*16
}

// DecodeVestingContract parses raw account data, requiring the VestingContract tag.
func DecodeVestingContract(data []byte) (VestingContract, error) {
	tag, err := ProgramLayout.Tag(data)
	if err != nil {
		return VestingContract{}, err
	}
	if tag != TagVestingContract {
		return VestingContract{}, errors.Errorf("data type mismatch: expected %s, got %s", TagVestingContract, tag)
	}
	var c VestingContract
	if err := bin.NewBorshDecoder(data[ProgramLayout.TagSize:]).Decode(&c); err != nil {
		return VestingContract{}, errors.Wrap(err, "failed to decode vesting contract")
	}
	return c, nil
}

// MarshalAccount encodes c as the program would store it, sized by ComputeAllocationSize.
func (c VestingContract) MarshalAccount() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(c); err != nil {
		return nil, errors.Wrap(err, "failed to encode vesting contract")
	}
	data := make([]byte, ComputeAllocationSize(len(c.Schedule)))
	tag, err := ProgramLayout.EncodeTag(TagVestingContract)
	if err != nil {
		return nil, err
	}
	copy(data, tag)
	copy(data[ProgramLayout.TagSize:], buf.Bytes())
	return data, nil
}

// TotalQuantity sums all schedule quantities.
func (c VestingContract) TotalQuantity() uint64 {
	var total uint64
	for _, s := range c.Schedule {
		total += s.Quantity
	}
	return total
}

// Unlocked returns the quantity claimable at unix time now from CurrentScheduleIndex on.
func (c VestingContract) Unlocked(now uint64) uint64 {
	var total uint64
	for i := c.CurrentScheduleIndex; i < uint64(len(c.Schedule)); i++ {
		if c.Schedule[i].UnlockTimestamp > now {
			break
		}
		total += c.Schedule[i].Quantity
	}
	return total
}
