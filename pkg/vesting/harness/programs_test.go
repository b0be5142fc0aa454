package harness

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/fakeledger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/instruction"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

// recordProgram writes a one byte tag layout record: data is tag followed by owner.
var recordProgram = solana.PublicKey{0x52, 0x45, 0x43, 0x4f, 0x52, 0x44}

const recordSize = 64

func executeRecord(accounts fakeledger.Accounts, metas []*solana.AccountMeta, data []byte) error {
	if len(metas) != 1 || len(data) != 1+solana.PublicKeyLength {
		return fmt.Errorf("invalid instruction")
	}
	acc, ok := accounts[metas[0].PublicKey]
	if !ok || !acc.Owner.Equals(recordProgram) {
		return fakeledger.CustomError(instruction.ErrWrongOwner)
	}
	return state.LayoutV1.Put(acc.Data, state.Tag(data[0]), solana.PublicKeyFromBytes(data[1:]))
}

func writeRecord(record, owner solana.PublicKey, tag state.Tag) solana.Instruction {
	return solana.NewInstruction(recordProgram, solana.AccountMetaSlice{solana.Meta(record).WRITE()},
		append([]byte{byte(tag)}, owner.Bytes()...))
}

func tokenAmount(acc *fakeledger.Account) uint64 {
	return binary.LittleEndian.Uint64(acc.Data[64:72])
}

func setTokenAmount(acc *fakeledger.Account, v uint64) {
	binary.LittleEndian.PutUint64(acc.Data[64:72], v)
}

func tokenOwner(acc *fakeledger.Account) solana.PublicKey {
	return solana.PublicKeyFromBytes(acc.Data[32:64])
}

func transferTokens(from, to *fakeledger.Account, amount uint64) error {
	if tokenAmount(from) < amount {
		return fakeledger.CustomError(1) // token InsufficientFunds
	}
	setTokenAmount(from, tokenAmount(from)-amount)
	setTokenAmount(to, tokenAmount(to)+amount)
	return nil
}

// vestingProgram is an in-memory rendition of the vesting program's create and claim.
func vestingProgram(programID solana.PublicKey, now func() time.Time) fakeledger.ProgramHandler {
	return func(accounts fakeledger.Accounts, metas []*solana.AccountMeta, data []byte) error {
		tag, params, err := instruction.Decode(data)
		if err != nil {
			return err
		}
		if len(metas) != 6 || !metas[0].PublicKey.Equals(solana.TokenProgramID) {
			return fmt.Errorf("invalid accounts")
		}
		contractAcc, ok := accounts[metas[1].PublicKey]
		if !ok || !contractAcc.Owner.Equals(programID) {
			return fakeledger.CustomError(instruction.ErrWrongOwner)
		}

		switch tag {
		case instruction.TagCreate:
			p, err := instruction.DecodeCreateParams(params)
			if err != nil {
				return fakeledger.CustomError(instruction.ErrBorsh)
			}
			if uint64(len(contractAcc.Data)) != state.ComputeAllocationSize(len(p.Schedule)) {
				return fmt.Errorf("invalid argument")
			}
			if t, _ := state.ProgramLayout.Tag(contractAcc.Data); t != state.TagUninitialized {
				return fakeledger.CustomError(instruction.ErrAlreadyInitialized)
			}
			vault, source := accounts[metas[2].PublicKey], accounts[metas[3].PublicKey]
			if vault == nil || source == nil {
				return fmt.Errorf("missing token account")
			}
			signer, err := solana.CreateProgramAddress([][]byte{metas[1].PublicKey.Bytes(), {p.SignerNonce}}, programID)
			if err != nil || !tokenOwner(vault).Equals(signer) {
				return fakeledger.CustomError(instruction.ErrInvalidVaultAccount)
			}
			if !metas[4].IsSigner || !tokenOwner(source).Equals(metas[4].PublicKey) {
				return fakeledger.CustomError(4) // token OwnerMismatch
			}
			c := state.VestingContract{
				Owner:       metas[5].PublicKey,
				Vault:       metas[2].PublicKey,
				SignerNonce: p.SignerNonce,
				Schedule:    p.Schedule,
			}
			if err := transferTokens(source, vault, c.TotalQuantity()); err != nil {
				return err
			}
			encoded, err := c.MarshalAccount()
			if err != nil {
				return err
			}
			copy(contractAcc.Data, encoded)
			return nil

		case instruction.TagClaim:
			c, err := state.DecodeVestingContract(contractAcc.Data)
			if err != nil {
				return fakeledger.CustomError(instruction.ErrDataTypeMismatch)
			}
			if !metas[5].IsSigner || !metas[5].PublicKey.Equals(c.Owner) {
				return fakeledger.CustomError(instruction.ErrWrongOwner)
			}
			if !metas[3].PublicKey.Equals(c.Vault) {
				return fakeledger.CustomError(instruction.ErrInvalidVaultAccount)
			}
			vault, dest := accounts[metas[3].PublicKey], accounts[metas[4].PublicKey]
			if vault == nil || dest == nil {
				return fmt.Errorf("missing token account")
			}
			ts := uint64(now().Unix())
			amount := c.Unlocked(ts)
			for c.CurrentScheduleIndex < uint64(len(c.Schedule)) && c.Schedule[c.CurrentScheduleIndex].UnlockTimestamp <= ts {
				c.CurrentScheduleIndex++
			}
			if err := transferTokens(vault, dest, amount); err != nil {
				return err
			}
			encoded, err := c.MarshalAccount()
			if err != nil {
				return err
			}
			copy(contractAcc.Data, encoded)
			return nil
		}
		return fmt.Errorf("unsupported instruction %s", tag)
	}
}
