package instruction

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

// ProgramID is the address the vesting program is built with.
var ProgramID = solana.MustPublicKeyFromBase58("4eG2WCq8LiamUW5nzhRhyJUS24UEnM8pDezowJmMC6wM")

type Tag uint8

const (
	TagCreate Tag = iota
	TagClaim
)

func (t Tag) String() string {
	switch t {
	case TagCreate:
		return "Create"
	case TagClaim:
		return "Claim"
	default:
		return "Unknown"
	}
}

// instruction data: tag byte, 7 bytes of padding, borsh params
const headerLen = 8

type CreateParams struct {
	SignerNonce uint8
	Schedule    []state.VestingSchedule
}

// CreateAccounts are listed in the order the program reads them.
type CreateAccounts struct {
	SplTokenProgram   solana.PublicKey
	VestingContract   solana.PublicKey
	Vault             solana.PublicKey
	SourceTokens      solana.PublicKey
	SourceTokensOwner solana.PublicKey
	Recipient         solana.PublicKey
}

type ClaimAccounts struct {
	SplTokenProgram         solana.PublicKey
	VestingContract         solana.PublicKey
	VestingContractSigner   solana.PublicKey
	Vault                   solana.PublicKey
	DestinationTokenAccount solana.PublicKey
	Owner                   solana.PublicKey
}

// Create funds a new vesting contract from SourceTokens. The contract account must
// already be allocated to ComputeAllocationSize(len(Schedule)) and owned by the program.
func Create(programID solana.PublicKey, accounts CreateAccounts, params CreateParams) (solana.Instruction, error) {
	data, err := encode(TagCreate, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(accounts.SplTokenProgram),
		solana.Meta(accounts.VestingContract).WRITE(),
		solana.Meta(accounts.Vault).WRITE(),
		solana.Meta(accounts.SourceTokens).WRITE(),
		solana.Meta(accounts.SourceTokensOwner).SIGNER(),
		solana.Meta(accounts.Recipient),
	}, data), nil
}

// Claim releases every unlocked schedule to DestinationTokenAccount.
func Claim(programID solana.PublicKey, accounts ClaimAccounts) (solana.Instruction, error) {
	data, err := encode(TagClaim, struct{}{})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(accounts.SplTokenProgram),
		solana.Meta(accounts.VestingContract).WRITE(),
		solana.Meta(accounts.VestingContractSigner),
		solana.Meta(accounts.Vault).WRITE(),
		solana.Meta(accounts.DestinationTokenAccount).WRITE(),
		solana.Meta(accounts.Owner).SIGNER(),
	}, data), nil
}

// VaultSigner derives the PDA owning a contract's vault and its bump nonce.
func VaultSigner(programID, contract solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, nonce, err := solana.FindProgramAddress([][]byte{contract.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, errors.Wrapf(err, "failed to derive vault signer for %s", contract)
	}
	return addr, nonce, nil
}

// AllocateContract creates the program owned account sized for schedules entries.
func AllocateContract(payer, contract solana.PublicKey, lamports uint64, programID solana.PublicKey, schedules int) solana.Instruction {
	return system.NewCreateAccountInstruction(
		lamports,
		state.ComputeAllocationSize(schedules),
		programID,
		payer,
		contract,
	).Build()
}

func encode(tag Tag, params interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write([]byte{byte(tag), 0, 0, 0, 0, 0, 0, 0})
	if err := bin.NewBorshEncoder(buf).Encode(params); err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s params", tag)
	}
	return buf.Bytes(), nil
}

// Decode splits instruction data into its tag and raw params.
func Decode(data []byte) (Tag, []byte, error) {
	if len(data) < headerLen {
		return 0, nil, errors.Errorf("instruction data too short: %d bytes", len(data))
	}
	tag := Tag(data[0])
	if tag > TagClaim {
		return 0, nil, errors.Errorf("unknown instruction tag %d", data[0])
	}
	return tag, data[headerLen:], nil
}

func DecodeCreateParams(params []byte) (CreateParams, error) {
	var p CreateParams
	if err := bin.NewBorshDecoder(params).Decode(&p); err != nil {
		return CreateParams{}, errors.Wrap(err, "failed to decode create params")
	}
	return p, nil
}
