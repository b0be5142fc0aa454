package harness

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/instruction"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/token"
)

// NewMint creates a token mint paid for and controlled by the payer.
func (e *Env) NewMint(ctx context.Context, decimals uint8) (*token.Mint, error) {
	return token.NewMint(ctx, e.Txm, e.Client, e.Payer, decimals, e.lggr)
}

// CreateVestingContract locks the schedule's total from source into a new contract
// releasing to recipient, and returns the contract address.
func (e *Env) CreateVestingContract(ctx context.Context, mint *token.Mint, source solana.PublicKey, sourceOwner solana.PrivateKey,
	recipient solana.PublicKey, schedule []state.VestingSchedule) (solana.PublicKey, error) {
	contract, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to generate contract key")
	}
	signer, nonce, err := instruction.VaultSigner(e.ProgramID, contract.PublicKey())
	if err != nil {
		return solana.PublicKey{}, err
	}
	vault, err := mint.AssociatedAccount(ctx, signer)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to create vault")
	}
	rent, err := e.Client.MinimumBalanceForRentExemption(ctx, state.ComputeAllocationSize(len(schedule)))
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to get rent exemption for contract")
	}

	create, err := instruction.Create(e.ProgramID, instruction.CreateAccounts{
		SplTokenProgram:   solana.TokenProgramID,
		VestingContract:   contract.PublicKey(),
		Vault:             vault,
		SourceTokens:      source,
		SourceTokensOwner: sourceOwner.PublicKey(),
		Recipient:         recipient,
	}, instruction.CreateParams{SignerNonce: nonce, Schedule: schedule})
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = e.Txm.Submit(ctx, []solana.PrivateKey{contract, sourceOwner}, e.Payer,
		instruction.AllocateContract(e.Payer.PublicKey(), contract.PublicKey(), rent, e.ProgramID, len(schedule)),
		create,
	)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to create vesting contract")
	}
	e.lggr.Infow("vesting contract created", "contract", contract.PublicKey(), "recipient", recipient, "schedules", len(schedule))
	return contract.PublicKey(), nil
}

// VestingContract reads and decodes a contract account.
func (e *Env) VestingContract(ctx context.Context, addr solana.PublicKey) (state.VestingContract, error) {
	res, err := e.Client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Encoding: solana.EncodingBase64})
	if err != nil {
		return state.VestingContract{}, errors.Wrapf(err, "failed to get vesting contract %s", addr)
	}
	if res == nil || res.Value == nil {
		return state.VestingContract{}, errors.Errorf("vesting contract %s not found", addr)
	}
	return state.DecodeVestingContract(res.Value.Data.GetBinary())
}

// Claim releases every unlocked schedule of contract into destination, signed by owner.
func (e *Env) Claim(ctx context.Context, contract, destination solana.PublicKey, owner solana.PrivateKey) (solana.Signature, error) {
	c, err := e.VestingContract(ctx, contract)
	if err != nil {
		return solana.Signature{}, err
	}
	signer, err := solana.CreateProgramAddress([][]byte{contract.Bytes(), {c.SignerNonce}}, e.ProgramID)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive vault signer")
	}
	ix, err := instruction.Claim(e.ProgramID, instruction.ClaimAccounts{
		SplTokenProgram:         solana.TokenProgramID,
		VestingContract:         contract,
		VestingContractSigner:   signer,
		Vault:                   c.Vault,
		DestinationTokenAccount: destination,
		Owner:                   owner.PublicKey(),
	})
	if err != nil {
		return solana.Signature{}, err
	}
	return e.Txm.Submit(ctx, []solana.PrivateKey{owner}, e.Payer, ix)
}
