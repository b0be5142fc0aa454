package token

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

// Submitter sends instructions as one confirmed transaction.
type Submitter interface {
	Submit(ctx context.Context, signers []solana.PrivateKey, feePayer solana.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error)
}

// Reader is the subset of the ledger client used to size and read token accounts.
type Reader interface {
	client.AccountReader
	MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
}

// Mint is a token mint whose authority is the fee payer that created it.
type Mint struct {
	address  solana.PublicKey
	decimals uint8
	payer    solana.PrivateKey
	txm      Submitter
	reader   Reader
	lggr     logger.Logger
}

// NewMint allocates and initializes a fresh mint in one transaction.
func NewMint(ctx context.Context, txm Submitter, reader Reader, feePayer solana.PrivateKey, decimals uint8, lggr logger.Logger) (*Mint, error) {
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate mint key")
	}
	rent, err := reader.MinimumBalanceForRentExemption(ctx, MintAccountSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rent exemption for mint")
	}

	authority := feePayer.PublicKey()
	initialize, err := tokenprog.NewInitializeMintInstruction(
		decimals,
		authority,
		authority,
		mintKey.PublicKey(),
		solana.SysVarRentPubkey,
	).ValidateAndBuild()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build initialize mint instruction")
	}
	sig, err := txm.Submit(ctx, []solana.PrivateKey{mintKey}, feePayer,
		system.NewCreateAccountInstruction(rent, MintAccountSize, tokenprog.ProgramID, authority, mintKey.PublicKey()).Build(),
		initialize,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mint")
	}

	m := &Mint{
		address:  mintKey.PublicKey(),
		decimals: decimals,
		payer:    feePayer,
		txm:      txm,
		reader:   reader,
		lggr:     logger.Named(lggr, "Mint"),
	}
	m.lggr.Infow("mint created", "mint", m.address, "decimals", decimals, "signature", sig)
	return m, nil
}

func (m *Mint) Address() solana.PublicKey { return m.address }

func (m *Mint) Decimals() uint8 { return m.decimals }

// AssociatedAccount returns the wallet's associated token account for this mint,
// creating it first if it does not exist yet.
func (m *Mint) AssociatedAccount(ctx context.Context, wallet solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, m.address)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to derive associated token address")
	}
	res, err := m.reader.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Encoding: solana.EncodingBase64})
	switch {
	case err == nil && res != nil && res.Value != nil:
		return addr, nil
	case err != nil && !errors.Is(err, rpc.ErrNotFound):
		return solana.PublicKey{}, errors.Wrapf(err, "failed to get associated token account %s", addr)
	}
	create, err := associatedtokenaccount.NewCreateInstruction(m.payer.PublicKey(), wallet, m.address).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to build create associated account instruction")
	}
	if _, err := m.txm.Submit(ctx, nil, m.payer, create); err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "failed to create associated token account for %s", wallet)
	}
	return addr, nil
}

// MintTo mints amount base units into dest.
func (m *Mint) MintTo(ctx context.Context, dest solana.PublicKey, amount uint64) (solana.Signature, error) {
	ix, err := tokenprog.NewMintToInstruction(amount, m.address, dest, m.payer.PublicKey(), nil).ValidateAndBuild()
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to build mint to instruction")
	}
	sig, err := m.txm.Submit(ctx, nil, m.payer, ix)
	if err != nil {
		return solana.Signature{}, errors.Wrapf(err, "failed to mint %d to %s", amount, dest)
	}
	return sig, nil
}

// Supply reads the mint's current total supply.
func (m *Mint) Supply(ctx context.Context) (uint64, error) {
	var state tokenprog.Mint
	if err := m.read(ctx, m.address, &state); err != nil {
		return 0, err
	}
	return state.Supply, nil
}

// Balance reads a token account's amount.
func (m *Mint) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var state tokenprog.Account
	if err := m.read(ctx, account, &state); err != nil {
		return 0, err
	}
	if !state.Mint.Equals(m.address) {
		return 0, errors.Errorf("token account %s belongs to mint %s", account, state.Mint)
	}
	return state.Amount, nil
}

func (m *Mint) read(ctx context.Context, addr solana.PublicKey, v interface{}) error {
	res, err := m.reader.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Encoding: solana.EncodingBase64})
	if err != nil {
		return errors.Wrapf(err, "failed to get account %s", addr)
	}
	if res == nil || res.Value == nil {
		return errors.Errorf("account %s not found", addr)
	}
	if err := bin.NewBinDecoder(res.Value.Data.GetBinary()).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode account %s", addr)
	}
	return nil
}
