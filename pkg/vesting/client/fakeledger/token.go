package fakeledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Packed SPL token state sizes.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

const (
	tokenIxInitializeMint = 0
	tokenIxMintTo         = 7

	tokenStateInitialized = 1
)

// InstallTokenPrograms registers minimal token and associated token account
// programs: mint initialization, associated account creation and minting.
func (l *Ledger) InstallTokenPrograms() {
	l.RegisterProgram(token.ProgramID, l.executeToken)
	l.RegisterProgram(solana.SPLAssociatedTokenAccountProgramID, l.executeAssociatedTokenAccount)
}

func (l *Ledger) executeToken(accounts Accounts, metas []*solana.AccountMeta, data []byte) error {
	if len(data) == 0 || len(metas) == 0 {
		return fmt.Errorf("invalid instruction data")
	}
	mint, ok := accounts[metas[0].PublicKey]
	if !ok || !mint.Owner.Equals(token.ProgramID) {
		return fmt.Errorf("invalid account owner")
	}

	switch data[0] {
	case tokenIxInitializeMint:
		// decimals u8, mint authority, optional freeze authority
		if len(data) < 34 || len(mint.Data) != MintSize {
			return fmt.Errorf("invalid account data for instruction")
		}
		if mint.Data[45] != 0 {
			return CustomError(6) // AlreadyInUse
		}
		binary.LittleEndian.PutUint32(mint.Data[0:4], 1)
		copy(mint.Data[4:36], data[2:34])
		mint.Data[44] = data[1]
		mint.Data[45] = 1
		return nil

	case tokenIxMintTo:
		if len(data) < 9 || len(metas) < 3 {
			return fmt.Errorf("invalid instruction data")
		}
		if len(mint.Data) != MintSize || mint.Data[45] != 1 {
			return CustomError(2) // UninitializedState
		}
		authority := metas[2]
		if !authority.IsSigner || !solana.PublicKeyFromBytes(mint.Data[4:36]).Equals(authority.PublicKey) {
			return CustomError(4) // OwnerMismatch
		}
		dest, ok := accounts[metas[1].PublicKey]
		if !ok || len(dest.Data) != TokenAccountSize || !solana.PublicKeyFromBytes(dest.Data[0:32]).Equals(metas[0].PublicKey) {
			return CustomError(3) // MintMismatch
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		supply := binary.LittleEndian.Uint64(mint.Data[36:44])
		binary.LittleEndian.PutUint64(mint.Data[36:44], supply+amount)
		balance := binary.LittleEndian.Uint64(dest.Data[64:72])
		binary.LittleEndian.PutUint64(dest.Data[64:72], balance+amount)
		return nil

	default:
		return fmt.Errorf("unsupported token instruction %d", data[0])
	}
}

// executeAssociatedTokenAccount creates the wallet's token account for a mint.
// Accounts: payer, associated account, wallet, mint, system, token, rent.
func (l *Ledger) executeAssociatedTokenAccount(accounts Accounts, metas []*solana.AccountMeta, _ []byte) error {
	if len(metas) < 4 {
		return fmt.Errorf("not enough account keys")
	}
	payer, ata, wallet, mint := metas[0].PublicKey, metas[1].PublicKey, metas[2].PublicKey, metas[3].PublicKey
	want, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return err
	}
	if !want.Equals(ata) {
		return fmt.Errorf("invalid seeds for associated token account %s", ata)
	}
	if existing, ok := accounts[ata]; ok && len(existing.Data) > 0 {
		return fmt.Errorf("account %s already in use", ata)
	}
	lamports := RentExemptMinimum(TokenAccountSize)
	if err := debit(accounts, payer, lamports); err != nil {
		return err
	}
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], wallet[:])
	data[108] = tokenStateInitialized
	accounts[ata] = &Account{Lamports: lamports, Owner: token.ProgramID, Data: data}
	return nil
}
