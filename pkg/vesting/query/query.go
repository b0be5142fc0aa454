package query

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

// AccountRecord is a read-only snapshot of a matched account.
type AccountRecord struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey // owning program
	Lamports uint64
	Data     []byte
}

// VestingContractRecord is a decoded vesting contract account.
type VestingContractRecord struct {
	Address  solana.PublicKey
	Contract state.VestingContract
}

type Querier struct {
	reader client.ProgramAccountsReader
	lggr   logger.Logger
}

func NewQuerier(reader client.ProgramAccountsReader, lggr logger.Logger) *Querier {
	return &Querier{reader: reader, lggr: logger.Named(lggr, "Querier")}
}

// QueryByTagAndOwner returns accounts owned by program whose byte 0 equals tag and
// whose bytes [1, 33) equal owner. Matches are not re-validated and order is unspecified.
func (q *Querier) QueryByTagAndOwner(ctx context.Context, program solana.PublicKey, tag state.Tag, owner solana.PublicKey) ([]AccountRecord, error) {
	return q.QueryLayout(ctx, program, state.LayoutV1, tag, owner)
}

// QueryLayout is QueryByTagAndOwner for an explicit layout version.
func (q *Querier) QueryLayout(ctx context.Context, program solana.PublicKey, layout state.Layout, tag state.Tag, owner solana.PublicKey) ([]AccountRecord, error) {
	filter, err := state.TagAndOwner(layout, tag, owner)
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, program, filter)
}

// Query scans program accounts with an arbitrary filter. An empty result is not an error.
func (q *Querier) Query(ctx context.Context, program solana.PublicKey, filter state.AccountFilter) ([]AccountRecord, error) {
	res, err := q.reader.ProgramAccounts(ctx, program, filter.ToRPC())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query accounts of program %s", program)
	}

	out := make([]AccountRecord, 0, len(res))
	for _, keyed := range res {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		rec := AccountRecord{
			Address:  keyed.Pubkey,
			Owner:    keyed.Account.Owner,
			Lamports: keyed.Account.Lamports,
		}
		if keyed.Account.Data != nil {
			rec.Data = keyed.Account.Data.GetBinary()
		}
		out = append(out, rec)
	}
	promQueryResults.WithLabelValues(program.String()).Set(float64(len(out)))
	q.lggr.Debugw("queried program accounts", "program", program, "filters", len(filter), "results", len(out))
	return out, nil
}

// VestingContracts returns the vesting contracts of program whose recipient is owner.
func (q *Querier) VestingContracts(ctx context.Context, program solana.PublicKey, owner solana.PublicKey) ([]VestingContractRecord, error) {
	records, err := q.QueryLayout(ctx, program, state.ProgramLayout, state.TagVestingContract, owner)
	if err != nil {
		return nil, err
	}
	out := make([]VestingContractRecord, 0, len(records))
	for _, r := range records {
		c, err := state.DecodeVestingContract(r.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "account %s", r.Address)
		}
		out = append(out, VestingContractRecord{Address: r.Address, Contract: c})
	}
	return out, nil
}
