package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/instruction"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/query"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

func newAccountsCmd(root *rootOptions) *cobra.Command {
	var (
		program string
		owner   string
		tag     uint64
		layout  string
	)
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List program accounts matching a tag and an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := root.load()
			if err != nil {
				return err
			}
			programID := instruction.ProgramID
			if program != "" {
				if programID, err = solana.PublicKeyFromBase58(program); err != nil {
					return errors.Wrapf(err, "invalid program %q", program)
				}
			}
			ownerKey, err := solana.PublicKeyFromBase58(owner)
			if err != nil {
				return errors.Wrapf(err, "invalid owner %q", owner)
			}
			var l state.Layout
			switch layout {
			case "v1":
				l = state.LayoutV1
			case "program":
				l = state.ProgramLayout
			default:
				return errors.Errorf("unknown layout %q, want v1 or program", layout)
			}

			c, err := e.client()
			if err != nil {
				return err
			}
			records, err := query.NewQuerier(c, e.lggr).QueryLayout(cmd.Context(), programID, l, state.Tag(tag), ownerKey)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tLAMPORTS\tDATA")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%d\t%s\n", r.Address, r.Lamports, base58.Encode(r.Data))
			}
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&program, "program", "", "owning program id (default the vesting program)")
	f.StringVar(&owner, "owner", "", "owner address stored in the account")
	f.Uint64Var(&tag, "tag", uint64(state.TagVestingSchedule), "account tag")
	f.StringVar(&layout, "layout", "v1", "account layout: v1 (one byte tag) or program (u64 tag)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
