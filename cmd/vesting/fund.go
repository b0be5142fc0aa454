package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/funding"
)

func newFundCmd(root *rootOptions) *cobra.Command {
	var sol float64
	cmd := &cobra.Command{
		Use:   "fund [ADDRESS...]",
		Short: "Airdrop SOL to each address and wait for the airdrop commitment",
		Long:  "Airdrop SOL to each address, or to network.private_keys from --config when no address is given.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.load()
			if err != nil {
				return err
			}
			addrs := make([]solana.PublicKey, len(args))
			for i, a := range args {
				if addrs[i], err = solana.PublicKeyFromBase58(a); err != nil {
					return errors.Wrapf(err, "invalid address %q", a)
				}
			}
			if len(addrs) == 0 {
				keys, err := e.network.Keys()
				if err != nil {
					return err
				}
				for _, k := range keys {
					addrs = append(addrs, k.PublicKey())
				}
			}
			if len(addrs) == 0 {
				return errors.New("no addresses given and no network.private_keys configured")
			}
			if sol < 0 {
				return errors.Errorf("amount must be non-negative: %v", sol)
			}
			c, err := e.client()
			if err != nil {
				return err
			}
			f := funding.NewFunder(c, e.cfg, e.lggr)
			lamports := uint64(sol * float64(solana.LAMPORTS_PER_SOL))
			for _, addr := range addrs {
				sig, err := f.Fund(cmd.Context(), addr, lamports)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", addr, lamports, sig)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&sol, "sol", 1, "amount of SOL per address")
	return cmd
}
