package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/validator"
)

func newValidatorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validator",
		Short: "Run a disposable local validator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := root.load()
			if err != nil {
				return err
			}
			v, err := validator.Start(cmd.Context(), e.cfg, e.lggr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rpc %s\nws  %s\n", v.URL(), v.WSURL())
			<-cmd.Context().Done()
			return v.Close()
		},
	}
}
