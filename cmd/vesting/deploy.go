package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/deploy"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/funding"
)

type deployOptions struct {
	deploy.Options
	programDir  string
	programName string
	fund        float64
}

func newDeployCmd(root *rootOptions) *cobra.Command {
	opts := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build and deploy the program, printing its program id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := root.load()
			if err != nil {
				return err
			}
			return runDeploy(cmd, e, opts, nil)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.programDir, "program-dir", "", "program source directory (default network.program_dir)")
	f.StringVar(&opts.programName, "program-name", "", "program crate name (default network.program_name)")
	f.StringVar(&opts.PayerKeyFile, "payer", "", "fee payer key file; when empty the first network.private_keys entry, or a new key, is funded and used")
	f.Float64Var(&opts.fund, "fund", 10, "SOL airdropped to the payer when --payer is empty")
	f.BoolVar(&opts.Compile, "compile", false, "run cargo build-bpf first")
	f.StringVar(&opts.Features, "features", "", "features passed to the build (default network.features)")
	f.BoolVar(&opts.TestBPF, "test-bpf", false, "run cargo test-bpf before deploying")
	f.StringVar(&opts.TestFeatures, "test-features", "", "features passed to the test run")
	f.BoolVar(&opts.StreamLogs, "stream-logs", false, "keep streaming ledger logs until interrupted")
	return cmd
}

func runDeploy(cmd *cobra.Command, e *env, opts *deployOptions, runner deploy.Runner) error {
	ctx := cmd.Context()
	dopts := opts.Options
	if opts.programDir == "" {
		opts.programDir = e.network.ProgramDir
	}
	if opts.programName == "" {
		opts.programName = e.network.ProgramName
	}
	if dopts.Features == "" {
		dopts.Features = e.network.Features
	}
	if opts.programDir == "" || opts.programName == "" {
		return errors.New("program directory and name are required")
	}

	if dopts.PayerKeyFile == "" {
		dir, err := os.MkdirTemp("", "vesting-payer-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		payer, path, err := payerKeyFile(e, dir)
		if err != nil {
			return err
		}
		c, err := e.client()
		if err != nil {
			return err
		}
		lamports := uint64(opts.fund * float64(solana.LAMPORTS_PER_SOL))
		if _, err := funding.NewFunder(c, e.cfg, e.lggr).Fund(ctx, payer.PublicKey(), lamports); err != nil {
			return err
		}
		dopts.PayerKeyFile = path
	}

	d := deploy.NewDeployer(opts.programDir, opts.programName, e.network.URL, runner, e.lggr)
	defer d.Close()
	programID, err := d.Deploy(ctx, dopts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), programID)
	if dopts.StreamLogs {
		<-ctx.Done()
	}
	return nil
}

// payerKeyFile writes the first configured private key to dir, or a new key when none is configured.
func payerKeyFile(e *env, dir string) (solana.PrivateKey, string, error) {
	keys, err := e.network.Keys()
	if err != nil {
		return nil, "", err
	}
	if len(keys) == 0 {
		return deploy.NewPayerKeyFile(dir)
	}
	path := filepath.Join(dir, "payer.json")
	if err := deploy.WriteKeypairFile(path, keys[0]); err != nil {
		return nil, "", err
	}
	return keys[0], path, nil
}
