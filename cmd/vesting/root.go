package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

const defaultURL = "http://127.0.0.1:8899"

type rootOptions struct {
	url        string
	configFile string
	logLevel   string
}

// env is what every subcommand needs, resolved from flags and the config file.
type env struct {
	lggr    logger.Logger
	cfg     config.Config
	network config.NetworkConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "vesting",
		Short:        "Local ledger harness for the token vesting program",
		SilenceUsage: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.url, "url", "", "ledger JSON-RPC url, overrides network.url from --config (default "+defaultURL+")")
	pf.StringVar(&opts.configFile, "config", "", "YAML harness config")
	pf.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	cmd.AddCommand(
		newValidatorCmd(opts),
		newDeployCmd(opts),
		newFundCmd(opts),
		newAccountsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*env, error) {
	lggr, err := logger.New(o.logLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", o.logLevel)
	}
	var network config.NetworkConfig
	if o.configFile != "" {
		f, err := config.LoadFile(o.configFile)
		if err != nil {
			return nil, err
		}
		network = f.Network
	}
	if o.url != "" {
		network.URL = o.url
	}
	if network.URL == "" {
		network.URL = defaultURL
	}
	return &env{
		lggr:    lggr,
		cfg:     config.NewConfig(network.Chain, lggr),
		network: network,
	}, nil
}

func (e *env) client() (*client.Client, error) {
	return client.NewClient(e.network.URL, e.cfg, e.lggr)
}
