// Package harness assembles a disposable ledger environment for vesting program tests.
package harness

import (
	"context"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/deploy"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/funding"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/instruction"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/monitor"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/query"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/txm"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/validator"
)

// Options select which parts of the environment New sets up.
type Options struct {
	// URL of an existing ledger. Empty starts a local validator.
	URL string
	// FundPayer airdrops this many lamports to the payer. 0 skips funding.
	FundPayer uint64
	// ProgramDir and ProgramName locate the program to deploy. Empty ProgramDir skips deployment
	// and uses ProgramID.
	ProgramDir  string
	ProgramName string
	ProgramID   solana.PublicKey
	Deploy      deploy.Options
	// Runner executes build and deploy commands. Nil runs them on the host.
	Runner deploy.Runner
	// MonitorBalances reports the payer balance as a gauge until Close.
	MonitorBalances bool
}

// Env is a ready to use ledger, payer and program. Close releases everything New acquired.
type Env struct {
	URL          string
	Client       *client.Client
	Funder       *funding.Funder
	Txm          *txm.Txm
	Querier      *query.Querier
	Payer        solana.PrivateKey
	PayerKeyFile string
	ProgramID    solana.PublicKey

	lggr      logger.Logger
	validator *validator.LocalValidator
	deployer  *deploy.Deployer
	monitor   *monitor.BalanceMonitor
	keyDir    string
}

// New builds the environment in dependency order: ledger, client, payer, funding, deployment.
// On failure everything already acquired is released.
func New(ctx context.Context, cfg config.Config, lggr logger.Logger, opts Options) (env *Env, err error) {
	e := &Env{
		URL:       opts.URL,
		ProgramID: opts.ProgramID,
		lggr:      logger.Named(lggr, "Harness"),
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, e.Close())
		}
	}()
	if e.ProgramID.IsZero() {
		e.ProgramID = instruction.ProgramID
	}

	if e.URL == "" {
		e.validator, err = validator.Start(ctx, cfg, lggr)
		if err != nil {
			return nil, errors.Wrap(err, "failed to start validator")
		}
		e.URL = e.validator.URL()
	}

	e.Client, err = client.NewClient(e.URL, cfg, lggr)
	if err != nil {
		return nil, err
	}
	e.Funder = funding.NewFunder(e.Client, cfg, lggr)
	e.Txm = txm.NewTxm(e.Client, cfg, lggr)
	e.Querier = query.NewQuerier(e.Client, lggr)

	e.keyDir, err = os.MkdirTemp("", "vesting-keys-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create key directory")
	}
	e.Payer, e.PayerKeyFile, err = deploy.NewPayerKeyFile(e.keyDir)
	if err != nil {
		return nil, err
	}

	if opts.FundPayer > 0 {
		if _, err = e.Funder.Fund(ctx, e.Payer.PublicKey(), opts.FundPayer); err != nil {
			return nil, errors.Wrap(err, "failed to fund payer")
		}
	}

	if opts.MonitorBalances {
		e.monitor = monitor.NewBalanceMonitor(cfg, lggr, monitor.StaticAccounts{e.Payer.PublicKey()}, e.Client)
		if err = e.monitor.Start(ctx); err != nil {
			return nil, err
		}
	}

	if opts.ProgramDir != "" {
		e.deployer = deploy.NewDeployer(opts.ProgramDir, opts.ProgramName, e.URL, opts.Runner, lggr)
		dopts := opts.Deploy
		dopts.PayerKeyFile = e.PayerKeyFile
		if e.ProgramID, err = e.deployer.Deploy(ctx, dopts); err != nil {
			return nil, err
		}
	}

	e.lggr.Infow("environment ready", "url", e.URL, "payer", e.Payer.PublicKey(), "program", e.ProgramID)
	return e, nil
}

// Close tears down in reverse construction order and reports every failure.
func (e *Env) Close() error {
	var err error
	if e.deployer != nil {
		err = multierr.Append(err, e.deployer.Close())
	}
	if e.monitor != nil {
		err = multierr.Append(err, e.monitor.Close())
	}
	if e.keyDir != "" {
		err = multierr.Append(err, errors.Wrap(os.RemoveAll(e.keyDir), "failed to remove key directory"))
		e.keyDir = ""
	}
	if e.validator != nil {
		err = multierr.Append(err, e.validator.Close())
	}
	return err
}
