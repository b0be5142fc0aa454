package deploy

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

// Options control a single Deploy call.
type Options struct {
	// PayerKeyFile pays for the deployment.
	PayerKeyFile string
	// Compile builds the program before deploying.
	Compile bool
	// Features are passed to the build as --features.
	Features string
	// TestBPF runs the program's own test suite before deploying.
	TestBPF bool
	// TestFeatures are passed to the test run as --features.
	TestFeatures string
	// StreamLogs forwards ledger logs to the logger until Close.
	StreamLogs bool
}

// Deployer builds and deploys a program from its source directory.
type Deployer struct {
	programDir  string
	programName string
	url         string
	runner      Runner
	lggr        logger.Logger

	stopLogs context.CancelFunc
	wg       sync.WaitGroup
}

// NewDeployer deploys programName from programDir to the ledger at url.
// A nil runner executes commands on the host.
func NewDeployer(programDir, programName, url string, runner Runner, lggr logger.Logger) *Deployer {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Deployer{
		programDir:  programDir,
		programName: programName,
		url:         url,
		runner:      runner,
		lggr:        logger.Named(lggr, "Deployer"),
	}
}

// ProgramPath is the compiled program's shared object.
func (d *Deployer) ProgramPath() string {
	return filepath.Join(d.programDir, "target", "deploy", d.programName+".so")
}

// ProgramKeyFile holds the keypair whose public key is the program id.
func (d *Deployer) ProgramKeyFile() string {
	return filepath.Join(d.programDir, "target", "deploy", d.programName+"-keypair.json")
}

// Deploy optionally compiles and tests the program, then deploys it at finalized
// commitment and returns its program id.
func (d *Deployer) Deploy(ctx context.Context, opts Options) (solana.PublicKey, error) {
	if opts.PayerKeyFile == "" {
		return solana.PublicKey{}, errors.New("payer key file is required")
	}
	if opts.Compile {
		args := []string{"build-bpf"}
		if opts.Features != "" {
			args = append(args, "--features", opts.Features)
		}
		if err := d.run(ctx, Command{Dir: d.programDir, Name: "cargo", Args: args}); err != nil {
			return solana.PublicKey{}, errors.Wrap(err, "failed to compile program")
		}
	}
	if opts.TestBPF {
		args := []string{"test-bpf"}
		if opts.TestFeatures != "" {
			args = append(args, "--features", opts.TestFeatures)
		}
		if err := d.run(ctx, Command{Dir: d.programDir, Name: "cargo", Args: args}); err != nil {
			return solana.PublicKey{}, errors.Wrap(err, "program tests failed")
		}
	}

	programKey, err := ReadKeypairFile(d.ProgramKeyFile())
	if err != nil {
		return solana.PublicKey{}, err
	}
	programID := programKey.PublicKey()

	err = d.run(ctx, Command{Name: "solana", Args: []string{
		"program", "deploy", d.ProgramPath(),
		"--program-id", d.ProgramKeyFile(),
		"-u", d.url,
		"-k", opts.PayerKeyFile,
		"--commitment", "finalized",
	}})
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "failed to deploy program %s", programID)
	}
	d.lggr.Infow("program deployed", "program", programID, "url", d.url)

	if opts.StreamLogs {
		d.StreamLogs()
	}
	return programID, nil
}

func (d *Deployer) run(ctx context.Context, cmd Command) error {
	d.lggr.Debugw("running command", "cmd", cmd.String(), "dir", cmd.Dir)
	out, err := d.runner.Run(ctx, cmd)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" && !strings.Contains(err.Error(), msg) {
			return errors.Wrap(err, msg)
		}
		return err
	}
	return nil
}

// StreamLogs starts forwarding `solana logs` output to the logger. It is a no-op
// if logs are already streaming.
func (d *Deployer) StreamLogs() {
	if d.stopLogs != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.stopLogs = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		lggr := d.lggr.Named("Logs")
		err := d.runner.Stream(ctx, Command{Name: "solana", Args: []string{"logs", "-u", d.url}}, func(line string) {
			lggr.Infow(line)
		})
		if err != nil {
			lggr.Warnw("log stream ended", "error", err)
		}
	}()
}

// Close stops the log stream and waits for it to exit.
func (d *Deployer) Close() error {
	if d.stopLogs != nil {
		d.stopLogs()
		d.wg.Wait()
		d.stopLogs = nil
	}
	return nil
}
