package validator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

const Binary = "solana-test-validator"

// stderrTail bounds how much validator stderr is kept for error reports.
const stderrTail = 16 << 10

// ErrNotHealthy is returned when the node does not report healthy within the configured attempts.
var ErrNotHealthy = errors.New("validator did not become healthy")

// HealthChecker reports whether a node is ready to serve requests.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// LocalValidator is a disposable solana-test-validator process with its own ledger directory.
type LocalValidator struct {
	cmd       *exec.Cmd
	ledgerDir string
	rpcPort   int
	stderr    *tailWriter
	lggr      logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Start spawns a validator on random ports and waits until it reports healthy.
func Start(ctx context.Context, cfg config.Config, lggr logger.Logger) (*LocalValidator, error) {
	if _, err := exec.LookPath(Binary); err != nil {
		return nil, errors.Wrapf(err, "%s is not installed", Binary)
	}
	ledgerDir, err := os.MkdirTemp("", "vesting-ledger-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ledger directory")
	}
	port, err := randomPort()
	if err != nil {
		return nil, multierr.Append(err, os.RemoveAll(ledgerDir))
	}

	v := &LocalValidator{
		ledgerDir: ledgerDir,
		rpcPort:   port,
		stderr:    &tailWriter{max: stderrTail},
		lggr:      logger.Named(lggr, "Validator"),
	}
	v.cmd = exec.Command(Binary,
		"--reset",
		"--ledger", ledgerDir,
		"--rpc-port", strconv.Itoa(port),
		"--faucet-port", strconv.Itoa(port+2),
		"--quiet",
	)
	v.cmd.Stderr = v.stderr
	if err := v.cmd.Start(); err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "failed to start %s", Binary), os.RemoveAll(ledgerDir))
	}
	v.lggr.Infow("validator started", "url", v.URL(), "ledger", ledgerDir, "pid", v.cmd.Process.Pid)

	c, err := client.NewClient(v.URL(), cfg, v.lggr)
	if err != nil {
		return nil, multierr.Append(err, v.Close())
	}
	if err := WaitHealthy(ctx, c, cfg.HealthCheckAttempts(), cfg.HealthCheckPeriod(), v.lggr); err != nil {
		// Close waits for the process, so stderr is no longer written to
		cerr := v.Close()
		return nil, multierr.Append(errors.Wrapf(err, "stderr: %s", v.stderr.String()), cerr)
	}
	return v, nil
}

// URL is the JSON-RPC endpoint.
func (v *LocalValidator) URL() string { return fmt.Sprintf("http://127.0.0.1:%d", v.rpcPort) }

// WSURL is the websocket endpoint, served one port above RPC.
func (v *LocalValidator) WSURL() string { return fmt.Sprintf("ws://127.0.0.1:%d", v.rpcPort+1) }

// Close kills the process, waits for it and removes the ledger directory. Safe to call more than once.
func (v *LocalValidator) Close() error {
	v.closeOnce.Do(func() {
		var err error
		if v.cmd.Process != nil {
			if kerr := v.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = multierr.Append(err, errors.Wrap(kerr, "failed to kill validator"))
			}
			// killed processes always exit non-zero
			_ = v.cmd.Wait()
		}
		err = multierr.Append(err, errors.Wrap(os.RemoveAll(v.ledgerDir), "failed to remove ledger directory"))
		v.closeErr = err
		v.lggr.Infow("validator stopped", "url", v.URL())
	})
	return v.closeErr
}

// WaitHealthy polls the node up to attempts times, period apart.
func WaitHealthy(ctx context.Context, hc HealthChecker, attempts uint, period time.Duration, lggr logger.Logger) error {
	var lastErr error
	for i := uint(1); i <= attempts; i++ {
		if lastErr = hc.Health(ctx); lastErr == nil {
			return nil
		}
		lggr.Debugw("validator not ready yet", "attempt", i, "error", lastErr)
		select {
		case <-ctx.Done():
			return multierr.Append(ErrNotHealthy, ctx.Err())
		case <-time.After(period):
		}
	}
	if lastErr == nil {
		return ErrNotHealthy
	}
	return multierr.Append(ErrNotHealthy, lastErr)
}

func randomPort() (int, error) {
	// leave room for the websocket and faucet ports
	r, err := rand.Int(rand.Reader, big.NewInt(65535-1024-2))
	if err != nil {
		return 0, errors.Wrap(err, "failed to generate random port")
	}
	return int(r.Int64() + 1024), nil
}

// tailWriter keeps the last max bytes written to it. It is safe for concurrent use.
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
