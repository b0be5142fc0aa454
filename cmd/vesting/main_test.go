package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client/fakeledger"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/deploy"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(testutils.Context(t))
	return out.String(), err
}

func TestFundCmd(t *testing.T) {
	ledger := fakeledger.New(t)
	keys := testutils.RandomKeys(t, 2)

	out, err := execute(t, "fund", "--url", ledger.URL(), "--sol", "2", keys[0].PublicKey().String(), keys[1].PublicKey().String())
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	for _, k := range keys {
		assert.Equal(t, 2*solana.LAMPORTS_PER_SOL, ledger.Balance(k.PublicKey()))
		assert.Contains(t, out, k.PublicKey().String())
	}

	_, err = execute(t, "fund", "--url", ledger.URL(), "not-an-address")
	assert.ErrorContains(t, err, "invalid address")
	_, err = execute(t, "fund", "--url", ledger.URL())
	assert.Error(t, err)
}

func TestAccountsCmd(t *testing.T) {
	ledger := fakeledger.New(t)
	program := solana.PublicKey{9, 9, 9}
	keys := testutils.RandomKeys(t, 3)
	owner, match := keys[0].PublicKey(), keys[1].PublicKey()

	data := make([]byte, 40)
	require.NoError(t, state.LayoutV1.Put(data, state.TagVestingSchedule, owner))
	ledger.SetAccount(match, fakeledger.Account{Lamports: 42, Owner: program, Data: data})
	other := make([]byte, 40)
	require.NoError(t, state.LayoutV1.Put(other, state.TagVestingSchedule, keys[2].PublicKey()))
	ledger.SetAccount(keys[2].PublicKey(), fakeledger.Account{Lamports: 1, Owner: program, Data: other})

	out, err := execute(t, "accounts", "--url", ledger.URL(), "--program", program.String(), "--owner", owner.String())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ADDRESS")
	assert.Equal(t, []string{match.String(), "42", base58.Encode(data)}, strings.Fields(lines[1]))

	out, err = execute(t, "accounts", "--url", ledger.URL(), "--program", program.String(), "--owner", owner.String(), "--layout", "program")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)

	_, err = execute(t, "accounts", "--url", ledger.URL(), "--owner", owner.String(), "--layout", "v9")
	assert.ErrorContains(t, err, "unknown layout")
	_, err = execute(t, "accounts", "--url", ledger.URL())
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	ledger := fakeledger.New(t)
	path := filepath.Join(t.TempDir(), "vesting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  url: `+ledger.URL()+`
  chain:
    airdrop_retry_period: 10ms
    airdrop_commitment: confirmed
`), 0o600))
	key := testutils.RandomKeys(t, 1)[0].PublicKey()

	_, err := execute(t, "fund", "--config", path, "--sol", "0.5", key.String())
	require.NoError(t, err)
	assert.Equal(t, solana.LAMPORTS_PER_SOL/2, ledger.Balance(key))

	_, err = execute(t, "fund", "--config", filepath.Join(t.TempDir(), "missing.yaml"), key.String())
	assert.ErrorContains(t, err, "failed to read config")
	_, err = execute(t, "fund", "--log-level", "loud", key.String())
	assert.ErrorContains(t, err, "invalid log level")
}

func TestFundCmd_ConfiguredKeys(t *testing.T) {
	ledger := fakeledger.New(t)
	keys := testutils.RandomKeys(t, 2)
	path := filepath.Join(t.TempDir(), "vesting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  url: `+ledger.URL()+`
  private_keys:
    - `+keys[0].String()+`
    - `+keys[1].String()+`
`), 0o600))

	out, err := execute(t, "fund", "--config", path, "--sol", "3")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	for _, k := range keys {
		assert.Equal(t, 3*solana.LAMPORTS_PER_SOL, ledger.Balance(k.PublicKey()))
	}

	// explicit addresses win over configured keys
	other := testutils.RandomKeys(t, 1)[0].PublicKey()
	_, err = execute(t, "fund", "--config", path, "--sol", "1", other.String())
	require.NoError(t, err)
	assert.Equal(t, solana.LAMPORTS_PER_SOL, ledger.Balance(other))
	assert.Equal(t, 3*solana.LAMPORTS_PER_SOL, ledger.Balance(keys[0].PublicKey()))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("network:\n  url: "+ledger.URL()+"\n  private_keys: [\"0OIl\"]\n"), 0o600))
	_, err = execute(t, "fund", "--config", bad)
	assert.ErrorContains(t, err, "invalid private key")
}

type fakeRunner struct{ cmds []deploy.Command }

func (r *fakeRunner) Run(_ context.Context, cmd deploy.Command) ([]byte, error) {
	r.cmds = append(r.cmds, cmd)
	return nil, nil
}

func (r *fakeRunner) Stream(ctx context.Context, _ deploy.Command, _ func(string)) error {
	<-ctx.Done()
	return nil
}

func TestRunDeploy(t *testing.T) {
	ledger := fakeledger.New(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target", "deploy"), 0o755))
	programKey := testutils.RandomKeys(t, 1)[0]
	require.NoError(t, deploy.WriteKeypairFile(filepath.Join(dir, "target", "deploy", "token_vesting-keypair.json"), programKey))

	root := &rootOptions{url: ledger.URL(), logLevel: "debug"}
	e, err := root.load()
	require.NoError(t, err)
	e.network.ProgramDir = dir
	e.network.ProgramName = "token_vesting"
	e.network.Features = "mock-clock"

	cmd := &cobra.Command{}
	cmd.SetContext(testutils.Context(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	runner := &fakeRunner{}
	require.NoError(t, runDeploy(cmd, e, &deployOptions{Options: deploy.Options{Compile: true}, fund: 1}, runner))

	assert.Equal(t, programKey.PublicKey().String(), strings.TrimSpace(out.String()))
	require.Len(t, runner.cmds, 2)
	assert.Equal(t, []string{"build-bpf", "--features", "mock-clock"}, runner.cmds[0].Args)
	assert.Equal(t, 1, ledger.Calls("requestAirdrop"))

	err = runDeploy(cmd, e, &deployOptions{Options: deploy.Options{PayerKeyFile: "payer.json"}, programDir: ""}, runner)
	require.NoError(t, err)

	payer := testutils.RandomKeys(t, 1)[0]
	e.network.PrivateKeys = []string{payer.String()}
	require.NoError(t, runDeploy(cmd, e, &deployOptions{fund: 2}, runner))
	assert.Equal(t, 2*solana.LAMPORTS_PER_SOL, ledger.Balance(payer.PublicKey()))
	last := runner.cmds[len(runner.cmds)-1]
	assert.Equal(t, "solana", last.Name)

	e.network.ProgramDir = ""
	err = runDeploy(cmd, e, &deployOptions{}, runner)
	assert.ErrorContains(t, err, "program directory and name are required")
}
