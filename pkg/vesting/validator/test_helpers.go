package validator

import (
	"os/exec"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-token-vesting/internal/testutils"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/client"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/funding"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

// SkipIfUnavailable skips integration tests on hosts without the validator binary.
func SkipIfUnavailable(t testing.TB) {
	if _, err := exec.LookPath(Binary); err != nil {
		t.Skipf("%s not found on PATH", Binary)
	}
}

// SetupLocalSolNode starts a local validator for the test and returns its url.
func SetupLocalSolNode(t *testing.T) string {
	SkipIfUnavailable(t)
	v, err := Start(testutils.Context(t), config.NewDefault(), logger.Test(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, v.Close())
	})
	return v.URL()
}

// FundTestAccounts airdrops 100 SOL to each key and waits for finality.
func FundTestAccounts(t *testing.T, keys []solana.PublicKey, url string) {
	cfg := config.NewDefault()
	c, err := client.NewClient(url, cfg, logger.Test(t))
	require.NoError(t, err)
	f := funding.NewFunder(c, cfg, logger.Test(t))
	require.NoError(t, f.FundAll(testutils.Context(t), keys, 100*solana.LAMPORTS_PER_SOL))
}
