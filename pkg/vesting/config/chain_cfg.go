package config

import (
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v4"
	"gopkg.in/yaml.v3"
)

// ChainCfg holds optional overrides; unset fields fall back to defaults.
type ChainCfg struct {
	RequestTimeout    *Duration `json:"requestTimeout,omitempty" yaml:"request_timeout"`
	TxTimeout         *Duration `json:"txTimeout,omitempty" yaml:"tx_timeout"`
	TxConfirmTimeout  *Duration `json:"txConfirmTimeout,omitempty" yaml:"tx_confirm_timeout"`
	ConfirmPollPeriod *Duration `json:"confirmPollPeriod,omitempty" yaml:"confirm_poll_period"`

	AirdropRetryPeriod *Duration   `json:"airdropRetryPeriod,omitempty" yaml:"airdrop_retry_period"`
	AirdropMaxAttempts null.Int    `json:"airdropMaxAttempts" yaml:"airdrop_max_attempts"`
	AirdropCommitment  null.String `json:"airdropCommitment" yaml:"airdrop_commitment"`

	SkipPreflight null.Bool   `json:"skipPreflight" yaml:"skip_preflight"` // to enable or disable preflight checks
	Commitment    null.String `json:"commitment" yaml:"commitment"`
	MaxRetries    null.Int    `json:"maxRetries" yaml:"max_retries"`

	HealthCheckAttempts null.Int  `json:"healthCheckAttempts" yaml:"health_check_attempts"`
	HealthCheckPeriod   *Duration `json:"healthCheckPeriod,omitempty" yaml:"health_check_period"`

	BalancePollPeriod *Duration `json:"balancePollPeriod,omitempty" yaml:"balance_poll_period"`

	ComputeUnitLimit null.Int `json:"computeUnitLimit" yaml:"compute_unit_limit"`
	ComputeUnitPrice null.Int `json:"computeUnitPrice" yaml:"compute_unit_price"`
}

// NetworkConfig describes where the ledger and the program live.
type NetworkConfig struct {
	URL         string `yaml:"url"`
	ProgramDir  string `yaml:"program_dir"`
	ProgramName string `yaml:"program_name"`
	Features    string `yaml:"features"`
	// PrivateKeys are base58 encoded test accounts. The first one pays for deployment.
	PrivateKeys []string `yaml:"private_keys"`
	Chain       ChainCfg `yaml:"chain"`
}

// Keys decodes PrivateKeys.
func (n NetworkConfig) Keys() ([]solana.PrivateKey, error) {
	keys := make([]solana.PrivateKey, 0, len(n.PrivateKeys))
	for i, s := range n.PrivateKeys {
		k, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid private key at index %d", i)
		}
		if len(k) != 64 {
			return nil, errors.Errorf("invalid private key at index %d: %d bytes", i, len(k))
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// File is the on-disk shape read by LoadFile.
type File struct {
	Network NetworkConfig `yaml:"network"`
}

// LoadFile parses a YAML harness config.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return &f, nil
}

// Duration is a time.Duration that (un)marshals as a string like "1m30s".
type Duration time.Duration

func MustNewDuration(d time.Duration) *Duration {
	if d < 0 {
		panic("duration must be non-negative")
	}
	dur := Duration(d)
	return &dur
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(input []byte) error {
	v, err := time.ParseDuration(string(input))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(input))
	}
	if v < 0 {
		return errors.Errorf("duration must be non-negative: %s", v)
	}
	*d = Duration(v)
	return nil
}
