package config

import (
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

// Global harness defaults.
var defaultConfigSet = configSet{
	RequestTimeout:      10 * time.Second,       // timeout for a single RPC read
	TxTimeout:           time.Minute,            // timeout for send tx method in client
	TxConfirmTimeout:    30 * time.Second,       // duration before giving up on confirmation
	ConfirmPollPeriod:   500 * time.Millisecond, // polling for tx confirmation
	AirdropRetryPeriod:  time.Second,            // fixed backoff between airdrop attempts
	AirdropMaxAttempts:  0,                      // 0 retries until ctx is done
	AirdropCommitment:   rpc.CommitmentFinalized,
	Commitment:          rpc.CommitmentConfirmed,
	SkipPreflight:       true, // to enable or disable preflight checks
	MaxRetries:          nil,  // when nil - rpc node will do a reasonable number of retries
	HealthCheckAttempts: 30,
	HealthCheckPeriod:   time.Second,
	BalancePollPeriod:   5 * time.Second, // poll period for monitored account balances
	ComputeUnitLimit:    0, // 0 leaves the runtime default limit
	ComputeUnitPrice:    0, // micro-lamports, 0 disables priority fees
}

type Config interface {
	RequestTimeout() time.Duration
	TxTimeout() time.Duration
	TxConfirmTimeout() time.Duration
	ConfirmPollPeriod() time.Duration
	AirdropRetryPeriod() time.Duration
	AirdropMaxAttempts() uint
	AirdropCommitment() rpc.CommitmentType
	Commitment() rpc.CommitmentType
	SkipPreflight() bool
	MaxRetries() *uint
	HealthCheckAttempts() uint
	HealthCheckPeriod() time.Duration
	BalancePollPeriod() time.Duration
	ComputeUnitLimit() uint32
	ComputeUnitPrice() uint64

	// Update sets new chain config values.
	Update(ChainCfg)
}

type configSet struct {
	RequestTimeout      time.Duration
	TxTimeout           time.Duration
	TxConfirmTimeout    time.Duration
	ConfirmPollPeriod   time.Duration
	AirdropRetryPeriod  time.Duration
	AirdropMaxAttempts  uint
	AirdropCommitment   rpc.CommitmentType
	Commitment          rpc.CommitmentType
	SkipPreflight       bool
	MaxRetries          *uint
	HealthCheckAttempts uint
	HealthCheckPeriod   time.Duration
	BalancePollPeriod   time.Duration
	ComputeUnitLimit    uint32
	ComputeUnitPrice    uint64
}

var _ Config = (*config)(nil)

type config struct {
	defaults configSet
	chain    ChainCfg
	chainMu  sync.RWMutex
	lggr     logger.Logger
}

// NewConfig returns a Config with defaults overridden by cfg.
func NewConfig(cfg ChainCfg, lggr logger.Logger) *config {
	return &config{
		defaults: defaultConfigSet,
		chain:    cfg,
		lggr:     logger.Named(lggr, "Config"),
	}
}

// NewDefault returns a Config with no overrides.
func NewDefault() *config {
	return NewConfig(ChainCfg{}, nil)
}

func (c *config) Update(cfg ChainCfg) {
	c.chainMu.Lock()
	c.chain = cfg
	c.chainMu.Unlock()
}

func (c *config) duration(get func(ChainCfg) *Duration, def time.Duration) time.Duration {
	c.chainMu.RLock()
	ch := get(c.chain)
	c.chainMu.RUnlock()
	if ch != nil {
		return ch.Duration()
	}
	return def
}

func (c *config) RequestTimeout() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.RequestTimeout }, c.defaults.RequestTimeout)
}

func (c *config) TxTimeout() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.TxTimeout }, c.defaults.TxTimeout)
}

func (c *config) TxConfirmTimeout() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.TxConfirmTimeout }, c.defaults.TxConfirmTimeout)
}

func (c *config) ConfirmPollPeriod() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.ConfirmPollPeriod }, c.defaults.ConfirmPollPeriod)
}

func (c *config) AirdropRetryPeriod() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.AirdropRetryPeriod }, c.defaults.AirdropRetryPeriod)
}

func (c *config) HealthCheckPeriod() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.HealthCheckPeriod }, c.defaults.HealthCheckPeriod)
}

func (c *config) BalancePollPeriod() time.Duration {
	return c.duration(func(cfg ChainCfg) *Duration { return cfg.BalancePollPeriod }, c.defaults.BalancePollPeriod)
}

func (c *config) AirdropMaxAttempts() uint {
	c.chainMu.RLock()
	ch := c.chain.AirdropMaxAttempts
	c.chainMu.RUnlock()
	if ch.Valid {
		if ch.Int64 < 0 {
			c.lggr.Warnf(invalidFallbackMsg, "AirdropMaxAttempts", ch.Int64, c.defaults.AirdropMaxAttempts, "value must be >= 0")
			return c.defaults.AirdropMaxAttempts
		}
		return uint(ch.Int64)
	}
	return c.defaults.AirdropMaxAttempts
}

func (c *config) HealthCheckAttempts() uint {
	c.chainMu.RLock()
	ch := c.chain.HealthCheckAttempts
	c.chainMu.RUnlock()
	if ch.Valid && ch.Int64 > 0 {
		return uint(ch.Int64)
	}
	return c.defaults.HealthCheckAttempts
}

func (c *config) AirdropCommitment() rpc.CommitmentType {
	c.chainMu.RLock()
	ch := c.chain.AirdropCommitment
	c.chainMu.RUnlock()
	if ch.Valid {
		return c.parseCommitment("AirdropCommitment", ch.String, c.defaults.AirdropCommitment)
	}
	return c.defaults.AirdropCommitment
}

func (c *config) Commitment() rpc.CommitmentType {
	c.chainMu.RLock()
	ch := c.chain.Commitment
	c.chainMu.RUnlock()
	if ch.Valid {
		return c.parseCommitment("Commitment", ch.String, c.defaults.Commitment)
	}
	return c.defaults.Commitment
}

func (c *config) parseCommitment(name, str string, def rpc.CommitmentType) rpc.CommitmentType {
	switch str {
	case "processed":
		return rpc.CommitmentProcessed
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		c.lggr.Warnf(invalidFallbackMsg, name, str, def, "unknown commitment")
		return def
	}
}

func (c *config) SkipPreflight() bool {
	c.chainMu.RLock()
	ch := c.chain.SkipPreflight
	c.chainMu.RUnlock()
	if ch.Valid {
		return ch.Bool
	}
	return c.defaults.SkipPreflight
}

func (c *config) MaxRetries() *uint {
	c.chainMu.RLock()
	ch := c.chain.MaxRetries
	c.chainMu.RUnlock()
	if ch.Valid {
		if ch.Int64 < 0 {
			c.lggr.Warnf(invalidFallbackMsg, "MaxRetries", ch.Int64, c.defaults.MaxRetries, "value must be >= 0")
			return c.defaults.MaxRetries
		}
		val := uint(ch.Int64)
		return &val
	}
	return c.defaults.MaxRetries
}

func (c *config) ComputeUnitLimit() uint32 {
	c.chainMu.RLock()
	ch := c.chain.ComputeUnitLimit
	c.chainMu.RUnlock()
	if ch.Valid {
		if ch.Int64 < 0 || ch.Int64 > math.MaxUint32 {
			c.lggr.Warnf(invalidFallbackMsg, "ComputeUnitLimit", ch.Int64, c.defaults.ComputeUnitLimit, "value must fit in uint32")
			return c.defaults.ComputeUnitLimit
		}
		return uint32(ch.Int64)
	}
	return c.defaults.ComputeUnitLimit
}

func (c *config) ComputeUnitPrice() uint64 {
	c.chainMu.RLock()
	ch := c.chain.ComputeUnitPrice
	c.chainMu.RUnlock()
	if ch.Valid {
		if ch.Int64 < 0 {
			c.lggr.Warnf(invalidFallbackMsg, "ComputeUnitPrice", ch.Int64, c.defaults.ComputeUnitPrice, "value must be >= 0")
			return c.defaults.ComputeUnitPrice
		}
		return uint64(ch.Int64)
	}
	return c.defaults.ComputeUnitPrice
}

const invalidFallbackMsg = `Invalid value provided for %s, "%v" - falling back to default "%v": %v`
