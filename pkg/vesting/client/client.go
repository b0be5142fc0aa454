package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/config"
	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/logger"
)

//go:generate mockery --name ReaderWriter --output ./mocks/ --case=underscore --filename reader_writer.go
type ReaderWriter interface {
	Writer
	Reader
}

type Reader interface {
	AccountReader
	ProgramAccountsReader
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error)
	SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatusesResult, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
}

// AccountReader is an interface that allows users to pass either the solana rpc client or the harness client
type AccountReader interface {
	GetAccountInfoWithOpts(ctx context.Context, addr solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// ProgramAccountsReader scans accounts owned by a program with server side filters.
type ProgramAccountsReader interface {
	ProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) (rpc.GetProgramAccountsResult, error)
}

type Writer interface {
	SendTx(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error)
	ConfirmTx(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error
}

var _ ReaderWriter = (*Client)(nil)

// Client is a stateless wrapper around the ledger JSON-RPC API and is safe for concurrent use.
type Client struct {
	rpc              *rpc.Client
	url              string
	skipPreflight    bool // to enable or disable preflight checks
	commitment       rpc.CommitmentType
	maxRetries       *uint
	txTimeout        time.Duration
	txConfirmTimeout time.Duration
	contextDuration  time.Duration
	pollingInterval  time.Duration
	log              logger.Logger

	// provides a duplicate function call suppression mechanism
	requestGroup *singleflight.Group
}

func NewClient(endpoint string, cfg config.Config, log logger.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("missing rpc endpoint")
	}
	return &Client{
		rpc:              rpc.New(endpoint),
		url:              endpoint,
		skipPreflight:    cfg.SkipPreflight(),
		commitment:       cfg.Commitment(),
		maxRetries:       cfg.MaxRetries(),
		txTimeout:        cfg.TxTimeout(),
		txConfirmTimeout: cfg.TxConfirmTimeout(),
		contextDuration:  cfg.RequestTimeout(),
		pollingInterval:  cfg.ConfirmPollPeriod(),
		log:              logger.Named(log, "Client"),
		requestGroup:     &singleflight.Group{},
	}, nil
}

func (c *Client) URL() string { return c.url }

// Health returns nil once the node reports "ok".
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	out, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return errors.Wrap(err, "error in GetHealth")
	}
	if out != rpc.HealthOk {
		return errors.Errorf("node unhealthy: %s", out)
	}
	return nil
}

func (c *Client) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()

	v, err, _ := c.requestGroup.Do(fmt.Sprintf("GetBalance(%s)", addr.String()), func() (interface{}, error) {
		return c.rpc.GetBalance(ctx, addr, c.commitment)
	})
	if err != nil {
		return 0, errors.Wrap(err, "error in GetBalance")
	}
	res := v.(*rpc.GetBalanceResult)
	return res.Value, nil
}

func (c *Client) GetAccountInfoWithOpts(ctx context.Context, addr solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	if opts == nil {
		opts = &rpc.GetAccountInfoOpts{}
	}
	opts.Commitment = c.commitment // overrides passed in value - use defined client commitment type
	return c.rpc.GetAccountInfoWithOpts(ctx, addr, opts)
}

func (c *Client) LatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()

	v, err, _ := c.requestGroup.Do("GetLatestBlockhash", func() (interface{}, error) {
		return c.rpc.GetLatestBlockhash(ctx, c.commitment)
	})
	if err != nil {
		return nil, errors.Wrap(err, "error in GetLatestBlockhash")
	}
	res := v.(*rpc.GetLatestBlockhashResult)
	if res == nil || res.Value == nil {
		return nil, errors.New("nil pointer in GetLatestBlockhash")
	}
	return res, nil
}

func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, c.commitment)
	if err != nil {
		return 0, errors.Wrap(err, "error in GetMinimumBalanceForRentExemption")
	}
	return lamports, nil
}

// https://docs.solana.com/developing/clients/jsonrpc-api#getprogramaccounts
func (c *Client) ProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) (rpc.GetProgramAccountsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()

	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error in GetProgramAccountsWithOpts")
	}
	return res, nil
}

// https://docs.solana.com/developing/clients/jsonrpc-api#getsignaturestatuses
func (c *Client) SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()

	// searchTransactionHistory = false
	res, err := c.rpc.GetSignatureStatuses(ctx, false, sigs...)
	if err != nil {
		return nil, errors.Wrap(err, "error in GetSignatureStatuses")
	}

	if res == nil || res.Value == nil {
		return nil, errors.New("nil pointer in GetSignatureStatuses")
	}
	return res.Value, nil
}

func (c *Client) SendTx(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          c.maxRetries,
	}

	return c.rpc.SendTransactionWithOpts(ctx, tx, opts)
}

// RequestAirdrop asks the faucet to credit addr. The returned signature still has to be confirmed.
func (c *Client) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	return c.rpc.RequestAirdrop(ctx, addr, lamports, c.commitment)
}
