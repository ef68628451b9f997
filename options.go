package batchtx

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// RPC method names for synchronous submission.
const (
	// MethodSendRawTransactionSync is the standardized method (EIP-7966).
	MethodSendRawTransactionSync = "eth_sendRawTransactionSync"

	// MethodRealtimeSendRawTransaction is the chain's legacy name for the same capability.
	MethodRealtimeSendRawTransaction = "realtime_sendRawTransaction"
)

const (
	// DefaultGasBufferPercent is added on top of gas estimates. The chain's
	// cost model is predictable enough that 10% suffices.
	DefaultGasBufferPercent = 10

	// DefaultReceiptPollInterval is how often Execute polls for a receipt.
	DefaultReceiptPollInterval = 100 * time.Millisecond

	// DefaultTransportTimeout bounds connection setup and HTTP reads.
	DefaultTransportTimeout = 30 * time.Second
)

// ExecuteOptions overrides transaction fields for a submission.
// Every field is optional.
type ExecuteOptions struct {
	GasLimit             *uint64  `json:"gasLimit,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *uint64  `json:"nonce,omitempty"`
}

// NonceSource hands out nonces for outgoing transactions.
type NonceSource interface {
	NextNonce(ctx context.Context, account common.Address) (uint64, error)
}

// NonceReleaser is implemented by nonce sources that can take back a nonce
// whose transaction never reached the node. Submission calls it on failures
// that happen before broadcast and on outright rejections by the node.
type NonceReleaser interface {
	ReleaseNonce(account common.Address, nonce uint64)
}

// BatchOption configures a Batch.
type BatchOption func(*batchConfig)

// batchConfig holds configuration shared by a Batch and the Session that made it.
// The multicall and endpoint fields only matter to a Session.
type batchConfig struct {
	wallet           *bind.TransactOpts
	chainID          *big.Int
	gasBufferPercent uint64
	pollInterval     time.Duration
	nonces           NonceSource
	logger           log.Logger
	metrics          *Metrics

	multicall    common.Address
	readParallel int
	endpoints    []string
	dialOpts     []DialOption
}

// defaultBatchConfig returns the default batch configuration.
func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		gasBufferPercent: DefaultGasBufferPercent,
		pollInterval:     DefaultReceiptPollInterval,
		logger:           log.Root(),
		multicall:        DefaultMulticall3Address,
		readParallel:     8,
	}
}

func (c *batchConfig) clone() *batchConfig {
	cp := *c
	cp.endpoints = append([]string(nil), c.endpoints...)
	cp.dialOpts = append([]DialOption(nil), c.dialOpts...)
	return &cp
}

// WithWallet binds the signer used for submission.
// The wallet's From is the sending account; its Signer signs transactions.
func WithWallet(wallet *bind.TransactOpts) BatchOption {
	return func(c *batchConfig) {
		c.wallet = wallet
	}
}

// WithChainID sets the chain ID used for transaction signing and snapshots.
// Without it the chain ID is fetched from the node when first needed.
func WithChainID(chainID *big.Int) BatchOption {
	return func(c *batchConfig) {
		if chainID != nil {
			c.chainID = new(big.Int).Set(chainID)
		}
	}
}

// WithGasBuffer sets the percentage added on top of gas estimates.
// Default is 10 (DefaultGasBufferPercent).
func WithGasBuffer(percent uint64) BatchOption {
	return func(c *batchConfig) {
		c.gasBufferPercent = percent
	}
}

// WithReceiptPollInterval sets how often Execute polls for a receipt.
// Non-positive values are ignored.
func WithReceiptPollInterval(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithNonceSource makes submissions take nonces from src unless
// ExecuteOptions.Nonce is set.
func WithNonceSource(src NonceSource) BatchOption {
	return func(c *batchConfig) {
		c.nonces = src
	}
}

// WithLogger sets the logger. Default is log.Root().
func WithLogger(logger log.Logger) BatchOption {
	return func(c *batchConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records simulation and submission metrics into m.
func WithMetrics(m *Metrics) BatchOption {
	return func(c *batchConfig) {
		c.metrics = m
	}
}

// WithMulticall sets the Multicall3 contract a Session aggregates reads
// through. The zero address disables aggregation: reads are then sent one
// per request in parallel. Default is DefaultMulticall3Address.
func WithMulticall(addr common.Address) BatchOption {
	return func(c *batchConfig) {
		c.multicall = addr
	}
}

// WithReadParallelism bounds concurrent requests when reads are not aggregated.
func WithReadParallelism(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.readParallel = n
		}
	}
}

// WithEndpoints sets the RPC endpoints a Session fails over between.
func WithEndpoints(endpoints []string, opts ...DialOption) BatchOption {
	return func(c *batchConfig) {
		c.endpoints = append([]string(nil), endpoints...)
		c.dialOpts = append([]DialOption(nil), opts...)
	}
}
