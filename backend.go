package batchtx

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ChainClient is the subset of *ethclient.Client the batch engine uses.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RPCCaller issues arbitrary JSON-RPC requests. *rpc.Client implements it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Backend is everything a Batch needs from a node.
type Backend interface {
	ChainClient
	RPCCaller
}

// rpcBackend joins an ethclient with its underlying raw RPC client.
type rpcBackend struct {
	*ethclient.Client
	raw *rpc.Client
}

// NewBackend wraps an RPC client as a Backend.
func NewBackend(c *rpc.Client) Backend {
	return &rpcBackend{Client: ethclient.NewClient(c), raw: c}
}

func (b *rpcBackend) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return b.raw.CallContext(ctx, result, method, args...)
}

// Close closes the underlying connection.
func (b *rpcBackend) Close() {
	b.raw.Close()
}
