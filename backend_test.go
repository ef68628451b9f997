package batchtx

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testChainID = big.NewInt(6342)
	testRouter  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testSpender = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// fakeBackend is an in-memory Backend. Contract reads are answered by
// selector through the handlers map; everything else returns canned values.
type fakeBackend struct {
	mu sync.Mutex

	handlers map[[4]byte]func(msg ethereum.CallMsg) ([]byte, error)

	estimate    uint64
	estimateErr error
	pending     uint64
	pendingErr  error
	baseFee     *big.Int
	tip         *big.Int

	sendErr       error
	receipt       *types.Receipt
	receiptMisses int
	rpcErr        error

	sent          []*types.Transaction
	rpcMethods    []string
	contractCalls []ethereum.CallMsg
	requests      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handlers: make(map[[4]byte]func(ethereum.CallMsg) ([]byte, error)),
		estimate: 100000,
		pending:  7,
		baseFee:  big.NewInt(1_000_000_000),
		tip:      big.NewInt(1_000_000),
	}
}

// on registers a handler for the method's selector.
func (f *fakeBackend) on(id []byte, fn func(ethereum.CallMsg) ([]byte, error)) {
	var sel [4]byte
	copy(sel[:], id)
	f.handlers[sel] = fn
}

func (f *fakeBackend) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeBackend) hit() {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	f.hit()
	return new(big.Int).Set(testChainID), nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.hit()
	f.mu.Lock()
	f.contractCalls = append(f.contractCalls, msg)
	f.mu.Unlock()
	return f.dispatch(msg)
}

// dispatch answers a contract read without recording it.
func (f *fakeBackend) dispatch(msg ethereum.CallMsg) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, nil
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	if fn, ok := f.handlers[sel]; ok {
		return fn(msg)
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.hit()
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.hit()
	return f.pending, f.pendingErr
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.hit()
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	f.hit()
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptMisses > 0 {
		f.receiptMisses--
		return nil, ethereum.NotFound
	}
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	r := *f.receipt
	r.TxHash = hash
	return &r, nil
}

func (f *fakeBackend) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcMethods = append(f.rpcMethods, method)
	if f.rpcErr != nil {
		return f.rpcErr
	}
	if out, ok := result.(**types.Receipt); ok && f.receipt != nil {
		r := *f.receipt
		*out = &r
	}
	return nil
}

// routerHandlers wires getRequiredValue and execute with the given answers.
func (f *fakeBackend) routerHandlers(t *testing.T, required *big.Int, results []routerResult) {
	t.Helper()
	f.on(routerABI.Methods["getRequiredValue"].ID, func(ethereum.CallMsg) ([]byte, error) {
		return routerABI.Methods["getRequiredValue"].Outputs.Pack(required)
	})
	f.on(routerABI.Methods["execute"].ID, func(ethereum.CallMsg) ([]byte, error) {
		return routerABI.Methods["execute"].Outputs.Pack(results)
	})
}

func (f *fakeBackend) allowanceHandler(current *big.Int) {
	f.on(erc20ABI.Methods["allowance"].ID, func(ethereum.CallMsg) ([]byte, error) {
		return erc20ABI.Methods["allowance"].Outputs.Pack(current)
	})
}

func (f *fakeBackend) sentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func (f *fakeBackend) hasSelector(id []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.contractCalls {
		if len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], id[:4]) {
			return true
		}
	}
	return false
}

func newTestWallet(t *testing.T) *bind.TransactOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet, err := bind.NewKeyedTransactorWithChainID(key, testChainID)
	if err != nil {
		t.Fatalf("transactor: %v", err)
	}
	return wallet
}

func successReceipt(logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           80000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
		BlockNumber:       big.NewInt(10),
		Logs:              logs,
	}
}

type fakeNonceSource struct {
	mu   sync.Mutex
	next uint64
}

func (f *fakeNonceSource) NextNonce(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.next
	f.next++
	return n, nil
}
