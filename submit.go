package batchtx

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Submission modes, as reported in metrics and receipts.
const (
	ModeAsync    = "async"
	ModeSync     = "sync"
	ModeRealtime = "realtime"
)

// AsyncReceipt is the outcome of Execute.
type AsyncReceipt struct {
	Hash              common.Hash
	Receipt           *types.Receipt
	Results           []CallResult
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	TotalCost         *big.Int // GasUsed * EffectiveGasPrice
}

// SyncReceipt is the outcome of ExecuteSync and ExecuteRealtime.
type SyncReceipt struct {
	Receipt *types.Receipt
	Results []CallResult
	GasUsed uint64
	Latency time.Duration // client-measured, submission to receipt
	Method  string
}

// Execute signs and broadcasts the batch, then polls for its receipt.
//
// Precondition failures (ErrEmptyBatch, ErrWalletNotConnected, ErrNoAccount,
// ErrBatchSubmitted) are returned before any network call. Everything after
// that is reported as an *Error with code EXECUTION_FAILED or USER_REJECTED.
// A transaction mined with failed status is an error carrying its TxHash.
//
// Nonces drawn from a NonceReleaser, such as the Session, are handed back
// when the transaction never reached the node: a failure before broadcast,
// or a broadcast the node answered with a JSON-RPC error. Any other failure
// after signing leaves the nonce issued and sets Error.Nonce; the node may
// still hold the transaction. Once it is known to be dropped, call
// Session.ResetNonce so later batches do not wait behind the gap.
func (b *Batch) Execute(ctx context.Context, opts ExecuteOptions) (*AsyncReceipt, error) {
	if err := b.checkSubmittable(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := b.cfg.logger.With("router", b.router, "calls", b.ledger.Len(), "mode", ModeAsync)

	signed, release, err := b.prepare(ctx, opts)
	if err != nil {
		b.cfg.metrics.observeSubmission(ModeAsync, false, 0)
		return nil, err
	}
	hash := signed.Hash()

	b.state = StateSubmitted
	if err := b.backend.SendTransaction(ctx, signed); err != nil {
		b.cfg.metrics.observeSubmission(ModeAsync, false, 0)
		if rejectedByNode(err) {
			release()
		}
		return nil, sentError("broadcast", err, signed)
	}
	logger.Debug("Batch transaction sent", "hash", hash, "nonce", signed.Nonce(), "gas", signed.Gas())

	receipt, err := b.waitForReceipt(ctx, hash)
	if err != nil {
		b.cfg.metrics.observeSubmission(ModeAsync, false, 0)
		return nil, sentError("wait for receipt", err, signed)
	}
	b.state = StateFinalized

	if err := receiptError(receipt, signed); err != nil {
		b.cfg.metrics.observeSubmission(ModeAsync, false, 0)
		logger.Warn("Batch transaction reverted", "hash", hash, "block", receipt.BlockNumber)
		return nil, err
	}

	out := &AsyncReceipt{
		Hash:              hash,
		Receipt:           receipt,
		Results:           DecodeRouterResults(receipt, b.router, b.ledger.Len(), nil),
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: bigOrZero(receipt.EffectiveGasPrice),
	}
	out.TotalCost = new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), out.EffectiveGasPrice)

	latency := time.Since(start)
	b.cfg.metrics.observeSubmission(ModeAsync, true, latency)
	logger.Info("Batch transaction confirmed", "hash", hash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed, "elapsed", latency)
	return out, nil
}

// ExecuteSync submits with eth_sendRawTransactionSync, which returns the
// receipt in the same request.
func (b *Batch) ExecuteSync(ctx context.Context, opts ExecuteOptions) (*SyncReceipt, error) {
	return b.ExecuteWithMethod(ctx, MethodSendRawTransactionSync, opts)
}

// ExecuteRealtime submits with realtime_sendRawTransaction, the older name
// some nodes still expose for synchronous submission.
func (b *Batch) ExecuteRealtime(ctx context.Context, opts ExecuteOptions) (*SyncReceipt, error) {
	return b.ExecuteWithMethod(ctx, MethodRealtimeSendRawTransaction, opts)
}

// ExecuteWithMethod submits the signed batch with a synchronous JSON-RPC
// method that takes a raw transaction and returns its receipt.
//
// Nonces are handled as in Execute. A JSON-RPC error counts as a rejection
// except the timeout error of eth_sendRawTransactionSync, which the node
// returns for a transaction it accepted but has not yet included.
func (b *Batch) ExecuteWithMethod(ctx context.Context, method string, opts ExecuteOptions) (*SyncReceipt, error) {
	if err := b.checkSubmittable(); err != nil {
		return nil, err
	}
	mode := modeForMethod(method)
	logger := b.cfg.logger.With("router", b.router, "calls", b.ledger.Len(), "mode", mode)

	signed, release, err := b.prepare(ctx, opts)
	if err != nil {
		b.cfg.metrics.observeSubmission(mode, false, 0)
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		b.cfg.metrics.observeSubmission(mode, false, 0)
		release()
		return nil, executionError("encode transaction", err)
	}
	hash := signed.Hash()

	b.state = StateSubmitted
	start := time.Now()
	var receipt *types.Receipt
	err = b.backend.CallContext(ctx, &receipt, method, hexutil.Encode(raw))
	latency := time.Since(start)
	if err == nil && receipt == nil {
		err = fmt.Errorf("%s returned no receipt", method)
	}
	if err != nil {
		b.cfg.metrics.observeSubmission(mode, false, 0)
		if rejectedByNode(err) {
			release()
		}
		return nil, sentError(method, err, signed)
	}
	b.state = StateFinalized

	if err := receiptError(receipt, signed); err != nil {
		b.cfg.metrics.observeSubmission(mode, false, 0)
		logger.Warn("Batch transaction reverted", "hash", hash, "block", receipt.BlockNumber)
		return nil, err
	}

	b.cfg.metrics.observeSubmission(mode, true, latency)
	logger.Info("Batch transaction confirmed", "hash", hash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed, "latency", latency)
	return &SyncReceipt{
		Receipt: receipt,
		Results: DecodeRouterResults(receipt, b.router, b.ledger.Len(), nil),
		GasUsed: receipt.GasUsed,
		Latency: latency,
		Method:  method,
	}, nil
}

func modeForMethod(method string) string {
	switch method {
	case MethodSendRawTransactionSync:
		return ModeSync
	case MethodRealtimeSendRawTransaction:
		return ModeRealtime
	}
	return method
}

// checkSubmittable runs the precondition checks shared by every submission path.
func (b *Batch) checkSubmittable() error {
	if b.frozen() {
		return ErrBatchSubmitted
	}
	if b.ledger.IsEmpty() {
		return ErrEmptyBatch
	}
	w := b.cfg.wallet
	if w == nil || w.Signer == nil {
		return ErrWalletNotConnected
	}
	if w.From == (common.Address{}) {
		return ErrNoAccount
	}
	return nil
}

// prepare validates the batch against the node and returns it signed,
// along with a func that hands the nonce back to its source. The nonce is
// already handed back when prepare fails.
func (b *Batch) prepare(ctx context.Context, opts ExecuteOptions) (*types.Transaction, func(), error) {
	wallet := b.cfg.wallet

	chainID, err := b.chainID(ctx)
	if err != nil {
		return nil, nil, executionError("chain id", err)
	}
	value, err := b.RequiredValue(ctx)
	if err != nil {
		return nil, nil, executionError("required value", err)
	}
	msg, err := b.executeMsg(value)
	if err != nil {
		return nil, nil, executionError("encode batch", err)
	}
	if _, err := b.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, nil, executionError("dry run", err)
	}

	var gasLimit uint64
	if opts.GasLimit != nil {
		gasLimit = *opts.GasLimit
	} else {
		estimate, err := b.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, nil, executionError("estimate gas", err)
		}
		gasLimit = ApplyGasBuffer(estimate, b.cfg.gasBufferPercent)
	}

	tipCap, feeCap, err := b.fees(ctx, opts)
	if err != nil {
		return nil, nil, executionError("fee lookup", err)
	}

	nonce, release, err := b.nonce(ctx, opts)
	if err != nil {
		return nil, nil, executionError("nonce lookup", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &b.router,
		Value:     msg.Value,
		Data:      msg.Data,
	})
	signed, err := wallet.Signer(wallet.From, tx)
	if err != nil {
		release()
		return nil, nil, executionError("sign", err)
	}
	return signed, release, nil
}

func (b *Batch) chainID(ctx context.Context) (*big.Int, error) {
	if b.cfg.chainID != nil {
		return b.cfg.chainID, nil
	}
	id, err := b.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	b.cfg.chainID = id
	return id, nil
}

// fees returns the tip and fee caps: explicit options first, then the
// node's suggested tip over twice the latest base fee.
func (b *Batch) fees(ctx context.Context, opts ExecuteOptions) (tipCap, feeCap *big.Int, err error) {
	tipCap = opts.MaxPriorityFeePerGas
	if tipCap == nil {
		if tipCap, err = b.backend.SuggestGasTipCap(ctx); err != nil {
			return nil, nil, err
		}
	}
	feeCap = opts.MaxFeePerGas
	if feeCap == nil {
		head, err := b.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, nil, err
		}
		feeCap = feeCapFromBaseFee(head.BaseFee, tipCap)
	}
	if tipCap.Cmp(feeCap) > 0 {
		tipCap = feeCap
	}
	return new(big.Int).Set(tipCap), new(big.Int).Set(feeCap), nil
}

// nonce picks the transaction nonce: the explicit option, then the wallet's
// fixed nonce, then the configured source, then the node's pending count.
// The returned func releases a nonce taken from a NonceReleaser and does
// nothing otherwise.
func (b *Batch) nonce(ctx context.Context, opts ExecuteOptions) (uint64, func(), error) {
	keep := func() {}
	if opts.Nonce != nil {
		return *opts.Nonce, keep, nil
	}
	wallet := b.cfg.wallet
	if wallet.Nonce != nil && wallet.Nonce.IsUint64() {
		return wallet.Nonce.Uint64(), keep, nil
	}
	if b.cfg.nonces == nil {
		n, err := b.backend.PendingNonceAt(ctx, wallet.From)
		return n, keep, err
	}
	n, err := b.cfg.nonces.NextNonce(ctx, wallet.From)
	if err != nil {
		return 0, nil, err
	}
	r, ok := b.cfg.nonces.(NonceReleaser)
	if !ok {
		return n, keep, nil
	}
	var once sync.Once
	return n, func() {
		once.Do(func() {
			r.ReleaseNonce(wallet.From, n)
			b.cfg.logger.Debug("Released unused nonce", "account", wallet.From, "nonce", n)
		})
	}, nil
}

// txSyncTimeoutCode is the eth_sendRawTransactionSync error code for a
// transaction accepted into the pool without a receipt before the deadline.
const txSyncTimeoutCode = 4

// rejectedByNode reports whether err is a JSON-RPC error response, meaning
// the node answered and did not take the transaction. Transport failures
// and sync timeouts are ambiguous and report false.
func rejectedByNode(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.ErrorCode() != txSyncTimeoutCode
}

// sentError wraps a failure that happened after tx was handed to the node.
func sentError(stage string, err error, tx *types.Transaction) *Error {
	e := executionError(stage, err)
	e.TxHash = tx.Hash()
	nonce := tx.Nonce()
	e.Nonce = &nonce
	return e
}

// waitForReceipt polls until the transaction is mined or ctx ends.
func (b *Batch) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	policy := backoff.WithContext(backoff.NewConstantBackOff(b.cfg.pollInterval), ctx)
	return backoff.RetryNotifyWithData(func() (*types.Receipt, error) {
		receipt, err := b.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, ethereum.NotFound
		}
		return receipt, nil
	}, policy, func(err error, _ time.Duration) {
		if !errors.Is(err, ethereum.NotFound) {
			b.cfg.logger.Debug("Receipt lookup failed, retrying", "hash", hash, "err", err)
		}
	})
}

// receiptError reports a mined transaction whose status is failed.
func receiptError(receipt *types.Receipt, tx *types.Transaction) error {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return nil
	}
	nonce := tx.Nonce()
	return &Error{
		Code:    CodeExecutionFailed,
		Message: fmt.Sprintf("transaction reverted in block %v", receipt.BlockNumber),
		TxHash:  receipt.TxHash,
		Nonce:   &nonce,
	}
}
