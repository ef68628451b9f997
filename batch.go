package batchtx

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BatchState is a step in a batch's lifecycle.
type BatchState uint8

const (
	// StateBuilding accepts new calls.
	StateBuilding BatchState = iota

	// StateSimulating has been simulated at least once and still accepts calls.
	StateSimulating

	// StateSubmitted has been handed to the node; it no longer changes.
	StateSubmitted

	// StateFinalized has a receipt.
	StateFinalized
)

// String returns the state name.
func (s BatchState) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSimulating:
		return "simulating"
	case StateSubmitted:
		return "submitted"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Batch accumulates calls and drives them through simulation and submission
// via a router contract. Once submitted a Batch is frozen; build a new one
// for the next transaction.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	ledger  *Ledger
	backend Backend
	router  common.Address
	cfg     *batchConfig
	state   BatchState
}

// NewBatch creates an empty batch that submits through router. A nil
// backend makes every network operation fail with ErrNoBackend.
func NewBatch(backend Backend, router common.Address, opts ...BatchOption) *Batch {
	cfg := defaultBatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newBatch(backend, router, cfg)
}

func newBatch(backend Backend, router common.Address, cfg *batchConfig) *Batch {
	if backend == nil {
		backend = &resolvingBackend{current: func() Backend { return nil }}
	}
	return &Batch{
		ledger:  NewLedger(cfg.chainID),
		backend: backend,
		router:  router,
		cfg:     cfg,
		state:   StateBuilding,
	}
}

// Router returns the router contract address.
func (b *Batch) Router() common.Address {
	return b.router
}

// State returns the lifecycle state.
func (b *Batch) State() BatchState {
	return b.state
}

func (b *Batch) frozen() bool {
	return b.state >= StateSubmitted
}

// Add encodes each intent and appends it.
// On the first encoding error nothing further is appended.
func (b *Batch) Add(intents ...Intent) error {
	for _, intent := range intents {
		if err := b.AddWithMetadata(intent, nil); err != nil {
			return err
		}
	}
	return nil
}

// AddWithMetadata encodes intent and appends it with audit metadata.
func (b *Batch) AddWithMetadata(intent Intent, metadata map[string]string) error {
	if b.frozen() {
		return ErrBatchSubmitted
	}
	if intent == nil {
		return &EncodingError{Kind: KindRaw, Err: fmt.Errorf("nil intent")}
	}
	call, err := intent.Encode()
	if err != nil {
		return err
	}
	b.ledger.Append(call, intent.Kind(), metadata)
	return nil
}

// MustAdd is like Add but panics on error. It returns the batch for chaining.
func (b *Batch) MustAdd(intents ...Intent) *Batch {
	if err := b.Add(intents...); err != nil {
		panic(err)
	}
	return b
}

// Append adds a prebuilt call. It only fails once the batch is submitted.
func (b *Batch) Append(call Call, kind OperationKind, metadata map[string]string) error {
	if b.frozen() {
		return ErrBatchSubmitted
	}
	b.ledger.Append(call, kind, metadata)
	return nil
}

// PopLast removes the most recent call. It returns false if the batch is
// empty or already submitted.
func (b *Batch) PopLast() (Call, bool) {
	if b.frozen() {
		return Call{}, false
	}
	call, _, ok := b.ledger.PopLast()
	return call, ok
}

// Clear removes every call.
func (b *Batch) Clear() error {
	if b.frozen() {
		return ErrBatchSubmitted
	}
	b.ledger.Clear()
	return nil
}

// Len returns the number of calls.
func (b *Batch) Len() int {
	return b.ledger.Len()
}

// Calls returns a copy of the calls.
func (b *Batch) Calls() []Call {
	return b.ledger.Calls()
}

// Records returns a copy of the audit records.
func (b *Batch) Records() []OperationRecord {
	return b.ledger.Records()
}

// TotalValue returns the sum of the calls' values.
func (b *Batch) TotalValue() *uint256.Int {
	return b.ledger.TotalValue()
}

// Snapshot returns a deep copy of the batch contents.
func (b *Batch) Snapshot() Snapshot {
	return b.ledger.Snapshot()
}

// RequiredValue asks the router how much native value the batch needs.
// An empty batch needs nothing and causes no network call.
func (b *Batch) RequiredValue(ctx context.Context) (*uint256.Int, error) {
	if b.ledger.IsEmpty() {
		return new(uint256.Int), nil
	}
	data, err := routerABI.Pack("getRequiredValue", toRouterCalls(b.ledger.calls))
	if err != nil {
		return nil, fmt.Errorf("batchtx: pack getRequiredValue: %w", err)
	}
	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &b.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	unpacked, err := routerABI.Unpack("getRequiredValue", out)
	if err != nil {
		return nil, fmt.Errorf("batchtx: unpack getRequiredValue: %w", err)
	}
	required, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("batchtx: unexpected getRequiredValue output %T", unpacked[0])
	}
	value, ok := ValueFromBig(required)
	if !ok {
		return nil, errValueRange
	}
	return value, nil
}

// SimulationResult is the outcome of Simulate.
// When Success is false the failure fields are set and Results is nil.
type SimulationResult struct {
	Success       bool
	Results       []CallResult
	GasEstimate   uint64 // buffered estimate
	RequiredValue *uint256.Int

	Err             error  // raw chain or RPC error
	Error           string // Err's message
	RevertReason    string
	FailedCallIndex int // UnknownCallIndex if it cannot be determined
}

// Simulate dry-runs the batch against the latest state.
//
// Only an empty batch produces an error, returned before any network call.
// Reverts and RPC failures are reported in the result instead.
func (b *Batch) Simulate(ctx context.Context) (*SimulationResult, error) {
	if b.ledger.IsEmpty() {
		return nil, ErrEmptyBatch
	}
	if !b.frozen() {
		b.state = StateSimulating
	}
	logger := b.cfg.logger.With("router", b.router, "calls", b.ledger.Len())

	value, err := b.RequiredValue(ctx)
	if err != nil {
		return b.simulationFailure(err), nil
	}

	msg, err := b.executeMsg(value)
	if err != nil {
		return b.simulationFailure(err), nil
	}
	raw, err := b.backend.CallContract(ctx, msg, nil)
	if err != nil {
		logger.Debug("Batch simulation reverted", "err", err)
		return b.simulationFailure(err), nil
	}
	gas, err := b.backend.EstimateGas(ctx, msg)
	if err != nil {
		logger.Debug("Batch gas estimation failed", "err", err)
		return b.simulationFailure(err), nil
	}

	result := &SimulationResult{
		Success:         true,
		Results:         DecodeBatchResults(nil, b.ledger.Len(), raw),
		GasEstimate:     ApplyGasBuffer(gas, b.cfg.gasBufferPercent),
		RequiredValue:   value,
		FailedCallIndex: UnknownCallIndex,
	}
	b.cfg.metrics.observeSimulation(true)
	logger.Debug("Batch simulation succeeded", "gas", result.GasEstimate, "value", value)
	return result, nil
}

func (b *Batch) simulationFailure(err error) *SimulationResult {
	b.cfg.metrics.observeSimulation(false)
	return &SimulationResult{
		Success:         false,
		Err:             err,
		Error:           err.Error(),
		RevertReason:    revertReason(err),
		FailedCallIndex: FailedCallIndex(err),
	}
}

// revertReason decodes the revert data attached to err. Errors without
// revert data keep their own message unless they mention a revert.
func revertReason(err error) string {
	if data, ok := revertData(err); ok {
		return DecodeRevert(data)
	}
	if strings.Contains(strings.ToLower(err.Error()), "revert") {
		return DecodeRevert(nil)
	}
	return err.Error()
}

// executeMsg builds the router execute call, from the wallet account when one is bound.
func (b *Batch) executeMsg(value *uint256.Int) (ethereum.CallMsg, error) {
	data, err := routerABI.Pack("execute", toRouterCalls(b.ledger.calls))
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("batchtx: pack execute: %w", err)
	}
	msg := ethereum.CallMsg{
		To:    &b.router,
		Value: toBig(value),
		Data:  data,
	}
	if w := b.cfg.wallet; w != nil {
		msg.From = w.From
	}
	return msg, nil
}

// SafeApprove appends an approval of amount for spender on token, preceded
// by a reset to zero when the router's current allowance is non-zero and
// different. Some tokens (USDT among them) reject changing a non-zero
// allowance directly. It returns the number of calls appended.
func (b *Batch) SafeApprove(ctx context.Context, token, spender common.Address, amount *big.Int) (int, error) {
	if b.frozen() {
		return 0, ErrBatchSubmitted
	}
	current, err := b.allowance(ctx, token, b.router, spender)
	if err != nil {
		return 0, err
	}
	amount = bigOrZero(amount)

	if current.Sign() != 0 && current.Cmp(amount) != 0 {
		reset := TokenApproval{Token: token, Spender: spender, Amount: new(big.Int)}
		if err := b.AddWithMetadata(reset, map[string]string{"safe_approve": "reset"}); err != nil {
			return 0, err
		}
		if err := b.AddWithMetadata(TokenApproval{Token: token, Spender: spender, Amount: amount}, map[string]string{"safe_approve": "set"}); err != nil {
			b.ledger.PopLast()
			return 0, err
		}
		return 2, nil
	}
	if err := b.AddWithMetadata(TokenApproval{Token: token, Spender: spender, Amount: amount}, map[string]string{"safe_approve": "set"}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *Batch) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("batchtx: read allowance of %s: %w", token.Hex(), err)
	}
	unpacked, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("batchtx: decode allowance of %s: %w", token.Hex(), err)
	}
	current, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("batchtx: unexpected allowance output %T", unpacked[0])
	}
	return current, nil
}

// AggregatorSwap fetches a route from quoter and appends the quoted call.
// The router executes the route, so it is the taker unless req names one.
// The sell token must already be approved for the route's target.
func (b *Batch) AggregatorSwap(ctx context.Context, quoter Quoter, req QuoteRequest) (*Quote, error) {
	if b.frozen() {
		return nil, ErrBatchSubmitted
	}
	if req.Taker == (common.Address{}) {
		req.Taker = b.router
	}
	quote, err := quoter.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		"sell_token":  req.SellToken.Hex(),
		"buy_token":   req.BuyToken.Hex(),
		"sell_amount": bigOrZero(req.SellAmount).String(),
		"buy_amount":  bigOrZero(quote.BuyAmount).String(),
	}
	b.ledger.Append(quote.Call(), KindAggregatorSwap, metadata)
	return quote, nil
}
