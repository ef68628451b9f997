package batchtx

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BatchExecutedEvent is the router's whole-batch summary event.
type BatchExecutedEvent struct {
	Sender     common.Address
	CallCount  *big.Int
	TotalValue *big.Int
	Raw        types.Log
}

// CallExecutedEvent is the router's per-call event.
type CallExecutedEvent struct {
	CallIndex *big.Int
	Target    common.Address
	Value     *big.Int
	Success   bool
	Raw       types.Log
}

// DecodeBatchResults recovers one CallResult per call. It tries, in order:
//
//  1. raw return data of the router's execute call, decoded as (bool,bytes)[];
//  2. CallExecuted events in the receipt;
//  3. a fallback of callCount inferred results.
//
// The returned slice always has exactly callCount entries. Entries not backed
// by return data or an event are marked Inferred; their Success is true unless
// the receipt itself reports failure.
//
// Events are accepted from any emitter. Use DecodeRouterResults when the
// router address is known.
func DecodeBatchResults(receipt *types.Receipt, callCount int, raw []byte) []CallResult {
	return decodeBatchResults(receipt, nil, callCount, raw)
}

// DecodeRouterResults is DecodeBatchResults restricted to events emitted by
// router. Batched calls into other contracts may emit look-alike events.
func DecodeRouterResults(receipt *types.Receipt, router common.Address, callCount int, raw []byte) []CallResult {
	return decodeBatchResults(receipt, &router, callCount, raw)
}

func decodeBatchResults(receipt *types.Receipt, emitter *common.Address, callCount int, raw []byte) []CallResult {
	if callCount < 0 {
		callCount = 0
	}
	if results, ok := decodeReturnData(raw, callCount); ok {
		return results
	}

	assumed := receipt == nil || receipt.Status == types.ReceiptStatusSuccessful
	results := make([]CallResult, callCount)
	for i := range results {
		results[i] = CallResult{Success: assumed, Inferred: true}
	}

	if receipt == nil {
		return results
	}
	for _, ev := range decodeCallEvents(receipt, emitter) {
		if !ev.CallIndex.IsInt64() {
			continue
		}
		idx := ev.CallIndex.Int64()
		if idx < 0 || idx >= int64(callCount) {
			continue
		}
		results[idx] = CallResult{Success: ev.Success}
	}
	return results
}

// decodeReturnData decodes the router's (bool success, bytes returnData)[] output.
func decodeReturnData(raw []byte, callCount int) (results []CallResult, ok bool) {
	// An ABI-encoded dynamic array needs at least an offset word and a length word.
	if len(raw) < 64 {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			results, ok = nil, false
		}
	}()

	var decoded []routerResult
	if err := routerABI.UnpackIntoInterface(&decoded, "execute", raw); err != nil {
		return nil, false
	}
	if len(decoded) != callCount {
		return nil, false
	}
	results = make([]CallResult, len(decoded))
	for i, r := range decoded {
		results[i] = CallResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, true
}

// DecodeBatchSummaryEvent returns the first BatchExecuted event in the
// receipt, or nil if there is none.
func DecodeBatchSummaryEvent(receipt *types.Receipt) *BatchExecutedEvent {
	return decodeSummaryEvent(receipt, nil)
}

// DecodeRouterSummaryEvent returns the first BatchExecuted event emitted by
// router, or nil if the router emitted none.
func DecodeRouterSummaryEvent(receipt *types.Receipt, router common.Address) *BatchExecutedEvent {
	return decodeSummaryEvent(receipt, &router)
}

func decodeSummaryEvent(receipt *types.Receipt, emitter *common.Address) *BatchExecutedEvent {
	if receipt == nil {
		return nil
	}
	for _, lg := range receipt.Logs {
		if !emittedBy(lg, emitter) {
			continue
		}
		var ev BatchExecutedEvent
		if err := unpackLog(&ev, "BatchExecuted", *lg); err != nil {
			continue
		}
		ev.Raw = *lg
		return &ev
	}
	return nil
}

// DecodeCallEvents returns every CallExecuted event in the receipt, sorted by
// call index. Log order is not guaranteed to follow call order.
func DecodeCallEvents(receipt *types.Receipt) []CallExecutedEvent {
	return decodeCallEvents(receipt, nil)
}

// DecodeRouterCallEvents is DecodeCallEvents restricted to logs emitted by router.
func DecodeRouterCallEvents(receipt *types.Receipt, router common.Address) []CallExecutedEvent {
	return decodeCallEvents(receipt, &router)
}

func decodeCallEvents(receipt *types.Receipt, emitter *common.Address) []CallExecutedEvent {
	if receipt == nil {
		return nil
	}
	var events []CallExecutedEvent
	for _, lg := range receipt.Logs {
		if !emittedBy(lg, emitter) {
			continue
		}
		var ev CallExecutedEvent
		if err := unpackLog(&ev, "CallExecuted", *lg); err != nil {
			continue
		}
		ev.Raw = *lg
		events = append(events, ev)
	}
	slices.SortStableFunc(events, func(a, b CallExecutedEvent) int {
		return a.CallIndex.Cmp(b.CallIndex)
	})
	return events
}

// emittedBy reports whether lg is present and, with a non-nil emitter, was
// emitted by that address.
func emittedBy(lg *types.Log, emitter *common.Address) bool {
	if lg == nil {
		return false
	}
	return emitter == nil || lg.Address == *emitter
}

// unpackLog decodes a router event log into out, the way bound contracts do.
func unpackLog(out interface{}, event string, lg types.Log) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batchtx: malformed %s log: %v", event, r)
		}
	}()

	ev := routerABI.Events[event]
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return fmt.Errorf("batchtx: log is not a %s event", event)
	}
	if len(lg.Data) > 0 {
		if err := routerABI.UnpackIntoInterface(out, event, lg.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return fmt.Errorf("batchtx: %s log has %d topics, want %d", event, len(lg.Topics)-1, len(indexed))
	}
	return abi.ParseTopics(out, indexed, lg.Topics[1:])
}
