package batchtx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func callExecutedLog(t *testing.T, index int64, success bool) *types.Log {
	t.Helper()
	ev := routerABI.Events["CallExecuted"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(index*10), success)
	if err != nil {
		t.Fatalf("pack CallExecuted: %v", err)
	}
	return &types.Log{
		Address: testRouter,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(index)),
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
		},
		Data: data,
	}
}

func batchExecutedLog(t *testing.T, sender common.Address, count, value int64) *types.Log {
	t.Helper()
	ev := routerABI.Events["BatchExecuted"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(count), big.NewInt(value))
	if err != nil {
		t.Fatalf("pack BatchExecuted: %v", err)
	}
	return &types.Log{
		Address: testRouter,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(sender.Bytes())},
		Data:    data,
	}
}

func packResults(t *testing.T, results []routerResult) []byte {
	t.Helper()
	raw, err := routerABI.Methods["execute"].Outputs.Pack(results)
	if err != nil {
		t.Fatalf("pack results: %v", err)
	}
	return raw
}

func TestDecodeBatchResults(t *testing.T) {
	t.Run("return data", func(t *testing.T) {
		raw := packResults(t, []routerResult{
			{Success: true, ReturnData: []byte{0xaa}},
			{Success: false, ReturnData: EncodeErrorString("nope")},
		})
		results := DecodeBatchResults(nil, 2, raw)

		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if !results[0].Success || results[0].Inferred {
			t.Errorf("Expected decoded success, got %+v", results[0])
		}
		if results[1].Success {
			t.Error("Expected second call to fail")
		}
		if DecodeRevert(results[1].ReturnData) != "Reverted: nope" {
			t.Errorf("Expected nested reason, got %q", DecodeRevert(results[1].ReturnData))
		}
	})

	t.Run("count mismatch falls back", func(t *testing.T) {
		raw := packResults(t, []routerResult{{Success: false}})
		results := DecodeBatchResults(nil, 3, raw)

		if len(results) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(results))
		}
		for i, r := range results {
			if !r.Inferred || !r.Success {
				t.Errorf("Expected inferred success at %d, got %+v", i, r)
			}
		}
	})

	t.Run("events override the optimistic default", func(t *testing.T) {
		receipt := successReceipt(callExecutedLog(t, 2, false), callExecutedLog(t, 0, true))
		results := DecodeBatchResults(receipt, 3, nil)

		if len(results) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(results))
		}
		if !results[0].Success || results[0].Inferred {
			t.Errorf("Expected event-backed success at 0, got %+v", results[0])
		}
		if !results[1].Success || !results[1].Inferred {
			t.Errorf("Expected inferred success at 1, got %+v", results[1])
		}
		if results[2].Success || results[2].Inferred {
			t.Errorf("Expected event-backed failure at 2, got %+v", results[2])
		}
	})

	t.Run("failed receipt without events", func(t *testing.T) {
		receipt := successReceipt()
		receipt.Status = types.ReceiptStatusFailed
		for i, r := range DecodeBatchResults(receipt, 2, nil) {
			if r.Success {
				t.Errorf("Expected failure at %d", i)
			}
			if !r.Inferred {
				t.Errorf("Expected inferred result at %d", i)
			}
		}
	})

	t.Run("out of range event index is ignored", func(t *testing.T) {
		results := DecodeBatchResults(successReceipt(callExecutedLog(t, 9, false)), 2, nil)
		for i, r := range results {
			if !r.Success {
				t.Errorf("Expected success at %d", i)
			}
		}
	})

	t.Run("always returns callCount entries", func(t *testing.T) {
		inputs := [][]byte{nil, {1, 2, 3}, make([]byte, 64), make([]byte, 200)}
		for _, raw := range inputs {
			for _, n := range []int{0, 1, 5} {
				if got := len(DecodeBatchResults(nil, n, raw)); got != n {
					t.Errorf("Expected %d results for %d bytes, got %d", n, len(raw), got)
				}
			}
		}
		if got := len(DecodeBatchResults(nil, -1, nil)); got != 0 {
			t.Errorf("Expected 0 results for negative count, got %d", got)
		}
	})
}

func TestDecodeCallEvents(t *testing.T) {
	foreign := &types.Log{Topics: []common.Hash{common.HexToHash("0x1234")}}
	receipt := successReceipt(callExecutedLog(t, 3, true), foreign, callExecutedLog(t, 1, false))

	events := DecodeCallEvents(receipt)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].CallIndex.Int64() != 1 || events[1].CallIndex.Int64() != 3 {
		t.Errorf("Expected events sorted by index, got %s, %s", events[0].CallIndex, events[1].CallIndex)
	}
	if events[0].Success || !events[1].Success {
		t.Error("Expected success flags to be decoded")
	}
	if events[1].Value.Int64() != 30 {
		t.Errorf("Expected value 30, got %s", events[1].Value)
	}
	if events[0].Target != common.HexToAddress("0x01") {
		t.Errorf("Expected target 0x01, got %s", events[0].Target.Hex())
	}

	if DecodeCallEvents(nil) != nil {
		t.Error("Expected nil for nil receipt")
	}
}

func TestDecodeBatchSummaryEvent(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	ev := DecodeBatchSummaryEvent(successReceipt(callExecutedLog(t, 0, true), batchExecutedLog(t, sender, 4, 100)))
	if ev == nil {
		t.Fatal("Expected summary event")
	}
	if ev.Sender != sender {
		t.Errorf("Expected sender %s, got %s", sender.Hex(), ev.Sender.Hex())
	}
	if ev.CallCount.Int64() != 4 || ev.TotalValue.Int64() != 100 {
		t.Errorf("Expected (4, 100), got (%s, %s)", ev.CallCount, ev.TotalValue)
	}

	if DecodeBatchSummaryEvent(successReceipt()) != nil {
		t.Error("Expected nil without a summary event")
	}
	if DecodeBatchSummaryEvent(nil) != nil {
		t.Error("Expected nil for nil receipt")
	}
}

func TestDecodeRouterResultsIgnoresOtherEmitters(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	lookalike := callExecutedLog(t, 0, false)
	lookalike.Address = other
	receipt := successReceipt(lookalike, callExecutedLog(t, 1, false))

	results := DecodeRouterResults(receipt, testRouter, 2, nil)
	if !results[0].Success || !results[0].Inferred {
		t.Errorf("Expected inferred success at 0, got %+v", results[0])
	}
	if results[1].Success || results[1].Inferred {
		t.Errorf("Expected event-backed failure at 1, got %+v", results[1])
	}

	if events := DecodeRouterCallEvents(receipt, testRouter); len(events) != 1 || events[0].CallIndex.Int64() != 1 {
		t.Errorf("Expected only the router's event, got %d events", len(events))
	}
	if events := DecodeRouterCallEvents(receipt, other); len(events) != 1 || events[0].CallIndex.Int64() != 0 {
		t.Errorf("Expected only the other emitter's event, got %d events", len(events))
	}
	if got := len(DecodeCallEvents(receipt)); got != 2 {
		t.Errorf("Expected unfiltered decoding to keep both events, got %d", got)
	}
}

func TestDecodeRouterSummaryEvent(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	lookalike := batchExecutedLog(t, sender, 9, 9)
	lookalike.Address = common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	receipt := successReceipt(lookalike, batchExecutedLog(t, sender, 2, 5))

	ev := DecodeRouterSummaryEvent(receipt, testRouter)
	if ev == nil {
		t.Fatal("Expected the router's summary event")
	}
	if ev.CallCount.Int64() != 2 {
		t.Errorf("Expected call count 2, got %s", ev.CallCount)
	}
	if DecodeRouterSummaryEvent(successReceipt(lookalike), testRouter) != nil {
		t.Error("Expected nil when only another contract emitted the event")
	}
}

func TestUnpackLogRejectsMalformed(t *testing.T) {
	lg := *callExecutedLog(t, 0, true)
	lg.Data = lg.Data[:10]

	var ev CallExecutedEvent
	if err := unpackLog(&ev, "CallExecuted", lg); err == nil {
		t.Error("Expected error for truncated data")
	}

	lg = *callExecutedLog(t, 0, true)
	lg.Topics = lg.Topics[:2]
	if err := unpackLog(&ev, "CallExecuted", lg); err == nil {
		t.Error("Expected error for missing topic")
	}
}
