package batchtx

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Call is one sub-operation of an atomic batch.
// A Call held by a Ledger is never modified; accessors hand out copies.
type Call struct {
	Target common.Address `json:"target"`
	Value  *uint256.Int   `json:"value"`
	Data   hexutil.Bytes  `json:"data"`
}

// NewCall creates a Call, copying value and data.
func NewCall(target common.Address, value *uint256.Int, data []byte) Call {
	return Call{
		Target: target,
		Value:  cloneValue(value),
		Data:   bytes.Clone(data),
	}
}

// clone returns a deep copy of the Call.
func (c Call) clone() Call {
	return NewCall(c.Target, c.Value, c.Data)
}

// Selector returns the first 4 bytes of the calldata, if present.
func (c Call) Selector() ([4]byte, bool) {
	var sel [4]byte
	if len(c.Data) < 4 {
		return sel, false
	}
	copy(sel[:], c.Data[:4])
	return sel, true
}

// OperationKind tags the logical action a call was appended for.
type OperationKind uint8

const (
	KindRaw OperationKind = iota
	KindNativeTransfer
	KindTokenTransfer
	KindApprove
	KindNFTTransfer
	KindSwap
	KindWrap
	KindUnwrap
	KindAggregatorSwap
)

// String returns the stable name of the kind.
func (k OperationKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindNativeTransfer:
		return "native_transfer"
	case KindTokenTransfer:
		return "token_transfer"
	case KindApprove:
		return "approve"
	case KindNFTTransfer:
		return "nft_transfer"
	case KindSwap:
		return "swap"
	case KindWrap:
		return "wrap"
	case KindUnwrap:
		return "unwrap"
	case KindAggregatorSwap:
		return "aggregator_swap"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k OperationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// OperationRecord is the audit entry for one appended call.
// Records are observational only; nothing in execution reads them.
type OperationRecord struct {
	ID        string            `json:"id"`
	Kind      OperationKind     `json:"kind"`
	Call      Call              `json:"call"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newRecord(kind OperationKind, call Call, metadata map[string]string, now time.Time) OperationRecord {
	return OperationRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Call:      call,
		Metadata:  cloneMetadata(metadata),
		Timestamp: now,
	}
}

func (r OperationRecord) clone() OperationRecord {
	r.Call = r.Call.clone()
	r.Metadata = cloneMetadata(r.Metadata)
	return r
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CallResult is the outcome of one call inside an executed batch,
// positionally aligned with the batch's calls.
type CallResult struct {
	Success    bool          `json:"success"`
	ReturnData hexutil.Bytes `json:"returnData"`

	// Inferred is set when no return data or event backs this entry and
	// Success was assumed from the overall transaction outcome.
	Inferred bool `json:"inferred,omitempty"`
}
