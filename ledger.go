package batchtx

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
)

// Ledger is the ordered list of calls that will form one atomic batch,
// together with one audit record per call.
//
// The two lists always have the same length: they are appended and popped
// together. A Ledger is not safe for concurrent mutation.
type Ledger struct {
	calls   []Call
	records []OperationRecord
	chainID *big.Int
	now     func() time.Time
}

// NewLedger creates an empty Ledger for the given chain. chainID may be nil.
func NewLedger(chainID *big.Int) *Ledger {
	l := &Ledger{
		calls:   make([]Call, 0, 16),
		records: make([]OperationRecord, 0, 16),
		now:     time.Now,
	}
	if chainID != nil {
		l.chainID = new(big.Int).Set(chainID)
	}
	return l
}

// Append adds a call and its record. It never fails: targets and payloads
// are validated by simulation, not here.
func (l *Ledger) Append(call Call, kind OperationKind, metadata map[string]string) *Ledger {
	c := call.clone()
	l.calls = append(l.calls, c)
	l.records = append(l.records, newRecord(kind, c.clone(), metadata, l.now()))
	return l
}

// PopLast removes the most recent call and its record.
// It returns false if the ledger is empty.
func (l *Ledger) PopLast() (Call, OperationRecord, bool) {
	n := len(l.calls)
	if n == 0 {
		return Call{}, OperationRecord{}, false
	}
	call, record := l.calls[n-1], l.records[n-1]
	l.calls = l.calls[:n-1]
	l.records = l.records[:n-1]
	return call, record, true
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.calls = l.calls[:0]
	l.records = l.records[:0]
}

// Len returns the number of calls.
func (l *Ledger) Len() int {
	return len(l.calls)
}

// IsEmpty reports whether the ledger holds no calls.
func (l *Ledger) IsEmpty() bool {
	return len(l.calls) == 0
}

// CallAt returns a copy of the call at index i.
func (l *Ledger) CallAt(i int) (Call, bool) {
	if i < 0 || i >= len(l.calls) {
		return Call{}, false
	}
	return l.calls[i].clone(), true
}

// Calls returns a copy of all calls in order.
func (l *Ledger) Calls() []Call {
	out := make([]Call, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.clone()
	}
	return out
}

// Records returns a copy of all operation records in order.
func (l *Ledger) Records() []OperationRecord {
	out := make([]OperationRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.clone()
	}
	return out
}

// ForEach iterates over all calls with their records.
// Return false from fn to stop iteration.
func (l *Ledger) ForEach(fn func(int, Call, OperationRecord) bool) {
	for i := range l.calls {
		if !fn(i, l.calls[i].clone(), l.records[i].clone()) {
			return
		}
	}
}

// TotalValue returns the sum of all call values.
// The sum wraps at 2^256; a batch that large cannot be funded anyway.
func (l *Ledger) TotalValue() *uint256.Int {
	total := new(uint256.Int)
	for _, c := range l.calls {
		if c.Value != nil {
			total.Add(total, c.Value)
		}
	}
	return total
}

// ChainID returns the chain the ledger was created for, or nil.
func (l *Ledger) ChainID() *big.Int {
	if l.chainID == nil {
		return nil
	}
	return new(big.Int).Set(l.chainID)
}

// Snapshot is an independent copy of a ledger's state.
type Snapshot struct {
	ChainID    *big.Int          `json:"chainId,omitempty"`
	Calls      []Call            `json:"calls"`
	Records    []OperationRecord `json:"records"`
	TotalValue *uint256.Int      `json:"totalValue"`
}

// Snapshot returns a deep copy of the ledger. Mutating it never affects the ledger.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		ChainID:    l.ChainID(),
		Calls:      l.Calls(),
		Records:    l.Records(),
		TotalValue: l.TotalValue(),
	}
}
