package batchtx

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Selector is a 4-byte error or function selector.
type Selector [4]byte

// Hex returns the 0x-prefixed selector.
func (s Selector) Hex() string {
	return hexutil.Encode(s[:])
}

// Standard Solidity revert selectors.
var (
	ErrorStringSelector = Selector{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	PanicSelector       = Selector{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)
)

// UnknownCallIndex is reported when the failing call cannot be identified.
const UnknownCallIndex = -1

var panicReasons = map[uint64]string{
	0x00: "generic compiler panic",
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "out-of-bounds storage byte array access",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to uninitialized function pointer",
}

var routerErrorMessages = map[string]string{
	"CallFailed":        "Batch router: a call in the batch failed",
	"EmptyBatch":        "Batch router: batch is empty",
	"TooManyCalls":      "Batch router: too many calls in batch",
	"InsufficientValue": "Batch router: insufficient value sent for batch",
	"InvalidTarget":     "Batch router: invalid call target",
	"ReentrantCall":     "Batch router: reentrant call",
	"Unauthorized":      "Batch router: caller not authorized",
	"RefundFailed":      "Batch router: refund of excess value failed",
}

var (
	stringArgs  = abi.Arguments{{Type: mustType("string")}}
	uint256Args = abi.Arguments{{Type: mustType("uint256")}}

	routerErrorsBySelector = indexRouterErrors()
	callFailedSelector     = selectorOf(routerABI.Errors["CallFailed"].ID.Bytes())
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// safeUnpack unpacks data, turning decoder panics on hostile input into errors.
func safeUnpack(args abi.Arguments, data []byte) (out []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("abi: %v", r)
		}
	}()
	return args.Unpack(data)
}

func selectorOf(b []byte) Selector {
	var s Selector
	copy(s[:], b)
	return s
}

func indexRouterErrors() map[Selector]abi.Error {
	out := make(map[Selector]abi.Error, len(routerABI.Errors))
	for _, e := range routerABI.Errors {
		out[selectorOf(e.ID.Bytes())] = e
	}
	return out
}

// DecodeRevert turns a revert payload into a human-readable message.
// It never panics and never returns an empty string.
func DecodeRevert(data []byte) string {
	if len(data) < 4 {
		if len(data) == 0 {
			return "Reverted without reason (no data)"
		}
		return fmt.Sprintf("Reverted without reason (no data, %d stray bytes %s)", len(data), hexutil.Encode(data))
	}

	sel := selectorOf(data[:4])
	payload := data[4:]

	switch sel {
	case ErrorStringSelector:
		out, err := safeUnpack(stringArgs, payload)
		if err != nil || len(out) != 1 {
			return "Reverted: Error(string) selector matched but payload is malformed"
		}
		msg, _ := out[0].(string)
		return "Reverted: " + msg

	case PanicSelector:
		out, err := safeUnpack(uint256Args, payload)
		if err != nil || len(out) != 1 {
			return "Panic: Panic(uint256) selector matched but payload is malformed"
		}
		code, _ := out[0].(*big.Int)
		return describePanic(code)
	}

	if e, ok := routerErrorsBySelector[sel]; ok {
		if sel == callFailedSelector {
			if index, inner, ok := unpackCallFailed(payload); ok {
				return fmt.Sprintf("Call #%s failed → %s", index, DecodeRevert(inner))
			}
		}
		return routerErrorMessages[e.Name]
	}

	return fmt.Sprintf("Unrecognized error selector %s (%d bytes of data)", sel.Hex(), len(payload))
}

func describePanic(code *big.Int) string {
	if code == nil {
		return "Panic: Panic(uint256) selector matched but payload is malformed"
	}
	if code.IsUint64() {
		if reason, ok := panicReasons[code.Uint64()]; ok {
			return fmt.Sprintf("Panic: %s (0x%02x)", reason, code.Uint64())
		}
	}
	return "Panic: unknown panic code 0x" + code.Text(16)
}

// unpackCallFailed decodes CallFailed(uint256 index, bytes reason).
// The inner reason is a strict sub-slice of payload, so recursion over it terminates.
func unpackCallFailed(payload []byte) (*big.Int, []byte, bool) {
	out, err := safeUnpack(routerABI.Errors["CallFailed"].Inputs, payload)
	if err != nil || len(out) != 2 {
		return nil, nil, false
	}
	index, ok := out[0].(*big.Int)
	if !ok || index == nil {
		return nil, nil, false
	}
	inner, ok := out[1].([]byte)
	if !ok || len(inner) >= len(payload) {
		return nil, nil, false
	}
	return index, inner, true
}

// revertData pulls revert bytes out of an RPC error, if the node attached any.
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch v := de.ErrorData().(type) {
	case string:
		data, decErr := hexutil.Decode(v)
		if decErr != nil {
			return nil, false
		}
		return data, true
	case []byte:
		return v, true
	}
	return nil, false
}

var callIndexPattern = regexp.MustCompile(`(?i)call\s*#\s*(\d+)`)

// FailedCallIndex identifies which call of a batch caused err.
//
// Revert data attached to the error is decoded first. Otherwise the message
// is scanned for an encoded CallFailed payload or a "call #N" phrase. That
// scan depends on how the node formats its messages and is best effort.
// UnknownCallIndex is returned when nothing matches.
func FailedCallIndex(err error) int {
	if err == nil {
		return UnknownCallIndex
	}
	if data, ok := revertData(err); ok && len(data) >= 4 && selectorOf(data[:4]) == callFailedSelector {
		if index, _, ok := unpackCallFailed(data[4:]); ok && index.IsInt64() && index.Int64() < 1<<31 {
			return int(index.Int64())
		}
	}
	return extractFailedCallIndex(err.Error())
}

// extractFailedCallIndex scans free text for a failed call index.
func extractFailedCallIndex(message string) int {
	lower := strings.ToLower(message)
	selHex := hex.EncodeToString(callFailedSelector[:])
	if pos := strings.Index(lower, selHex); pos >= 0 {
		word := lower[pos+len(selHex):]
		if len(word) >= 64 {
			if raw, err := hex.DecodeString(word[:64]); err == nil {
				idx := new(big.Int).SetBytes(raw)
				if idx.IsInt64() && idx.Int64() < 1<<31 {
					return int(idx.Int64())
				}
			}
		}
	}
	if m := callIndexPattern.FindStringSubmatch(message); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			return idx
		}
	}
	return UnknownCallIndex
}

// IsRouterError reports whether data starts with one of the router's custom error selectors.
func IsRouterError(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	_, ok := routerErrorsBySelector[selectorOf(data[:4])]
	return ok
}

// EncodeCallFailed builds a CallFailed(index, reason) payload.
// Tests and local tooling use it to fabricate router reverts.
func EncodeCallFailed(index uint64, reason []byte) []byte {
	packed, err := routerABI.Errors["CallFailed"].Inputs.Pack(new(big.Int).SetUint64(index), reason)
	if err != nil {
		panic(err)
	}
	return append(bytes.Clone(callFailedSelector[:]), packed...)
}

// EncodeErrorString builds an Error(string) revert payload.
func EncodeErrorString(msg string) []byte {
	packed, err := stringArgs.Pack(msg)
	if err != nil {
		panic(err)
	}
	return append(bytes.Clone(ErrorStringSelector[:]), packed...)
}

// EncodePanic builds a Panic(uint256) revert payload.
func EncodePanic(code uint64) []byte {
	packed, err := uint256Args.Pack(new(big.Int).SetUint64(code))
	if err != nil {
		panic(err)
	}
	return append(bytes.Clone(PanicSelector[:]), packed...)
}
