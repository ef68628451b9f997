package batchtx

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// revertErr mimics the error go-ethereum's RPC client returns for a revert.
type revertErr struct {
	msg  string
	data interface{}
}

func (e *revertErr) Error() string          { return e.msg }
func (e *revertErr) ErrorCode() int         { return 3 }
func (e *revertErr) ErrorData() interface{} { return e.data }

// rpcCodeErr is a JSON-RPC error response without data.
type rpcCodeErr struct {
	code int
	msg  string
}

func (e *rpcCodeErr) Error() string  { return e.msg }
func (e *rpcCodeErr) ErrorCode() int { return e.code }

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		err  *Error
		code ErrorCode
	}{
		{ErrEmptyBatch, CodeEmptyBatch},
		{ErrWalletNotConnected, CodeWalletNotConnected},
		{ErrNoAccount, CodeNoAccount},
		{ErrBatchSubmitted, CodeBatchSubmitted},
		{ErrExecutionFailed, CodeExecutionFailed},
		{ErrExternalService, CodeExternalService},
		{ErrUserRejected, CodeUserRejected},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if !strings.HasPrefix(tt.err.Error(), "batchtx: ") {
				t.Errorf("Expected 'batchtx: ' prefix, got %q", tt.err.Error())
			}
			if !strings.Contains(tt.err.Error(), string(tt.code)) {
				t.Errorf("Expected message to contain the code, got %q", tt.err.Error())
			}
		})
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := &Error{Code: CodeExecutionFailed, Message: "dry run", Err: errors.New("boom")}

	if !errors.Is(err, ErrExecutionFailed) {
		t.Error("Expected errors.Is to match by code")
	}
	if errors.Is(err, ErrUserRejected) {
		t.Error("Expected different codes not to match")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrExecutionFailed) {
		t.Error("Expected wrapped error to match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	raw := errors.New("connection refused")
	err := &Error{Code: CodeExecutionFailed, Message: "broadcast", Err: raw}

	if !errors.Is(err, raw) {
		t.Error("Expected raw error to be reachable")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected raw message in %q", err.Error())
	}
}

func TestExecutionError(t *testing.T) {
	t.Run("classifies user rejection", func(t *testing.T) {
		for _, msg := range []string{"User rejected the request.", "MetaMask Tx Signature: User denied transaction signature"} {
			err := executionError("sign", errors.New(msg))
			if err.Code != CodeUserRejected {
				t.Errorf("Expected USER_REJECTED for %q, got %s", msg, err.Code)
			}
		}
	})

	t.Run("decodes attached revert data", func(t *testing.T) {
		raw := &revertErr{msg: "execution reverted", data: fmt.Sprintf("0x%x", EncodeErrorString("insufficient balance"))}
		err := executionError("dry run", raw)

		if err.Code != CodeExecutionFailed {
			t.Errorf("Expected EXECUTION_FAILED, got %s", err.Code)
		}
		if !strings.Contains(err.Message, "Reverted: insufficient balance") {
			t.Errorf("Expected decoded reason in %q", err.Message)
		}
		if !errors.Is(err, raw) {
			t.Error("Expected raw error to be wrapped")
		}
	})

	t.Run("plain failure", func(t *testing.T) {
		err := executionError("broadcast", errors.New("nonce too low"))
		if err.Code != CodeExecutionFailed || err.Message != "broadcast" {
			t.Errorf("Unexpected error %+v", err)
		}
	})
}

func TestMethodNotFoundError(t *testing.T) {
	err := &MethodNotFoundError{
		Contract: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Method:   "unknownMethod",
	}

	msg := err.Error()
	if !strings.Contains(msg, "unknownMethod") {
		t.Errorf("Expected error message to contain method name, got %q", msg)
	}
	if !strings.Contains(msg, "0x1234567890123456789012345678901234567890") {
		t.Errorf("Expected error message to contain address, got %q", msg)
	}
}

func TestEncodingError(t *testing.T) {
	inner := errors.New("bad argument")
	err := &EncodingError{Kind: KindSwap, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Expected Unwrap to expose inner error")
	}
	if !strings.Contains(err.Error(), "swap") {
		t.Errorf("Expected kind in message, got %q", err.Error())
	}
}
