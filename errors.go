package batchtx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorCode is a stable, machine-readable error classification.
type ErrorCode string

const (
	CodeEmptyBatch         ErrorCode = "EMPTY_BATCH"
	CodeWalletNotConnected ErrorCode = "WALLET_NOT_CONNECTED"
	CodeNoAccount          ErrorCode = "NO_ACCOUNT"
	CodeSimulationFailed   ErrorCode = "SIMULATION_FAILED"
	CodeExecutionFailed    ErrorCode = "EXECUTION_FAILED"
	CodeExternalService    ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeUserRejected       ErrorCode = "USER_REJECTED"
	CodeBatchSubmitted     ErrorCode = "BATCH_SUBMITTED"
)

// Error is the error type returned by batch operations.
// Two Errors match under errors.Is when their codes are equal, so wrapped
// copies of the sentinels below still compare equal to them.
type Error struct {
	Code    ErrorCode
	Message string
	TxHash  common.Hash // set when the failure happened after broadcast
	Nonce   *uint64     // set when the transaction was signed; see Batch.Execute
	Err     error       // raw chain, RPC, or transport error, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("batchtx: %s [%s]", e.Message, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors for precondition failures. They are returned before any
// network I/O takes place.
var (
	// ErrEmptyBatch indicates an operation that needs at least one call ran on an empty batch.
	ErrEmptyBatch = &Error{Code: CodeEmptyBatch, Message: "batch has no calls"}

	// ErrWalletNotConnected indicates submission without a signer.
	ErrWalletNotConnected = &Error{Code: CodeWalletNotConnected, Message: "wallet not connected"}

	// ErrNoAccount indicates the wallet has no account bound.
	ErrNoAccount = &Error{Code: CodeNoAccount, Message: "wallet has no account"}

	// ErrBatchSubmitted indicates the batch was already submitted and cannot change.
	ErrBatchSubmitted = &Error{Code: CodeBatchSubmitted, Message: "batch already submitted"}

	// ErrExecutionFailed matches any post-submission or dry-run failure in the Execute family.
	ErrExecutionFailed = &Error{Code: CodeExecutionFailed, Message: "execution failed"}

	// ErrExternalService matches failures of the aggregator quote service.
	ErrExternalService = &Error{Code: CodeExternalService, Message: "external service error"}

	// ErrUserRejected matches a signer refusing to sign.
	ErrUserRejected = &Error{Code: CodeUserRejected, Message: "user rejected the request"}
)

var (
	// ErrNoBackend indicates a batch or session with no node connection,
	// such as one created from a Session after Close.
	ErrNoBackend = errors.New("batchtx: no node connection")

	errNativeBothSides = errors.New("batchtx: swap cannot be native on both sides")
	errValueRange      = errors.New("batchtx: value out of uint256 range")
)

// userRejectedPhrases are substrings wallets use when the user declines.
var userRejectedPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"user cancelled",
	"user canceled",
	"request rejected",
}

// isUserRejection classifies a signer error by message. Wallets expose no
// structured signal for this, so it is best effort.
func isUserRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range userRejectedPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// executionError wraps a raw failure from the Execute family, appending the
// decoded revert reason when the error carries revert data.
func executionError(stage string, err error) *Error {
	if isUserRejection(err) {
		return &Error{Code: CodeUserRejected, Message: stage + ": user rejected the request", Err: err}
	}
	msg := stage
	if data, ok := revertData(err); ok {
		msg += ": " + DecodeRevert(data)
	}
	return &Error{Code: CodeExecutionFailed, Message: msg, Err: err}
}

// EncodingError indicates a failure while ABI-encoding a call intent.
type EncodingError struct {
	Kind OperationKind
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("batchtx: encoding %s call: %v", e.Kind, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// MethodNotFoundError indicates the contract doesn't have the requested method.
type MethodNotFoundError struct {
	Contract common.Address
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("batchtx: method %q not found in contract %s", e.Method, e.Contract.Hex())
}
