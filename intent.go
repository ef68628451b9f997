package batchtx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Intent describes one call shape the batch knows how to encode.
// This is a sealed interface - only types within this package can implement it.
type Intent interface {
	// isIntent is unexported to seal the interface.
	isIntent()

	// Kind returns the operation kind recorded in the ledger.
	Kind() OperationKind

	// Encode produces the call this intent stands for.
	Encode() (Call, error)
}

// NativeTransfer sends native value to an address with empty calldata.
type NativeTransfer struct {
	To     common.Address
	Amount *uint256.Int
}

func (NativeTransfer) isIntent() {}

// Kind returns KindNativeTransfer.
func (NativeTransfer) Kind() OperationKind { return KindNativeTransfer }

// Encode returns a value-only call.
func (i NativeTransfer) Encode() (Call, error) {
	return NewCall(i.To, i.Amount, nil), nil
}

// TokenTransfer calls ERC20 transfer(to, amount).
type TokenTransfer struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

func (TokenTransfer) isIntent() {}

// Kind returns KindTokenTransfer.
func (TokenTransfer) Kind() OperationKind { return KindTokenTransfer }

// Encode packs transfer(to, amount).
func (i TokenTransfer) Encode() (Call, error) {
	return packCall(i.Kind(), i.Token, nil, erc20ABI.Pack, "transfer", i.To, bigOrZero(i.Amount))
}

// TokenApproval calls ERC20 approve(spender, amount).
type TokenApproval struct {
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (TokenApproval) isIntent() {}

// Kind returns KindApprove.
func (TokenApproval) Kind() OperationKind { return KindApprove }

// Encode packs approve(spender, amount).
func (i TokenApproval) Encode() (Call, error) {
	return packCall(i.Kind(), i.Token, nil, erc20ABI.Pack, "approve", i.Spender, bigOrZero(i.Amount))
}

// NFTTransfer calls ERC721 safeTransferFrom(from, to, tokenId).
type NFTTransfer struct {
	Collection common.Address
	From       common.Address
	To         common.Address
	TokenID    *big.Int
}

func (NFTTransfer) isIntent() {}

// Kind returns KindNFTTransfer.
func (NFTTransfer) Kind() OperationKind { return KindNFTTransfer }

// Encode packs safeTransferFrom(from, to, tokenId).
func (i NFTTransfer) Encode() (Call, error) {
	return packCall(i.Kind(), i.Collection, nil, erc721ABI.Pack, "safeTransferFrom", i.From, i.To, bigOrZero(i.TokenID))
}

// PoolSwap swaps an exact input along a Uniswap V2 style path.
//
// With NativeIn set the input is native value (swapExactETHForTokens) and
// AmountIn is attached as call value; with NativeOut set the output is
// unwrapped to native (swapExactTokensForETH). Otherwise it is a plain
// token-to-token swap.
type PoolSwap struct {
	Router       common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
	NativeIn     bool
	NativeOut    bool
}

func (PoolSwap) isIntent() {}

// Kind returns KindSwap.
func (PoolSwap) Kind() OperationKind { return KindSwap }

// Encode packs the swap method matching the native flags.
func (i PoolSwap) Encode() (Call, error) {
	switch {
	case i.NativeIn && i.NativeOut:
		return Call{}, &EncodingError{Kind: i.Kind(), Err: errNativeBothSides}
	case i.NativeIn:
		value, ok := ValueFromBig(i.AmountIn)
		if !ok {
			return Call{}, &EncodingError{Kind: i.Kind(), Err: errValueRange}
		}
		return packCall(i.Kind(), i.Router, value, poolRouterABI.Pack, "swapExactETHForTokens",
			bigOrZero(i.AmountOutMin), i.Path, i.To, bigOrZero(i.Deadline))
	case i.NativeOut:
		return packCall(i.Kind(), i.Router, nil, poolRouterABI.Pack, "swapExactTokensForETH",
			bigOrZero(i.AmountIn), bigOrZero(i.AmountOutMin), i.Path, i.To, bigOrZero(i.Deadline))
	default:
		return packCall(i.Kind(), i.Router, nil, poolRouterABI.Pack, "swapExactTokensForTokens",
			bigOrZero(i.AmountIn), bigOrZero(i.AmountOutMin), i.Path, i.To, bigOrZero(i.Deadline))
	}
}

// Wrap deposits native value into the wrapped-native contract.
type Wrap struct {
	WETH   common.Address
	Amount *uint256.Int
}

func (Wrap) isIntent() {}

// Kind returns KindWrap.
func (Wrap) Kind() OperationKind { return KindWrap }

// Encode packs deposit() carrying Amount as value.
func (i Wrap) Encode() (Call, error) {
	return packCall(i.Kind(), i.WETH, i.Amount, wrappedABI.Pack, "deposit")
}

// Unwrap withdraws native value from the wrapped-native contract.
type Unwrap struct {
	WETH   common.Address
	Amount *big.Int
}

func (Unwrap) isIntent() {}

// Kind returns KindUnwrap.
func (Unwrap) Kind() OperationKind { return KindUnwrap }

// Encode packs withdraw(amount).
func (i Unwrap) Encode() (Call, error) {
	return packCall(i.Kind(), i.WETH, nil, wrappedABI.Pack, "withdraw", bigOrZero(i.Amount))
}

// RawCall appends prebuilt calldata unchanged.
type RawCall struct {
	Target common.Address
	Value  *uint256.Int
	Data   []byte
}

func (RawCall) isIntent() {}

// Kind returns KindRaw.
func (RawCall) Kind() OperationKind { return KindRaw }

// Encode returns the call as given.
func (i RawCall) Encode() (Call, error) {
	return NewCall(i.Target, i.Value, i.Data), nil
}

type packFunc func(name string, args ...interface{}) ([]byte, error)

func packCall(kind OperationKind, target common.Address, value *uint256.Int, pack packFunc, method string, args ...interface{}) (Call, error) {
	data, err := pack(method, args...)
	if err != nil {
		return Call{}, &EncodingError{Kind: kind, Err: err}
	}
	return NewCall(target, value, data), nil
}
