package batchtx

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestIntentEncode(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	to := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	pool := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	weth := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	path := []common.Address{weth, token}

	tests := []struct {
		name   string
		intent Intent
		kind   OperationKind
		target common.Address
		method []byte
		value  uint64
	}{
		{"native transfer", NativeTransfer{To: to, Amount: Wei(9)}, KindNativeTransfer, to, nil, 9},
		{"token transfer", TokenTransfer{Token: token, To: to, Amount: big.NewInt(1)}, KindTokenTransfer, token, erc20ABI.Methods["transfer"].ID, 0},
		{"token approval", TokenApproval{Token: token, Spender: to, Amount: big.NewInt(1)}, KindApprove, token, erc20ABI.Methods["approve"].ID, 0},
		{"nft transfer", NFTTransfer{Collection: token, From: to, To: pool, TokenID: big.NewInt(7)}, KindNFTTransfer, token, erc721ABI.Methods["safeTransferFrom"].ID, 0},
		{
			"token to token swap",
			PoolSwap{Router: pool, AmountIn: big.NewInt(100), AmountOutMin: big.NewInt(90), Path: path, To: to, Deadline: big.NewInt(1)},
			KindSwap, pool, poolRouterABI.Methods["swapExactTokensForTokens"].ID, 0,
		},
		{
			"native in swap",
			PoolSwap{Router: pool, AmountIn: big.NewInt(100), Path: path, To: to, NativeIn: true},
			KindSwap, pool, poolRouterABI.Methods["swapExactETHForTokens"].ID, 100,
		},
		{
			"native out swap",
			PoolSwap{Router: pool, AmountIn: big.NewInt(100), Path: path, To: to, NativeOut: true},
			KindSwap, pool, poolRouterABI.Methods["swapExactTokensForETH"].ID, 0,
		},
		{"wrap", Wrap{WETH: weth, Amount: Wei(5)}, KindWrap, weth, wrappedABI.Methods["deposit"].ID, 5},
		{"unwrap", Unwrap{WETH: weth, Amount: big.NewInt(5)}, KindUnwrap, weth, wrappedABI.Methods["withdraw"].ID, 0},
		{"raw", RawCall{Target: to, Value: Wei(1), Data: []byte{1, 2, 3, 4}}, KindRaw, to, []byte{1, 2, 3, 4}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := tt.intent.Encode()
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if tt.intent.Kind() != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, tt.intent.Kind())
			}
			if call.Target != tt.target {
				t.Errorf("Expected target %s, got %s", tt.target.Hex(), call.Target.Hex())
			}
			if tt.method == nil {
				if len(call.Data) != 0 {
					t.Errorf("Expected empty calldata, got %x", call.Data)
				}
			} else if !bytes.HasPrefix(call.Data, tt.method) {
				t.Errorf("Expected selector %x, got %x", tt.method, call.Data)
			}
			if call.Value.Uint64() != tt.value {
				t.Errorf("Expected value %d, got %s", tt.value, call.Value)
			}
		})
	}
}

func TestTokenTransferArguments(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	call, err := TokenTransfer{Token: common.HexToAddress("0x01"), To: to, Amount: big.NewInt(250)}.Encode()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("Expected decodable calldata, got %v", err)
	}
	if args[0].(common.Address) != to {
		t.Errorf("Expected recipient %s, got %v", to.Hex(), args[0])
	}
	if args[1].(*big.Int).Int64() != 250 {
		t.Errorf("Expected amount 250, got %v", args[1])
	}
}

func TestIntentEncodeErrors(t *testing.T) {
	t.Run("native on both sides", func(t *testing.T) {
		_, err := PoolSwap{NativeIn: true, NativeOut: true}.Encode()

		var encErr *EncodingError
		if !errors.As(err, &encErr) {
			t.Fatalf("Expected *EncodingError, got %T", err)
		}
		if !errors.Is(err, errNativeBothSides) {
			t.Errorf("Expected errNativeBothSides, got %v", err)
		}
	})

	t.Run("negative native amount", func(t *testing.T) {
		_, err := PoolSwap{NativeIn: true, AmountIn: big.NewInt(-1)}.Encode()
		if !errors.Is(err, errValueRange) {
			t.Errorf("Expected errValueRange, got %v", err)
		}
	})
}
