package batchtx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RouterABIJSON is the interface of the batch router contract.
const RouterABIJSON = `[
	{
		"name": "execute",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "calls", "type": "tuple[]", "components": [
				{"name": "target", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			]}
		],
		"outputs": [
			{"name": "results", "type": "tuple[]", "components": [
				{"name": "success", "type": "bool"},
				{"name": "returnData", "type": "bytes"}
			]}
		]
	},
	{
		"name": "getRequiredValue",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "calls", "type": "tuple[]", "components": [
				{"name": "target", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			]}
		],
		"outputs": [
			{"name": "", "type": "uint256"}
		]
	},
	{
		"name": "BatchExecuted",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "sender", "type": "address", "indexed": true},
			{"name": "callCount", "type": "uint256", "indexed": false},
			{"name": "totalValue", "type": "uint256", "indexed": false}
		]
	},
	{
		"name": "CallExecuted",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "callIndex", "type": "uint256", "indexed": true},
			{"name": "target", "type": "address", "indexed": true},
			{"name": "value", "type": "uint256", "indexed": false},
			{"name": "success", "type": "bool", "indexed": false}
		]
	},
	{"name": "CallFailed", "type": "error", "inputs": [
		{"name": "index", "type": "uint256"},
		{"name": "reason", "type": "bytes"}
	]},
	{"name": "EmptyBatch", "type": "error", "inputs": []},
	{"name": "TooManyCalls", "type": "error", "inputs": []},
	{"name": "InsufficientValue", "type": "error", "inputs": []},
	{"name": "InvalidTarget", "type": "error", "inputs": []},
	{"name": "ReentrantCall", "type": "error", "inputs": []},
	{"name": "Unauthorized", "type": "error", "inputs": []},
	{"name": "RefundFailed", "type": "error", "inputs": []}
]`

// Multicall3ABIJSON is the subset of Multicall3 used for aggregated reads.
const Multicall3ABIJSON = `[
	{
		"name": "aggregate3",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "calls", "type": "tuple[]", "components": [
				{"name": "target", "type": "address"},
				{"name": "allowFailure", "type": "bool"},
				{"name": "callData", "type": "bytes"}
			]}
		],
		"outputs": [
			{"name": "returnData", "type": "tuple[]", "components": [
				{"name": "success", "type": "bool"},
				{"name": "returnData", "type": "bytes"}
			]}
		]
	}
]`

// ERC20ABIJSON is the subset of ERC20 used by intents and reads.
const ERC20ABIJSON = `[
	{
		"name": "transfer",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "approve",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "balanceOf",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "name",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"name": "symbol",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"name": "decimals",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	}
]`

// ERC721ABIJSON is the subset of ERC721 used for NFT transfers.
const ERC721ABIJSON = `[
	{
		"name": "safeTransferFrom",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"outputs": []
	}
]`

// WrappedNativeABIJSON is the WETH-style wrapper interface.
const WrappedNativeABIJSON = `[
	{
		"name": "deposit",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [],
		"outputs": []
	},
	{
		"name": "withdraw",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "wad", "type": "uint256"}],
		"outputs": []
	}
]`

// PoolRouterABIJSON is the Uniswap V2 Router02 subset used for pool swaps.
const PoolRouterABIJSON = `[
	{
		"name": "swapExactTokensForTokens",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]
	},
	{
		"name": "swapExactETHForTokens",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]
	},
	{
		"name": "swapExactTokensForETH",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]
	}
]`

var (
	routerABI     = MustParseABI(RouterABIJSON)
	multicallABI  = MustParseABI(Multicall3ABIJSON)
	erc20ABI      = MustParseABI(ERC20ABIJSON)
	erc721ABI     = MustParseABI(ERC721ABIJSON)
	wrappedABI    = MustParseABI(WrappedNativeABIJSON)
	poolRouterABI = MustParseABI(PoolRouterABIJSON)
)

// DefaultMulticall3Address is the canonical Multicall3 deployment address.
var DefaultMulticall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// routerCall mirrors the router's call tuple for ABI packing.
type routerCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// routerResult mirrors the router's result tuple for ABI unpacking.
type routerResult struct {
	Success    bool
	ReturnData []byte
}

func toRouterCalls(calls []Call) []routerCall {
	out := make([]routerCall, len(calls))
	for i, c := range calls {
		out[i] = routerCall{Target: c.Target, Value: toBig(c.Value), Data: c.Data}
	}
	return out
}
