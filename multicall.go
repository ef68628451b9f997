package batchtx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultTokenDecimals is reported for tokens whose decimals() cannot be read.
const DefaultTokenDecimals = 18

// ReadRequest is one read-only contract call.
type ReadRequest struct {
	Target   common.Address
	CallData []byte
}

// ReadResult is the outcome of one ReadRequest.
type ReadResult struct {
	Success    bool
	ReturnData []byte
}

// multicallCall and multicallResult mirror Multicall3's Call3 and Result.
type multicallCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// ReadMany performs reads in a single Multicall3 aggregate3 request.
// A failing entry is reported as unsuccessful; only a failure of the
// aggregate request itself is returned as an error.
//
// Without a multicall contract the reads are issued individually, in
// parallel, with the same per-entry failure semantics.
func (s *Session) ReadMany(ctx context.Context, reads []ReadRequest) ([]ReadResult, error) {
	if len(reads) == 0 {
		return nil, nil
	}
	if s.cfg.multicall == (common.Address{}) {
		return s.readEach(ctx, reads)
	}

	calls := make([]multicallCall, len(reads))
	for i, r := range reads {
		calls[i] = multicallCall{Target: r.Target, AllowFailure: true, CallData: r.CallData}
	}
	data, err := multicallABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("batchtx: pack aggregate3: %w", err)
	}
	multicall := s.cfg.multicall
	out, err := s.live.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("batchtx: aggregate3: %w", err)
	}

	var decoded []multicallResult
	if err := unpackOutputs(multicallABI, &decoded, "aggregate3", out); err != nil {
		return nil, fmt.Errorf("batchtx: decode aggregate3: %w", err)
	}
	if len(decoded) != len(reads) {
		return nil, fmt.Errorf("batchtx: aggregate3 returned %d results for %d reads", len(decoded), len(reads))
	}
	results := make([]ReadResult, len(decoded))
	for i, r := range decoded {
		results[i] = ReadResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, nil
}

func (s *Session) readEach(ctx context.Context, reads []ReadRequest) ([]ReadResult, error) {
	backend := s.Backend()
	if backend == nil {
		return nil, ErrNoBackend
	}
	results := make([]ReadResult, len(reads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.readParallel)
	for i, r := range reads {
		target := r.Target
		data := r.CallData
		g.Go(func() error {
			out, err := backend.CallContract(gctx, ethereum.CallMsg{To: &target, Data: data}, nil)
			if err != nil {
				s.cfg.logger.Trace("Read failed", "target", target, "err", err)
				return nil
			}
			results[i] = ReadResult{Success: true, ReturnData: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// unpackOutputs decodes method outputs into out, converting decoder panics
// on malformed data into errors.
func unpackOutputs(contractABI abi.ABI, out interface{}, method string, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed %s output: %v", method, r)
		}
	}()
	return contractABI.UnpackIntoInterface(out, method, data)
}

// TokenBalances reads owner's balance of each token in one round trip.
// Tokens whose balanceOf fails or returns garbage report zero.
func (s *Session) TokenBalances(ctx context.Context, owner common.Address, tokens []common.Address) ([]*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	reads := make([]ReadRequest, len(tokens))
	for i, token := range tokens {
		reads[i] = ReadRequest{Target: token, CallData: data}
	}
	results, err := s.ReadMany(ctx, reads)
	if err != nil {
		return nil, err
	}

	balances := make([]*big.Int, len(tokens))
	for i := range balances {
		balances[i] = new(big.Int)
		if i < len(results) && results[i].Success {
			var balance *big.Int
			if unpackOutputs(erc20ABI, &balance, "balanceOf", results[i].ReturnData) == nil && balance != nil {
				balances[i] = balance
			}
		}
	}
	return balances, nil
}

// TokenMetadata holds an ERC20 token's descriptive fields.
type TokenMetadata struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// TokenMetadata reads name, symbol and decimals of each token in one round
// trip. Unreadable fields fall back to empty strings and DefaultTokenDecimals.
func (s *Session) TokenMetadata(ctx context.Context, tokens []common.Address) ([]TokenMetadata, error) {
	methods := []string{"name", "symbol", "decimals"}
	selectors := make([][]byte, len(methods))
	for i, m := range methods {
		selectors[i] = erc20ABI.Methods[m].ID
	}

	reads := make([]ReadRequest, 0, len(tokens)*len(methods))
	for _, token := range tokens {
		for _, sel := range selectors {
			reads = append(reads, ReadRequest{Target: token, CallData: sel})
		}
	}
	results, err := s.ReadMany(ctx, reads)
	if err != nil {
		return nil, err
	}

	out := make([]TokenMetadata, len(tokens))
	for i, token := range tokens {
		md := TokenMetadata{Address: token, Decimals: DefaultTokenDecimals}
		base := i * len(methods)
		if r := results[base]; r.Success {
			var name string
			if unpackOutputs(erc20ABI, &name, "name", r.ReturnData) == nil {
				md.Name = name
			}
		}
		if r := results[base+1]; r.Success {
			var symbol string
			if unpackOutputs(erc20ABI, &symbol, "symbol", r.ReturnData) == nil {
				md.Symbol = symbol
			}
		}
		if r := results[base+2]; r.Success {
			var decimals uint8
			if unpackOutputs(erc20ABI, &decimals, "decimals", r.ReturnData) == nil {
				md.Decimals = decimals
			}
		}
		out[i] = md
	}
	return out, nil
}
