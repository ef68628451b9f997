package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	batchtx "github.com/branched-services/go-batchtx"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
)

func loadConfig(ctx *cli.Context) (*batchtx.Config, error) {
	var (
		cfg *batchtx.Config
		err error
	)
	if path := ctx.String(configFlag.Name); path != "" {
		cfg, err = batchtx.LoadConfig(path)
	} else {
		cfg, err = batchtx.LoadConfigFromEnv(".env")
	}
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// openSession connects and, when withKey is set, binds the signer named by --key-env.
func openSession(ctx *cli.Context, withKey bool) (*batchtx.Session, *batchtx.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := cfg.Options()

	if withKey {
		wallet, err := loadWallet(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if wallet != nil {
			opts = append(opts, batchtx.WithWallet(wallet))
		}
	}

	session, err := batchtx.ConnectSession(ctx.Context, cfg.RouterAddress(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return session, cfg, nil
}

func loadWallet(ctx *cli.Context, cfg *batchtx.Config) (*bind.TransactOpts, error) {
	raw := os.Getenv(ctx.String(keyEnvFlag.Name))
	if raw == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", ctx.String(keyEnvFlag.Name), err)
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain_id must be configured to sign transactions")
	}
	return bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(cfg.ChainID))
}

func loadCalls(path string) ([]batchtx.Call, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var calls []batchtx.Call
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return calls, nil
}

func buildBatch(ctx *cli.Context, session *batchtx.Session) (*batchtx.Batch, error) {
	calls, err := loadCalls(ctx.String(callsFlag.Name))
	if err != nil {
		return nil, err
	}
	batch := session.NewBatch()
	for _, c := range calls {
		if err := batch.Append(c, batchtx.KindRaw, map[string]string{"source": "cli"}); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func simulateCmd(ctx *cli.Context) error {
	session, _, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer session.Close()

	batch, err := buildBatch(ctx, session)
	if err != nil {
		return err
	}
	res, err := batch.Simulate(ctx.Context)
	if err != nil {
		return err
	}
	if !res.Success {
		return printJSON(map[string]interface{}{
			"success":         false,
			"error":           res.Error,
			"revertReason":    res.RevertReason,
			"failedCallIndex": res.FailedCallIndex,
		})
	}
	return printJSON(map[string]interface{}{
		"success":       true,
		"gasEstimate":   res.GasEstimate,
		"requiredValue": res.RequiredValue,
		"results":       res.Results,
	})
}

func sendCmd(ctx *cli.Context) error {
	session, cfg, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer session.Close()

	batch, err := buildBatch(ctx, session)
	if err != nil {
		return err
	}
	var opts batchtx.ExecuteOptions
	if gas := ctx.Uint64(gasLimitFlag.Name); gas > 0 {
		opts.GasLimit = &gas
	}

	switch mode := ctx.String(modeFlag.Name); mode {
	case batchtx.ModeAsync:
		receipt, err := batch.Execute(ctx.Context, opts)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"hash":      receipt.Hash,
			"gasUsed":   receipt.GasUsed,
			"totalCost": receipt.TotalCost.String(),
			"results":   receipt.Results,
		})
	case batchtx.ModeSync, batchtx.ModeRealtime:
		method := cfg.Method()
		if mode == batchtx.ModeRealtime {
			method = batchtx.MethodRealtimeSendRawTransaction
		}
		receipt, err := batch.ExecuteWithMethod(ctx.Context, method, opts)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"hash":    receipt.Receipt.TxHash,
			"method":  receipt.Method,
			"gasUsed": receipt.GasUsed,
			"latency": receipt.Latency.String(),
			"results": receipt.Results,
		})
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func nonceCmd(ctx *cli.Context) error {
	session, _, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer session.Close()

	addr, err := parseAddress(ctx.String(addressFlag.Name))
	if err != nil {
		return err
	}
	nonce, err := session.NextNonce(ctx.Context, addr)
	if err != nil {
		return err
	}
	fmt.Println(nonce)
	return nil
}

func balancesCmd(ctx *cli.Context) error {
	session, _, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer session.Close()

	owner, err := parseAddress(ctx.String(addressFlag.Name))
	if err != nil {
		return err
	}
	var tokens []common.Address
	for _, t := range ctx.StringSlice(tokensFlag.Name) {
		addr, err := parseAddress(t)
		if err != nil {
			return err
		}
		tokens = append(tokens, addr)
	}

	balances, err := session.TokenBalances(ctx.Context, owner, tokens)
	if err != nil {
		return err
	}
	metadata, err := session.TokenMetadata(ctx.Context, tokens)
	if err != nil {
		return err
	}
	rows := make([]map[string]interface{}, len(tokens))
	for i := range tokens {
		rows[i] = map[string]interface{}{
			"token":    tokens[i],
			"symbol":   metadata[i].Symbol,
			"decimals": metadata[i].Decimals,
			"balance":  balances[i].String(),
		}
	}
	return printJSON(rows)
}

func decodeRevertCmd(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected one hex argument")
	}
	data, err := hexutil.Decode(ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(batchtx.DecodeRevert(data))
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
