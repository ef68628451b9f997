package batchtx

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the file or environment form of a session's settings.
type Config struct {
	RPCURL       string   `yaml:"rpc_url"`
	WSURL        string   `yaml:"ws_url"`
	FallbackURLs []string `yaml:"fallback_urls"`

	Router    string `yaml:"router"`
	Multicall string `yaml:"multicall"`
	ChainID   uint64 `yaml:"chain_id"`

	GasBufferPercent *uint64       `yaml:"gas_buffer_percent"`
	SyncMethod       string        `yaml:"sync_method"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Timeout          time.Duration `yaml:"timeout"`

	AggregatorURL    string `yaml:"aggregator_url"`
	AggregatorAPIKey string `yaml:"aggregator_api_key"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batchtx: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("batchtx: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfigFromEnv builds a Config from BATCHTX_* variables, after loading
// the given dotenv files. Missing dotenv files are skipped; variables already
// set in the environment win over file values.
func LoadConfigFromEnv(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("batchtx: load %s: %w", f, err)
		}
	}

	cfg := &Config{
		RPCURL:           os.Getenv("BATCHTX_RPC_URL"),
		WSURL:            os.Getenv("BATCHTX_WS_URL"),
		Router:           os.Getenv("BATCHTX_ROUTER"),
		Multicall:        os.Getenv("BATCHTX_MULTICALL"),
		SyncMethod:       os.Getenv("BATCHTX_SYNC_METHOD"),
		AggregatorURL:    os.Getenv("BATCHTX_AGGREGATOR_URL"),
		AggregatorAPIKey: os.Getenv("BATCHTX_AGGREGATOR_API_KEY"),
	}
	if v := os.Getenv("BATCHTX_FALLBACK_URLS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.FallbackURLs = append(cfg.FallbackURLs, u)
			}
		}
	}
	if v := os.Getenv("BATCHTX_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("batchtx: BATCHTX_CHAIN_ID: %w", err)
		}
		cfg.ChainID = id
	}
	if v := os.Getenv("BATCHTX_GAS_BUFFER_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("batchtx: BATCHTX_GAS_BUFFER_PERCENT: %w", err)
		}
		cfg.GasBufferPercent = &pct
	}
	if v := os.Getenv("BATCHTX_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("batchtx: BATCHTX_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("BATCHTX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("batchtx: BATCHTX_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// Validate checks that the config can produce a working session.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Endpoints()) == 0 {
		errs = append(errs, errors.New("no RPC endpoint configured"))
	}
	if !common.IsHexAddress(c.Router) {
		errs = append(errs, fmt.Errorf("invalid router address %q", c.Router))
	}
	if c.Multicall != "" && !common.IsHexAddress(c.Multicall) {
		errs = append(errs, fmt.Errorf("invalid multicall address %q", c.Multicall))
	}
	switch c.SyncMethod {
	case "", MethodSendRawTransactionSync, MethodRealtimeSendRawTransaction:
	default:
		errs = append(errs, fmt.Errorf("unsupported sync method %q", c.SyncMethod))
	}
	if c.PollInterval < 0 || c.Timeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("batchtx: invalid config: %w", err)
	}
	return nil
}

// Endpoints lists the configured endpoints, websocket first.
func (c *Config) Endpoints() []string {
	var out []string
	for _, u := range append([]string{c.WSURL, c.RPCURL}, c.FallbackURLs...) {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// RouterAddress returns the parsed router address.
func (c *Config) RouterAddress() common.Address {
	return common.HexToAddress(c.Router)
}

// Method returns the configured synchronous submission method.
func (c *Config) Method() string {
	if c.SyncMethod == "" {
		return MethodSendRawTransactionSync
	}
	return c.SyncMethod
}

// Options converts the config into session options.
func (c *Config) Options() []BatchOption {
	var dialOpts []DialOption
	if c.Timeout > 0 {
		dialOpts = append(dialOpts, WithTransportTimeout(c.Timeout))
	}
	opts := []BatchOption{WithEndpoints(c.Endpoints(), dialOpts...)}
	if c.ChainID != 0 {
		opts = append(opts, WithChainID(new(big.Int).SetUint64(c.ChainID)))
	}
	if c.Multicall != "" {
		opts = append(opts, WithMulticall(common.HexToAddress(c.Multicall)))
	}
	if c.GasBufferPercent != nil {
		opts = append(opts, WithGasBuffer(*c.GasBufferPercent))
	}
	if c.PollInterval > 0 {
		opts = append(opts, WithReceiptPollInterval(c.PollInterval))
	}
	return opts
}
