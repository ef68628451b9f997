package batchtx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
)

// ErrNoEndpoints indicates failover was asked to dial an empty endpoint list.
var ErrNoEndpoints = errors.New("batchtx: no RPC endpoints configured")

// DialOption configures Dial and DialFailover.
type DialOption func(*dialConfig)

type dialConfig struct {
	timeout time.Duration
	retries uint64
	logger  log.Logger
}

func defaultDialConfig() *dialConfig {
	return &dialConfig{
		timeout: DefaultTransportTimeout,
		retries: 2,
		logger:  log.Root(),
	}
}

// WithTransportTimeout sets the connect/read timeout. Default is 30s.
func WithTransportTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDialRetries sets how many times each endpoint is retried before
// failover moves to the next one. Default is 2.
func WithDialRetries(n uint64) DialOption {
	return func(c *dialConfig) {
		c.retries = n
	}
}

// WithDialLogger sets the logger used while dialing.
func WithDialLogger(logger log.Logger) DialOption {
	return func(c *dialConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Dial connects to a single HTTP(S) or WS(S) endpoint.
func Dial(ctx context.Context, endpoint string, opts ...DialOption) (Backend, error) {
	cfg := defaultDialConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return dialEndpoint(ctx, endpoint, cfg)
}

func dialEndpoint(ctx context.Context, endpoint string, cfg *dialConfig) (Backend, error) {
	var clientOpts []rpc.ClientOption
	if isWebsocket(endpoint) {
		clientOpts = append(clientOpts, rpc.WithWebsocketDialer(websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.timeout,
		}))
	} else {
		clientOpts = append(clientOpts, rpc.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	c, err := rpc.DialOptions(dialCtx, endpoint, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("batchtx: dial %s: %w", redactURL(endpoint), err)
	}
	return NewBackend(c), nil
}

// DialFailover connects to the first healthy endpoint. WebSocket endpoints
// are tried before HTTP ones; within each group the given order is kept.
// Each endpoint is retried with exponential backoff and checked with an
// eth_chainId request before it is accepted.
func DialFailover(ctx context.Context, endpoints []string, opts ...DialOption) (Backend, string, error) {
	if len(endpoints) == 0 {
		return nil, "", ErrNoEndpoints
	}
	cfg := defaultDialConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var errs []error
	for _, endpoint := range orderEndpoints(endpoints) {
		policy := backoff.WithContext(backoff.WithMaxRetries(newDialBackOff(), cfg.retries), ctx)

		backend, err := backoff.RetryNotifyWithData(func() (Backend, error) {
			b, err := dialEndpoint(ctx, endpoint, cfg)
			if err != nil {
				return nil, err
			}
			checkCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
			if _, err := b.ChainID(checkCtx); err != nil {
				closeBackend(b)
				return nil, fmt.Errorf("batchtx: health check %s: %w", redactURL(endpoint), err)
			}
			return b, nil
		}, policy, func(err error, next time.Duration) {
			cfg.logger.Warn("RPC endpoint unavailable, retrying", "endpoint", redactURL(endpoint), "retry_in", next, "err", err)
		})
		if err == nil {
			cfg.logger.Debug("Connected to RPC endpoint", "endpoint", redactURL(endpoint))
			return backend, endpoint, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		cfg.logger.Warn("Failing over to next RPC endpoint", "endpoint", redactURL(endpoint), "err", err)
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

func newDialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// orderEndpoints puts websocket endpoints first, keeping relative order.
func orderEndpoints(endpoints []string) []string {
	out := append([]string(nil), endpoints...)
	sort.SliceStable(out, func(i, j int) bool {
		return isWebsocket(out[i]) && !isWebsocket(out[j])
	})
	return out
}

func isWebsocket(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}

// redactURL strips credentials and query strings, which often carry API keys.
func redactURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func closeBackend(b Backend) {
	if c, ok := b.(interface{ Close() }); ok {
		c.Close()
	}
}
