package batchtx

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Session carries the state that outlives a single batch: the node
// connection, the signing wallet and the per-account nonce cache.
// Batches created by a Session take their nonces from it and reach the node
// through it, so they follow Reconnect and fail with ErrNoBackend after Close.
//
// Session is safe for concurrent use; the Batches it creates are not.
type Session struct {
	mu       sync.RWMutex
	backend  Backend
	endpoint string

	router common.Address
	cfg    *batchConfig
	nonces *NonceCache
	live   Backend
}

// NewSession wraps an existing backend.
func NewSession(backend Backend, router common.Address, opts ...BatchOption) *Session {
	cfg := defaultBatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	s := &Session{
		backend: backend,
		router:  router,
		cfg:     cfg,
		nonces:  NewNonceCache(),
	}
	s.live = &resolvingBackend{current: s.Backend}
	return s
}

// ConnectSession dials the endpoints given with WithEndpoints, using
// DialFailover, and returns a Session over the first healthy one.
func ConnectSession(ctx context.Context, router common.Address, opts ...BatchOption) (*Session, error) {
	s := NewSession(nil, router, opts...)
	if err := s.Reconnect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Backend returns the current node connection.
func (s *Session) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Endpoint returns the endpoint the session last connected to, or "" if
// the backend was supplied directly.
func (s *Session) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Router returns the router address batches submit through.
func (s *Session) Router() common.Address {
	return s.router
}

// NewBatch returns an empty batch sharing the session's connection, wallet,
// logger and metrics. Unless a nonce source was configured explicitly, the
// batch draws nonces from the session.
func (s *Session) NewBatch() *Batch {
	cfg := s.cfg.clone()
	if cfg.nonces == nil {
		cfg.nonces = s
	}
	return newBatch(s.live, s.router, cfg)
}

// NextNonce reads the pending nonce of account from the node and issues
// max(pending, last issued + 1). Two calls in quick succession therefore
// never return the same nonce, even if the node has not seen the first
// transaction yet.
func (s *Session) NextNonce(ctx context.Context, account common.Address) (uint64, error) {
	pending, err := s.live.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, err
	}
	return s.nonces.Next(account, pending), nil
}

// ReleaseNonce hands nonce back if it is the last one issued for account.
// Batches call it when their transaction never reached the node.
func (s *Session) ReleaseNonce(account common.Address, nonce uint64) {
	s.nonces.Release(account, nonce)
}

// ResetNonce forgets the last nonce issued for account. Call it once a
// transaction using that nonce is confirmed or abandoned.
func (s *Session) ResetNonce(account common.Address) {
	s.nonces.Reset(account)
}

// Nonces exposes the session's nonce cache.
func (s *Session) Nonces() *NonceCache {
	return s.nonces
}

// Reconnect re-runs endpoint failover and swaps in the new connection.
// The previous connection is closed once the new one is healthy; batches
// created by the session use the new one from their next request.
func (s *Session) Reconnect(ctx context.Context) error {
	opts := append([]DialOption{WithDialLogger(s.cfg.logger)}, s.cfg.dialOpts...)
	backend, endpoint, err := DialFailover(ctx, s.cfg.endpoints, opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.backend
	s.backend, s.endpoint = backend, endpoint
	s.mu.Unlock()

	if old != nil {
		closeBackend(old)
	}
	s.cfg.logger.Info("Session connected", "endpoint", redactURL(endpoint))
	return nil
}

// Close closes the node connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		closeBackend(s.backend)
		s.backend = nil
	}
}

// resolvingBackend looks up the connection on every call.
type resolvingBackend struct {
	current func() Backend
}

func (r *resolvingBackend) get() (Backend, error) {
	if b := r.current(); b != nil {
		return b, nil
	}
	return nil, ErrNoBackend
}

func (r *resolvingBackend) ChainID(ctx context.Context) (*big.Int, error) {
	b, err := r.get()
	if err != nil {
		return nil, err
	}
	return b.ChainID(ctx)
}

func (r *resolvingBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b, err := r.get()
	if err != nil {
		return nil, err
	}
	return b.CallContract(ctx, msg, blockNumber)
}

func (r *resolvingBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b, err := r.get()
	if err != nil {
		return 0, err
	}
	return b.EstimateGas(ctx, msg)
}

func (r *resolvingBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b, err := r.get()
	if err != nil {
		return 0, err
	}
	return b.PendingNonceAt(ctx, account)
}

func (r *resolvingBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b, err := r.get()
	if err != nil {
		return nil, err
	}
	return b.HeaderByNumber(ctx, number)
}

func (r *resolvingBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	b, err := r.get()
	if err != nil {
		return nil, err
	}
	return b.SuggestGasTipCap(ctx)
}

func (r *resolvingBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b, err := r.get()
	if err != nil {
		return err
	}
	return b.SendTransaction(ctx, tx)
}

func (r *resolvingBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b, err := r.get()
	if err != nil {
		return nil, err
	}
	return b.TransactionReceipt(ctx, txHash)
}

func (r *resolvingBackend) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	b, err := r.get()
	if err != nil {
		return err
	}
	return b.CallContext(ctx, result, method, args...)
}
