package batchtx

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceCache remembers the last nonce issued per account so that
// transactions sent faster than the node's pending view updates still get
// distinct, increasing nonces.
//
// Entries never expire. Call Reset once a transaction using an issued nonce
// is final (confirmed or abandoned); until then the cache keeps counting up
// from its last value. Release hands back the most recent nonce when its
// transaction never reached the node.
//
// NonceCache is safe for concurrent use.
type NonceCache struct {
	mu   sync.Mutex
	last map[common.Address]uint64
}

// NewNonceCache creates an empty cache.
func NewNonceCache() *NonceCache {
	return &NonceCache{last: make(map[common.Address]uint64)}
}

// Next issues max(network, last+1) for account and records it as the last
// issued nonce. network is the node's pending nonce, read by the caller.
func (c *NonceCache) Next(account common.Address, network uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := network
	if last, ok := c.last[account]; ok && last+1 > next {
		next = last + 1
	}
	c.last[account] = next
	return next
}

// Last returns the last nonce issued for account.
func (c *NonceCache) Last(account common.Address) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.last[account]
	return n, ok
}

// Release takes back nonce if it is still the last one issued for account,
// so the next call to Next can issue it again. It reports whether the nonce
// was released. An older nonce cannot be released without reissuing every
// later one; use Reset for that.
func (c *NonceCache) Release(account common.Address, nonce uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[account]
	if !ok || last != nonce {
		return false
	}
	if nonce == 0 {
		delete(c.last, account)
	} else {
		c.last[account] = nonce - 1
	}
	return true
}

// Reset forgets account.
func (c *NonceCache) Reset(account common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, account)
}

// Len returns the number of tracked accounts.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
