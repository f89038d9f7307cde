package execution

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// accountCacheSize bounds the underlying LRU as a backstop; in the steady
// state entries are evicted explicitly via Release once no template
// references them , not by LRU pressure.
const accountCacheSize = 4096

// AccountCache is the execution state's address -> AccountState cache.
// Grounded on Prysm's beacon-chain/powchain cache-then-fetch
// pattern (block_reader.go's "check cache, miss, fetch, populate"), here
// upgraded from Prysm's hand-rolled cache to the real corpus
// dependency github.com/hashicorp/golang-lru (already in Prysm's
// go.mod as a transitive dep of other subsystems).
//
// Entries are additionally reference-counted by the number of live
// templates that mention the address (the sidecar's design "evicted when no
// template references the address"): an LRU eviction alone would not give
// that guarantee, since LRU pressure is unrelated to template lifetime.
type AccountCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[common.Address, primitives.AccountState]
	refcount map[common.Address]int
}

// NewAccountCache constructs an empty AccountCache.
func NewAccountCache() *AccountCache {
	l, err := lru.New[common.Address, primitives.AccountState](accountCacheSize)
	if err != nil {
		// accountCacheSize is a positive compile-time constant; lru.New
		// only errors on a non-positive size.
		panic(err)
	}
	return &AccountCache{lru: l, refcount: make(map[common.Address]int)}
}

// Get returns the cached account state for addr, if present.
func (c *AccountCache) Get(addr common.Address) (primitives.AccountState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(addr)
}

// Set stores the account state for addr, overwriting any previous entry.
func (c *AccountCache) Set(addr common.Address, state primitives.AccountState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(addr, state)
}

// Acquire increments addr's reference count, recording that a template now
// refers to this address.
func (c *AccountCache) Acquire(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refcount[addr]++
}

// Release decrements addr's reference count; once it reaches zero the
// address is evicted from the cache entirely.
func (c *AccountCache) Release(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refcount[addr]--
	if c.refcount[addr] <= 0 {
		delete(c.refcount, addr)
		c.lru.Remove(addr)
	}
}

// Len reports the number of addresses currently cached.
func (c *AccountCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
