// Package locks provides per-key mutual exclusion over a fixed set of shards.
package locks

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is used when NewKeyed is given a non-positive count.
const DefaultShards = 64

// Keyed serializes work per key. Keys that hash to different shards never
// contend; keys sharing a shard are serialized together.
type Keyed struct {
	shards []sync.Mutex
}

// NewKeyed creates a Keyed lock set with n shards.
func NewKeyed(n int) *Keyed {
	if n <= 0 {
		n = DefaultShards
	}
	return &Keyed{shards: make([]sync.Mutex, n)}
}

func (k *Keyed) shard(key string) *sync.Mutex {
	return &k.shards[xxhash.Sum64String(key)%uint64(len(k.shards))]
}

// Lock acquires the lock for key and returns its release func.
func (k *Keyed) Lock(key string) (unlock func()) {
	m := k.shard(key)
	m.Lock()
	return m.Unlock
}

// Do runs fn while holding the lock for key.
func (k *Keyed) Do(key string, fn func() error) error {
	unlock := k.Lock(key)
	defer unlock()
	return fn()
}
