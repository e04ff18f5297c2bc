package resolver

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// KeyLock serializes work per entity name using a fixed set of mutexes.
// Different names may share a shard; the same name always maps to the same one.
type KeyLock struct {
	shards [lockShards]sync.Mutex
}

// NewKeyLock returns a ready KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

// Lock acquires the shard for name and returns its unlock function.
func (l *KeyLock) Lock(name string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	mu := &l.shards[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}
