package opinion

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyedMutex serializes operations per key via lock striping, so concurrent
// updates on unrelated (user, theme) pairs never contend on a global lock.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (m *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
