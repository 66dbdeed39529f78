package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyLocks serializes reads of the same (session, path) inside one process.
// Keys are hashed onto a fixed set of mutexes, so unrelated keys occasionally
// share a stripe but the table never grows.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

// lock acquires the stripe for (sessionID, path) and returns its unlock func.
func (l *keyLocks) lock(sessionID, path string) func() {
	h := xxhash.New()
	h.WriteString(sessionID)
	h.Write([]byte{0})
	h.WriteString(path)

	m := &l.stripes[h.Sum64()%lockStripes]
	m.Lock()
	return m.Unlock
}
