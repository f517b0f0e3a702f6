package llmprovider

import "sync/atomic"

type clientSnapshot[T any] struct {
	credential string
	client     T
}

// ClientCache holds an adapter's transport client for the credential it was
// built with. A credential change builds a new client and swaps the snapshot;
// existing clients are never mutated, so in-flight requests keep working.
// Concurrent rebuilds may race, and the last swap wins.
type ClientCache[T any] struct {
	current atomic.Pointer[clientSnapshot[T]]
}

// Get returns the cached client when credential matches, or builds and caches
// a new one.
func (c *ClientCache[T]) Get(credential string, build func(credential string) T) T {
	if snap := c.current.Load(); snap != nil && snap.credential == credential {
		return snap.client
	}
	snap := &clientSnapshot[T]{credential: credential, client: build(credential)}
	c.current.Store(snap)
	return snap.client
}

// Reset drops the cached client.
func (c *ClientCache[T]) Reset() {
	c.current.Store(nil)
}
