package kms

import (
	"container/list"
	"sync"
	"time"

	"github.com/rustcare/core/internal/crypto"
)

// DEKCache memoizes unwrapped data keys keyed by SHA-256(wrapped_dek), so a
// hot field or object doesn't round-trip to the KMS on every access (spec
// §4.B / §8 property 7). Plaintext DEKs are held in locked, zeroizable
// memory and evicted both by TTL and by a hard size bound (LRU).
type DEKCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	policy  crypto.MemoryPolicy
	order   *list.List // front = most recently used
	entries map[[32]byte]*list.Element
	now     func() time.Time
}

type dekCacheEntry struct {
	fingerprint [32]byte
	buf         *crypto.SecureBuffer
	expiresAt   time.Time
}

// NewDEKCache builds a cache with the given TTL and max entry count.
func NewDEKCache(ttl time.Duration, maxSize int, policy crypto.MemoryPolicy) *DEKCache {
	return &DEKCache{
		ttl:     ttl,
		maxSize: maxSize,
		policy:  policy,
		order:   list.New(),
		entries: make(map[[32]byte]*list.Element),
		now:     time.Now,
	}
}

// Get returns a copy of the cached plaintext DEK for wrappedDEK, if present
// and not expired. The caller owns the returned slice and is responsible
// for zeroizing it when done.
func (c *DEKCache) Get(wrappedDEK []byte) ([]byte, bool) {
	fp := crypto.FingerprintWrappedDEK(wrappedDEK)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fp]
	if !ok {
		return nil, false
	}

	entry := el.Value.(*dekCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}

	c.order.MoveToFront(el)

	src := entry.buf.Bytes()
	if src == nil {
		c.removeLocked(el)
		return nil, false
	}

	cp := make([]byte, len(src))
	copy(cp, src)

	return cp, true
}

// Put stores dek under wrappedDEK's fingerprint, evicting the
// least-recently-used entry if the cache is at capacity. The caller
// retains ownership of dek; Put copies it into locked memory.
func (c *DEKCache) Put(wrappedDEK, dek []byte) error {
	fp := crypto.FingerprintWrappedDEK(wrappedDEK)

	buf, err := crypto.NewSecureBuffer(len(dek), c.policy)
	if err != nil {
		return err
	}
	copy(buf.Bytes(), dek)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fp]; ok {
		c.removeLocked(el)
	}

	for c.order.Len() >= c.maxSize && c.maxSize > 0 {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}

	entry := &dekCacheEntry{fingerprint: fp, buf: buf, expiresAt: c.now().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.entries[fp] = el

	return nil
}

// Invalidate removes wrappedDEK's cached entry, used when rotation
// retires the version it was wrapped under.
func (c *DEKCache) Invalidate(wrappedDEK []byte) {
	fp := crypto.FingerprintWrappedDEK(wrappedDEK)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fp]; ok {
		c.removeLocked(el)
	}
}

// Len returns the current number of cached entries.
func (c *DEKCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *DEKCache) removeLocked(el *list.Element) {
	entry := el.Value.(*dekCacheEntry)
	entry.buf.Destroy()
	delete(c.entries, entry.fingerprint)
	c.order.Remove(el)
}
