package crypto

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// MemoryPolicy controls how SecureBuffer degrades when the OS denies mlock.
type MemoryPolicy struct {
	// AllowDegradeOnMlockDenied, if true, falls back to unlocked (but still
	// zeroized) memory when mlock fails. If false (the default), a
	// mlock-denied condition is fatal to the buffer's construction, per
	// spec §4.A: "mlock-denied is permitted to degrade to unlocked memory
	// only if an explicit policy flag allows it — otherwise fatal."
	AllowDegradeOnMlockDenied bool

	// GuardPages, if true, brackets the allocation with inaccessible pages
	// to detect over/underflow. Requires page-aligned allocation.
	GuardPages bool
}

// pageSize is resolved once; guard-page layout depends on it.
var pageSize = unix.Getpagesize()

// SecureBuffer holds secret material (keys, plaintext DEKs) in memory that
// is, where the OS permits, locked against swap, optionally bracketed by
// inaccessible guard pages, and zeroized when Destroy is called or the
// buffer is garbage collected.
type SecureBuffer struct {
	mu       sync.Mutex
	raw      []byte // full mmap'd region, including guard pages if present
	data     []byte // the usable slice within raw
	locked   bool
	destroyed bool
}

// NewSecureBuffer allocates a SecureBuffer of size bytes under policy.
func NewSecureBuffer(size int, policy MemoryPolicy) (*SecureBuffer, error) {
	if size <= 0 {
		return nil, rcerrors.Internal("crypto.secure_buffer_size", nil)
	}

	b := &SecureBuffer{}

	if policy.GuardPages {
		if err := b.allocateWithGuardPages(size); err != nil {
			return nil, err
		}
	} else {
		b.raw = make([]byte, size)
		b.data = b.raw
	}

	if err := unix.Mlock(b.data); err != nil {
		if !policy.AllowDegradeOnMlockDenied {
			return nil, rcerrors.Internal("crypto.mlock_denied", err)
		}
		// degrade: keep unlocked memory, zeroization still applies.
	} else {
		b.locked = true
	}

	runtime.SetFinalizer(b, (*SecureBuffer).finalize)

	return b, nil
}

// allocateWithGuardPages mmaps size rounded up to a page, bracketed by one
// PROT_NONE guard page on each side. The usable data slice sits between
// the guards.
func (b *SecureBuffer) allocateWithGuardPages(size int) error {
	usablePages := (size + pageSize - 1) / pageSize
	totalPages := usablePages + 2

	region, err := unix.Mmap(-1, 0, totalPages*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return rcerrors.Internal("crypto.mmap", err)
	}

	if err := unix.Mprotect(region[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return rcerrors.Internal("crypto.guard_page", err)
	}

	if err := unix.Mprotect(region[len(region)-pageSize:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return rcerrors.Internal("crypto.guard_page", err)
	}

	b.raw = region
	b.data = region[pageSize : pageSize+size]

	return nil
}

// Bytes returns the usable slice. The caller must not retain it past Destroy.
func (b *SecureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return nil
	}

	return b.data
}

// Destroy zeroizes the buffer, unlocks and releases its pages, and is safe
// to call more than once.
func (b *SecureBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}

	zeroize(b.data)

	if b.locked {
		_ = unix.Munlock(b.data)
	}

	if isMmapBacked(b) {
		_ = unix.Munmap(b.raw)
	}

	b.destroyed = true
	b.data = nil
	b.raw = nil

	runtime.SetFinalizer(b, nil)
}

func (b *SecureBuffer) finalize() {
	b.Destroy()
}

func isMmapBacked(b *SecureBuffer) bool {
	return len(b.raw) > len(b.data)
}

// zeroize overwrites data with multiple patterns before a final zero pass,
// guarding against dead-store elimination via runtime.KeepAlive.
func zeroize(data []byte) {
	if len(data) == 0 {
		return
	}

	for _, pattern := range [...]byte{0xFF, 0xAA, 0x55, 0x00} {
		for i := range data {
			data[i] = pattern
		}

		runtime.KeepAlive(data)
	}
}

// ZeroBytes is the free-function form used for short-lived plaintext
// buffers that never go through SecureBuffer (e.g. a decrypted DEK about to
// be copied into a SecureBuffer).
func ZeroBytes(data []byte) {
	zeroize(data)
}
