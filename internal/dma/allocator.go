// Package dma implements C3, the DMA allocator: page-aligned, page-locked
// memory backing the capture and playout rings, with a small bounded
// free-list cache of recently-released blocks (§4.2).
//
// A V4L2-style device layer maps device memory with golang.org/x/sys/unix
// (Mmap/Munmap); this allocator follows the same idiom one level down,
// using anonymous mmap + Mlock to stand in for the vendor SDK's
// DMA-locked memory. The free list is backed by golang.org/x/sys/unix
// mmap style allocation and, for the bounded-cache-with-eviction-callback
// behavior §4.2 specifies ("capped at 8 entries, oldest evicted first"),
// by github.com/golang/groupcache/lru -- used here off-label for its
// plain eviction-ordered capped cache rather than its original HTTP
// cache-group role; lru.Cache has no dependency on the rest of
// groupcache.
package dma

import (
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sys/unix"

	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
	"github.com/lanikai/gstreamer-aja/internal/logging"
)

var log = logging.DefaultLogger.WithTag("dma")

// FreeListCap is the number of recently-released blocks the allocator
// keeps parked rather than immediately unlocking and freeing (§4.2).
const FreeListCap = 8

// MemType is the allocator's mem_type tag, surfaced to the upstream
// framework so downstream elements can key off it to avoid a copy (§6).
const MemType = "aja"

// Block is one page-locked allocation, or a read-only sub-allocation
// ("share") into one.
type Block struct {
	data []byte

	// parent is nil for an allocator-owned block, or the block this one
	// shares memory with for a Share()'d sub-allocation.
	parent *Block
	refs   int32 // only meaningful when parent == nil

	size   int  // rounded-up allocation size (parent blocks only)
	locked bool // whether the backing pages are mlock'd
}

// Bytes returns the block's memory. Sub-blocks (from Share) see only their
// slice of the parent.
func (b *Block) Bytes() []byte { return b.data }

// Len is len(b.Bytes()).
func (b *Block) Len() int { return len(b.data) }

// Allocator backs one device (§4.2: "The allocator backs one device").
type Allocator struct {
	mu       sync.Mutex
	pageSize int

	cache  *lru.Cache          // key: *Block, value: *Block; enforces the cap + eviction order
	bySize map[int][]*Block    // free blocks available for exact-size reuse
}

// NewAllocator constructs an Allocator. The device identifier is accepted
// for logging only; the allocator itself has no hardware dependency beyond
// host page-locking.
func NewAllocator(deviceIdentifier string) *Allocator {
	a := &Allocator{
		pageSize: unix.Getpagesize(),
		bySize:   map[int][]*Block{},
	}
	a.cache = lru.New(FreeListCap)
	a.cache.OnEvicted = func(key lru.Key, value interface{}) {
		b := value.(*Block)
		a.removeFromBySizeLocked(b)
		a.unlockAndFreeLocked(b)
		log.Debug("device %q: free-list evicted block of %d bytes", deviceIdentifier, b.size)
	}
	return a
}

func roundUpToPage(size, pageSize int) int {
	if size <= 0 {
		return pageSize
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// Alloc returns a new page-aligned, page-locked block of at least size
// bytes, reusing a free-listed block of the exact rounded size if one is
// parked.
func (a *Allocator) Alloc(size int) (*Block, error) {
	rounded := roundUpToPage(size, a.pageSize)

	a.mu.Lock()
	if free := a.bySize[rounded]; len(free) > 0 {
		b := free[0]
		a.bySize[rounded] = free[1:]
		a.cache.Remove(b)
		a.mu.Unlock()
		b.refs = 1
		b.data = b.data[:size]
		return b, nil
	}
	a.mu.Unlock()

	data, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, ajaerr.New(ajaerr.AllocatorExhausted, err)
	}

	locked := true
	if err := unix.Mlock(data); err != nil {
		// Failure mode (§4.2): fall back to a non-page-locked buffer.
		// Still usable for DMA, with reduced throughput.
		log.Warn("mlock failed for %d-byte block, falling back to unlocked memory: %v", rounded, err)
		locked = false
	}

	return &Block{data: data[:size], size: rounded, refs: 1, locked: locked}, nil
}

// Share returns a read-only sub-allocation viewing b's memory at
// [offset, offset+length), without a second page-lock. Freeing a
// sub-block only drops a reference count on the parent.
func (b *Block) Share(offset, length int) *Block {
	atomic.AddInt32(&b.refs, 1)
	return &Block{data: b.data[offset : offset+length], parent: b}
}

// Copy allocates a fresh block and memcpies b's content into it.
func (a *Allocator) Copy(b *Block) (*Block, error) {
	out, err := a.Alloc(b.Len())
	if err != nil {
		return nil, err
	}
	copy(out.data, b.data)
	return out, nil
}

// Release returns b to the allocator. Releasing a sub-block (from Share)
// only decrements the parent's reference count; releasing the last
// reference to a root block parks it on the free list (or, once the free
// list is full, unlocks and frees it immediately).
func (a *Allocator) Release(b *Block) {
	if b == nil {
		return
	}
	if b.parent != nil {
		atomic.AddInt32(&b.parent.refs, -1)
		return
	}

	if n := atomic.AddInt32(&b.refs, -1); n > 0 {
		return
	}

	a.mu.Lock()
	a.bySize[b.size] = append(a.bySize[b.size], b)
	a.cache.Add(b, b) // triggers OnEvicted on whatever block falls off the cap
	a.mu.Unlock()
}

func (a *Allocator) removeFromBySizeLocked(b *Block) {
	list := a.bySize[b.size]
	for i, c := range list {
		if c == b {
			a.bySize[b.size] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (a *Allocator) unlockAndFreeLocked(b *Block) {
	if b.locked {
		_ = unix.Munlock(b.data[:cap(b.data)])
	}
	_ = unix.Munmap(fullSlice(b))
}

func fullSlice(b *Block) []byte {
	// data may have been shrunk (§4.5.3: "Resize audio buffer to
	// GetCapturedAudioByteCount()"); unmap needs the original mapping
	// length, which equals the rounded allocation size.
	return b.data[:cap(b.data):cap(b.data)]
}

// Len reports how many blocks are currently parked on the free list,
// across all sizes -- the §8 "Allocator idempotence" testable property.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache.Len()
}

// Resize shrinks (never grows) b's visible length, used after a transfer
// reports the actual captured byte count (§4.5.3 step 4). The underlying
// mapping is untouched so the full capacity is recovered on Release.
func (b *Block) Resize(n int) {
	full := b.data[:cap(b.data)]
	b.data = full[:n]
}

// Close releases every block still parked on the free list, unlocking and
// unmapping their pages. Called on allocator/pool deactivation (§3
// Lifecycle: "Allocator and pools: ... deactivated and destroyed on
// stop").
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for size, blocks := range a.bySize {
		for _, b := range blocks {
			a.unlockAndFreeLocked(b)
		}
		delete(a.bySize, size)
	}
	a.cache = lru.New(FreeListCap)
}
