package dma

import (
	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
)

// Pool is a fixed-size, fixed-count buffer pool built on top of an
// Allocator, matching the external framework capability §6 describes
// ("Named buffer pool with acquire/release and active-toggle"). The
// capture and playout engines create one Pool per buffer kind (video,
// audio, and -- when custom-ANC is enabled -- ancillary) during
// configuration (§4.5.2 step 11, §4.6.1) and Deactivate+Close it on
// teardown.
//
// Unlike the Allocator's own free list (capped at 8, §4.2), a Pool's
// count is sized for the whole ring (2x queue_size for video/audio, per
// §4.5.2 step 11) so the engine never blocks waiting for a buffer during
// steady-state operation; exhaustion is treated as AllocatorExhausted
// (§7), which engines report as fatal.
type Pool struct {
	alloc    *Allocator
	size     int
	free     chan *Block
	active   bool
}

// NewPool creates a pool of count buffers, each of size bytes, backed by
// alloc. The pool starts inactive; call Activate before Acquire.
func NewPool(alloc *Allocator, size, count int) (*Pool, error) {
	p := &Pool{alloc: alloc, size: size, free: make(chan *Block, count)}
	for i := 0; i < count; i++ {
		b, err := alloc.Alloc(size)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.free <- b
	}
	return p, nil
}

// Activate makes the pool available for Acquire.
func (p *Pool) Activate() { p.active = true }

// Deactivate stops the pool from dispensing new buffers. In-flight
// buffers may still be Released.
func (p *Pool) Deactivate() { p.active = false }

// Acquire returns a free buffer without blocking, or an
// AllocatorExhausted error if the pool is inactive or has none available
// (§4.5.3 step 4: "if any acquisition fails, treat as fatal").
func (p *Pool) Acquire() (*Block, error) {
	if !p.active {
		return nil, ajaerr.Newf(ajaerr.AllocatorExhausted, "pool is not active")
	}
	select {
	case b := <-p.free:
		b.data = b.data[:p.size]
		return b, nil
	default:
		return nil, ajaerr.Newf(ajaerr.AllocatorExhausted, "pool exhausted (size=%d)", p.size)
	}
}

// Release returns b to the pool for reuse.
func (p *Pool) Release(b *Block) {
	select {
	case p.free <- b:
	default:
		// Pool over-full (shouldn't happen: every buffer originates
		// from this pool's own initial allocation). Return it to the
		// allocator's general free list instead of leaking it.
		p.alloc.Release(b)
	}
}

// Size is the fixed per-buffer size this pool hands out.
func (p *Pool) Size() int { return p.size }

// Close drains and releases every buffer back to the allocator.
func (p *Pool) Close() {
	p.Deactivate()
	for {
		select {
		case b := <-p.free:
			p.alloc.Release(b)
		default:
			return
		}
	}
}
