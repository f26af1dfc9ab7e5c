// Package combine implements C9, the egress combiner: two sinks (video
// and, optionally, audio) feeding one playout-bound Frame source,
// video-buffer-gated so a combined Frame is only ever emitted once a
// video buffer has arrived, with up to one pending audio buffer attached
// (§4.8.1).
//
// Like demux, this is grounded on the same dispatch-by-predicate mux
// idiom, inverted: where Mux reads one source and fans out to many
// matched sinks, Combiner reads from two independent input channels and
// merges them back into one queue.Item stream, buffering at most one
// pending audio buffer the way Mux's Endpoint buffers at most nbufs
// packets while a consumer catches up.
package combine

import (
	"sync"

	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/queue"
)

// Combiner merges an incoming video buffer stream with an incoming audio
// buffer stream into queue.Frame values ready for the playout engine.
type Combiner struct {
	mu sync.Mutex

	pendingAudio *dma.Block
	audioPool    *dma.Pool
	videoPool    *dma.Pool

	// pendingVideo holds a video buffer that arrived before its audio
	// counterpart was available, deferred per §4.8.1 ("if an audio buffer
	// is not yet available, and the audio pad is not EOS, it defers")
	// rather than emitted immediately with no audio attached.
	pendingVideo     *dma.Block
	pendingVideoPool *dma.Pool

	// audioEOS is set once the audio pad reaches end-of-stream; from then
	// on a video buffer never defers, since no further audio will ever
	// arrive to pair with it.
	audioEOS bool

	out *queue.Queue

	// audioChannels is set by SetAudioChannels as caps negotiate, and is
	// read back through CapsAudioChannels (§4.8.2: "source caps derivation
	// with audio-channels=N appended").
	audioChannels int
}

// New constructs a Combiner that pushes merged Frames onto out. videoPool
// is unused by Combiner itself (each PushVideo/Push call supplies its own
// pool per buffer, since a single combiner may see buffers cycling
// through more than one pool across a reconfiguration); it is retained on
// the struct for callers that want a single place to stash the steady-
// state pool alongside the combiner.
func New(out *queue.Queue, videoPool *dma.Pool) *Combiner {
	return &Combiner{out: out, videoPool: videoPool}
}

// PushAudio buffers one audio block, to be attached to the next video
// buffer PushVideo receives. If an audio block is already pending (the
// video pad is falling behind), the older one is dropped and released,
// matching §4.8.1's "at most one pending audio buffer; a second arrival
// before the next video buffer replaces, never queues, the first".
//
// If a video buffer is already deferred waiting on this audio pad (it
// arrived first and found no audio pending, per PushVideo), this audio
// buffer completes that deferral immediately: the pair is merged and
// pushed to out without waiting for a second video buffer.
func (c *Combiner) PushAudio(b *dma.Block, pool *dma.Pool) {
	c.mu.Lock()

	if c.pendingVideo != nil {
		v, vPool := c.pendingVideo, c.pendingVideoPool
		c.pendingVideo, c.pendingVideoPool = nil, nil
		f := c.mergeLocked(v, vPool, b, pool)
		c.mu.Unlock()
		c.out.PushTail(queue.FrameItem(f))
		return
	}

	if c.pendingAudio != nil {
		c.audioPool.Release(c.pendingAudio)
	}
	c.pendingAudio = b
	c.audioPool = pool
	c.mu.Unlock()
}

// SetAudioEOS marks the audio pad as having reached end-of-stream
// (§4.8.1). Once set, a video buffer that finds no audio pending is
// merged immediately with nil audio rather than deferred, since no
// further audio will ever arrive. If a video buffer is already deferred
// when EOS arrives, it is flushed now with nil audio.
func (c *Combiner) SetAudioEOS(eos bool) {
	c.mu.Lock()
	c.audioEOS = eos
	if !eos || c.pendingVideo == nil {
		c.mu.Unlock()
		return
	}
	v, vPool := c.pendingVideo, c.pendingVideoPool
	c.pendingVideo, c.pendingVideoPool = nil, nil
	f := c.mergeLocked(v, vPool, nil, nil)
	c.mu.Unlock()
	c.out.PushTail(queue.FrameItem(f))
}

// mergeLocked builds a Frame from v and audio. Callers must hold c.mu (or
// have already detached both buffers from combiner state) before calling
// it; it does not itself push to c.out.
func (c *Combiner) mergeLocked(v *dma.Block, vPool *dma.Pool, audio *dma.Block, audioPool *dma.Pool) *queue.Frame {
	f := queue.NewFrame(vPool, audioPool, nil)
	f.Video = v
	f.Audio = audio
	return f
}

// PushVideo waits for a video buffer, matching it against whatever audio
// is currently pending (§4.8.1). If no audio is pending and the audio pad
// is not yet EOS, it defers: v is held until PushAudio or SetAudioEOS
// completes it, and PushVideo returns (nil, false). A video buffer that
// was already deferred when this one arrives is released and never reaches
// a Frame, since a Frame can only ever carry one video buffer.
func (c *Combiner) PushVideo(v *dma.Block, vPool *dma.Pool) (*queue.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingAudio != nil || c.audioEOS {
		audio := c.pendingAudio
		audioPool := c.audioPool
		c.pendingAudio = nil
		c.audioPool = nil
		return c.mergeLocked(v, vPool, audio, audioPool), true
	}

	if c.pendingVideo != nil {
		c.pendingVideoPool.Release(c.pendingVideo)
	}
	c.pendingVideo = v
	c.pendingVideoPool = vPool
	return nil, false
}

// Caps is the merged source pad's negotiated caps: the video geometry
// plus, once audio has been seen at least once, an audio-channels field
// (§4.8.2).
type Caps struct {
	Width, Height int
	AudioChannels int // 0 until audio has been observed
}

// SetAudioChannels records the channel count for Caps derivation, called
// once the audio sink's caps negotiate.
func (c *Combiner) SetAudioChannels(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioChannels = n
}

func (c *Combiner) CapsAudioChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioChannels
}

// Push assembles a Frame from v (and any pending audio) and pushes it
// onto the combiner's output queue as a KindFrame item. If v defers
// waiting on audio (§4.8.1), nothing is pushed yet; the Frame follows
// later from PushAudio or SetAudioEOS.
func (c *Combiner) Push(v *dma.Block, vPool *dma.Pool) {
	f, ok := c.PushVideo(v, vPool)
	if !ok {
		return
	}
	c.out.PushTail(queue.FrameItem(f))
}
