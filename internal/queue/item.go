// Package queue implements C5, the bounded frame queue that sits between
// the capture engine (C6) and the ingest demuxer (C8), or between the
// egress combiner (C9) and the playout engine (C7).
//
// The queue is a sum type of four item kinds (§4.4, §9: "model the queue
// items as an explicit tagged union, not four parallel queues or an
// interface with type-switches scattered across call sites"), each
// carried in one Item value with a Kind discriminant. Only Kind == Frame
// items count against the queue's capacity; signal-change, dropped-count,
// and error items are metadata that must never be starved by a full frame
// backlog.
package queue

import (
	"time"

	"github.com/lanikai/gstreamer-aja/internal/anc"
	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

// Kind discriminates an Item's payload.
type Kind int

const (
	KindFrame Kind = iota
	KindSignalChange
	KindFramesDropped
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindSignalChange:
		return "signal-change"
	case KindFramesDropped:
		return "frames-dropped"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one captured or to-be-displayed frame's worth of buffers and
// metadata.
type Frame struct {
	CaptureTime time.Time // monotonic, set at dequeue from the driver (§4.5.3)
	PTS         time.Duration
	Duration    time.Duration

	Video *dma.Block
	Audio *dma.Block // nil if no audio system configured
	ANCF1 *dma.Block // nil unless custom-ANC enabled
	ANCF2 *dma.Block // nil unless custom-ANC enabled and interlaced

	Timecode       device.RP188
	DetectedFormat videoformat.Mode
	VPID           videoformat.VPID

	// ParNum/ParDen are the pixel aspect ratio derived from the detected
	// format's raster height and the VPID widescreen flag (§4.5.5), rather
	// than the Mode table's nominal PAR, since VPID can flag a 16:9
	// anamorphic transfer on an SD raster the table otherwise treats as
	// 4:3.
	ParNum, ParDen int

	// StructuredTC and Captions are populated on the output side of the
	// capture engine (§4.5.5: RP188 -> structured timecode, VANC/ANC ->
	// caption metadata) and consumed on the input side of the playout
	// engine's Render (§4.6.2 steps 3-4), carried on the same Frame value
	// rather than a separate generic metadata-registration system (§1
	// non-goal: the framework's own meta registry is out of scope).
	StructuredTC anc.Timecode
	Captions     anc.Captions
	AFD          *anc.AFDBar

	// Discont marks the first frame after a signal-change or gap, so
	// downstream can mark its output buffer DISCONT (§4.5.5, §4.7.2).
	Discont bool

	pools *framePools
}

// framePools lets a Frame return its buffers to the pools they came from,
// without the rest of the module needing to know which pool backs which
// field.
type framePools struct {
	video, audio, anc *dma.Pool
}

// NewFrame constructs a Frame whose buffers, when Release'd, go back to
// the given per-kind pools. Any of the pools may be nil for a Frame that
// doesn't use that buffer kind.
func NewFrame(video, audio, anc *dma.Pool) *Frame {
	return &Frame{pools: &framePools{video: video, audio: audio, anc: anc}}
}

// Release returns every non-nil buffer to its owning pool. Safe to call on
// a Frame that was never given pools (e.g. constructed directly in tests);
// in that case it's a no-op.
func (f *Frame) Release() {
	if f.pools == nil {
		return
	}
	if f.Video != nil && f.pools.video != nil {
		f.pools.video.Release(f.Video)
	}
	if f.Audio != nil && f.pools.audio != nil {
		f.pools.audio.Release(f.Audio)
	}
	if f.ANCF1 != nil && f.pools.anc != nil {
		f.pools.anc.Release(f.ANCF1)
	}
	if f.ANCF2 != nil && f.pools.anc != nil {
		f.pools.anc.Release(f.ANCF2)
	}
}

// SignalChange reports a detected input-format transition (§4.5.3: "when
// the detected format changes from the previous iteration, push a
// SignalChange item before resuming frame delivery").
type SignalChange struct {
	Present bool
	Format  videoformat.Mode
	VPID    videoformat.VPID
}

// FramesDropped reports a count of frames lost to either queue overrun
// (§4.4) or driver-side drops surfaced during steady state (§4.5.3).
type FramesDropped struct {
	Count int
	// DriverSide is true when the count came from
	// AutoCirculateStatus.FramesDropped increasing, false when it came
	// from this queue evicting its own oldest Frame on overrun.
	DriverSide bool
}

// Item is the tagged union itself. Exactly one of Frame/SignalChange/
// FramesDropped/Err is meaningful, selected by Kind.
type Item struct {
	Kind          Kind
	Frame         *Frame
	SignalChange  *SignalChange
	FramesDropped *FramesDropped
	Err           error
}

// FrameItem wraps f as a Kind == KindFrame Item.
func FrameItem(f *Frame) Item { return Item{Kind: KindFrame, Frame: f} }

// SignalChangeItem wraps sc as a Kind == KindSignalChange Item.
func SignalChangeItem(sc SignalChange) Item { return Item{Kind: KindSignalChange, SignalChange: &sc} }

// FramesDroppedItem wraps fd as a Kind == KindFramesDropped Item.
func FramesDroppedItem(fd FramesDropped) Item {
	return Item{Kind: KindFramesDropped, FramesDropped: &fd}
}

// ErrorItem wraps err as a Kind == KindError Item.
func ErrorItem(err error) Item { return Item{Kind: KindError, Err: err} }

// Drop releases any buffer resources the item owns. Call this instead of
// letting a dropped Item simply go out of scope, so Frame buffers return
// to their pool rather than leaking.
func (it Item) Drop() {
	if it.Kind == KindFrame && it.Frame != nil {
		it.Frame.Release()
	}
}
