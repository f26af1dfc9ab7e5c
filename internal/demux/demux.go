// Package demux implements C8, the ingest demuxer: one sink carrying the
// capture engine's interleaved Frame queue, split into independent video
// and audio sources (§4.7.1).
//
// Grounded on a dispatch-by-predicate mux: Mux reads one
// connection and dispatches each packet to whichever registered Endpoint
// claims it via a MatchFunc predicate, buffering per-endpoint so a slow
// reader doesn't stall the others. Demuxer follows the same one-source,
// many-sinks dispatch shape, simplified for two known, fixed outputs
// (video always; audio only when the frame carries it) rather than mux's
// open-ended endpoint registry, and carries queue.Item's richer sum type
// instead of raw byte packets.
package demux

import (
	"context"

	"github.com/lanikai/gstreamer-aja/internal/queue"
)

// FlowReturn mirrors the GStreamer pad flow-return lattice this core must
// report upward (§4.7.1).
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowNotLinked
	FlowEOS
	FlowError
)

// Combine applies §4.7.1's combination rule across this demuxer's two
// output pads: NOT_LINKED iff both pads are NOT_LINKED; EOS iff both are
// EOS; otherwise FlowError if either pad returned it, else OK.
func Combine(video, audio FlowReturn) FlowReturn {
	if video == FlowNotLinked && audio == FlowNotLinked {
		return FlowNotLinked
	}
	if video == FlowEOS && audio == FlowEOS {
		return FlowEOS
	}
	for _, f := range []FlowReturn{video, audio} {
		if f == FlowError {
			return FlowError
		}
	}
	for _, f := range []FlowReturn{video, audio} {
		if f != FlowOK && f != FlowNotLinked && f != FlowEOS {
			return f
		}
	}
	return FlowOK
}

// VideoOutput and AudioOutput are the demuxer's two independent
// downstream buffer sinks. The engine wiring this demuxer into the
// element's source pads implements these against whatever the framework
// pad push primitive is. PushVideo takes ownership of f: it must call
// f.Release() once it and any buffer it derives from f.Audio have been
// consumed (the audio pad never owns f directly, since it only ever sees
// a byte slice view of f.Audio).
type VideoOutput interface {
	PushVideo(ctx context.Context, f *queue.Frame) FlowReturn
	PushVideoEvent(it queue.Item) FlowReturn
}

type AudioOutput interface {
	PushAudio(ctx context.Context, f *queue.Frame, audioBytes []byte) FlowReturn
	PushAudioGap(ctx context.Context, duration int64) FlowReturn
	PushAudioEvent(it queue.Item) FlowReturn
}

// Demuxer pulls Items from an upstream queue.Queue and fans them out.
type Demuxer struct {
	In    *queue.Queue
	Video VideoOutput
	Audio AudioOutput

	// sawAudioEver is set the first time a Frame with a non-nil Audio
	// buffer is observed; once true, a Frame without audio emits a gap
	// event instead of silently producing nothing on the audio pad
	// (§4.7.1: "gap-event synthesis when audio is absent from a frame
	// that's otherwise carrying it").
	sawAudioEver bool
}

// New constructs a Demuxer reading from in and writing to video/audio.
func New(in *queue.Queue, video VideoOutput, audio AudioOutput) *Demuxer {
	return &Demuxer{In: in, Video: video, Audio: audio}
}

// Run drains items from In until ctx is done or the queue closes and
// drains empty, dispatching each to the video and/or audio outputs. Run
// releases nothing itself: each Frame's buffers are released by
// Video.PushVideo, which takes ownership of it.
func (d *Demuxer) Run(ctx context.Context) FlowReturn {
	for {
		it, ok := d.In.PopHead(ctx)
		if !ok {
			return FlowEOS
		}
		if ret := d.dispatch(ctx, it); ret != FlowOK {
			return ret
		}
	}
}

func (d *Demuxer) dispatch(ctx context.Context, it queue.Item) FlowReturn {
	switch it.Kind {
	case queue.KindFrame:
		return d.dispatchFrame(ctx, it.Frame)
	default:
		vr := d.Video.PushVideoEvent(it)
		ar := d.Audio.PushAudioEvent(it)
		return Combine(vr, ar)
	}
}

func (d *Demuxer) dispatchFrame(ctx context.Context, f *queue.Frame) FlowReturn {
	vr := d.Video.PushVideo(ctx, f)

	var ar FlowReturn
	if f.Audio != nil {
		d.sawAudioEver = true
		ar = d.Audio.PushAudio(ctx, f, f.Audio.Bytes())
	} else if d.sawAudioEver {
		ar = d.Audio.PushAudioGap(ctx, f.Duration.Nanoseconds())
	} else {
		ar = FlowOK
	}

	return Combine(vr, ar)
}
