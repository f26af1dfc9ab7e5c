package demux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/queue"
)

func TestCombineFlowReturn(t *testing.T) {
	assert.Equal(t, FlowNotLinked, Combine(FlowNotLinked, FlowNotLinked))
	assert.Equal(t, FlowEOS, Combine(FlowEOS, FlowEOS))
	assert.Equal(t, FlowOK, Combine(FlowOK, FlowNotLinked))
	assert.Equal(t, FlowError, Combine(FlowError, FlowOK))
}

type recordingVideo struct {
	frames   int
	released []*queue.Frame
}

func (r *recordingVideo) PushVideo(ctx context.Context, f *queue.Frame) FlowReturn {
	r.frames++
	f.Release()
	return FlowOK
}
func (r *recordingVideo) PushVideoEvent(it queue.Item) FlowReturn { return FlowOK }

type recordingAudio struct {
	withAudio int
	gaps      int
}

func (r *recordingAudio) PushAudio(ctx context.Context, f *queue.Frame, audioBytes []byte) FlowReturn {
	r.withAudio++
	return FlowOK
}
func (r *recordingAudio) PushAudioGap(ctx context.Context, duration int64) FlowReturn {
	r.gaps++
	return FlowOK
}
func (r *recordingAudio) PushAudioEvent(it queue.Item) FlowReturn { return FlowOK }

func TestDemuxerSynthesizesGapAfterAudioSeen(t *testing.T) {
	in := queue.New(8)
	video := &recordingVideo{}
	audio := &recordingAudio{}
	d := New(in, video, audio)

	alloc := dma.NewAllocator("fake")
	defer alloc.Close()
	vPool, err := dma.NewPool(alloc, 16, 4)
	require.NoError(t, err)
	aPool, err := dma.NewPool(alloc, 8, 4)
	require.NoError(t, err)
	vPool.Activate()
	aPool.Activate()

	v1, _ := vPool.Acquire()
	a1, _ := aPool.Acquire()
	f1 := queue.NewFrame(vPool, aPool, nil)
	f1.Video, f1.Audio = v1, a1
	in.PushTail(queue.FrameItem(f1))

	v2, _ := vPool.Acquire()
	f2 := queue.NewFrame(vPool, aPool, nil)
	f2.Video = v2 // no audio this time
	in.PushTail(queue.FrameItem(f2))

	in.Close()

	ret := d.Run(context.Background())
	assert.Equal(t, FlowEOS, ret)
	assert.Equal(t, 2, video.frames)
	assert.Equal(t, 1, audio.withAudio)
	assert.Equal(t, 1, audio.gaps)
}

func TestDemuxerNoGapBeforeAudioEverSeen(t *testing.T) {
	in := queue.New(8)
	video := &recordingVideo{}
	audio := &recordingAudio{}
	d := New(in, video, audio)

	alloc := dma.NewAllocator("fake")
	defer alloc.Close()
	vPool, err := dma.NewPool(alloc, 16, 4)
	require.NoError(t, err)
	vPool.Activate()

	v1, _ := vPool.Acquire()
	f1 := queue.NewFrame(vPool, nil, nil)
	f1.Video = v1
	in.PushTail(queue.FrameItem(f1))
	in.Close()

	d.Run(context.Background())
	assert.Equal(t, 0, audio.gaps)
	assert.Equal(t, 0, audio.withAudio)
}
