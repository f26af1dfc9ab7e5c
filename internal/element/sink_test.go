package element

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/queue"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

func TestSinkLifecycleAndSetCaps(t *testing.T) {
	id := "fake-sink-lifecycle"
	registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	sink := NewSink(id, cfg)

	ctx := context.Background()
	require.NoError(t, sink.SetState(ctx, StatePaused))
	assert.Equal(t, StatePaused, sink.State())

	require.NoError(t, sink.SetCaps(ctx, mode))
	require.NoError(t, sink.SetState(ctx, StatePlaying))
	assert.Equal(t, StatePlaying, sink.State())

	require.NoError(t, sink.SetState(ctx, StateNull))
	assert.Equal(t, StateNull, sink.State())
}

func TestSinkSetCapsBeforePausedFails(t *testing.T) {
	id := "fake-sink-early-caps"
	registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	sink := NewSink(id, cfg)

	err := sink.SetCaps(context.Background(), mode)
	assert.Error(t, err)
}

func TestSinkRenderBeforePausedFails(t *testing.T) {
	id := "fake-sink-early-render"
	registerFakeDevice(t, id)

	cfg := config.Default(0)
	sink := NewSink(id, cfg)

	err := sink.Render(queue.NewFrame(nil, nil, nil))
	assert.Error(t, err)
}

func TestSinkRenderAfterCapsDeliversFrame(t *testing.T) {
	id := "fake-sink-render"
	fake := registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	cfg.QueueSize = 2 // half == 1, matching the single frame rendered below
	sink := NewSink(id, cfg)

	ctx := context.Background()
	require.NoError(t, sink.SetState(ctx, StatePaused))
	require.NoError(t, sink.SetCaps(ctx, mode))
	fake.SetAvailableOutputFrames(cfg.Channel, 100)
	require.NoError(t, sink.SetState(ctx, StatePlaying))

	alloc := dma.NewAllocator("sink-render-upstream")
	defer alloc.Close()
	sink.mu.Lock()
	size := sink.handle.GetVideoActiveSize(mode, false)
	sink.mu.Unlock()
	vPool, err := dma.NewPool(alloc, size, 2)
	require.NoError(t, err)
	vPool.Activate()

	video, err := vPool.Acquire()
	require.NoError(t, err)
	in := queue.NewFrame(vPool, nil, nil)
	in.Video = video

	require.NoError(t, sink.Render(in))

	require.Eventually(t, func() bool {
		return len(fake.OutputLog(cfg.Channel)) >= 1
	}, time.Second, time.Millisecond)

	require.NoError(t, sink.SetState(ctx, StateNull))
}

func TestSinkSetCapsMidStreamDrainsThenReconfigures(t *testing.T) {
	id := "fake-sink-caps-change"
	fake := registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)
	mode2, ok := videoformat.ByName("1080p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	sink := NewSink(id, cfg)

	ctx := context.Background()
	require.NoError(t, sink.SetState(ctx, StatePaused))
	require.NoError(t, sink.SetCaps(ctx, mode))
	fake.SetAvailableOutputFrames(cfg.Channel, 100)
	require.NoError(t, sink.SetState(ctx, StatePlaying))

	require.NoError(t, sink.SetCaps(ctx, mode2))

	require.NoError(t, sink.SetState(ctx, StateNull))
}
